package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrInvalidFormat    = errors.New("invalid token format")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
)

// PlaceholderSecret é usado quando JWT_SECRET não foi configurado
const PlaceholderSecret = "dev-secret"

// Participant identifica opcionalmente quem recebeu o convite
type Participant struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Invite é o payload assinado do convite. Não é persistido: o token é a única cópia.
type Invite struct {
	InviteID     string       `json:"inviteId"`
	CampaignID   string       `json:"campaignId"`
	CampaignName string       `json:"campaignName"`
	SingleUse    bool         `json:"singleUse"`
	Exp          int64        `json:"exp"` // unix segundos
	Participant  *Participant `json:"participant,omitempty"`
}

// ExpiresAt devolve exp como time.Time (UTC)
func (i Invite) ExpiresAt() time.Time { return time.Unix(i.Exp, 0).UTC() }

// Métodos de jwt.Claims. A validação de claims do parser fica desligada;
// a expiração é conferida em VerifyInvite.
func (i Invite) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(i.ExpiresAt()), nil
}
func (i Invite) GetIssuedAt() (*jwt.NumericDate, error)  { return nil, nil }
func (i Invite) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (i Invite) GetIssuer() (string, error)              { return "", nil }
func (i Invite) GetSubject() (string, error)             { return i.InviteID, nil }
func (i Invite) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

// Codec assina e verifica tokens HS256 compactos (header.payload.assinatura em base64url)
type Codec struct {
	secret []byte
	parser *jwt.Parser
}

// NewCodec lê o segredo uma única vez. Segredo vazio cai no placeholder de
// desenvolvimento: o serviço continua de pé, mas o aviso sai em nível Warn.
func NewCodec(secret string, log *zap.Logger) *Codec {
	if secret == "" || secret == PlaceholderSecret {
		if log != nil {
			log.Warn("invite tokens signed with placeholder secret; set JWT_SECRET",
				zap.Bool("empty", secret == ""))
		}
		if secret == "" {
			secret = PlaceholderSecret
		}
	}
	return &Codec{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Sign gera o token compacto para o payload
func (c *Codec) Sign(p Invite) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, p)
	s, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign invite: %w", err)
	}
	return s, nil
}

// Verify confere formato e assinatura (comparação em tempo constante via hmac.Equal).
// Não olha a expiração.
func (c *Codec) Verify(raw string) (Invite, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Invite{}, ErrInvalidFormat
	}
	for _, p := range parts {
		if p == "" {
			return Invite{}, ErrInvalidFormat
		}
	}

	var claims Invite
	_, err := c.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Invite{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		return Invite{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return claims, nil
}

// VerifyInvite é o ponto único de entrada para tokens vindos de participantes:
// assinatura + expiração. exp == now ainda é válido.
func (c *Codec) VerifyInvite(raw string, now time.Time) (Invite, error) {
	inv, err := c.Verify(raw)
	if err != nil {
		return Invite{}, err
	}
	if inv.Exp < now.Unix() {
		return Invite{}, ErrTokenExpired
	}
	return inv, nil
}

// Reason traduz o erro para o rótulo usado em métricas
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return "format"
	case errors.Is(err, ErrInvalidSignature):
		return "signature"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	default:
		return "other"
	}
}

// IsRejection indica se o erro é uma recusa do token (e não falha de infraestrutura)
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrTokenExpired)
}

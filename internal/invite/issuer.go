package invite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/radieske/bolao-facil/internal/campaign"
	"github.com/radieske/bolao-facil/internal/token"
)

// CampaignGetter faz leitura direta por id (sem cache)
type CampaignGetter interface {
	Get(ctx context.Context, id string) (campaign.Campaign, error)
}

// ActiveFinder resolve a campanha ativa (via cache)
type ActiveFinder interface {
	Active(ctx context.Context) (campaign.Campaign, error)
}

type Signer interface {
	Sign(p token.Invite) (string, error)
}

// Request pede um convite; CampaignID vazio usa a campanha ativa
type Request struct {
	CampaignID  string
	Participant *token.Participant
}

// Issued é o convite emitido. O token é a única cópia: nada é persistido.
type Issued struct {
	Link         string    `json:"link"`
	Token        string    `json:"token"`
	InviteID     string    `json:"inviteId"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CampaignID   string    `json:"campaignId"`
	CampaignName string    `json:"campaignName"`
}

// Issuer emite convites assinados por campanha
type Issuer struct {
	Log       *zap.Logger
	Campaigns CampaignGetter
	Active    ActiveFinder
	Codec     Signer
	BaseURL   string

	Now   func() time.Time
	NewID func() string

	OnIssued func()
}

// Issue resolve a campanha, calcula a expiração, gera o inviteId e assina.
//
// exp = closesAt quando a campanha tem data de fechamento futura; senão
// now + inviteExpirationDaysDefault (7 se não configurado). singleUse é sempre true.
func (i *Issuer) Issue(ctx context.Context, req Request) (Issued, error) {
	c, err := i.resolve(ctx, strings.TrimSpace(req.CampaignID))
	if err != nil {
		return Issued{}, err
	}

	now := i.now()
	exp := ExpiryFor(c, now)

	inviteID := i.newID()
	payload := token.Invite{
		InviteID:     inviteID,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		SingleUse:    true,
		Exp:          exp.Unix(),
		Participant:  cleanParticipant(req.Participant),
	}
	tok, err := i.Codec.Sign(payload)
	if err != nil {
		return Issued{}, err
	}

	if i.OnIssued != nil {
		i.OnIssued()
	}
	i.Log.Info("invite issued",
		zap.String("inviteId", inviteID),
		zap.String("campaignId", c.ID),
		zap.Time("expiresAt", payload.ExpiresAt()),
	)

	return Issued{
		Link:         i.Link(tok),
		Token:        tok,
		InviteID:     inviteID,
		ExpiresAt:    payload.ExpiresAt(),
		CampaignID:   c.ID,
		CampaignName: c.Name,
	}, nil
}

// Link monta a URL pública do convite
func (i *Issuer) Link(tok string) string {
	return strings.TrimSuffix(i.BaseURL, "/") + "/invite/" + tok
}

// ExpiryFor calcula a expiração do convite para a campanha no instante now
func ExpiryFor(c campaign.Campaign, now time.Time) time.Time {
	now = now.Truncate(time.Second)
	if c.ClosesAt != nil && c.ClosesAt.After(now) {
		return c.ClosesAt.UTC()
	}
	return now.Add(time.Duration(c.InviteExpirationDays()) * 24 * time.Hour).UTC()
}

// QRCode gera o PNG do link para o operador compartilhar
func QRCode(link string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qrcode: %w", err)
	}
	return png, nil
}

func (i *Issuer) resolve(ctx context.Context, id string) (campaign.Campaign, error) {
	if id != "" {
		return i.Campaigns.Get(ctx, id)
	}
	return i.Active.Active(ctx)
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i *Issuer) newID() string {
	if i.NewID != nil {
		return i.NewID()
	}
	return uuid.NewString()
}

func cleanParticipant(p *token.Participant) *token.Participant {
	if p == nil {
		return nil
	}
	out := token.Participant{Name: strings.TrimSpace(p.Name), Email: strings.TrimSpace(p.Email)}
	if out.Name == "" && out.Email == "" {
		return nil
	}
	return &out
}

package campaign

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("campaign not found")
	ErrInvalid  = errors.New("invalid campaign")
	ErrClosed   = errors.New("campaign is not open for bets")
)

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusEnded:
		return true
	}
	return false
}

// Regras da Lotofácil
const (
	MinNumbersPerBet = 15
	MaxNumbersPerBet = 20
	MinNumber        = 1
	MaxNumber        = 25

	DefaultInviteExpirationDays = 7
)

// Campaign é um bolão configurado pelo operador
type Campaign struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`

	PricePerShare   decimal.Decimal `json:"pricePerShare"`
	NumbersPerBet   int             `json:"numbersPerBet"`
	MinSharesPerBet int             `json:"minSharesPerBet"`
	MaxSharesPerBet *int            `json:"maxSharesPerBet,omitempty"`

	PixKey          string `json:"pixKey,omitempty"`
	PixInstructions string `json:"pixInstructions,omitempty"`

	OpensAt  *time.Time `json:"opensAt,omitempty"`
	ClosesAt *time.Time `json:"closesAt,omitempty"`

	SingleUseInvitesDefault     bool `json:"singleUseInvitesDefault"`
	InviteExpirationDaysDefault int  `json:"inviteExpirationDaysDefault,omitempty"`
	// nil libera várias apostas no mesmo convite
	AllowMultipleBetsPerInvite *bool `json:"allowMultipleBetsPerInvite,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Normalize aplica defaults antes da validação
func (c *Campaign) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Status == "" {
		c.Status = StatusActive
	}
	if c.MinSharesPerBet == 0 {
		c.MinSharesPerBet = 1
	}
	if c.NumbersPerBet == 0 {
		c.NumbersPerBet = MinNumbersPerBet
	}
}

// Validate confere as regras de configuração da campanha
func (c Campaign) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case !c.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, c.Status)
	case !c.PricePerShare.IsPositive():
		return fmt.Errorf("%w: pricePerShare must be positive", ErrInvalid)
	case c.NumbersPerBet < MinNumbersPerBet || c.NumbersPerBet > MaxNumbersPerBet:
		return fmt.Errorf("%w: numbersPerBet must be between %d and %d", ErrInvalid, MinNumbersPerBet, MaxNumbersPerBet)
	case c.MinSharesPerBet < 1:
		return fmt.Errorf("%w: minSharesPerBet must be at least 1", ErrInvalid)
	case c.MaxSharesPerBet != nil && *c.MaxSharesPerBet < c.MinSharesPerBet:
		return fmt.Errorf("%w: maxSharesPerBet below minSharesPerBet", ErrInvalid)
	case c.InviteExpirationDaysDefault < 0:
		return fmt.Errorf("%w: inviteExpirationDaysDefault cannot be negative", ErrInvalid)
	case c.OpensAt != nil && c.ClosesAt != nil && !c.ClosesAt.After(*c.OpensAt):
		return fmt.Errorf("%w: closesAt must be after opensAt", ErrInvalid)
	}
	return nil
}

// IsOpen indica se a campanha aceita apostas no instante now
func (c Campaign) IsOpen(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.OpensAt != nil && now.Before(*c.OpensAt) {
		return false
	}
	if c.ClosesAt != nil && !now.Before(*c.ClosesAt) {
		return false
	}
	return true
}

// SharesAllowed confere a quantidade de cotas contra [min, max]
func (c Campaign) SharesAllowed(shares int) bool {
	if shares < c.MinSharesPerBet || shares < 1 {
		return false
	}
	return c.MaxSharesPerBet == nil || shares <= *c.MaxSharesPerBet
}

// MultipleBetsAllowed indica se um convite aceita mais de uma aposta no mesmo envio
func (c Campaign) MultipleBetsAllowed() bool {
	return c.AllowMultipleBetsPerInvite == nil || *c.AllowMultipleBetsPerInvite
}

// InviteExpirationDays devolve o prazo padrão de convites (7 dias se não configurado)
func (c Campaign) InviteExpirationDays() int {
	if c.InviteExpirationDaysDefault > 0 {
		return c.InviteExpirationDaysDefault
	}
	return DefaultInviteExpirationDays
}

// Clone copia inclusive os campos apontados por ponteiro
func (c Campaign) Clone() Campaign {
	out := c
	if c.MaxSharesPerBet != nil {
		v := *c.MaxSharesPerBet
		out.MaxSharesPerBet = &v
	}
	if c.OpensAt != nil {
		v := *c.OpensAt
		out.OpensAt = &v
	}
	if c.ClosesAt != nil {
		v := *c.ClosesAt
		out.ClosesAt = &v
	}
	if c.AllowMultipleBetsPerInvite != nil {
		v := *c.AllowMultipleBetsPerInvite
		out.AllowMultipleBetsPerInvite = &v
	}
	return out
}

// PickActive escolhe a campanha ativa de forma determinística:
// updatedAt mais recente, empate resolvido pelo menor id.
func PickActive(list []Campaign) (Campaign, bool) {
	var (
		best  Campaign
		found bool
	)
	for _, c := range list {
		if c.Status != StatusActive {
			continue
		}
		if !found || c.UpdatedAt.After(best.UpdatedAt) ||
			(c.UpdatedAt.Equal(best.UpdatedAt) && c.ID < best.ID) {
			best, found = c, true
		}
	}
	if !found {
		return Campaign{}, false
	}
	return best.Clone(), true
}

// sortNewestFirst ordena por createdAt desc (id como desempate)
func sortNewestFirst(list []Campaign) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

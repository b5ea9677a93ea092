package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/campaign"
	"github.com/radieske/bolao-facil/internal/token"
	"github.com/radieske/bolao-facil/pkg/contracts/events"
)

const announceTimeout = 2 * time.Second

type Verifier interface {
	Verify(raw string) (token.Invite, error)
	VerifyInvite(raw string, now time.Time) (token.Invite, error)
}

type CampaignGetter interface {
	Get(ctx context.Context, id string) (campaign.Campaign, error)
}

type Ledger interface {
	AppendGroup(ctx context.Context, inviteID string, group []bets.Bet, exclusive bool) error
	ByInvite(ctx context.Context, inviteID string) ([]bets.Bet, error)
}

type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

type Feed interface {
	PublishFeed(ctx context.Context, msg events.FeedMessage) error
}

// Selection é uma aposta enviada pelo participante
type Selection struct {
	Numbers []int `json:"numbers"`
	Shares  int   `json:"shares"`
}

type Request struct {
	Token string
	Bets  []Selection
}

// Receipt confirma a submissão já persistida
type Receipt struct {
	TransactionID   string          `json:"transactionId"`
	Status          string          `json:"status"`
	InviteID        string          `json:"inviteId"`
	CampaignID      string          `json:"campaignId"`
	BetIDs          []string        `json:"betIds"`
	TotalShares     int             `json:"totalShares"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PixKey          string          `json:"pixKey,omitempty"`
	PixInstructions string          `json:"pixInstructions,omitempty"`
}

// Service recebe as apostas de um convite. A resposta só sai depois da gravação:
// não existe caminho em que o participante recebe "ok" e a aposta se perde.
type Service struct {
	Log       *zap.Logger
	Tokens    Verifier
	Campaigns CampaignGetter
	Ledger    Ledger
	Publisher Publisher // opcional
	Feed      Feed      // opcional

	Now   func() time.Time
	NewID func() string

	OnAccepted func(bets int)
	OnRejected func(reason string)
}

// Submit valida token (assinatura + expiração), campanha e cada aposta, e grava
// todas juntas. Convite de uso único com apostas anteriores → bets.ErrInviteUsed.
func (s *Service) Submit(ctx context.Context, req Request) (Receipt, error) {
	now := s.now()

	inv, err := s.Tokens.VerifyInvite(req.Token, now)
	if err != nil {
		s.rejected("token_" + token.Reason(err))
		return Receipt{}, err
	}
	if len(req.Bets) == 0 {
		s.rejected("invalid_bet")
		return Receipt{}, fmt.Errorf("%w: no bets in submission", bets.ErrInvalidBet)
	}

	c, err := s.Campaigns.Get(ctx, inv.CampaignID)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			s.rejected("campaign_not_found")
		} else {
			s.rejected("store")
		}
		return Receipt{}, err
	}
	if !c.IsOpen(now) {
		s.rejected("campaign_closed")
		return Receipt{}, fmt.Errorf("%w: %s is %s", campaign.ErrClosed, c.ID, c.Status)
	}
	if len(req.Bets) > 1 && !c.MultipleBetsAllowed() {
		s.rejected("invalid_bet")
		return Receipt{}, fmt.Errorf("%w: campaign accepts a single bet per invite", bets.ErrInvalidBet)
	}

	group, totalShares, err := s.build(inv, c, req.Bets, now)
	if err != nil {
		s.rejected("invalid_bet")
		return Receipt{}, err
	}

	if err := s.Ledger.AppendGroup(ctx, inv.InviteID, group, inv.SingleUse); err != nil {
		switch {
		case errors.Is(err, bets.ErrInviteUsed):
			s.rejected("invite_used")
		default:
			s.rejected("store")
		}
		return Receipt{}, err
	}

	rcpt := Receipt{
		TransactionID:   s.newID(),
		Status:          "accepted",
		InviteID:        inv.InviteID,
		CampaignID:      c.ID,
		TotalShares:     totalShares,
		TotalAmount:     c.PricePerShare.Mul(decimal.NewFromInt(int64(totalShares))),
		PixKey:          c.PixKey,
		PixInstructions: c.PixInstructions,
	}
	for _, b := range group {
		rcpt.BetIDs = append(rcpt.BetIDs, b.ID)
	}

	if s.OnAccepted != nil {
		s.OnAccepted(len(group))
	}
	s.Log.Info("bets accepted",
		zap.String("transactionId", rcpt.TransactionID),
		zap.String("inviteId", inv.InviteID),
		zap.String("campaignId", c.ID),
		zap.Int("bets", len(group)),
		zap.Int("shares", totalShares),
	)
	s.announce(ctx, rcpt, participantName(inv))
	return rcpt, nil
}

// Lookup devolve as apostas do convite. Só confere a assinatura: o participante
// continua vendo as próprias apostas depois que o convite expira.
func (s *Service) Lookup(ctx context.Context, raw string) (token.Invite, []bets.Bet, error) {
	inv, err := s.Tokens.Verify(raw)
	if err != nil {
		s.rejected("token_" + token.Reason(err))
		return token.Invite{}, nil, err
	}
	list, err := s.Ledger.ByInvite(ctx, inv.InviteID)
	if err != nil {
		return token.Invite{}, nil, err
	}
	return inv, list, nil
}

func (s *Service) build(inv token.Invite, c campaign.Campaign, sel []Selection, now time.Time) ([]bets.Bet, int, error) {
	name := participantName(inv)
	created := now.UTC()

	group := make([]bets.Bet, 0, len(sel))
	total := 0
	for i, in := range sel {
		nums, err := bets.NormalizeNumbers(in.Numbers, c.NumbersPerBet, campaign.MinNumber, campaign.MaxNumber)
		if err != nil {
			return nil, 0, fmt.Errorf("bet %d: %w", i+1, err)
		}
		if !c.SharesAllowed(in.Shares) {
			return nil, 0, fmt.Errorf("%w: bet %d: shares %d outside allowed range", bets.ErrInvalidBet, i+1, in.Shares)
		}
		total += in.Shares
		group = append(group, bets.Bet{
			ID:              s.newID(),
			Numbers:         nums,
			Shares:          in.Shares,
			CreatedAt:       created,
			Status:          bets.StatusActive,
			CampaignID:      c.ID,
			InviteID:        inv.InviteID,
			ParticipantName: name,
			PaymentStatus:   bets.PaymentPending,
		})
	}
	return group, total, nil
}

// announce é best-effort: falha só gera log e não segura a resposta além de announceTimeout
func (s *Service) announce(ctx context.Context, r Receipt, name string) {
	ctx, cancel := context.WithTimeout(ctx, announceTimeout)
	defer cancel()

	ev := events.BetPlaced{
		TransactionID:   r.TransactionID,
		InviteID:        r.InviteID,
		CampaignID:      r.CampaignID,
		ParticipantName: name,
		BetIDs:          r.BetIDs,
		TotalShares:     r.TotalShares,
		TotalAmount:     r.TotalAmount.StringFixed(2),
		TsUnixMs:        s.now().UnixMilli(),
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishBetPlaced(ctx, ev); err != nil {
			s.Log.Warn("publish bet_placed failed", zap.String("transactionId", r.TransactionID), zap.Error(err))
		}
	}
	if s.Feed != nil {
		if err := s.Feed.PublishFeed(ctx, events.FeedMessage{Type: "bet_placed", Payload: ev}); err != nil {
			s.Log.Warn("feed publish failed", zap.String("transactionId", r.TransactionID), zap.Error(err))
		}
	}
}

func (s *Service) rejected(reason string) {
	if s.OnRejected != nil {
		s.OnRejected(reason)
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func participantName(inv token.Invite) string {
	if inv.Participant == nil {
		return ""
	}
	return strings.TrimSpace(inv.Participant.Name)
}

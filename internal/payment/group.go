package payment

import (
	"sort"
	"strings"
	"time"

	"github.com/radieske/bolao-facil/internal/bets"
)

// InviteGroup agrupa as apostas de um mesmo convite. É derivado, nunca persistido.
type InviteGroup struct {
	InviteID             string             `json:"inviteId"`
	CampaignID           string             `json:"campaignId"`
	ParticipantName      string             `json:"participantName"`
	TotalShares          int                `json:"totalShares"`
	Bets                 []bets.Bet         `json:"bets"`
	FirstBetCreatedAt    time.Time          `json:"firstBetCreatedAt"`
	PaymentStatusOverall bets.PaymentStatus `json:"paymentStatusOverall"`
}

// FallbackParticipantName é usado quando nenhuma aposta do grupo traz nome
func FallbackParticipantName(inviteID string) string {
	prefix := inviteID
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return "Participante " + prefix + "..."
}

// Overall resume o status do grupo: qualquer pending → pending;
// senão qualquer rejected → rejected; senão approved.
func Overall(list []bets.Bet) bets.PaymentStatus {
	rejected := false
	for _, b := range list {
		switch b.PaymentStatus {
		case bets.PaymentPending:
			return bets.PaymentPending
		case bets.PaymentRejected:
			rejected = true
		}
	}
	if rejected {
		return bets.PaymentRejected
	}
	return bets.PaymentApproved
}

// GroupByInvite particiona as apostas por inviteId. Cada grupo sai com as apostas
// em ordem de criação; os grupos saem por firstBetCreatedAt (inviteId desempata).
func GroupByInvite(list []bets.Bet) []InviteGroup {
	byInvite := make(map[string]*InviteGroup)
	order := make([]string, 0)

	for _, b := range list {
		g, ok := byInvite[b.InviteID]
		if !ok {
			g = &InviteGroup{InviteID: b.InviteID, CampaignID: b.CampaignID}
			byInvite[b.InviteID] = g
			order = append(order, b.InviteID)
		}
		g.Bets = append(g.Bets, b)
	}

	out := make([]InviteGroup, 0, len(order))
	for _, id := range order {
		out = append(out, summarize(*byInvite[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FirstBetCreatedAt.Equal(out[j].FirstBetCreatedAt) {
			return out[i].FirstBetCreatedAt.Before(out[j].FirstBetCreatedAt)
		}
		return out[i].InviteID < out[j].InviteID
	})
	return out
}

func summarize(g InviteGroup) InviteGroup {
	sort.SliceStable(g.Bets, func(i, j int) bool {
		if !g.Bets[i].CreatedAt.Equal(g.Bets[j].CreatedAt) {
			return g.Bets[i].CreatedAt.Before(g.Bets[j].CreatedAt)
		}
		return g.Bets[i].ID < g.Bets[j].ID
	})

	g.TotalShares = 0
	for _, b := range g.Bets {
		g.TotalShares += b.Shares
		if g.ParticipantName == "" {
			g.ParticipantName = strings.TrimSpace(b.ParticipantName)
		}
	}
	if g.ParticipantName == "" {
		g.ParticipantName = FallbackParticipantName(g.InviteID)
	}
	if len(g.Bets) > 0 {
		g.FirstBetCreatedAt = g.Bets[0].CreatedAt
		g.CampaignID = g.Bets[0].CampaignID
	}
	g.PaymentStatusOverall = Overall(g.Bets)
	return g
}

package invite

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bolao-facil/internal/campaign"
	"github.com/radieske/bolao-facil/internal/token"
)

var now = time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)

type campaigns map[string]campaign.Campaign

func (c campaigns) Get(_ context.Context, id string) (campaign.Campaign, error) {
	v, ok := c[id]
	if !ok {
		return campaign.Campaign{}, campaign.ErrNotFound
	}
	return v, nil
}

func (c campaigns) Active(context.Context) (campaign.Campaign, error) {
	list := make([]campaign.Campaign, 0, len(c))
	for _, v := range c {
		list = append(list, v)
	}
	a, ok := campaign.PickActive(list)
	if !ok {
		return campaign.Campaign{}, campaign.ErrNotFound
	}
	return a, nil
}

func newIssuer(cs campaigns) (*Issuer, *token.Codec) {
	codec := token.NewCodec("s3cr3t", zap.NewNop())
	return &Issuer{
		Log:       zap.NewNop(),
		Campaigns: cs,
		Active:    cs,
		Codec:     codec,
		BaseURL:   "https://bolao.example.com/",
		Now:       func() time.Time { return now },
		NewID:     func() string { return "inv-123" },
	}, codec
}

func TestIssueForExplicitCampaign(t *testing.T) {
	cs := campaigns{"c1": {ID: "c1", Name: "Mega", Status: campaign.StatusPaused, PricePerShare: decimal.NewFromInt(5)}}
	iss, codec := newIssuer(cs)
	issued := 0
	iss.OnIssued = func() { issued++ }

	out, err := iss.Issue(context.Background(), Request{CampaignID: "c1", Participant: &token.Participant{Name: " Rui "}})
	require.NoError(t, err)
	require.Equal(t, "https://bolao.example.com/invite/"+out.Token, out.Link)
	require.Equal(t, "inv-123", out.InviteID)
	require.Equal(t, now.Add(7*24*time.Hour), out.ExpiresAt)
	require.Equal(t, 1, issued)

	p, err := codec.VerifyInvite(out.Token, now)
	require.NoError(t, err)
	require.Equal(t, "c1", p.CampaignID)
	require.Equal(t, "Mega", p.CampaignName)
	require.True(t, p.SingleUse)
	require.Equal(t, "Rui", p.Participant.Name)
}

func TestIssueUsesActiveCampaign(t *testing.T) {
	cs := campaigns{
		"old": {ID: "old", Name: "Old", Status: campaign.StatusActive, UpdatedAt: now.Add(-time.Hour)},
		"new": {ID: "new", Name: "New", Status: campaign.StatusActive, UpdatedAt: now},
	}
	iss, _ := newIssuer(cs)

	out, err := iss.Issue(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "new", out.CampaignID)
}

func TestIssueCampaignNotFound(t *testing.T) {
	iss, _ := newIssuer(campaigns{})

	_, err := iss.Issue(context.Background(), Request{CampaignID: "nope"})
	require.ErrorIs(t, err, campaign.ErrNotFound)
	_, err = iss.Issue(context.Background(), Request{})
	require.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestExpiryFor(t *testing.T) {
	future := now.Add(48 * time.Hour)
	past := now.Add(-time.Hour)

	require.Equal(t, future, ExpiryFor(campaign.Campaign{ClosesAt: &future}, now))
	require.Equal(t, now.Add(7*24*time.Hour), ExpiryFor(campaign.Campaign{ClosesAt: &past}, now))
	require.Equal(t, now.Add(30*24*time.Hour), ExpiryFor(campaign.Campaign{InviteExpirationDaysDefault: 30}, now))
	// closesAt distante ainda manda
	far := now.Add(90 * 24 * time.Hour)
	require.Equal(t, far, ExpiryFor(campaign.Campaign{ClosesAt: &far, InviteExpirationDaysDefault: 3}, now))
}

func TestQRCode(t *testing.T) {
	png, err := QRCode("https://bolao.example.com/invite/abc", 0)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

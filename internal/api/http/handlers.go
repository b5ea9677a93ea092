package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/campaign"
	"github.com/radieske/bolao-facil/internal/invite"
	"github.com/radieske/bolao-facil/internal/payment"
	"github.com/radieske/bolao-facil/internal/submission"
	"github.com/radieske/bolao-facil/internal/token"
)

type tokenRequest struct {
	Token string `json:"token"`
}

type submitRequest struct {
	Token string                 `json:"token"`
	Bets  []submission.Selection `json:"bets"`
}

type issueRequest struct {
	CampaignID  string             `json:"campaignId"`
	Participant *token.Participant `json:"participant,omitempty"`
}

type groupDecisionRequest struct {
	InviteID string             `json:"inviteId"`
	Status   bets.PaymentStatus `json:"status"`
}

type betDecisionRequest struct {
	Status bets.PaymentStatus `json:"status"`
}

// publicCampaign é o que o participante vê da campanha
type publicCampaign struct {
	ID                         string          `json:"id"`
	Name                       string          `json:"name"`
	Description                string          `json:"description,omitempty"`
	Status                     campaign.Status `json:"status"`
	PricePerShare              decimal.Decimal `json:"pricePerShare"`
	NumbersPerBet              int             `json:"numbersPerBet"`
	MinSharesPerBet            int             `json:"minSharesPerBet"`
	MaxSharesPerBet            *int            `json:"maxSharesPerBet,omitempty"`
	PixKey                     string          `json:"pixKey,omitempty"`
	PixInstructions            string          `json:"pixInstructions,omitempty"`
	OpensAt                    *time.Time      `json:"opensAt,omitempty"`
	ClosesAt                   *time.Time      `json:"closesAt,omitempty"`
	AllowMultipleBetsPerInvite bool            `json:"allowMultipleBetsPerInvite"`
}

func toPublic(c campaign.Campaign) publicCampaign {
	return publicCampaign{
		ID:                         c.ID,
		Name:                       c.Name,
		Description:                c.Description,
		Status:                     c.Status,
		PricePerShare:              c.PricePerShare,
		NumbersPerBet:              c.NumbersPerBet,
		MinSharesPerBet:            c.MinSharesPerBet,
		MaxSharesPerBet:            c.MaxSharesPerBet,
		PixKey:                     c.PixKey,
		PixInstructions:            c.PixInstructions,
		OpensAt:                    c.OpensAt,
		ClosesAt:                   c.ClosesAt,
		AllowMultipleBetsPerInvite: c.MultipleBetsAllowed(),
	}
}

// --- participante ---

func (a *API) activeCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := a.Cache.Active(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublic(c))
}

// validateInvite confere assinatura e expiração e devolve o convite decodificado
func (a *API) validateInvite(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	inv, err := a.Tokens.VerifyInvite(req.Token, time.Now())
	if err != nil {
		if a.OnTokenRejected != nil {
			a.OnTokenRejected(token.Reason(err))
		}
		a.writeError(w, r, err)
		return
	}
	c, err := a.Campaigns.Get(r.Context(), inv.CampaignID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":     true,
		"invite":    inv,
		"expiresAt": inv.ExpiresAt(),
		"campaign":  toPublic(c),
		"open":      c.IsOpen(time.Now()),
	})
}

func (a *API) submitBets(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	rcpt, err := a.Submissions.Submit(r.Context(), submission.Request{Token: req.Token, Bets: req.Bets})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rcpt)
}

func (a *API) checkInviteStatus(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	inv, list, err := a.Submissions.Lookup(r.Context(), req.Token)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inviteId":  inv.InviteID,
		"hasBets":   len(list) > 0,
		"betsCount": len(list),
	})
}

func (a *API) betsByInvite(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	inv, list, err := a.Submissions.Lookup(r.Context(), req.Token)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := map[string]any{
		"inviteId":   inv.InviteID,
		"campaignId": inv.CampaignID,
		"bets":       list,
	}
	if len(list) > 0 {
		g := payment.GroupByInvite(list)[0]
		out["totalShares"] = g.TotalShares
		out["paymentStatusOverall"] = g.PaymentStatusOverall
	}
	writeJSON(w, http.StatusOK, out)
}

// --- operador: campanhas ---

func (a *API) listCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := a.Campaigns.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) createCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.Campaign
	if err := decodeJSON(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := a.Campaigns.Create(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := a.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// updateCampaign aplica o corpo por cima da versão atual (campos ausentes ficam como estão)
func (a *API) updateCampaign(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	c, err := a.Campaigns.Update(r.Context(), chi.URLParam(r, "id"), func(c *campaign.Campaign) error {
		if err := json.Unmarshal(body, c); err != nil {
			return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
		}
		return nil
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := a.Campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// campaignBets é o painel da campanha: apostas e totais, com filtro opcional de status
func (a *API) campaignBets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status := bets.PaymentStatus(r.URL.Query().Get("paymentStatus"))
	if status != "" && !status.Valid() {
		a.writeError(w, r, fmt.Errorf("%w: unknown paymentStatus %q", errBadRequest, status))
		return
	}
	c, err := a.Campaigns.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	list, err := a.Ledger.ByCampaign(r.Context(), id, status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	shares := 0
	for _, b := range list {
		shares += b.Shares
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaignId":  id,
		"totalBets":   len(list),
		"totalShares": shares,
		"totalAmount": c.PricePerShare.Mul(decimal.NewFromInt(int64(shares))),
		"bets":        list,
	})
}

// --- operador: convites ---

func (a *API) issueInvite(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.Issuer.Issue(r.Context(), invite.Request{CampaignID: req.CampaignID, Participant: req.Participant})
	if err != nil {
		if req.CampaignID == "" && errors.Is(err, campaign.ErrNotFound) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "no active campaign; pass campaignId", Code: "campaign_not_found"})
			return
		}
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// inviteQR devolve o PNG do link do convite; o token precisa ter assinatura válida
func (a *API) inviteQR(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if _, err := a.Tokens.Verify(raw); err != nil {
		a.writeError(w, r, err)
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := invite.QRCode(a.Issuer.Link(raw), size)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (a *API) inviteGroup(w http.ResponseWriter, r *http.Request) {
	g, err := a.Payments.GroupForInvite(r.Context(), chi.URLParam(r, "inviteId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// --- operador: pagamentos ---

func (a *API) listBets(w http.ResponseWriter, r *http.Request) {
	status := bets.PaymentStatus(r.URL.Query().Get("paymentStatus"))
	if status == "" {
		status = bets.PaymentPending
	}
	list, err := a.Ledger.ByPaymentStatus(r.Context(), status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) pendingGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := a.Payments.ListPendingGroups(r.Context(), r.URL.Query().Get("campaignId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) authorizeGroup(w http.ResponseWriter, r *http.Request) {
	var req groupDecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	d, err := a.Payments.DecideGroup(r.Context(), req.InviteID, req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) authorizeBet(w http.ResponseWriter, r *http.Request) {
	var req betDecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	d, err := a.Payments.DecideBet(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

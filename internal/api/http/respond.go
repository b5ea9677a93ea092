package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/campaign"
	"github.com/radieske/bolao-facil/internal/payment"
	"github.com/radieske/bolao-facil/internal/token"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON lê o corpo com limite de tamanho; corpo inválido vira errBadRequest
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

// writeError é o único ponto de mapeamento erro → status HTTP
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		a.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
		msg := "internal error"
		if code == "partial_group_write" {
			msg = "decision partially applied; it will be reconciled"
		}
		writeJSON(w, status, errorBody{Error: msg, Code: code})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, token.ErrInvalidFormat):
		return http.StatusBadRequest, "invalid_token_format"
	case errors.Is(err, token.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid_token_signature"
	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired"
	case errors.Is(err, campaign.ErrNotFound):
		return http.StatusNotFound, "campaign_not_found"
	case errors.Is(err, bets.ErrNotFound), errors.Is(err, payment.ErrNoBets):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, bets.ErrInviteUsed):
		return http.StatusConflict, "invite_used"
	case errors.Is(err, bets.ErrTerminalState):
		return http.StatusConflict, "terminal_state"
	case errors.Is(err, bets.ErrDuplicateBet):
		return http.StatusConflict, "duplicate_bet"
	case errors.Is(err, campaign.ErrClosed):
		return http.StatusConflict, "campaign_closed"
	case errors.Is(err, bets.ErrInvalidBet),
		errors.Is(err, campaign.ErrInvalid),
		errors.Is(err, payment.ErrInvalidDecision),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, payment.ErrPartialGroupWrite):
		return http.StatusInternalServerError, "partial_group_write"
	default:
		return http.StatusInternalServerError, "store_unavailable"
	}
}

package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/radieske/bolao-facil/internal/api/ws"
	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/campaign"
	"github.com/radieske/bolao-facil/internal/invite"
	"github.com/radieske/bolao-facil/internal/payment"
	"github.com/radieske/bolao-facil/internal/submission"
	"github.com/radieske/bolao-facil/internal/token"
)

// API expõe as rotas do participante (com rate limit) e do operador (bearer)
type API struct {
	Log         *zap.Logger
	Campaigns   *campaign.RedisRepo // leituras por id e CRUD
	Cache       *campaign.Cache     // campanha ativa
	Ledger      *bets.RedisLedger
	Tokens      *token.Codec
	Issuer      *invite.Issuer
	Submissions *submission.Service
	Payments    *payment.Workflow
	Hub         *ws.Hub // opcional

	AdminToken      string
	AllowedOrigins  []string
	RateLimitPerMin int

	OnTokenRejected func(reason string)
}

// Router monta o roteador chi com os middlewares padrão
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Group(func(r chi.Router) {
		if a.RateLimitPerMin > 0 {
			r.Use(httprate.LimitByIP(a.RateLimitPerMin, time.Minute))
		}
		r.Get("/v1/campaigns/active", a.activeCampaign)
		r.Post("/v1/invites/validate", a.validateInvite)
		r.Post("/v1/bets", a.submitBets)
		r.Post("/v1/bets/check-invite-status", a.checkInviteStatus)
		r.Post("/v1/bets/by-invite", a.betsByInvite)
	})

	r.Route("/v1/admin", func(r chi.Router) {
		if a.Hub != nil {
			r.With(a.adminGate(true)).Get("/ws", a.Hub.HandleWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(a.adminGate(false))

			r.Get("/campaigns", a.listCampaigns)
			r.Post("/campaigns", a.createCampaign)
			r.Get("/campaigns/{id}", a.getCampaign)
			r.Put("/campaigns/{id}", a.updateCampaign)
			r.Delete("/campaigns/{id}", a.deleteCampaign)
			r.Get("/campaigns/{id}/bets", a.campaignBets)

			r.Post("/invites", a.issueInvite)
			r.Get("/invites/qr", a.inviteQR)
			r.Get("/invites/{inviteId}/group", a.inviteGroup)

			r.Get("/bets", a.listBets)
			r.Get("/bets/pending", a.pendingGroups)
			r.Post("/bets/authorize", a.authorizeGroup)
			r.Post("/bets/{id}/authorize", a.authorizeBet)
		})
	})
	return r
}

// adminGate compara o bearer com o token estático em tempo constante.
// allowQuery libera ?access_token= e só é usado no handshake do WebSocket,
// onde o navegador não manda header.
func (a *API) adminGate(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var got string
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				got = strings.TrimPrefix(h, "Bearer ")
			} else if allowQuery {
				got = r.URL.Query().Get("access_token")
			}
			if a.AdminToken == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.AdminToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

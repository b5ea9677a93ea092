package metrics

import "github.com/prometheus/client_golang/prometheus"

// Counters agrupa as métricas de negócio compartilhadas entre os binários.
// Os componentes recebem callbacks (OnX) ligados a estes contadores no main.
type Counters struct {
	InvitesIssued     prometheus.Counter
	BetsAccepted      prometheus.Counter
	SubmissionsFailed *prometheus.CounterVec // reason
	TokenRejected     *prometheus.CounterVec // reason
	PaymentDecisions  *prometheus.CounterVec // outcome
	PartialWrites     prometheus.Counter
	CacheLookups      *prometheus.CounterVec // result: hit|miss
	IntentsReconciled *prometheus.CounterVec // result
}

func NewCounters() *Counters {
	return &Counters{
		InvitesIssued: prometheus.NewCounter(prometheus.CounterOpts{Name: "bolao_invites_issued_total", Help: "convites emitidos"}),
		BetsAccepted:  prometheus.NewCounter(prometheus.CounterOpts{Name: "bolao_bets_accepted_total", Help: "apostas persistidas"}),
		SubmissionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bolao_submissions_failed_total", Help: "submissões recusadas por motivo"},
			[]string{"reason"}),
		TokenRejected: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bolao_token_rejected_total", Help: "tokens de convite recusados por motivo"},
			[]string{"reason"}),
		PaymentDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bolao_payment_decisions_total", Help: "decisões de pagamento por resultado"},
			[]string{"outcome"}),
		PartialWrites: prometheus.NewCounter(prometheus.CounterOpts{Name: "bolao_partial_group_writes_total", Help: "grupos deixados em estado misto"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bolao_campaign_cache_lookups_total", Help: "leituras do cache de campanhas"},
			[]string{"result"}),
		IntentsReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bolao_intents_reconciled_total", Help: "intents reprocessados pelo reconciliador"},
			[]string{"result"}),
	}
}

// MustRegister registra todos os contadores no registerer informado
func (c *Counters) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.InvitesIssued, c.BetsAccepted, c.SubmissionsFailed, c.TokenRejected,
		c.PaymentDecisions, c.PartialWrites, c.CacheLookups, c.IntentsReconciled,
	)
}

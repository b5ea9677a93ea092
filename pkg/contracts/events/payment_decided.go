package events

// PaymentDecided registra uma decisão do operador sobre um grupo (convite) ou aposta avulsa
type PaymentDecided struct {
	DecisionID     string   `json:"decision_id"`
	InviteID       string   `json:"invite_id,omitempty"`
	BetID          string   `json:"bet_id,omitempty"`
	Status         string   `json:"status"` // approved | rejected
	Affected       int      `json:"affected"`
	AlreadyInState int      `json:"already_in_state"`
	BetIDs         []string `json:"bet_ids"`
	TsUnixMs       int64    `json:"ts_unix_ms"`
}

// FeedMessage é o envelope publicado no Redis Pub/Sub e repassado ao WebSocket
type FeedMessage struct {
	Type    string      `json:"type"` // bet_placed | payment_decided
	Payload interface{} `json:"payload"`
}

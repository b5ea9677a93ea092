package events

// BetPlaced é publicado depois que uma submissão foi persistida.
// Um evento por submissão (transação), não por aposta.
type BetPlaced struct {
	TransactionID   string   `json:"transaction_id"`
	InviteID        string   `json:"invite_id"`
	CampaignID      string   `json:"campaign_id"`
	ParticipantName string   `json:"participant_name"`
	BetIDs          []string `json:"bet_ids"`
	TotalShares     int      `json:"total_shares"`
	TotalAmount     string   `json:"total_amount"` // decimal serializado, ex: "12.50"
	TsUnixMs        int64    `json:"ts_unix_ms"`
}

package topics

const (
	// Bets
	BetPlaced      = "bet_placed"
	PaymentDecided = "payment_decided"

	// Canal Redis Pub/Sub consumido pelo WebSocket do painel administrativo
	AdminFeedChannel = "bolao_admin_feed"
)

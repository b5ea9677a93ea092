package ws

// ClientMsg é a mensagem recebida do painel via WebSocket.
// Type: subscribe | unsubscribe | ping
// Topic: tipo de evento (bet_placed, payment_decided) ou "*" para todos
type ClientMsg struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// TopicAll assina todos os tipos de evento do feed
const TopicAll = "*"

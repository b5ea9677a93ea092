package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radieske/bolao-facil/internal/shared/kafka"
	"github.com/radieske/bolao-facil/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de domínio. A chave é o inviteId, então
// eventos do mesmo convite caem na mesma partição e chegam em ordem.
type KafkaPublisher struct {
	BetPlaced      kafka.MessageWriter
	PaymentDecided kafka.MessageWriter
	Now            func() time.Time
}

func NewKafkaPublisher(betPlaced, paymentDecided kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{BetPlaced: betPlaced, PaymentDecided: paymentDecided, Now: time.Now}
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	if e.TsUnixMs == 0 {
		e.TsUnixMs = p.Now().UnixMilli()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.BetPlaced, e.InviteID, b)
}

func (p *KafkaPublisher) PublishPaymentDecided(ctx context.Context, e events.PaymentDecided) error {
	if e.TsUnixMs == 0 {
		e.TsUnixMs = p.Now().UnixMilli()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := e.InviteID
	if key == "" {
		key = e.BetID
	}
	return kafka.WriteJSON(ctx, p.PaymentDecided, key, b)
}

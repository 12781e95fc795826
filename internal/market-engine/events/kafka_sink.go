package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	contracts "github.com/radieske/pump-rug-market-poc/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado pelo sink
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publica cada evento com a chave marketId, mantendo a ordem por
// mercado dentro da partição
type KafkaSink struct {
	W MessageWriter
}

func (s *KafkaSink) Write(ctx context.Context, batch []contracts.Envelope) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, e := range batch {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.MarketID), Value: b, Time: e.Ts})
	}
	return s.W.WriteMessages(ctx, msgs...)
}

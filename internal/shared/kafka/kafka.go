package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Brokers converte "a:9092,b:9092" em lista
func Brokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func NewWriter(brokers string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(Brokers(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // mesma chave (marketId) cai na mesma partição
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}
}

func NewReader(brokers string, topic string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        Brokers(brokers),
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}

// Ping conecta ao primeiro broker que responder; usado no /healthz
func Ping(brokers string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var last error
		for _, b := range Brokers(brokers) {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err != nil {
				last = err
				continue
			}
			return conn.Close()
		}
		if last == nil {
			return fmt.Errorf("no kafka brokers configured")
		}
		return fmt.Errorf("dial kafka: %w", last)
	}
}

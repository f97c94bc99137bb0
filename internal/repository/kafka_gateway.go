package repository

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

// KafkaGateway publishes snapshots and alerts to Kafka topics instead of
// the gateway HTTP API. Payloads keep the gateway field names so either
// backend feeds the same consumers.
type KafkaGateway struct {
	producer      *pkgkafka.Producer
	snapshotTopic string
	alertTopic    string
}

// NewKafkaGateway creates a Kafka-backed gateway.
func NewKafkaGateway(producer *pkgkafka.Producer, snapshotTopic, alertTopic string) repository.Gateway {
	return &KafkaGateway{producer: producer, snapshotTopic: snapshotTopic, alertTopic: alertTopic}
}

func (g *KafkaGateway) PushSnapshot(ctx context.Context, s *models.Snapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	return g.producer.Publish(ctx, g.snapshotTopic, []byte(s.Symbol), map[string]interface{}{
		"symbolCode":   s.Symbol,
		"currentPrice": s.CurrentPrice,
		"sma":          s.SMA,
		"ema":          s.EMA,
		"volume":       s.Volume,
		"windowSize":   s.WindowMinutes,
		"timestamp":    s.Timestamp.UTC().Format(time.RFC3339),
	})
}

func (g *KafkaGateway) PushAlert(ctx context.Context, a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("alert is nil")
	}
	return g.producer.Publish(ctx, g.alertTopic, []byte(a.Symbol), map[string]interface{}{
		"symbolCode":   a.Symbol,
		"alertType":    a.Kind.String(),
		"threshold":    a.Threshold,
		"triggeredAt":  a.TriggeredAt.UTC().Format(time.RFC3339),
		"details":      a.Details,
		"acknowledged": false,
	})
}

// Close releases the underlying producer.
func (g *KafkaGateway) Close() error {
	if g.producer != nil {
		return g.producer.Close()
	}
	return nil
}

package usecase

import (
	"context"
	"encoding/json"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	mid "MarketPulse/internal/middleware"
	pkgkafka "MarketPulse/pkg/kafka"
)

// KafkaTicksHandler consumes tick messages from Kafka and feeds them
// into the ingest pipeline, so a broker can stand in for the live
// WebSocket feed.
type KafkaTicksHandler struct {
	topic   string
	proc    mid.Proc
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, proc mid.Proc, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, proc: proc, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, c, v}
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		C      float64 `json:"c"`
		V      int64   `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	ts := time.Unix(m.T, 0).UTC()
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())

	return h.proc.Process(ctx, &models.Tick{
		Symbol:    m.Symbol,
		Price:     m.C,
		Volume:    m.V,
		Timestamp: ts,
	})
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)

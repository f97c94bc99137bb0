package queue

import (
	"context"
	"time"
)

// QueueService publishes typed messages onto a work queue. Consumers live
// in the downstream services that own the queue.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Message is the envelope written to the queue.
type Message struct {
	ID        string
	Type      string
	Payload   interface{}
	Attempts  int
	Timestamp time.Time
}

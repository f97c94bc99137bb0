package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"MarketPulse/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher pushes messages onto a Redis list queue. It is the
// producer half of a producer/consumer pair; the consumer side belongs
// to whichever service drains the queue.
type RedisPublisher struct {
	logger    *logger.Logger
	client    *redis.Client
	mu        sync.RWMutex
	isRunning bool
	keyPrefix string
}

// RedisQueueOption configures RedisPublisher.
type RedisQueueOption func(*RedisPublisher)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisPublisher) {
		r.keyPrefix = prefix + ":queue"
	}
}

// NewRedisPublisher creates and starts a publisher.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisPublisher {
	p := &RedisPublisher{
		logger:    lgr,
		client:    client,
		keyPrefix: "marketpulse:queue",
	}

	for _, opt := range opts {
		opt(p)
	}

	if err := p.Start(); err != nil {
		lgr.Error("redis publisher start failed", logger.Error(err))
	}
	return p
}

// Start verifies connectivity and marks the publisher running.
func (r *RedisPublisher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return fmt.Errorf("publisher already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.isRunning = true
	r.logger.Info("redis publisher started",
		logger.String("addr", r.client.Options().Addr))
	return nil
}

// Stop marks the publisher stopped. The redis client is owned by the
// caller and stays open.
func (r *RedisPublisher) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isRunning = false
	return nil
}

// PublishMessage publishes a message (implements QueueService).
func (r *RedisPublisher) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.isRunning {
		return fmt.Errorf("publisher not running")
	}

	msg := Message{
		ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
		Attempts:  0,
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := r.client.LPush(ctx, r.queueKey(), msgData).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}

	return nil
}

func (r *RedisPublisher) queueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the part of the Redis client the relay uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo is the part of the outbox repository the relay uses.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	Backlog(ctx context.Context) (Backlog, error)
}

// RelayConfig tunes how often the outbox is drained and how streams are capped.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StreamMaxLen approximately caps each stream; zero leaves streams untrimmed.
	StreamMaxLen int64
}

func (c *RelayConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// Relay publishes discovered products recorded in the outbox table onto
// Redis streams. Events are marked processed only after Redis accepted them,
// so a crash between the two steps re-publishes rather than loses a product.
type Relay struct {
	redis  RedisClient
	outbox OutboxRepo
	logger *slog.Logger
	cfg    RelayConfig
}

// NewRelay returns a relay reading from db's outbox and writing to redisClient.
func NewRelay(db *DB, redisClient RedisClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	cfg.applyDefaults()
	return &Relay{
		redis:  redisClient,
		outbox: NewOutboxRepository(db),
		logger: logger.With("component", "relay"),
		cfg:    cfg,
	}
}

// Run drains the outbox once immediately and then on every poll interval
// until ctx is cancelled. A failed drain is logged and retried on the next
// tick; Run only returns the context's error.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay running",
		"poll_interval", r.cfg.PollInterval,
		"batch_size", r.cfg.BatchSize,
		"stream_max_len", r.cfg.StreamMaxLen)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.drain(ctx); err != nil {
			r.logger.Error("outbox drain failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drainStats counts the outcome of one drain pass.
type drainStats struct {
	Published int
	Failed    int
}

// drain publishes one batch of pending events. Per-event failures are
// recorded on the event and do not abort the batch.
func (r *Relay) drain(ctx context.Context) (drainStats, error) {
	var stats drainStats

	pending, err := r.outbox.GetPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to load pending events: %w", err)
	}
	if len(pending) == 0 {
		return stats, nil
	}

	for _, event := range pending {
		if err := r.deliver(ctx, event); err != nil {
			stats.Failed++
			r.logger.Warn("product event not delivered",
				"event_id", event.ID,
				"product_id", event.AggregateID,
				"retry_count", event.RetryCount,
				"error", err)
			continue
		}
		stats.Published++
	}

	r.logger.Debug("outbox batch drained",
		"pending", len(pending),
		"published", stats.Published,
		"failed", stats.Failed)
	return stats, nil
}

func (r *Relay) deliver(ctx context.Context, event *OutboxEvent) error {
	if err := r.publish(ctx, event); err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to record delivery failure", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("published but not marked processed: %w", err)
	}

	r.logger.Info("product event published",
		"event_id", event.ID,
		"event_type", event.EventType,
		"product_id", event.AggregateID,
		"stream", event.TargetStream)
	return nil
}

// publish appends event to its target stream.
func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	args, err := streamArgs(event, r.cfg.StreamMaxLen)
	if err != nil {
		return err
	}
	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// streamEnvelope is the JSON document stored in a stream entry's "data" field.
type streamEnvelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      streamMetadata  `json:"metadata"`
}

type streamMetadata struct {
	Source       string `json:"source"`
	OutboxID     string `json:"outbox_id"`
	RetryCount   int    `json:"retry_count"`
	TargetStream string `json:"target_stream"`
}

// streamArgs builds the XADD arguments for event. The flat fields let
// consumers filter on event type without decoding "data".
func streamArgs(event *OutboxEvent, maxLen int64) (*redis.XAddArgs, error) {
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("event %s has a malformed payload", event.ID)
	}

	data, err := json.Marshal(streamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.UTC().Format(time.RFC3339),
		Payload:       event.Payload,
		Metadata: streamMetadata{
			Source:       "clicktok",
			OutboxID:     event.ID.String(),
			RetryCount:   event.RetryCount,
			TargetStream: event.TargetStream,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode stream envelope: %w", err)
	}

	return &redis.XAddArgs{
		Stream: event.TargetStream,
		MaxLen: maxLen,
		Approx: maxLen > 0,
		Values: map[string]any{
			"data":           string(data),
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
			"original_id":    event.ID.String(),
			"timestamp":      strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
		},
	}, nil
}

// Backlog reports how many events are waiting and how many were given up on.
func (r *Relay) Backlog(ctx context.Context) (Backlog, error) {
	return r.outbox.Backlog(ctx)
}

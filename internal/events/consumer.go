package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/database"
	"github.com/redis/go-redis/v9"
)

// StreamReader is the part of the Redis client a consumer uses.
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler processes one discovered product. Returning an error leaves the
// message pending for redelivery.
type Handler func(ctx context.Context, p *ProductDiscoveredPayload) error

type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
	Block  time.Duration
	Count  int64
}

// Consumer reads PRODUCT_DISCOVERED events relayed from the outbox.
type Consumer struct {
	redis   StreamReader
	handler Handler
	cfg     ConsumerConfig
	logger  *slog.Logger
}

func NewConsumer(r StreamReader, handler Handler, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = database.DefaultTargetStream
	}
	if cfg.Group == "" {
		cfg.Group = "discovery-consumer-group"
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	return &Consumer{
		redis:   r,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("component", "consumer", "stream", cfg.Stream),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "group", c.cfg.Group, "name", c.cfg.Name)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.readOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// readOnce handles one batch and returns how many messages were acknowledged.
func (c *Consumer) readOnce(ctx context.Context) (int, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := c.process(ctx, msg); err != nil {
				c.logger.Error("failed to process message", "id", msg.ID, "error", err)
				continue
			}
			if err := c.redis.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
				continue
			}
			acked++
		}
	}
	return acked, nil
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) error {
	payload, err := DecodeMessage(msg)
	if err != nil {
		return err
	}
	if payload == nil {
		c.logger.Debug("skipping event", "id", msg.ID, "event_type", msg.Values["event_type"])
		return nil
	}
	return c.handler(ctx, payload)
}

// DecodeMessage unwraps the relay envelope. It returns nil, nil for events
// of other types.
func DecodeMessage(msg redis.XMessage) (*ProductDiscoveredPayload, error) {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(EventTypeProductDiscovered) {
		return nil, nil
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing data in event %s", msg.ID)
	}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}

	var payload ProductDiscoveredPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if payload.ProductID == "" {
		return nil, fmt.Errorf("missing product_id in event %s", msg.ID)
	}
	return &payload, nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/itsnelsonvargas/ClickTok/internal/database"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/jackc/pgx/v5"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductDiscovered is published the first time a product is stored
	EventTypeProductDiscovered EventType = "PRODUCT_DISCOVERED"
)

// ProductDiscoveredPayload is the body of a PRODUCT_DISCOVERED event.
type ProductDiscoveredPayload struct {
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	Timestamp        time.Time `json:"timestamp"`
	ProductID        string    `json:"product_id"`
	Name             string    `json:"name"`
	Price            float64   `json:"price"`
	CommissionRate   float64   `json:"commission_rate"`
	CommissionAmount float64   `json:"commission_amount"`
	Sales            int64     `json:"sales"`
	Rating           float64   `json:"rating"`
	Category         string    `json:"category,omitempty"`
	ImageURL         string    `json:"image_url,omitempty"`
	ProductURL       string    `json:"product_url,omitempty"`
	AffiliateLink    string    `json:"affiliate_link,omitempty"`
	Source           string    `json:"source"`
	Technique        string    `json:"technique,omitempty"`
}

// NewProductDiscoveredPayload builds the event body for p.
func NewProductDiscoveredPayload(p models.Product, now time.Time) *ProductDiscoveredPayload {
	return &ProductDiscoveredPayload{
		EventID:          uuid.New().String(),
		EventType:        string(EventTypeProductDiscovered),
		Timestamp:        now,
		ProductID:        p.ID,
		Name:             p.Name,
		Price:            p.Price,
		CommissionRate:   p.CommissionRate,
		CommissionAmount: p.CommissionAmount,
		Sales:            p.Sales,
		Rating:           p.Rating,
		Category:         p.Category,
		ImageURL:         p.ImageURL,
		ProductURL:       p.ProductURL,
		AffiliateLink:    p.AffiliateLink,
		Source:           string(p.Source),
		Technique:        string(p.Technique),
	}
}

// OutboxEvent wraps the payload for the transactional outbox.
func (pl *ProductDiscoveredPayload) OutboxEvent() (*database.OutboxEvent, error) {
	data, err := json.Marshal(pl)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &database.OutboxEvent{
		AggregateType: "product",
		AggregateID:   pl.ProductID,
		EventType:     pl.EventType,
		Payload:       data,
		TargetStream:  database.DefaultTargetStream,
	}, nil
}

// Publisher stores discovered products and queues their events in the same
// transaction.
type Publisher struct {
	db       *database.DB
	products *database.ProductRepository
	outbox   *database.OutboxRepository
	logger   *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:       db,
		products: database.NewProductRepository(db),
		outbox:   database.NewOutboxRepository(db),
		logger:   logger.With("component", "event_publisher"),
	}
}

// RecordDiscovered stores p and, only when it is new, queues a
// PRODUCT_DISCOVERED event. It reports whether p was already stored.
func (p *Publisher) RecordDiscovered(ctx context.Context, product models.Product) (bool, error) {
	payload := NewProductDiscoveredPayload(product, time.Now())
	event, err := payload.OutboxEvent()
	if err != nil {
		return false, err
	}

	var duplicate bool
	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, dup, err := p.products.PutWithTx(ctx, tx, product)
		if err != nil {
			return err
		}
		if dup {
			duplicate = true
			return nil
		}
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return false, fmt.Errorf("failed to record product %s: %w", product.ID, err)
	}

	if duplicate {
		p.logger.Debug("product already stored", "product_id", product.ID)
		return true, nil
	}

	p.logger.Info("product stored, event queued",
		"product_id", product.ID,
		"event_id", payload.EventID,
		"outbox_id", event.ID)

	return false, nil
}

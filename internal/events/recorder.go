package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
)

// Store persists a discovered product, reporting duplicates.
type Store interface {
	RecordDiscovered(ctx context.Context, p models.Product) (bool, error)
}

// RecorderStats counts what happened to reported products.
type RecorderStats struct {
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Recorder turns a Store into a per-product callback. Store failures are
// logged and counted, never propagated to the reporting run.
type Recorder struct {
	ctx     context.Context
	store   Store
	timeout time.Duration
	mu      sync.Mutex
	stats   RecorderStats
	logger  *slog.Logger
}

func NewRecorder(ctx context.Context, store Store, timeout time.Duration, logger *slog.Logger) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		ctx:     ctx,
		store:   store,
		timeout: timeout,
		logger:  logger.With("component", "recorder"),
	}
}

// Record is suitable as a discovery callback.
func (r *Recorder) Record(p models.Product) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.timeout)
	defer cancel()

	duplicate, err := r.store.RecordDiscovered(ctx, p)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.stats.Failed++
		r.logger.Error("failed to store product", "product_id", p.ID, "error", err)
	case duplicate:
		r.stats.Duplicates++
		r.logger.Info("product already known", "product_id", p.ID)
	default:
		r.stats.Stored++
	}
}

func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

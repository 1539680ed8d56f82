// Package api exposes discovery runs and the product store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/itsnelsonvargas/ClickTok/internal/database"
	"github.com/itsnelsonvargas/ClickTok/internal/discovery"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
)

const maxLimit = 100

// Discoverer is the part of the discovery engine the API drives.
type Discoverer interface {
	TryStart(ctx context.Context, limit int, filters models.Filters) (*discovery.Run, error)
	ContinueLogin() bool
}

// ProductStore backs the product endpoints.
type ProductStore interface {
	List(ctx context.Context, f database.ListFilter) ([]models.Product, error)
	UpdateStatus(ctx context.Context, productID string, status models.Status) error
	Stats(ctx context.Context) (*database.Stats, error)
}

// BacklogReporter reports outbox health.
type BacklogReporter interface {
	Backlog(ctx context.Context) (database.Backlog, error)
}

// Deps wires the handlers. Products, Backlog and OnFound are optional.
type Deps struct {
	Engine         Discoverer
	Products       ProductStore
	Backlog        BacklogReporter
	OnFound        func(models.Product)
	DefaultLimit   int
	DefaultFilters models.Filters
}

type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

func NewHandlers(deps Deps, logger *slog.Logger) *Handlers {
	if deps.DefaultLimit <= 0 {
		deps.DefaultLimit = 10
	}
	return &Handlers{
		deps:   deps,
		logger: logger.With("component", "api"),
	}
}

// DiscoverRequest asks for a discovery run. Nil filters use the configured
// defaults; a zero limit uses the default limit.
type DiscoverRequest struct {
	Limit   int             `json:"limit"`
	Filters *models.Filters `json:"filters,omitempty"`
}

// StrategyOutcome reports what one strategy produced.
type StrategyOutcome struct {
	Strategy string `json:"strategy"`
	Kind     string `json:"kind"`
	Count    int    `json:"count"`
	Reason   string `json:"reason,omitempty"`
}

type DiscoverResponse struct {
	RunID    string            `json:"run_id"`
	Count    int               `json:"count"`
	Products []models.Product  `json:"products"`
	Outcomes []StrategyOutcome `json:"outcomes"`
}

// Discover runs discovery to completion and returns the ranked products.
func (h *Handlers) Discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	limit, filters, err := h.resolve(req.Limit, req.Filters)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.deps.Engine.TryStart(r.Context(), limit, filters)
	if err != nil {
		h.respondStartError(w, err)
		return
	}

	for {
		p, ok := run.Next()
		if !ok {
			break
		}
		h.found(p)
	}

	h.respondJSON(w, http.StatusOK, newDiscoverResponse(run))
}

// Stream runs discovery and reports each product as a server-sent event.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	limit, filters, err := h.fromQuery(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.deps.Engine.TryStart(r.Context(), limit, filters)
	if err != nil {
		h.respondStartError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		p, ok := run.Next()
		if !ok {
			break
		}
		h.found(p)
		if err := writeEvent(w, "found", p); err != nil {
			h.logger.Debug("stream client went away", "run_id", run.ID, "error", err)
			continue
		}
		flusher.Flush()
	}

	if err := writeEvent(w, "result", newDiscoverResponse(run)); err == nil {
		flusher.Flush()
	}
}

// ContinueLogin resumes a run paused at a login wall.
func (h *Handlers) ContinueLogin(w http.ResponseWriter, r *http.Request) {
	resumed := h.deps.Engine.ContinueLogin()
	h.logger.Info("login continue requested", "resumed", resumed)
	h.respondJSON(w, http.StatusOK, map[string]bool{"resumed": resumed})
}

// ListProducts lists stored products, most popular first.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	if h.deps.Products == nil {
		h.respondError(w, http.StatusServiceUnavailable, "product store not configured")
		return
	}

	f := database.ListFilter{Status: models.Status(r.URL.Query().Get("status"))}
	if f.Status != "" && !f.Status.Valid() {
		h.respondError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	products, err := h.deps.Products.List(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	h.respondJSON(w, http.StatusOK, products)
}

type UpdateStatusRequest struct {
	Status models.Status `json:"status"`
}

// UpdateProductStatus moves a stored product through the content pipeline.
func (h *Handlers) UpdateProductStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Products == nil {
		h.respondError(w, http.StatusServiceUnavailable, "product store not configured")
		return
	}

	productID := chi.URLParam(r, "productID")
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		h.respondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	err := h.deps.Products.UpdateStatus(r.Context(), productID, req.Status)
	switch {
	case errors.Is(err, database.ErrProductNotFound):
		h.respondError(w, http.StatusNotFound, "product not found")
		return
	case err != nil:
		h.logger.Error("failed to update product status", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to update status")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"product_id": productID,
		"status":     string(req.Status),
	})
}

// GetStats summarises the product store.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Products == nil {
		h.respondError(w, http.StatusServiceUnavailable, "product store not configured")
		return
	}

	stats, err := h.deps.Products.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// Health reports liveness and, when a relay is configured, outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.deps.Backlog != nil {
		backlog, err := h.deps.Backlog.Backlog(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox backlog", "error", err)
		}
		health["outbox"] = map[string]any{
			"pending":     backlog.Pending,
			"dead_letter": backlog.DeadLetter,
		}
		if backlog.Pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if backlog.DeadLetter > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) resolve(limit int, filters *models.Filters) (int, models.Filters, error) {
	switch {
	case limit < 0:
		return 0, models.Filters{}, errors.New("limit cannot be negative")
	case limit == 0:
		limit = h.deps.DefaultLimit
	case limit > maxLimit:
		return 0, models.Filters{}, fmt.Errorf("limit cannot exceed %d", maxLimit)
	}

	f := h.deps.DefaultFilters
	if filters != nil {
		f = *filters
	}
	if err := f.Validate(); err != nil {
		return 0, models.Filters{}, err
	}
	return limit, f, nil
}

// fromQuery reads limit and filter overrides from query parameters, starting
// from the defaults.
func (h *Handlers) fromQuery(r *http.Request) (int, models.Filters, error) {
	q := r.URL.Query()
	f := h.deps.DefaultFilters

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, f, errors.New("invalid limit")
		}
		limit = n
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"min_price", &f.MinPrice},
		{"max_price", &f.MaxPrice},
		{"min_commission", &f.MinCommissionRate},
		{"min_rating", &f.MinRating},
	}
	for _, p := range floats {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, f, fmt.Errorf("invalid %s", p.key)
		}
		*p.dst = n
	}
	if v, ok := q["categories"]; ok {
		f.Categories = nil
		for _, c := range strings.Split(strings.Join(v, ","), ",") {
			if c = strings.TrimSpace(c); c != "" {
				f.Categories = append(f.Categories, c)
			}
		}
	}

	return h.resolve(limit, &f)
}

// found forwards p to the optional sink; a panicking sink never breaks a run.
func (h *Handlers) found(p models.Product) {
	if h.deps.OnFound == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("product sink panicked",
				"product_id", p.ID,
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()
	h.deps.OnFound(p)
}

func newDiscoverResponse(run *discovery.Run) DiscoverResponse {
	products := run.Wait()
	resp := DiscoverResponse{
		RunID:    run.ID,
		Count:    len(products),
		Products: products,
		Outcomes: []StrategyOutcome{},
	}
	for _, o := range run.Outcomes() {
		resp.Outcomes = append(resp.Outcomes, StrategyOutcome{
			Strategy: o.Strategy,
			Kind:     string(o.Result.Kind),
			Count:    len(o.Result.Products),
			Reason:   o.Result.Reason,
		})
	}
	return resp
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func (h *Handlers) respondStartError(w http.ResponseWriter, err error) {
	if errors.Is(err, discovery.ErrBusy) {
		h.respondError(w, http.StatusConflict, "a discovery run is already in progress")
		return
	}
	h.logger.Error("failed to start discovery", "error", err)
	h.respondError(w, http.StatusInternalServerError, "failed to start discovery")
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

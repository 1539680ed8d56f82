// Package discovery selects between the official channel, the browser
// acquirer and the synthetic generator, and reports products as they are
// accepted.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/itsnelsonvargas/ClickTok/internal/normalize"
	"github.com/itsnelsonvargas/ClickTok/internal/outcome"
	"github.com/itsnelsonvargas/ClickTok/internal/session"
)

var ErrBusy = errors.New("discovery: a run is already in progress")

// OfficialSource is the signed partner API.
type OfficialSource interface {
	Enabled() bool
	Search(ctx context.Context, limit int) ([]models.Candidate, error)
}

// BrowserSource drives a browser into a fetch session.
type BrowserSource interface {
	Run(ctx context.Context, sess *session.FetchSession) outcome.Result
}

// LoginSignaler is implemented by browser sources that can pause for an
// operator.
type LoginSignaler interface {
	Continue() bool
}

// Generator produces placeholder candidates.
type Generator interface {
	Generate(limit int, filters models.Filters) []models.Candidate
}

// Sources are the strategies in the order they are attempted. Any may be nil.
type Sources struct {
	Official  OfficialSource
	Browser   BrowserSource
	Synthetic Generator
}

// Engine serialises discovery runs. Only one run executes at a time since the
// browser's cookie file has a single writer.
type Engine struct {
	sources    Sources
	normalizer *normalize.Normalizer
	mu         sync.Mutex
	base       *slog.Logger
	logger     *slog.Logger
}

func New(sources Sources, normalizer *normalize.Normalizer, logger *slog.Logger) *Engine {
	if normalizer == nil {
		normalizer = normalize.New("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sources:    sources,
		normalizer: normalizer,
		base:       logger,
		logger:     logger.With("component", "discovery"),
	}
}

// Discover returns up to limit ranked products, calling onFound once for each
// of them from the caller's goroutine before returning. It never fails: when
// no real source produces anything, placeholders are returned.
func (e *Engine) Discover(ctx context.Context, limit int, filters models.Filters, onFound func(models.Product)) []models.Product {
	if limit <= 0 {
		return []models.Product{}
	}

	run := e.Start(ctx, limit, filters)
	for {
		p, ok := run.Next()
		if !ok {
			break
		}
		if onFound != nil {
			e.deliver(onFound, p)
		}
	}
	return run.Wait()
}

// Start launches a run, waiting for any in-progress run to finish first.
func (e *Engine) Start(ctx context.Context, limit int, filters models.Filters) *Run {
	e.mu.Lock()
	return e.launch(ctx, limit, filters)
}

// TryStart launches a run or returns ErrBusy when one is already executing.
func (e *Engine) TryStart(ctx context.Context, limit int, filters models.Filters) (*Run, error) {
	if !e.mu.TryLock() {
		return nil, ErrBusy
	}
	return e.launch(ctx, limit, filters), nil
}

// ContinueLogin resolves a pending operator wait in the browser source.
func (e *Engine) ContinueLogin() bool {
	if s, ok := e.sources.Browser.(LoginSignaler); ok {
		return s.Continue()
	}
	return false
}

// launch must be called with e.mu held; the run releases it.
func (e *Engine) launch(ctx context.Context, limit int, filters models.Filters) *Run {
	run := newRun(uuid.New().String(), limit, filters)

	go func() {
		defer e.mu.Unlock()

		var outcomes []StrategyOutcome
		var result []models.Product
		defer func() {
			run.finish(result, outcomes)
		}()

		if limit <= 0 {
			result = []models.Product{}
			return
		}
		result, outcomes = e.execute(ctx, run)
	}()

	return run
}

func (e *Engine) execute(ctx context.Context, run *Run) ([]models.Product, []StrategyOutcome) {
	logger := e.logger.With("run_id", run.ID)
	sess := session.New(run.Limit, run.Filters, e.normalizer, func(p models.Product) {
		run.found.push(p)
	}, e.base.With("run_id", run.ID))

	var outcomes []StrategyOutcome
	attempt := func(name string, fn func() outcome.Result) outcome.Result {
		res := e.safely(name, fn)
		outcomes = append(outcomes, StrategyOutcome{Strategy: name, Result: res})
		return res
	}

	logger.Info("discovery started", "limit", run.Limit, "filters", run.Filters)

	if e.sources.Official != nil && e.sources.Official.Enabled() {
		res := attempt("official", func() outcome.Result {
			return e.official(ctx, sess)
		})
		if res.Kind == outcome.KindOK {
			logger.Info("official channel is authoritative", "outcome", res.String())
			return sess.Ranked(), outcomes
		}
		logger.Info("official channel produced nothing, falling back to browser", "outcome", res.String())
	} else {
		logger.Info("official channel skipped, credentials not configured")
	}

	if e.sources.Browser != nil && ctx.Err() == nil {
		res := attempt("browser", func() outcome.Result {
			return e.sources.Browser.Run(ctx, sess)
		})
		logger.Info("browser acquisition finished", "outcome", res.String())
	}

	if sess.Count() == 0 {
		res := attempt("synthetic", func() outcome.Result {
			return e.synthetic(sess)
		})
		logger.Warn("no real products found, returning placeholders", "outcome", res.String())
	}

	ranked := sess.Ranked()
	logger.Info("discovery finished",
		"products", len(ranked),
		"episodes", sess.EpisodesTried(),
		"rejected", sess.Rejected())
	return ranked, outcomes
}

func (e *Engine) official(ctx context.Context, sess *session.FetchSession) outcome.Result {
	before := sess.Count()
	candidates, err := e.sources.Official.Search(ctx, sess.TargetCount)
	sess.Offer(models.SourceOfficial, candidates)
	accepted := sess.Accepted()[before:]

	if len(accepted) > 0 {
		return outcome.OK(accepted)
	}
	if err != nil {
		return outcome.Failed(err)
	}
	if len(candidates) > 0 {
		return outcome.Empty(fmt.Sprintf("%d items returned, none passed filters", len(candidates)))
	}
	return outcome.Empty("no items returned")
}

func (e *Engine) synthetic(sess *session.FetchSession) outcome.Result {
	if e.sources.Synthetic == nil {
		return outcome.Empty("no generator configured")
	}
	before := sess.Count()
	sess.Offer(models.SourceSynthetic, e.sources.Synthetic.Generate(sess.Remaining(), sess.Filters))
	return outcome.OK(sess.Accepted()[before:])
}

// safely converts a strategy panic into a failed result.
func (e *Engine) safely(name string, fn func() outcome.Result) (res outcome.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("strategy panicked",
				"strategy", name,
				"panic", r,
				"stack", string(debug.Stack()))
			res = outcome.Failed(fmt.Errorf("%s strategy panicked: %v", name, r))
		}
	}()
	return fn()
}

func (e *Engine) deliver(onFound func(models.Product), p models.Product) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("product callback panicked", "product_id", p.ID, "panic", r)
		}
	}()
	onFound(p)
}

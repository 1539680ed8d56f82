// Package acquirer drives a browser session through navigation episodes and
// feeds every rendered page to the extractor.
package acquirer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/browser"
	"github.com/itsnelsonvargas/ClickTok/internal/extract"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/itsnelsonvargas/ClickTok/internal/outcome"
	"github.com/itsnelsonvargas/ClickTok/internal/ratelimit"
	"github.com/itsnelsonvargas/ClickTok/internal/session"
)

// Page is the single browser tab an acquisition works in.
type Page interface {
	Navigate(ctx context.Context, url string) (browser.Landing, error)
	Inspect(ctx context.Context) (browser.Landing, error)
	Scroll(ctx context.Context) error
	Snapshot(ctx context.Context) (extract.Snapshot, error)
	Close() error
}

// Opener starts a fresh page session.
type Opener interface {
	Open(ctx context.Context) (Page, error)
}

// OpenFunc adapts a function to Opener.
type OpenFunc func(ctx context.Context) (Page, error)

func (f OpenFunc) Open(ctx context.Context) (Page, error) {
	return f(ctx)
}

// Launch opens pages through a playwright launcher.
func Launch(l *browser.Launcher) Opener {
	return OpenFunc(func(ctx context.Context) (Page, error) {
		s, err := l.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

type Options struct {
	LoginWait        time.Duration
	LoginPoll        time.Duration
	ManualNavigation bool
	ManualWait       time.Duration
	LoadMoreCycles   int
	LoadMoreDelay    time.Duration
	EpisodeDelayMin  time.Duration
	EpisodeDelayMax  time.Duration
}

func DefaultOptions() Options {
	return Options{
		LoginWait:       30 * time.Second,
		LoginPoll:       2 * time.Second,
		ManualWait:      60 * time.Second,
		LoadMoreCycles:  5,
		LoadMoreDelay:   2 * time.Second,
		EpisodeDelayMin: 2 * time.Second,
		EpisodeDelayMax: 5 * time.Second,
	}
}

// Acquirer runs one acquisition at a time. The caller guarantees exclusivity.
type Acquirer struct {
	opener    Opener
	extractor *extract.Extractor
	targets   Targets
	opts      Options
	limiter   *ratelimit.AdaptiveRateLimiter
	signal    chan struct{}
	waiting   atomic.Bool
	logger    *slog.Logger
}

func New(opener Opener, extractor *extract.Extractor, targets Targets, opts Options, logger *slog.Logger) *Acquirer {
	defaults := DefaultOptions()
	if opts.LoginWait <= 0 {
		opts.LoginWait = defaults.LoginWait
	}
	if opts.LoginPoll <= 0 {
		opts.LoginPoll = defaults.LoginPoll
	}
	if opts.ManualWait <= 0 {
		opts.ManualWait = defaults.ManualWait
	}
	if opts.LoadMoreCycles < 0 {
		opts.LoadMoreCycles = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = extract.New(nil, logger)
	}

	return &Acquirer{
		opener:    opener,
		extractor: extractor,
		targets:   targets,
		opts:      opts,
		limiter:   ratelimit.NewAdaptiveRateLimiter(opts.EpisodeDelayMin, opts.EpisodeDelayMax),
		signal:    make(chan struct{}, 1),
		logger:    logger.With("component", "acquirer"),
	}
}

// Run performs one acquisition into sess. It never fails the caller: every
// per-episode problem degrades to zero candidates for that episode.
func (a *Acquirer) Run(ctx context.Context, sess *session.FetchSession) outcome.Result {
	before := sess.Count()

	page, err := a.opener.Open(ctx)
	if err != nil {
		return outcome.Failed(outcome.New(outcome.ErrorTypeNetwork, "init", "failed to open browser", err))
	}
	defer func() {
		if err := page.Close(); err != nil {
			a.logger.Warn("failed to close browser", "error", err)
		}
	}()

	a.warmup(ctx, page)

	extracted := 0
	if a.opts.ManualNavigation {
		extracted += a.manualNavigation(ctx, page, sess)
	}

	for _, ep := range a.targets.Episodes(sess.Filters) {
		if sess.Done() || ctx.Err() != nil {
			break
		}
		if err := a.limiter.Wait(ctx); err != nil {
			break
		}

		n, err := a.episode(ctx, page, sess, ep.URL)
		sess.EpisodeTried()
		extracted += n
		a.record(ep.Name, n, err)
	}

	if extracted == 0 && !a.opts.ManualNavigation && !sess.Done() && ctx.Err() == nil {
		n := a.searchFallback(ctx, page, sess)
		extracted += n
	}

	accepted := sess.Accepted()[before:]
	a.logger.Info("acquisition finished",
		"episodes", sess.EpisodesTried(),
		"extracted", extracted,
		"accepted", len(accepted))

	if len(accepted) == 0 {
		if err := ctx.Err(); err != nil {
			return outcome.Failed(err)
		}
		if extracted == 0 {
			return outcome.Failed(outcome.New(outcome.ErrorTypeNoResults, "acquire", "no candidates on any surface", nil))
		}
		return outcome.Empty(fmt.Sprintf("%d candidates extracted, none accepted", extracted))
	}
	return outcome.OK(accepted)
}

func (a *Acquirer) warmup(ctx context.Context, page Page) {
	if a.targets.Home == "" {
		return
	}
	landing, err := page.Navigate(ctx, a.targets.Home)
	if err != nil {
		a.logger.Warn("warmup navigation failed", "url", a.targets.Home, "error", classify("warmup", err))
		return
	}
	if a.targets.AtLoginWall(landing) {
		result := a.awaitLogin(ctx, page)
		a.logger.Info("login wait finished", "result", result)
	}
}

func (a *Acquirer) manualNavigation(ctx context.Context, page Page, sess *session.FetchSession) int {
	a.logger.Info("manual navigation window open", "timeout", a.opts.ManualWait)
	if !a.awaitOperator(ctx, a.opts.ManualWait) {
		return 0
	}

	n, err := a.harvest(ctx, page, sess)
	sess.EpisodeTried()
	a.record("manual", n, err)
	return n
}

// episode navigates to one surface and harvests it. It returns the number of
// extracted candidates.
func (a *Acquirer) episode(ctx context.Context, page Page, sess *session.FetchSession, target string) (int, error) {
	landing, err := page.Navigate(ctx, target)
	if err != nil {
		return 0, classify("navigate", err)
	}
	if a.targets.IsNotFound(landing) {
		return 0, outcome.NewNotFound("navigate", fmt.Sprintf("%s answered %d %q", target, landing.Status, landing.Title))
	}
	if a.targets.AtLoginWall(landing) {
		result := a.awaitLogin(ctx, page)
		a.logger.Info("login wait finished", "url", target, "result", result)
		if result == LoginCancelled {
			return 0, ctx.Err()
		}
	}
	return a.harvest(ctx, page, sess)
}

// harvest loads more content on the current page, snapshots it, and offers
// the extracted candidates to the session.
func (a *Acquirer) harvest(ctx context.Context, page Page, sess *session.FetchSession) (int, error) {
	a.loadMore(ctx, page)

	snap, err := page.Snapshot(ctx)
	if err != nil {
		return 0, classify("snapshot", err)
	}

	candidates := a.extractor.Extract(snap)
	if len(candidates) == 0 {
		return 0, nil
	}
	sess.Offer(models.SourceBrowser, candidates)
	return len(candidates), nil
}

// loadMore scrolls to the bottom a bounded number of times with a fixed pause.
func (a *Acquirer) loadMore(ctx context.Context, page Page) {
	for i := 0; i < a.opts.LoadMoreCycles; i++ {
		if err := page.Scroll(ctx); err != nil {
			a.logger.Debug("scroll failed", "cycle", i+1, "error", err)
			return
		}
		if err := sleep(ctx, a.opts.LoadMoreDelay); err != nil {
			return
		}
	}
}

// searchFallback tries generic search terms in order until one yields
// candidates. It counts as a single episode.
func (a *Acquirer) searchFallback(ctx context.Context, page Page, sess *session.FetchSession) int {
	a.logger.Info("no candidates on configured surfaces, trying search fallback",
		"terms", len(a.targets.FallbackTerms))
	defer sess.EpisodeTried()

	for _, term := range a.targets.FallbackTerms {
		target := a.targets.SearchFor(term)
		if target == "" {
			continue
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return 0
		}
		n, err := a.episode(ctx, page, sess, target)
		a.record("fallback:"+term, n, err)
		if n > 0 {
			return n
		}
		if ctx.Err() != nil {
			return 0
		}
	}
	return 0
}

func (a *Acquirer) record(name string, extracted int, err error) {
	switch {
	case err != nil:
		a.limiter.RecordError()
		a.logger.Warn("episode failed", "episode", name, "error", err, "error_type", outcome.TypeOf(err))
	case extracted == 0:
		a.limiter.RecordError()
		a.logger.Info("episode yielded no candidates", "episode", name)
	default:
		a.limiter.RecordSuccess()
		a.logger.Info("episode harvested", "episode", name, "candidates", extracted)
	}
}

// classify maps a page error to a typed step error.
func classify(step string, err error) error {
	if err == nil {
		return nil
	}
	var se *outcome.StepError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return outcome.New(outcome.ErrorTypeTimeout, step, "page timed out", err)
	}
	return outcome.NewNetwork(step, "page error", err)
}

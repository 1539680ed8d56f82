// Package session holds the mutable state of a single discovery call.
package session

import (
	"log/slog"
	"sync"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/itsnelsonvargas/ClickTok/internal/normalize"
)

// ReportFunc receives each accepted product exactly once.
type ReportFunc func(models.Product)

// FetchSession accumulates accepted products for one call. It is created at
// the start of a discovery call and discarded when the call returns.
type FetchSession struct {
	TargetCount int
	Filters     models.Filters

	mu            sync.Mutex
	normalizer    *normalize.Normalizer
	accepted      []models.Product
	seen          map[string]struct{}
	episodesTried int
	rejected      int
	report        ReportFunc
	logger        *slog.Logger
}

func New(target int, filters models.Filters, normalizer *normalize.Normalizer, report ReportFunc, logger *slog.Logger) *FetchSession {
	if normalizer == nil {
		normalizer = normalize.New("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchSession{
		TargetCount: target,
		Filters:     filters,
		normalizer:  normalizer,
		seen:        make(map[string]struct{}),
		report:      report,
		logger:      logger.With("component", "fetch_session"),
	}
}

// Offer normalizes, filters and dedups candidates from one source. Accepted
// products are reported in order. Returns the number newly accepted. Offering
// stops once the target count is reached.
func (s *FetchSession) Offer(source models.Source, candidates []models.Candidate) int {
	var fresh []models.Product

	s.mu.Lock()
	for _, c := range candidates {
		if len(s.accepted) >= s.TargetCount {
			break
		}
		p, ok := s.normalizer.Normalize(c, source)
		if !ok {
			s.rejected++
			continue
		}
		if !s.Filters.Accepts(p) {
			s.rejected++
			continue
		}
		// Id-less candidates carry an id derived from their folded name.
		if _, dup := s.seen[p.ID]; dup {
			continue
		}
		s.seen[p.ID] = struct{}{}
		s.accepted = append(s.accepted, p)
		fresh = append(fresh, p)
	}
	s.mu.Unlock()

	for _, p := range fresh {
		if s.report != nil {
			s.report(p)
		}
	}
	if len(fresh) > 0 {
		s.logger.Debug("accepted products", "source", source, "count", len(fresh), "total", s.Count())
	}
	return len(fresh)
}

// Done reports whether the target count has been reached.
func (s *FetchSession) Done() bool {
	return s.Count() >= s.TargetCount
}

func (s *FetchSession) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accepted)
}

// Remaining is how many more products the caller still wants.
func (s *FetchSession) Remaining() int {
	return max(s.TargetCount-s.Count(), 0)
}

// EpisodeTried records a completed navigation episode.
func (s *FetchSession) EpisodeTried() {
	s.mu.Lock()
	s.episodesTried++
	s.mu.Unlock()
}

func (s *FetchSession) EpisodesTried() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodesTried
}

func (s *FetchSession) Rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// Accepted returns products in discovery order.
func (s *FetchSession) Accepted() []models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Product, len(s.accepted))
	copy(out, s.accepted)
	return out
}

// Ranked returns the final list: sales descending, truncated to the target.
func (s *FetchSession) Ranked() []models.Product {
	return normalize.Rank(s.Accepted(), s.TargetCount)
}

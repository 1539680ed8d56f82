package discovery

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/itsnelsonvargas/ClickTok/internal/normalize"
	"github.com/itsnelsonvargas/ClickTok/internal/outcome"
	"github.com/itsnelsonvargas/ClickTok/internal/session"
	"github.com/itsnelsonvargas/ClickTok/internal/synthetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOfficial struct {
	enabled    bool
	candidates []models.Candidate
	err        error
	calls      int
}

func (f *fakeOfficial) Enabled() bool { return f.enabled }

func (f *fakeOfficial) Search(ctx context.Context, limit int) ([]models.Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

type fakeBrowser struct {
	candidates []models.Candidate
	panicWith  any
	block      chan struct{}
	calls      int
	continued  int
}

func (f *fakeBrowser) Run(ctx context.Context, sess *session.FetchSession) outcome.Result {
	f.calls++
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	before := sess.Count()
	sess.Offer(models.SourceBrowser, f.candidates)
	return outcome.OK(sess.Accepted()[before:])
}

func (f *fakeBrowser) Continue() bool {
	f.continued++
	return true
}

func rate(r float64) *float64 { return &r }

func candidate(id string, price float64, sales int64) models.Candidate {
	return models.Candidate{
		ExternalID:     id,
		Name:           "Product " + id,
		Price:          price,
		Sales:          sales,
		Rating:         4.5,
		CommissionRate: rate(12),
	}
}

func newEngine(sources Sources) *Engine {
	if sources.Synthetic == nil {
		sources.Synthetic = synthetic.New(synthetic.DefaultConfig(), rand.New(rand.NewPCG(1, 2)))
	}
	return New(sources, normalize.New("AFF"), nil)
}

func collect(e *Engine, limit int, filters models.Filters) ([]models.Product, []models.Product) {
	var found []models.Product
	result := e.Discover(context.Background(), limit, filters, func(p models.Product) {
		found = append(found, p)
	})
	return result, found
}

func TestDiscover_ZeroLimit(t *testing.T) {
	official := &fakeOfficial{enabled: true, candidates: []models.Candidate{candidate("1", 20, 1)}}
	browser := &fakeBrowser{}
	e := newEngine(Sources{Official: official, Browser: browser})

	result, found := collect(e, 0, models.DefaultFilters())

	assert.NotNil(t, result)
	assert.Empty(t, result)
	assert.Empty(t, found)
	assert.Zero(t, official.calls)
	assert.Zero(t, browser.calls)
}

func TestDiscover_OfficialIsAuthoritative(t *testing.T) {
	official := &fakeOfficial{enabled: true, candidates: []models.Candidate{
		candidate("A", 20, 10),
		candidate("B", 900, 99),
		candidate("C", 45, 50),
	}}
	browser := &fakeBrowser{}
	e := newEngine(Sources{Official: official, Browser: browser})

	result, found := collect(e, 5, models.DefaultFilters())

	require.Len(t, result, 2)
	assert.Len(t, found, 2)
	assert.Equal(t, "C", result[0].ID)
	assert.Equal(t, "A", result[1].ID)
	assert.Equal(t, models.SourceOfficial, result[0].Source)
	assert.Zero(t, browser.calls)
}

func TestDiscover_OfficialFailureFallsBack(t *testing.T) {
	official := &fakeOfficial{enabled: true, err: outcome.NewNetwork("official", "request failed", errors.New("refused"))}
	browser := &fakeBrowser{candidates: []models.Candidate{candidate("X", 30, 7)}}
	e := newEngine(Sources{Official: official, Browser: browser})

	run := e.Start(context.Background(), 3, models.DefaultFilters())
	result := run.Wait()

	require.Len(t, result, 1)
	assert.Equal(t, models.SourceBrowser, result[0].Source)

	outcomes := run.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, "official", outcomes[0].Strategy)
	assert.Equal(t, outcome.KindFailed, outcomes[0].Result.Kind)
	assert.Equal(t, "browser", outcomes[1].Strategy)
	assert.Equal(t, outcome.KindOK, outcomes[1].Result.Kind)
}

func TestDiscover_SkipsOfficialWithoutCredentials(t *testing.T) {
	official := &fakeOfficial{enabled: false}
	browser := &fakeBrowser{candidates: []models.Candidate{candidate("X", 30, 7)}}
	e := newEngine(Sources{Official: official, Browser: browser})

	result, _ := collect(e, 3, models.DefaultFilters())

	assert.Len(t, result, 1)
	assert.Zero(t, official.calls)
}

func TestDiscover_SyntheticFallback(t *testing.T) {
	e := newEngine(Sources{Browser: &fakeBrowser{}})
	filters := models.DefaultFilters()

	result, found := collect(e, 7, filters)

	require.Len(t, result, 7)
	assert.Len(t, found, 7)
	for _, p := range result {
		assert.True(t, strings.HasPrefix(p.ID, "DEMO_"), p.ID)
		assert.Equal(t, models.SourceSynthetic, p.Source)
		assert.GreaterOrEqual(t, p.Price, 15.0)
		assert.LessOrEqual(t, p.Price, 150.0)
		assert.True(t, filters.Accepts(p))
	}
}

func TestDiscover_BrowserPanicIsRecovered(t *testing.T) {
	e := newEngine(Sources{Browser: &fakeBrowser{panicWith: "selector exploded"}})

	run := e.Start(context.Background(), 2, models.DefaultFilters())
	result := run.Wait()

	assert.Len(t, result, 2)
	outcomes := run.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, outcome.KindFailed, outcomes[0].Result.Kind)
	assert.Contains(t, outcomes[0].Result.Reason, "selector exploded")
	assert.Equal(t, "synthetic", outcomes[1].Strategy)
}

func TestDiscover_OnFoundExactlyOnce(t *testing.T) {
	browser := &fakeBrowser{candidates: []models.Candidate{
		candidate("1", 10, 5),
		candidate("2", 20, 50),
		candidate("1", 10, 5),
		candidate("3", 30, 500),
	}}
	e := newEngine(Sources{Browser: browser})

	result, found := collect(e, 10, models.DefaultFilters())

	seen := make(map[string]int)
	for _, p := range found {
		seen[p.ID]++
	}
	assert.Equal(t, map[string]int{"1": 1, "2": 1, "3": 1}, seen)
	assert.Equal(t, []string{"1", "2", "3"}, ids(found), "found in acceptance order")
	assert.Equal(t, []string{"3", "2", "1"}, ids(result), "result ranked by sales")
}

func TestDiscover_CallbackPanicDoesNotBreakRun(t *testing.T) {
	browser := &fakeBrowser{candidates: []models.Candidate{candidate("1", 10, 5), candidate("2", 20, 6)}}
	e := newEngine(Sources{Browser: browser})

	calls := 0
	result := e.Discover(context.Background(), 5, models.DefaultFilters(), func(p models.Product) {
		calls++
		panic("consumer bug")
	})

	assert.Len(t, result, 2)
	assert.Equal(t, 2, calls)
}

func TestTryStart_Busy(t *testing.T) {
	browser := &fakeBrowser{block: make(chan struct{}), candidates: []models.Candidate{candidate("1", 10, 5)}}
	e := newEngine(Sources{Browser: browser})

	run, err := e.TryStart(context.Background(), 1, models.DefaultFilters())
	require.NoError(t, err)

	_, err = e.TryStart(context.Background(), 1, models.DefaultFilters())
	assert.ErrorIs(t, err, ErrBusy)

	close(browser.block)
	run.Wait()

	var again *Run
	require.Eventually(t, func() bool {
		again, err = e.TryStart(context.Background(), 1, models.DefaultFilters())
		return err == nil
	}, time.Second, 5*time.Millisecond)
	again.Wait()
}

func TestContinueLogin(t *testing.T) {
	browser := &fakeBrowser{}
	e := newEngine(Sources{Browser: browser})

	assert.True(t, e.ContinueLogin())
	assert.Equal(t, 1, browser.continued)

	assert.False(t, newEngine(Sources{}).ContinueLogin())
}

func TestMailbox(t *testing.T) {
	m := newMailbox()

	var wg sync.WaitGroup
	var got []string
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			p, ok := m.pop()
			if !ok {
				return
			}
			got = append(got, p.ID)
		}
	}()

	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, m.push(models.Product{ID: id}))
	}
	m.close()
	wg.Wait()

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.False(t, m.push(models.Product{ID: "late"}))

	_, ok := m.pop()
	assert.False(t, ok, "closed and drained mailbox yields nothing")
}

func ids(products []models.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

package acquirer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/browser"
	"github.com/itsnelsonvargas/ClickTok/internal/extract"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/itsnelsonvargas/ClickTok/internal/normalize"
	"github.com/itsnelsonvargas/ClickTok/internal/outcome"
	"github.com/itsnelsonvargas/ClickTok/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productPage(products ...string) string {
	return fmt.Sprintf(`<html><body><script id="__NEXT_DATA__" type="application/json">{"props":{"items":[%s]}}</script></body></html>`,
		strings.Join(products, ","))
}

func item(id, name string, price float64, sold string) string {
	return fmt.Sprintf(`{"product_id":"%s","title":"%s","price":"$%.2f","rating":4.6,"sold_count":"%s"}`, id, name, price, sold)
}

type fakePage struct {
	mu       sync.Mutex
	landings map[string]browser.Landing
	navErrs  map[string]error
	pages    map[string]string
	inspects []browser.Landing
	current  string
	visited  []string
	scrolls  int
	closed   bool
}

func newFakePage() *fakePage {
	return &fakePage{
		landings: make(map[string]browser.Landing),
		navErrs:  make(map[string]error),
		pages:    make(map[string]string),
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) (browser.Landing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visited = append(p.visited, url)
	p.current = url
	if err := p.navErrs[url]; err != nil {
		return browser.Landing{URL: url}, err
	}
	if l, ok := p.landings[url]; ok {
		return l, nil
	}
	return browser.Landing{URL: url, Status: 200, Title: "TikTok Shop"}, nil
}

func (p *fakePage) Inspect(ctx context.Context) (browser.Landing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inspects) == 0 {
		return browser.Landing{URL: p.current, Title: "TikTok Shop"}, nil
	}
	l := p.inspects[0]
	p.inspects = p.inspects[1:]
	return l, nil
}

func (p *fakePage) Scroll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

func (p *fakePage) Snapshot(ctx context.Context) (extract.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return extract.Snapshot{URL: p.current, HTML: p.pages[p.current]}, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

func testTargets() Targets {
	t := DefaultTargets()
	t.Home = "https://shop.test/home"
	t.Surfaces = []string{"https://shop.test/deals"}
	t.SearchURL = "https://shop.test/search?q=%s"
	t.Keywords = nil
	t.FallbackTerms = []string{"first", "second"}
	return t
}

func fastOptions() Options {
	return Options{
		LoginWait:      200 * time.Millisecond,
		LoginPoll:      10 * time.Millisecond,
		ManualWait:     50 * time.Millisecond,
		LoadMoreCycles: 2,
		LoadMoreDelay:  time.Millisecond,
	}
}

func newSession(target int) *session.FetchSession {
	return session.New(target, models.Filters{}, normalize.New("AFF"), nil, nil)
}

func newAcquirer(page *fakePage, targets Targets, opts Options) *Acquirer {
	opener := OpenFunc(func(ctx context.Context) (Page, error) { return page, nil })
	return New(opener, nil, targets, opts, nil)
}

func TestEpisodes(t *testing.T) {
	targets := testTargets()
	targets.Keywords = []string{"gadgets"}
	filters := models.Filters{Categories: []string{"Beauty", "gadgets"}}

	episodes := targets.Episodes(filters)

	var urls []string
	for _, e := range episodes {
		urls = append(urls, e.URL)
	}
	assert.Equal(t, []string{
		"https://shop.test/home",
		"https://shop.test/deals",
		"https://shop.test/search?q=gadgets",
		"https://shop.test/search?q=Beauty",
	}, urls)
}

func TestClassification(t *testing.T) {
	targets := DefaultTargets()

	tests := []struct {
		name     string
		landing  browser.Landing
		login    bool
		notFound bool
	}{
		{"shop page", browser.Landing{URL: "https://www.tiktok.com/shop", Status: 200, Title: "TikTok Shop"}, false, false},
		{"login redirect", browser.Landing{URL: "https://www.tiktok.com/login?redirect_url=x", Status: 200}, true, false},
		{"login text", browser.Landing{URL: "https://www.tiktok.com/shop", Text: "Log in to TikTok to continue"}, true, false},
		{"status 404", browser.Landing{URL: "https://www.tiktok.com/shop/x", Status: 404}, false, true},
		{"soft 404", browser.Landing{URL: "https://www.tiktok.com/shop/x", Status: 200, Title: "Page not found"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.login, targets.AtLoginWall(tt.landing))
			assert.Equal(t, tt.notFound, targets.IsNotFound(tt.landing))
		})
	}
}

func TestRun_HarvestsUntilTarget(t *testing.T) {
	page := newFakePage()
	page.pages["https://shop.test/home"] = productPage(
		item("1001", "Desk Lamp", 20, "1.2K"),
		item("1002", "Phone Stand", 12, "300"),
	)
	page.pages["https://shop.test/deals"] = productPage(
		item("1002", "Phone Stand", 12, "300"),
		item("1003", "Ring Light", 35, "12.5K"),
	)

	a := newAcquirer(page, testTargets(), fastOptions())
	sess := newSession(3)

	res := a.Run(context.Background(), sess)

	require.Equal(t, outcome.KindOK, res.Kind)
	assert.Len(t, res.Products, 3)
	assert.True(t, sess.Done())
	assert.True(t, page.closed)
	assert.Equal(t, 2, sess.EpisodesTried())
	assert.Equal(t, 2*2, page.scrolls)

	ranked := sess.Ranked()
	assert.Equal(t, "1003", ranked[0].ID)
}

func TestRun_NotFoundAndErrorsDoNotAbort(t *testing.T) {
	page := newFakePage()
	page.landings["https://shop.test/home"] = browser.Landing{URL: "https://shop.test/home", Status: 404}
	page.navErrs["https://shop.test/deals"] = errors.New("Timeout 25000ms exceeded")
	page.pages["https://shop.test/search?q=first"] = productPage(item("2001", "Blender", 45, "80"))

	a := newAcquirer(page, testTargets(), fastOptions())
	sess := newSession(5)

	res := a.Run(context.Background(), sess)

	require.Equal(t, outcome.KindOK, res.Kind)
	assert.Len(t, res.Products, 1)
	assert.Equal(t, "2001", res.Products[0].ID)
	assert.NotContains(t, page.Visited(), "https://shop.test/search?q=second", "fallback stops at the first productive term")
}

func TestRun_NothingAnywhere(t *testing.T) {
	page := newFakePage()
	a := newAcquirer(page, testTargets(), fastOptions())
	sess := newSession(5)

	res := a.Run(context.Background(), sess)

	assert.Equal(t, outcome.KindFailed, res.Kind)
	assert.Contains(t, page.Visited(), "https://shop.test/search?q=second")
	assert.True(t, page.closed)
}

func TestRun_OpenFailure(t *testing.T) {
	opener := OpenFunc(func(ctx context.Context) (Page, error) { return nil, errors.New("no chromium") })
	a := New(opener, nil, testTargets(), fastOptions(), nil)

	res := a.Run(context.Background(), newSession(3))

	assert.Equal(t, outcome.KindFailed, res.Kind)
	assert.Contains(t, res.Reason, "no chromium")
}

func TestAwaitLogin(t *testing.T) {
	wall := browser.Landing{URL: "https://www.tiktok.com/login"}

	t.Run("clears when the wall disappears", func(t *testing.T) {
		page := newFakePage()
		page.inspects = []browser.Landing{wall, wall, {URL: "https://www.tiktok.com/shop"}}
		a := newAcquirer(page, DefaultTargets(), fastOptions())

		assert.Equal(t, LoginCleared, a.awaitLogin(context.Background(), page))
		assert.False(t, a.Waiting())
	})

	t.Run("times out and proceeds", func(t *testing.T) {
		page := newFakePage()
		opts := fastOptions()
		opts.LoginWait = 30 * time.Millisecond
		opts.LoginPoll = time.Hour
		a := newAcquirer(page, DefaultTargets(), opts)

		assert.Equal(t, LoginTimedOut, a.awaitLogin(context.Background(), page))
	})

	t.Run("external signal resolves", func(t *testing.T) {
		page := newFakePage()
		opts := fastOptions()
		opts.LoginWait = 5 * time.Second
		opts.LoginPoll = time.Hour
		a := newAcquirer(page, DefaultTargets(), opts)

		assert.False(t, a.Continue(), "nothing is waiting yet")

		go func() {
			for !a.Waiting() {
				time.Sleep(time.Millisecond)
			}
			a.Continue()
		}()

		assert.Equal(t, LoginSignalled, a.awaitLogin(context.Background(), page))
	})

	t.Run("cancellation", func(t *testing.T) {
		page := newFakePage()
		opts := fastOptions()
		opts.LoginWait = 5 * time.Second
		opts.LoginPoll = time.Hour
		a := newAcquirer(page, DefaultTargets(), opts)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Equal(t, LoginCancelled, a.awaitLogin(ctx, page))
	})
}

func TestRun_WaitsAtLoginWallThenContinues(t *testing.T) {
	page := newFakePage()
	page.landings["https://shop.test/home"] = browser.Landing{URL: "https://www.tiktok.com/login", Status: 200}
	page.pages["https://shop.test/deals"] = productPage(item("3001", "Yoga Mat", 25, "2K"))

	opts := fastOptions()
	opts.LoginWait = 20 * time.Millisecond
	opts.LoginPoll = time.Hour
	a := newAcquirer(page, testTargets(), opts)
	sess := newSession(1)

	res := a.Run(context.Background(), sess)

	require.Equal(t, outcome.KindOK, res.Kind)
	assert.Equal(t, "3001", res.Products[0].ID)
}

func TestRun_ManualNavigation(t *testing.T) {
	page := newFakePage()
	page.pages["https://shop.test/home"] = productPage(item("4001", "Hair Dryer", 60, "900"))

	opts := fastOptions()
	opts.ManualNavigation = true
	targets := testTargets()
	targets.Surfaces = nil
	a := newAcquirer(page, targets, opts)
	sess := newSession(1)

	res := a.Run(context.Background(), sess)

	require.Equal(t, outcome.KindOK, res.Kind)
	assert.Equal(t, 1, sess.EpisodesTried(), "the manual page filled the target before any episode")
	assert.Equal(t, []string{"https://shop.test/home"}, page.Visited())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, outcome.ErrorTypeTimeout, outcome.TypeOf(classify("navigate", errors.New("Timeout 25000ms exceeded"))))
	assert.Equal(t, outcome.ErrorTypeTimeout, outcome.TypeOf(classify("navigate", context.DeadlineExceeded)))
	assert.Equal(t, outcome.ErrorTypeNetwork, outcome.TypeOf(classify("navigate", errors.New("net::ERR_CONNECTION_RESET"))))
	assert.ErrorIs(t, classify("navigate", context.Canceled), context.Canceled)
}

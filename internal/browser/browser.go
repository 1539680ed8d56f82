package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/extract"
	"github.com/itsnelsonvargas/ClickTok/internal/storage"
	"github.com/playwright-community/playwright-go"
)

type Options struct {
	Headless          bool
	NavigationTimeout time.Duration
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
	ProxyServer       string
	ExtraHeaders      map[string]string
	// TextLimit caps how much visible page text is captured per landing.
	TextLimit int
}

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		NavigationTimeout: 25 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		AcceptLanguage:    "en-US,en;q=0.9",
		TimezoneID:        "America/New_York",
		Locale:            "en-US",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
		TextLimit: 5000,
	}
}

// Landing describes where a navigation ended up.
type Landing struct {
	URL    string
	Status int
	Title  string
	Text   string
}

// Launcher starts Chromium sessions with a realistic device profile. Every
// session it opens reads its cookies from the jar on start and writes them
// back on close.
type Launcher struct {
	opts   *Options
	jar    *storage.CookieJar
	logger *slog.Logger
}

func NewLauncher(opts *Options, jar *storage.CookieJar, logger *slog.Logger) *Launcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		opts:   opts,
		jar:    jar,
		logger: logger.With("component", "browser"),
	}
}

// Session is one browser, one context and one page.
type Session struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	context  playwright.BrowserContext
	page     playwright.Page
	opts     *Options
	jar      *storage.CookieJar
	// restored holds the cookies loaded at open, for their extra attributes.
	restored []storage.Cookie
	logger   *slog.Logger
}

// Open launches the browser and restores cookies. Any partially created
// resources are released on failure.
func (l *Launcher) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := l.opts

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
			"--user-agent=" + opts.UserAgent,
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	s := &Session{
		pw:      pw,
		browser: browser,
		context: bctx,
		opts:    opts,
		jar:     l.jar,
		logger:  l.logger,
	}

	if err := s.restoreCookies(); err != nil {
		s.logger.Warn("failed to restore cookies", "error", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		s.closeBrowser()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultNavigationTimeout(float64(opts.NavigationTimeout.Milliseconds()))
	page.SetDefaultTimeout(float64(opts.NavigationTimeout.Milliseconds()))
	s.page = page

	return s, nil
}

// Navigate loads url and reports where the page landed. A non-2xx status is
// not an error; the caller classifies the landing.
func (s *Session) Navigate(ctx context.Context, url string) (Landing, error) {
	if err := ctx.Err(); err != nil {
		return Landing{}, err
	}

	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds())),
	})
	if err != nil {
		return Landing{URL: url}, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	landing, err := s.Inspect(ctx)
	if resp != nil {
		landing.Status = resp.Status()
	}
	return landing, err
}

// Inspect reads the current page state without navigating.
func (s *Session) Inspect(ctx context.Context) (Landing, error) {
	landing := Landing{URL: s.page.URL()}

	title, err := s.page.Title()
	if err != nil {
		return landing, fmt.Errorf("failed to get page title: %w", err)
	}
	landing.Title = title

	text, err := s.page.Evaluate(`(limit) => document.body ? document.body.innerText.slice(0, limit) : ""`, s.opts.TextLimit)
	if err != nil {
		return landing, fmt.Errorf("failed to read page text: %w", err)
	}
	if str, ok := text.(string); ok {
		landing.Text = str
	}
	return landing, nil
}

// Scroll moves to the bottom of the page once to trigger lazy loading.
func (s *Session) Scroll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The pointer nudge is cosmetic; a failed move must not cost the page.
	if err := s.page.Mouse().Move(float64(s.opts.ViewportWidth/2), float64(s.opts.ViewportHeight/2)); err != nil {
		s.logger.Debug("pointer move before scroll failed", "error", err)
	}
	if _, err := s.page.Evaluate(`() => window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

// Snapshot captures the rendered DOM.
func (s *Session) Snapshot(ctx context.Context) (extract.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return extract.Snapshot{}, err
	}
	html, err := s.page.Content()
	if err != nil {
		return extract.Snapshot{}, fmt.Errorf("failed to get page content: %w", err)
	}
	return extract.Snapshot{URL: s.page.URL(), HTML: html}, nil
}

// Close persists cookies best-effort and then always tears the browser down.
func (s *Session) Close() error {
	var errs []error

	if err := s.persistCookies(); err != nil {
		s.logger.Warn("failed to persist cookies", "error", err)
	}
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}
	if err := s.closeBrowser(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *Session) closeBrowser() error {
	var errs []error

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (s *Session) restoreCookies() error {
	if s.jar == nil {
		return nil
	}
	stored, err := s.jar.Load()
	if err != nil || len(stored) == 0 {
		return err
	}
	s.restored = stored
	if err := s.context.AddCookies(ToPlaywright(stored)); err != nil {
		return fmt.Errorf("failed to add cookies: %w", err)
	}
	s.logger.Info("restored cookies", "count", len(stored), "file", s.jar.Path())
	return nil
}

func (s *Session) persistCookies() error {
	if s.jar == nil || s.context == nil {
		return nil
	}
	cookies, err := s.context.Cookies()
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}
	if err := s.jar.Save(storage.CarryExtras(FromPlaywright(cookies), s.restored)); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	s.logger.Info("persisted cookies", "count", len(cookies), "file", s.jar.Path())
	return nil
}

// Package official queries the TikTok Shop open API for products.
package official

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/itsnelsonvargas/ClickTok/internal/cache"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/itsnelsonvargas/ClickTok/internal/outcome"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoCredentials is returned when the credential triple is incomplete.
var ErrNoCredentials = errors.New("official: credentials not configured")

// Credentials is the app key, app secret and access token triple.
type Credentials struct {
	AppKey      string
	AppSecret   string
	AccessToken string
}

// Complete reports whether all three values are present.
func (c Credentials) Complete() bool {
	return c.AppKey != "" && c.AppSecret != "" && c.AccessToken != ""
}

type Config struct {
	BaseURL   string
	Path      string
	SortBy    string
	Timeout   time.Duration
	UserAgent string
	CacheTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://open-api.tiktokglobalshop.com",
		Path:      "/product/202309/products/search",
		SortBy:    "sales",
		Timeout:   30 * time.Second,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		CacheTTL:  10 * time.Minute,
	}
}

// Client issues signed product searches. It never panics and reports every
// failure as an error the caller can downgrade.
type Client struct {
	cfg       Config
	creds     Credentials
	collector *colly.Collector
	schema    *jsonschema.Schema
	cache     cache.Cache
	now       func() time.Time
	logger    *slog.Logger
}

// New builds a client. c may be nil to disable response caching.
func New(cfg Config, creds Credentials, c cache.Cache, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.SortBy == "" {
		cfg.SortBy = "sales"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	schema, err := compileEnvelopeSchema()
	if err != nil {
		return nil, err
	}

	collector := colly.NewCollector(colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		collector.UserAgent = cfg.UserAgent
	}
	collector.SetRequestTimeout(cfg.Timeout)

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:       cfg,
		creds:     creds,
		collector: collector,
		schema:    schema,
		cache:     c,
		now:       time.Now,
		logger:    logger.With("component", "official_client"),
	}, nil
}

// Enabled reports whether the client may be attempted at all.
func (c *Client) Enabled() bool {
	return c != nil && c.creds.Complete()
}

// Search fetches up to limit raw items sorted by popularity.
func (c *Client) Search(ctx context.Context, limit int) ([]models.Candidate, error) {
	if !c.Enabled() {
		return nil, ErrNoCredentials
	}
	if limit <= 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("app_key", c.creds.AppKey)
	params.Set("access_token", c.creds.AccessToken)
	params.Set("page_size", strconv.Itoa(limit))
	params.Set("sort_by", c.cfg.SortBy)

	cacheKey := c.cacheKey(params)
	if body, ok := c.cached(cacheKey); ok {
		c.logger.Debug("serving search from cache", "key", cacheKey)
		return c.decode(body)
	}

	params.Set("timestamp", strconv.FormatInt(c.now().Unix(), 10))
	params.Set("sign", Sign(c.creds.AppSecret, c.cfg.Path, params))
	target := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.Path + "?" + params.Encode()

	body, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}

	cands, err := c.decode(body)
	if err != nil {
		return nil, err
	}
	if c.cache != nil && c.cfg.CacheTTL > 0 {
		if err := c.cache.Set(cacheKey, body, c.cfg.CacheTTL); err != nil {
			c.logger.Warn("failed to cache search response", "error", err)
		}
	}

	c.logger.Info("official search completed", "requested", limit, "received", len(cands))
	return cands, nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	collector := c.collector.Clone()
	collector.Context = ctx

	var body []byte
	var responseErr error

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		r.Headers.Set("Content-Type", "application/json")
	})

	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			responseErr = outcome.New(outcome.ErrorTypeUpstream, "official_search",
				fmt.Sprintf("request failed with status %d", r.StatusCode), err)
			return
		}
		responseErr = outcome.NewNetwork("official_search", "request failed", err)
	})

	if err := collector.Visit(target); err != nil && responseErr == nil {
		return nil, outcome.NewNetwork("official_search", "failed to visit", err)
	}
	collector.Wait()

	if responseErr != nil {
		return nil, responseErr
	}
	if err := ctx.Err(); err != nil {
		return nil, outcome.New(outcome.ErrorTypeTimeout, "official_search", "cancelled", err)
	}
	return body, nil
}

type envelope struct {
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
	Data    *struct {
		Products []json.RawMessage `json:"products"`
	} `json:"data"`
}

type apiProduct struct {
	ProductID      flexString `json:"product_id"`
	ProductName    string     `json:"product_name"`
	Description    string     `json:"description"`
	Price          flexFloat  `json:"price"`
	CommissionRate *flexFloat `json:"commission_rate"`
	Rating         flexFloat  `json:"rating"`
	Sales          flexFloat  `json:"sales"`
	SoldCount      flexFloat  `json:"sold_count"`
	CategoryName   string     `json:"category_name"`
	ProductURL     string     `json:"product_url"`
	Images         []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func (c *Client) decode(body []byte) ([]models.Candidate, error) {
	if err := validateEnvelope(c.schema, body); err != nil {
		return nil, outcome.NewStructural("official_search", "unexpected envelope", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, outcome.NewStructural("official_search", "failed to decode envelope", err)
	}
	if code, _ := env.Code.Int64(); code != 0 {
		return nil, outcome.New(outcome.ErrorTypeUpstream, "official_search",
			fmt.Sprintf("api returned code %d: %s", code, env.Message), nil)
	}
	if env.Data == nil {
		return nil, nil
	}

	// Items are decoded one at a time so a single malformed product does not
	// discard the rest of the page.
	cands := make([]models.Candidate, 0, len(env.Data.Products))
	for i, raw := range env.Data.Products {
		var item apiProduct
		if err := json.Unmarshal(raw, &item); err != nil {
			c.logger.Warn("skipping malformed product", "index", i, "error", err)
			continue
		}
		cands = append(cands, item.candidate())
	}
	if len(cands) == 0 && len(env.Data.Products) > 0 {
		return nil, outcome.NewStructural("official_search", "no decodable products in response", nil)
	}
	return cands, nil
}

func (p apiProduct) candidate() models.Candidate {
	c := models.Candidate{
		ExternalID:  string(p.ProductID),
		Name:        p.ProductName,
		Description: p.Description,
		Price:       float64(p.Price),
		Rating:      float64(p.Rating),
		Sales:       int64(max(p.Sales, p.SoldCount)),
		Category:    p.CategoryName,
		SourceURL:   p.ProductURL,
		Technique:   models.TechniqueOfficial,
	}
	if c.Category == "" {
		c.Category = "General"
	}
	if p.CommissionRate != nil {
		rate := float64(*p.CommissionRate)
		c.CommissionRate = &rate
	}
	if len(p.Images) > 0 {
		c.ImageURL = p.Images[0].URL
	}
	return c
}

func (c *Client) cacheKey(params url.Values) string {
	sum := sha256.Sum256([]byte(c.cfg.Path + "?" + params.Encode()))
	return "official:" + hex.EncodeToString(sum[:16])
}

func (c *Client) cached(key string) ([]byte, bool) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return nil, false
	}
	body, err := c.cache.Get(key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			c.logger.Warn("cache lookup failed", "error", err)
		}
		return nil, false
	}
	return body, true
}

// flexFloat accepts numbers and numeric strings such as "12.99" or "15%".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "$"), "%")
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts ids encoded as strings or numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	*s = flexString(strings.Trim(strings.TrimSpace(string(b)), `"`))
	return nil
}

package models

import (
	"errors"
	"time"
)

// Status tracks a product through the content pipeline.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSelected     Status = "selected"
	StatusVideoCreated Status = "video_created"
	StatusPosted       Status = "posted"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSelected, StatusVideoCreated, StatusPosted:
		return true
	}
	return false
}

// Source identifies which strategy produced a product.
type Source string

const (
	SourceOfficial  Source = "official"
	SourceBrowser   Source = "browser"
	SourceSynthetic Source = "synthetic"
)

// Technique identifies how a candidate was pulled out of its source.
type Technique string

const (
	TechniqueStructured  Technique = "structured"
	TechniquePattern     Technique = "pattern"
	TechniqueLinkContext Technique = "link_context"
	TechniqueOfficial    Technique = "official"
	TechniqueSynthetic   Technique = "synthetic"
)

// DefaultCommissionRate is applied when a source does not report one.
const DefaultCommissionRate = 10.0

// Candidate is a raw product record as produced by one extraction technique.
// Fields may be missing or malformed; the normalizer decides its fate.
type Candidate struct {
	ExternalID     string
	Name           string
	Description    string
	Price          float64
	Sales          int64
	Rating         float64
	Category       string
	ImageURL       string
	SourceURL      string
	CommissionRate *float64
	Technique      Technique
}

// Product is the canonical record handed to callers.
type Product struct {
	ID               string    `json:"product_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Price            float64   `json:"price"`
	CommissionRate   float64   `json:"commission_rate"`
	CommissionAmount float64   `json:"commission_amount"`
	Sales            int64     `json:"sales"`
	Rating           float64   `json:"rating"`
	Category         string    `json:"category,omitempty"`
	ImageURL         string    `json:"image_url,omitempty"`
	ProductURL       string    `json:"product_url,omitempty"`
	AffiliateLink    string    `json:"affiliate_link,omitempty"`
	Status           Status    `json:"status"`
	Source           Source    `json:"source"`
	Technique        Technique `json:"technique,omitempty"`
	DiscoveredAt     time.Time `json:"discovered_at"`
}

// Filters bound which products are acceptable. A MaxPrice of zero or less
// means there is no upper price bound. An empty Categories list accepts all.
type Filters struct {
	MinPrice          float64  `json:"min_price" yaml:"min_price"`
	MaxPrice          float64  `json:"max_price" yaml:"max_price"`
	MinCommissionRate float64  `json:"min_commission" yaml:"min_commission"`
	MinRating         float64  `json:"min_rating" yaml:"min_rating"`
	Categories        []string `json:"categories,omitempty" yaml:"categories"`
}

func DefaultFilters() Filters {
	return Filters{
		MinPrice:          5,
		MaxPrice:          500,
		MinCommissionRate: 5,
		MinRating:         4.0,
		Categories:        []string{"Electronics", "Beauty", "Fashion", "Home", "Fitness"},
	}
}

// PriceInRange reports whether price lies within the configured bounds.
func (f Filters) PriceInRange(price float64) bool {
	if price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && price > f.MaxPrice {
		return false
	}
	return true
}

// Accepts reports whether p satisfies every threshold. Categories are used to
// steer discovery, not to reject products, since scraped surfaces rarely
// report a category.
func (f Filters) Accepts(p Product) bool {
	return f.PriceInRange(p.Price) &&
		p.CommissionRate >= f.MinCommissionRate &&
		p.Rating >= f.MinRating
}

// Validate rejects threshold combinations no product could satisfy.
func (f Filters) Validate() error {
	if f.MinPrice < 0 {
		return errors.New("min price cannot be negative")
	}
	if f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		return errors.New("min price cannot be greater than max price")
	}
	if f.MinRating < 0 || f.MinRating > 5 {
		return errors.New("min rating must be between 0 and 5")
	}
	if f.MinCommissionRate < 0 || f.MinCommissionRate > 100 {
		return errors.New("min commission must be between 0 and 100")
	}
	return nil
}

// Package synthetic produces placeholder products so a discovery call never
// comes back empty.
package synthetic

import (
	"fmt"
	"math"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
)

var productNames = []string{
	"Wireless Bluetooth Earbuds Pro",
	"LED Makeup Mirror with Lights",
	"Portable Phone Charger 20000mAh",
	"Smart Watch Fitness Tracker",
	"Hair Straightener Brush",
	"Water Bottle with Time Marker",
	"Phone Ring Light for TikTok",
	"Resistance Bands Set",
	"Face Roller Jade Stone",
	"Laptop Stand Adjustable",
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type Config struct {
	Price      Range
	Commission Range
	Rating     Range
	Sales      Range
}

func DefaultConfig() Config {
	return Config{
		Price:      Range{Min: 15, Max: 150},
		Commission: Range{Min: 8, Max: 25},
		Rating:     Range{Min: 4.0, Max: 5.0},
		Sales:      Range{Min: 100, Max: 50000},
	}
}

// Generator builds placeholder candidates. Names and ids are deterministic;
// numeric fields are drawn from the configured ranges.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{cfg: cfg, rng: rng}
}

// Generate returns exactly limit candidates whose numeric fields lie inside
// both the configured ranges and the filters, where the two overlap.
func (g *Generator) Generate(limit int, filters models.Filters) []models.Candidate {
	if limit <= 0 {
		return nil
	}

	price := clampPrice(g.cfg.Price, filters)
	commission := clampLower(g.cfg.Commission, filters.MinCommissionRate)
	rating := clampLower(g.cfg.Rating, filters.MinRating)
	if rating.Max > 5 {
		rating.Max = 5
	}

	categories := filters.Categories
	if len(categories) == 0 {
		categories = []string{"Electronics", "Beauty", "Fashion"}
	}

	out := make([]models.Candidate, 0, limit)
	for i := 0; i < limit; i++ {
		name := Name(i)
		rate := g.uniform(commission, 2)
		out = append(out, models.Candidate{
			ExternalID:     fmt.Sprintf("DEMO_%04d", i+1),
			Name:           name,
			Description:    fmt.Sprintf("High-quality %s with excellent reviews!", strings.ToLower(name)),
			Price:          g.uniform(price, 2),
			CommissionRate: &rate,
			Rating:         g.uniform(rating, 1),
			Sales:          int64(g.uniform(g.cfg.Sales, 0)),
			Category:       categories[g.rng.IntN(len(categories))],
			ImageURL:       placeholderImage(name),
			SourceURL:      fmt.Sprintf("https://www.tiktok.com/shop/product/DEMO_%04d", i+1),
			Technique:      models.TechniqueSynthetic,
		})
	}
	return out
}

// Name cycles through the fixed list and suffixes repeats with their round.
func Name(i int) string {
	base := productNames[i%len(productNames)]
	if round := i / len(productNames); round > 0 {
		return fmt.Sprintf("%s %d", base, round+1)
	}
	return base
}

func placeholderImage(name string) string {
	label := []rune(name)
	if len(label) > 20 {
		label = label[:20]
	}
	return "https://via.placeholder.com/400x400?text=" + url.QueryEscape(string(label))
}

// uniform draws from r and rounds to the given number of decimals without
// leaving the interval.
func (g *Generator) uniform(r Range, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	lo := math.Ceil(r.Min*scale) / scale
	hi := math.Floor(r.Max*scale) / scale
	if hi < lo {
		return lo
	}
	v := lo + g.rng.Float64()*(hi-lo)
	v = math.Round(v*scale) / scale
	return math.Min(math.Max(v, lo), hi)
}

func clampPrice(r Range, f models.Filters) Range {
	lo := math.Max(r.Min, f.MinPrice)
	hi := r.Max
	if f.MaxPrice > 0 {
		hi = math.Min(hi, f.MaxPrice)
	}
	if lo <= hi {
		return Range{Min: lo, Max: hi}
	}
	// No overlap: fall back to the filter bounds alone.
	if f.MaxPrice > 0 && f.MaxPrice >= f.MinPrice {
		return Range{Min: f.MinPrice, Max: f.MaxPrice}
	}
	return Range{Min: f.MinPrice, Max: f.MinPrice}
}

func clampLower(r Range, min float64) Range {
	lo := math.Max(r.Min, min)
	hi := math.Max(r.Max, lo)
	return Range{Min: lo, Max: hi}
}

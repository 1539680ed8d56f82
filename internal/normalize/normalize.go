// Package normalize turns raw candidates into canonical products and ranks them.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"html"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
)

const affiliateLinkFormat = "https://www.tiktok.com/shop/product/%s?affiliate=%s"

var (
	stripPolicy = bluemonday.StrictPolicy()
	folder      = cases.Fold()
)

// Normalizer promotes candidates to products.
type Normalizer struct {
	AffiliateID string
	Now         func() time.Time
}

func New(affiliateID string) *Normalizer {
	return &Normalizer{AffiliateID: affiliateID, Now: time.Now}
}

// Normalize returns the canonical product for c, or false when c is malformed:
// no id and no name, or a negative or non-finite price.
func (n *Normalizer) Normalize(c models.Candidate, source models.Source) (models.Product, bool) {
	name := CleanText(c.Name)
	id := strings.TrimSpace(c.ExternalID)
	if id == "" && name == "" {
		return models.Product{}, false
	}
	if c.Price < 0 || math.IsNaN(c.Price) || math.IsInf(c.Price, 0) {
		return models.Product{}, false
	}

	rate := models.DefaultCommissionRate
	if c.CommissionRate != nil && *c.CommissionRate >= 0 && !math.IsNaN(*c.CommissionRate) {
		rate = *c.CommissionRate
	}

	p := models.Product{
		ID:               id,
		Name:             name,
		Description:      CleanText(c.Description),
		Price:            c.Price,
		CommissionRate:   rate,
		CommissionAmount: CommissionAmount(c.Price, rate),
		Sales:            max(c.Sales, 0),
		Rating:           ClampRating(c.Rating),
		Category:         strings.TrimSpace(c.Category),
		ImageURL:         strings.TrimSpace(c.ImageURL),
		ProductURL:       strings.TrimSpace(c.SourceURL),
		Status:           models.StatusPending,
		Source:           source,
		Technique:        c.Technique,
		DiscoveredAt:     n.now(),
	}
	if p.ID == "" {
		p.ID = syntheticID(name)
	} else {
		p.AffiliateLink = AffiliateLink(p.ID, n.AffiliateID)
	}
	return p, true
}

func (n *Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// CommissionAmount is price times rate percent, rounded to cents.
func CommissionAmount(price, rate float64) float64 {
	return math.Round(price*rate/100*100) / 100
}

func ClampRating(r float64) float64 {
	switch {
	case math.IsNaN(r) || r < 0:
		return 0
	case r > 5:
		return 5
	}
	return r
}

func AffiliateLink(productID, affiliateID string) string {
	if affiliateID == "" {
		affiliateID = "YOUR_ID"
	}
	return fmt.Sprintf(affiliateLinkFormat, url.PathEscape(productID), url.QueryEscape(affiliateID))
}

// Key is the dedup key of a candidate: its external id, or its case-folded
// name when the id is missing.
func Key(c models.Candidate) string {
	if id := strings.TrimSpace(c.ExternalID); id != "" {
		return id
	}
	return NameKey(c.Name)
}

func NameKey(name string) string {
	name = strings.Join(strings.Fields(CleanText(name)), " ")
	if name == "" {
		return ""
	}
	return "name:" + folder.String(name)
}

// CleanText removes markup and surrounding whitespace. Entities escaped by the
// sanitizer are decoded again so names keep their literal ampersands.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}

func syntheticID(name string) string {
	sum := sha1.Sum([]byte(NameKey(name)))
	return "N" + hex.EncodeToString(sum[:6])
}

// Rank orders products by sales descending, keeping discovery order among
// equal sales, and truncates to limit.
func Rank(products []models.Product, limit int) []models.Product {
	ranked := make([]models.Product, len(products))
	copy(ranked, products)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Sales > ranked[j].Sales
	})
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
)

// DefaultCardSelectors lists structural patterns known to wrap product cards,
// most specific first.
var DefaultCardSelectors = []string{
	`[data-e2e="product-card"]`,
	`[data-testid*="product-card"]`,
	`div[class*="ProductCard"]`,
	`div[class*="product-card"]`,
	`div[class*="productCard"]`,
	`li[class*="product"]`,
	`a[href*="/product/"]`,
	`a[href*="/pdp/"]`,
}

var (
	cardNameSelectors  = []string{`[class*="title"]`, `[class*="Title"]`, `[class*="name"]`, `h2`, `h3`, `h4`}
	cardPriceSelectors = []string{`[class*="price"]`, `[class*="Price"]`}
)

func extractPattern(doc *goquery.Document, pageURL string, selectors []string) []models.Candidate {
	var out []models.Candidate
	seen := make(map[string]bool)

	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, card *goquery.Selection) {
			href := cardLink(card)
			id := ProductIDFromURL(href)
			if id == "" || seen[id] {
				return
			}
			seen[id] = true

			c := models.Candidate{
				ExternalID: id,
				Name:       cardName(card),
				SourceURL:  resolveURL(pageURL, href),
				ImageURL:   cardImage(card),
				Technique:  models.TechniquePattern,
			}

			for _, ps := range cardPriceSelectors {
				if p, ok := ParsePrice(card.Find(ps).First().Text()); ok {
					c.Price = p
					break
				}
			}
			// Rendered markup is often minified, so numbers are read per text
			// node rather than from the card's concatenated text.
			for _, line := range textLines(card) {
				if p, ok := ParseCurrencyPrice(line); ok {
					if c.Price == 0 {
						c.Price = p
					}
					continue
				}
				if s, ok := ParseSales(line); ok {
					if c.Sales == 0 {
						c.Sales = s
					}
					continue
				}
				if r, ok := ParseRating(line); ok && c.Rating == 0 {
					c.Rating = r
				}
			}

			out = append(out, c)
		})
	}

	return out
}

func cardLink(card *goquery.Selection) string {
	if goquery.NodeName(card) == "a" {
		if href, ok := card.Attr("href"); ok {
			return href
		}
	}
	var link string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if ProductIDFromURL(href) != "" {
			link = href
			return false
		}
		return true
	})
	return link
}

func cardName(card *goquery.Selection) string {
	for _, attr := range []string{"title", "aria-label"} {
		if v, ok := card.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, sel := range cardNameSelectors {
		if t := strings.TrimSpace(card.Find(sel).First().Text()); t != "" {
			if _, isPrice := ParseCurrencyPrice(t); !isPrice {
				return t
			}
		}
	}
	if alt, ok := card.Find("img[alt]").First().Attr("alt"); ok {
		return strings.TrimSpace(alt)
	}
	return ""
}

func cardImage(card *goquery.Selection) string {
	img := card.Find("img").First()
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if v, ok := img.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

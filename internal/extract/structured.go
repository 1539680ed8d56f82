package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
)

// Script ids of hydration payloads that commonly embed product listings.
var hydrationIDs = []string{
	"__NEXT_DATA__",
	"SIGI_STATE",
	"__UNIVERSAL_DATA_FOR_REHYDRATION__",
	"RENDER_DATA",
	"__MODERN_ROUTER_DATA__",
}

var assignmentRe = regexp.MustCompile(`window\.(__[A-Za-z0-9_]+__|[A-Za-z_]*[Ss]tate[A-Za-z_]*)\s*=\s*`)

var (
	idKeys       = []string{"product_id", "productId", "productID", "item_id", "itemId", "sku", "id"}
	nameKeys     = []string{"product_name", "productName", "title", "name"}
	priceKeys    = []string{"price", "sale_price", "salePrice", "real_price", "min_price", "product_price", "price_info", "priceInfo", "offers"}
	salesKeys    = []string{"sold_count", "soldCount", "sales", "sale_count", "sales_count", "salesCount", "sold", "format_sold_count"}
	ratingKeys   = []string{"rating", "product_rating", "review_score", "star", "aggregateRating"}
	imageKeys    = []string{"image_url", "imageUrl", "cover", "image", "images", "main_images", "thumb"}
	categoryKeys = []string{"category_name", "categoryName", "category"}
	rateKeys     = []string{"commission_rate", "commissionRate", "commission"}
	urlKeys      = []string{"product_url", "productUrl", "seo_url", "url", "link"}
	descKeys     = []string{"description", "desc"}

	nestedPriceKeys  = []string{"sale_price", "salePrice", "real_price", "min_price", "price", "lowPrice", "amount", "price_val", "format_price", "original_price"}
	nestedRatingKeys = []string{"ratingValue", "rating", "score", "value"}
	nestedImageKeys  = []string{"url", "src", "thumb_url"}
)

// extractStructured scans embedded machine-readable payloads for product-shaped
// nodes.
func extractStructured(doc *goquery.Document, pageURL string) []models.Candidate {
	var out []models.Candidate
	for _, payload := range collectPayloads(doc) {
		Walk(payload, func(node map[string]any) {
			c := CandidateFromNode(node)
			if c.SourceURL == "" {
				c.SourceURL = pageURL
			} else {
				c.SourceURL = resolveURL(pageURL, c.SourceURL)
			}
			out = append(out, c)
		})
	}
	return out
}

// collectPayloads decodes every embedded JSON blob it can find in the page.
func collectPayloads(doc *goquery.Document) []any {
	var payloads []any

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}

		typ, _ := s.Attr("type")
		id, _ := s.Attr("id")

		switch {
		case strings.Contains(typ, "json") || isHydrationID(id):
			if strings.HasPrefix(text, "%7B") || strings.HasPrefix(text, "%5B") {
				if decoded, err := url.QueryUnescape(text); err == nil {
					text = decoded
				}
			}
			if v, ok := decodeJSON(text); ok {
				payloads = append(payloads, v)
			}
		default:
			for _, loc := range assignmentRe.FindAllStringIndex(text, -1) {
				if v, ok := decodeJSON(text[loc[1]:]); ok {
					payloads = append(payloads, v)
				}
			}
		}
	})

	return payloads
}

func isHydrationID(id string) bool {
	for _, h := range hydrationIDs {
		if id == h {
			return true
		}
	}
	return false
}

// decodeJSON decodes the first JSON value in s, ignoring trailing script text.
// Numbers are kept as json.Number so long product ids survive intact.
func decodeJSON(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}
	return nil, false
}

// Walk visits every object in a generic JSON tree. Objects that look like a
// product are handed to visit and not descended into.
func Walk(v any, visit func(map[string]any)) {
	switch node := v.(type) {
	case map[string]any:
		if LooksLikeProduct(node) {
			visit(node)
			return
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			Walk(node[k], visit)
		}
	case []any:
		for _, item := range node {
			Walk(item, visit)
		}
	}
}

// LooksLikeProduct reports whether node carries an id-like, a name-like and a
// price-like key.
func LooksLikeProduct(node map[string]any) bool {
	if firstScalar(node, nameKeys) == "" {
		return false
	}
	if firstScalar(node, idKeys) == "" {
		return false
	}
	for _, k := range priceKeys {
		if v, ok := node[k]; ok && v != nil {
			if _, ok := priceValue(v); ok {
				return true
			}
		}
	}
	return false
}

// CandidateFromNode maps a product-shaped node onto a candidate.
func CandidateFromNode(node map[string]any) models.Candidate {
	c := models.Candidate{
		ExternalID:  firstScalar(node, idKeys),
		Name:        firstScalar(node, nameKeys),
		Description: firstScalar(node, descKeys),
		Category:    firstScalar(node, categoryKeys),
		SourceURL:   firstScalar(node, urlKeys),
		Technique:   models.TechniqueStructured,
	}

	for _, k := range priceKeys {
		if p, ok := priceValue(node[k]); ok {
			c.Price = p
			break
		}
	}
	for _, k := range salesKeys {
		if s := scalar(node[k]); s != "" {
			c.Sales = ParseCount(s)
			break
		}
	}
	for _, k := range ratingKeys {
		if r, ok := ratingValue(node[k]); ok {
			c.Rating = r
			break
		}
	}
	for _, k := range imageKeys {
		if img := imageValue(node[k]); img != "" {
			c.ImageURL = img
			break
		}
	}
	for _, k := range rateKeys {
		if s := scalar(node[k]); s != "" {
			if r, ok := ParsePrice(s); ok {
				c.CommissionRate = &r
				break
			}
		}
	}

	return c
}

func firstScalar(node map[string]any, keys []string) string {
	for _, k := range keys {
		if s := scalar(node[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func priceValue(v any) (float64, bool) {
	switch t := v.(type) {
	case string, json.Number, float64:
		return ParsePrice(scalar(t))
	case map[string]any:
		for _, k := range nestedPriceKeys {
			if p, ok := priceValue(t[k]); ok {
				return p, true
			}
		}
	case []any:
		if len(t) > 0 {
			return priceValue(t[0])
		}
	}
	return 0, false
}

func ratingValue(v any) (float64, bool) {
	switch t := v.(type) {
	case string, json.Number, float64:
		return ParsePrice(scalar(t))
	case map[string]any:
		for _, k := range nestedRatingKeys {
			if r, ok := ratingValue(t[k]); ok {
				return r, true
			}
		}
	}
	return 0, false
}

func imageValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return imageValue(t[0])
		}
	case map[string]any:
		for _, k := range nestedImageKeys {
			if s := imageValue(t[k]); s != "" {
				return s
			}
		}
		if list, ok := t["url_list"]; ok {
			return imageValue(list)
		}
	}
	return ""
}

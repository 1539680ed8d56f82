package extract

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageURL = "https://www.tiktok.com/shop"

func byID(cands []models.Candidate) map[string]models.Candidate {
	out := make(map[string]models.Candidate, len(cands))
	for _, c := range cands {
		out[c.ExternalID] = c
	}
	return out
}

func TestLooksLikeProduct(t *testing.T) {
	tests := []struct {
		name     string
		node     map[string]any
		expected bool
	}{
		{
			name:     "flat product",
			node:     map[string]any{"product_id": "1729", "title": "Ring Light", "price": "$19.99"},
			expected: true,
		},
		{
			name:     "nested price object",
			node:     map[string]any{"id": json.Number("1"), "name": "Mirror", "price_info": map[string]any{"sale_price": "12.50"}},
			expected: true,
		},
		{
			name:     "category without price",
			node:     map[string]any{"id": "7", "name": "Beauty"},
			expected: false,
		},
		{
			name:     "price without id",
			node:     map[string]any{"title": "Mystery", "price": 10.0},
			expected: false,
		},
		{
			name:     "unparseable price",
			node:     map[string]any{"id": "1", "name": "x", "price": "call us"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LooksLikeProduct(tt.node))
		})
	}
}

func TestCandidateFromNode(t *testing.T) {
	node := map[string]any{
		"product_id":      json.Number("1729382849561234567"),
		"product_name":    "Wireless Earbuds",
		"price_info":      map[string]any{"sale_price": "$29.99"},
		"sold_count":      "12.5K",
		"rating":          json.Number("4.7"),
		"images":          []any{map[string]any{"url_list": []any{"https://img.example/a.jpg"}}},
		"category_name":   "Electronics",
		"commission_rate": "15%",
		"seo_url":         "/shop/pdp/wireless-earbuds/1729382849561234567",
	}

	c := CandidateFromNode(node)
	assert.Equal(t, "1729382849561234567", c.ExternalID)
	assert.Equal(t, "Wireless Earbuds", c.Name)
	assert.Equal(t, 29.99, c.Price)
	assert.Equal(t, int64(12500), c.Sales)
	assert.Equal(t, 4.7, c.Rating)
	assert.Equal(t, "https://img.example/a.jpg", c.ImageURL)
	assert.Equal(t, "Electronics", c.Category)
	require.NotNil(t, c.CommissionRate)
	assert.Equal(t, 15.0, *c.CommissionRate)
	assert.Equal(t, models.TechniqueStructured, c.Technique)
}

func TestWalk(t *testing.T) {
	tree := map[string]any{
		"page": map[string]any{
			"sections": []any{
				map[string]any{"products": []any{
					map[string]any{"id": "1", "name": "A", "price": "1.00",
						"variants": []any{map[string]any{"id": "1-v", "name": "A small", "price": "1.00"}}},
					map[string]any{"id": "2", "name": "B", "price": "2.00"},
				}},
			},
		},
	}

	var ids []string
	Walk(tree, func(node map[string]any) {
		ids = append(ids, node["id"].(string))
	})
	assert.Equal(t, []string{"1", "2"}, ids, "matched nodes are not descended into")
}

func TestExtract_Structured(t *testing.T) {
	nextData := `{"props":{"pageProps":{"items":[{"product_id":"1000001","title":"LED Mirror","price":"$25.00","sold_count":"3K"}]}}}`
	renderData := url.QueryEscape(`{"app":{"list":[{"itemId":"1000002","name":"Jade Roller","salePrice":"9.50"}]}}`)
	html := `<html><head>
<script id="__NEXT_DATA__" type="application/json">` + nextData + `</script>
<script id="RENDER_DATA" type="application/json">` + renderData + `</script>
<script type="application/ld+json">{"@type":"Product","sku":"1000003","name":"Smart Watch","offers":{"price":"59.90"},"aggregateRating":{"ratingValue":"4.6"}}</script>
<script>window.__INITIAL_STATE__ = {"shop":{"cards":[{"id":"1000004","title":"Resistance Bands","price":12}]}};console.log("x")</script>
</head><body></body></html>`

	cands := New(nil, nil).Extract(Snapshot{URL: pageURL, HTML: html})
	got := byID(cands)

	require.Len(t, got, 4)
	assert.Equal(t, "LED Mirror", got["1000001"].Name)
	assert.Equal(t, int64(3000), got["1000001"].Sales)
	assert.Equal(t, 9.5, got["1000002"].Price)
	assert.Equal(t, 59.9, got["1000003"].Price)
	assert.Equal(t, 4.6, got["1000003"].Rating)
	assert.Equal(t, 12.0, got["1000004"].Price)
	for _, c := range cands {
		assert.Equal(t, models.TechniqueStructured, c.Technique)
	}
}

func TestExtract_Pattern(t *testing.T) {
	html := `<html><body>
<div data-e2e="product-card">
  <a href="/shop/pdp/phone-ring-light/1729000000001"><img src="https://img.example/ring.jpg" alt="Ring Light"></a>
  <div class="product-title">Phone Ring Light</div>
  <div class="product-price">$18.99</div>
  <span>4.9</span>
  <span>8.2K sold</span>
</div>
</body></html>`

	cands := New(nil, nil).Extract(Snapshot{URL: pageURL, HTML: html})
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, "1729000000001", c.ExternalID)
	assert.Equal(t, "Phone Ring Light", c.Name)
	assert.Equal(t, 18.99, c.Price)
	assert.Equal(t, int64(8200), c.Sales)
	assert.Equal(t, 4.9, c.Rating)
	assert.Equal(t, "https://img.example/ring.jpg", c.ImageURL)
	assert.Equal(t, "https://www.tiktok.com/shop/pdp/phone-ring-light/1729000000001", c.SourceURL)
	assert.Equal(t, models.TechniquePattern, c.Technique)
}

func TestExtract_PatternMinifiedCard(t *testing.T) {
	html := `<html><body><div data-e2e="product-card"><a href="/shop/pdp/earbuds/1729382849561234567"><img src="https://img.example/buds.jpg"></a><div class="title">Wireless Earbuds</div><span class="price">$12.99</span><span>4.7</span><span>1.2K sold</span></div></body></html>`

	cands := New(nil, nil).Extract(Snapshot{URL: pageURL, HTML: html})
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, models.TechniquePattern, c.Technique)
	assert.Equal(t, "Wireless Earbuds", c.Name)
	assert.Equal(t, 12.99, c.Price)
	assert.Equal(t, int64(1200), c.Sales)
	assert.Equal(t, 4.7, c.Rating)
}

func TestExtract_PatternPriceFromCardText(t *testing.T) {
	html := `<html><body><div data-e2e="product-card"><a href="/shop/pdp/lamp/1729000000077">Desk Lamp</a><span>$24.50</span><span>310 sold</span></div></body></html>`

	cands := New(nil, nil).Extract(Snapshot{URL: pageURL, HTML: html})
	require.Len(t, cands, 1)
	assert.Equal(t, 24.5, cands[0].Price)
	assert.Equal(t, int64(310), cands[0].Sales)
}

func TestExtract_LinkContext(t *testing.T) {
	html := `<html><body>
<section><div>
  <p>Laptop Stand Adjustable</p>
  <p>$34.00</p>
  <p>1.5M bought</p>
  <a href="https://shop.tiktok.com/view/product/1729555000111?region=US">View</a>
</div></section>
</body></html>`

	cands := New([]string{`div.never-matches`}, nil).Extract(Snapshot{URL: pageURL, HTML: html})
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, "1729555000111", c.ExternalID)
	assert.Equal(t, "Laptop Stand Adjustable", c.Name)
	assert.Equal(t, 34.0, c.Price)
	assert.Equal(t, int64(1500000), c.Sales)
	assert.Equal(t, models.TechniqueLinkContext, c.Technique)
}

func TestExtract_PriorityWins(t *testing.T) {
	html := `<html><head>
<script id="SIGI_STATE" type="application/json">{"items":[{"product_id":"1729000000009","title":"From JSON","price":"10.00"}]}</script>
</head><body>
<div data-e2e="product-card">
  <a href="/shop/pdp/x/1729000000009">From Card</a>
  <div class="price">$99.00</div>
</div>
</body></html>`

	cands := New(nil, nil).Extract(Snapshot{URL: pageURL, HTML: html})
	require.Len(t, cands, 1)
	assert.Equal(t, "From JSON", cands[0].Name)
	assert.Equal(t, models.TechniqueStructured, cands[0].Technique)
}

func TestExtract_TechniqueFailureIsIsolated(t *testing.T) {
	e := New(nil, nil)
	e.techniques = append([]technique{{
		name: "broken",
		run: func(*goquery.Document, string) []models.Candidate {
			panic("unexpected shape")
		},
	}}, e.techniques...)

	html := `<div><a href="/shop/product/1729000000777">Thing</a><span>$5.00</span></div>`
	cands := e.Extract(Snapshot{URL: pageURL, HTML: html})
	require.Len(t, cands, 1)
	assert.Equal(t, "1729000000777", cands[0].ExternalID)
}

func TestProductIDFromURL(t *testing.T) {
	tests := []struct {
		href     string
		expected string
	}{
		{"/shop/pdp/some-slug/1729382849561234567", "1729382849561234567"},
		{"https://shop.tiktok.com/view/product/1729382849?region=US", "1729382849"},
		{"https://www.tiktok.com/shop/product/1729000000001", "1729000000001"},
		{"https://www.tiktok.com/shop/s/earbuds?product_id=1729000000002", "1729000000002"},
		{"https://www.tiktok.com/@creator/video/7200000000000000000", ""},
		{"/shop/product/12", ""},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			assert.Equal(t, tt.expected, ProductIDFromURL(tt.href))
		})
	}
}

func TestTextLines(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div> Name <script>var x=1</script><b>  $1 </b></div>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "$1"}, textLines(doc.Find("div")))
}

package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"golang.org/x/net/html"
)

var (
	productPathRe  = regexp.MustCompile(`/(?:shop/)?(?:view/)?(?:product|pdp)/(?:[\w%-]+/)?(\d{6,})`)
	productQueryRe = regexp.MustCompile(`[?&]product_id=(\d{6,})`)
)

// maxContainerDepth bounds how far up from a link we look for its card.
const maxContainerDepth = 5

// ProductIDFromURL returns the numeric product id embedded in a product link.
func ProductIDFromURL(href string) string {
	if m := productPathRe.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	if m := productQueryRe.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

func extractLinkContext(doc *goquery.Document, pageURL string) []models.Candidate {
	var out []models.Candidate
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		id := ProductIDFromURL(href)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		lines := textLines(container(a))
		c := models.Candidate{
			ExternalID: id,
			SourceURL:  resolveURL(pageURL, href),
			Technique:  models.TechniqueLinkContext,
		}
		for _, line := range lines {
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
			if r, ok := ParseRating(line); ok {
				if c.Rating == 0 {
					c.Rating = r
				}
				continue
			}
			if c.Name == "" && len([]rune(line)) >= 3 {
				c.Name = line
			}
		}
		out = append(out, c)
	})

	return out
}

// container climbs from a link to the nearest ancestor whose text carries a
// price, falling back to the link itself.
func container(a *goquery.Selection) *goquery.Selection {
	node := a
	for depth := 0; depth < maxContainerDepth; depth++ {
		if _, ok := ParseCurrencyPrice(node.Text()); ok {
			return node
		}
		parent := node.Parent()
		if parent.Length() == 0 || goquery.NodeName(parent) == "body" {
			break
		}
		node = parent
	}
	if _, ok := ParseCurrencyPrice(node.Text()); ok {
		return node
	}
	return a
}

// textLines returns the trimmed, non-empty text nodes under sel in document
// order, skipping script and style content.
func textLines(sel *goquery.Selection) []string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				lines = append(lines, t)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return lines
}

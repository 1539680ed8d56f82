package acquirer

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/itsnelsonvargas/ClickTok/internal/browser"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
)

// Markers are case-insensitive substrings that identify a kind of landing.
type Markers struct {
	URL   []string `yaml:"url"`
	Title []string `yaml:"title"`
	Text  []string `yaml:"text"`
}

// Match reports whether any marker occurs in the corresponding landing field.
func (m Markers) Match(l browser.Landing) bool {
	return containsAny(l.URL, m.URL) ||
		containsAny(l.Title, m.Title) ||
		containsAny(l.Text, m.Text)
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, n := range needles {
		if n != "" && strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// Targets lists the surfaces an acquisition visits and how their landings are
// classified.
type Targets struct {
	Home     string   `yaml:"home"`
	Surfaces []string `yaml:"surfaces"`
	// SearchURL is a format string with a single %s for the escaped query.
	SearchURL     string   `yaml:"search_url"`
	Keywords      []string `yaml:"keywords"`
	FallbackTerms []string `yaml:"fallback_terms"`
	LoginWall     Markers  `yaml:"login_wall"`
	NotFound      Markers  `yaml:"not_found"`
}

func DefaultTargets() Targets {
	return Targets{
		Home: "https://www.tiktok.com/shop",
		Surfaces: []string{
			"https://shop.tiktok.com/us/",
			"https://affiliate.tiktok.com/connection/product-marketplace",
		},
		SearchURL:     "https://www.tiktok.com/search?q=%s",
		Keywords:      []string{"tiktok made me buy it", "best sellers"},
		FallbackTerms: []string{"best seller", "trending products", "viral gadgets", "gift ideas"},
		LoginWall: Markers{
			URL:   []string{"/login", "passport", "/signup"},
			Title: []string{"log in | tiktok", "sign up | tiktok"},
			Text:  []string{"log in to tiktok", "log in to continue"},
		},
		NotFound: Markers{
			Title: []string{"404", "page not found"},
			Text:  []string{"page not available", "this page isn't available", "couldn't find this page"},
		},
	}
}

// Episode is one navigation to a single surface.
type Episode struct {
	Name string
	URL  string
}

// Episodes builds the ordered, duplicate-free episode list for a call: the
// home surface, the configured surfaces, then searches for the configured
// keywords followed by the filter categories.
func (t Targets) Episodes(filters models.Filters) []Episode {
	var episodes []Episode
	seen := make(map[string]struct{})
	add := func(name, u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		episodes = append(episodes, Episode{Name: name, URL: u})
	}

	add("home", t.Home)
	for i, s := range t.Surfaces {
		add(fmt.Sprintf("surface_%d", i+1), s)
	}
	for _, k := range t.Keywords {
		add("search:"+k, t.SearchFor(k))
	}
	for _, c := range filters.Categories {
		add("category:"+c, t.SearchFor(c))
	}
	return episodes
}

// SearchFor returns the search surface for a query, or "" when no search
// surface is configured.
func (t Targets) SearchFor(query string) string {
	query = strings.TrimSpace(query)
	if t.SearchURL == "" || query == "" {
		return ""
	}
	return fmt.Sprintf(t.SearchURL, url.QueryEscape(query))
}

// AtLoginWall reports whether a landing is an authentication wall.
func (t Targets) AtLoginWall(l browser.Landing) bool {
	return t.LoginWall.Match(l)
}

// IsNotFound reports whether a landing is a missing page, either by status or
// by its title/content signature.
func (t Targets) IsNotFound(l browser.Landing) bool {
	return l.Status == 404 || t.NotFound.Match(l)
}

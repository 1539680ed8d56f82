// Package extract pulls product candidates out of rendered page snapshots
// using several independent techniques.
package extract

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/itsnelsonvargas/ClickTok/internal/normalize"
	"github.com/itsnelsonvargas/ClickTok/internal/outcome"
)

// Snapshot is the rendered state of one page.
type Snapshot struct {
	URL  string
	HTML string
}

// Extractor runs the structured, pattern and link+context techniques in
// priority order and unions their output.
type Extractor struct {
	techniques []technique
	logger     *slog.Logger
}

func New(cardSelectors []string, logger *slog.Logger) *Extractor {
	if len(cardSelectors) == 0 {
		cardSelectors = DefaultCardSelectors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		techniques: []technique{
			{models.TechniqueStructured, extractStructured},
			{models.TechniquePattern, func(doc *goquery.Document, pageURL string) []models.Candidate {
				return extractPattern(doc, pageURL, cardSelectors)
			}},
			{models.TechniqueLinkContext, extractLinkContext},
		},
		logger: logger.With("component", "extractor"),
	}
}

type technique struct {
	name models.Technique
	run  func(doc *goquery.Document, pageURL string) []models.Candidate
}

// Extract returns the deduplicated union of all techniques. A candidate from a
// later technique is kept only if no earlier technique produced its key.
func (e *Extractor) Extract(snap Snapshot) []models.Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		e.logger.Warn("failed to parse snapshot", "url", snap.URL, "error", err)
		return nil
	}

	var out []models.Candidate
	seen := make(map[string]bool)

	for _, t := range e.techniques {
		found, err := e.runTechnique(t, doc, snap.URL)
		if err != nil {
			e.logger.Warn("extraction technique failed", "technique", t.name, "url", snap.URL, "error", err)
			continue
		}

		added := 0
		for _, c := range found {
			key := normalize.Key(c)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
			added++
		}
		e.logger.Debug("technique finished", "technique", t.name, "found", len(found), "added", added)
	}

	return out
}

func (e *Extractor) runTechnique(t technique, doc *goquery.Document, pageURL string) (found []models.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = outcome.NewStructural(string(t.name), "technique panicked", fmt.Errorf("%v", r))
		}
	}()
	return t.run(doc, pageURL), nil
}

func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	return b.ResolveReference(r).String()
}

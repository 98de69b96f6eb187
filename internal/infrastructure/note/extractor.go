// Package note scrapes note.com article pages for structural content
// metrics.
package note

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Liyracat/tool-rss-reader/internal/domain"
	"github.com/Liyracat/tool-rss-reader/internal/ports"
	"github.com/Liyracat/tool-rss-reader/internal/scraper"
)

const (
	// DomainPrefix is the only link space this extractor claims.
	DomainPrefix = "https://note.com/"

	// The article layout is fixed; both selectors point into it. The
	// paywall marker may exist anywhere on the page, the body selector
	// anchors all counting.
	DefaultPaywallSelector = "#__layout > div > div:nth-child(1) > div:nth-child(3) > main > " +
		"div.p-article__articleWrapper > article > div.p-article__paywall"
	DefaultBodySelector = "#__layout > div > div:nth-child(1) > div:nth-child(3) > main > " +
		"div.p-article__articleWrapper > article > div.p-article__content.pb-4 > " +
		"div > div > div.note-common-styles__textnote-body"
)

// Extractor fetches an article page and computes the metric counts.
type Extractor struct {
	fetcher         ports.TextFetcher
	prefix          string
	paywallSelector string
	bodySelector    string
}

var _ scraper.Extractor = (*Extractor)(nil)

// Options overrides the note.com defaults, mainly for tests.
type Options struct {
	Prefix          string
	PaywallSelector string
	BodySelector    string
}

// NewExtractor wires the shared text fetcher.
func NewExtractor(fetcher ports.TextFetcher, opts Options) *Extractor {
	e := &Extractor{
		fetcher:         fetcher,
		prefix:          DomainPrefix,
		paywallSelector: DefaultPaywallSelector,
		bodySelector:    DefaultBodySelector,
	}
	if opts.Prefix != "" {
		e.prefix = opts.Prefix
	}
	if opts.PaywallSelector != "" {
		e.paywallSelector = opts.PaywallSelector
	}
	if opts.BodySelector != "" {
		e.bodySelector = opts.BodySelector
	}
	return e
}

// Name identifies the extractor inside the registry.
func (e *Extractor) Name() string { return "note" }

// Prefix returns the claimed link prefix.
func (e *Extractor) Prefix() string { return e.prefix }

// Extract fetches the article and computes its metrics. A page without
// the body region is classified as paywalled rather than failed: paywalled
// articles omit the full body structure.
func (e *Extractor) Extract(ctx context.Context, link string) (domain.MetricsOutcome, error) {
	html, err := e.fetcher.FetchText(ctx, link)
	if err != nil {
		return domain.MetricsOutcome{}, fmt.Errorf("fetch article: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.MetricsOutcome{}, fmt.Errorf("parse article: %w", err)
	}

	body := doc.Find(e.bodySelector).First()
	if body.Length() == 0 {
		return domain.Paywalled(), nil
	}

	hasCTA := 0
	if doc.Find(e.paywallSelector).Length() > 0 {
		hasCTA = 1
	}
	return domain.MetricsOutcome{
		Kind:    domain.OutcomeDone,
		Metrics: computeMetrics(body, hasCTA),
	}, nil
}

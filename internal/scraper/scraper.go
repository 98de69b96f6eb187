package scraper

import (
	"context"
	"errors"
	"strings"

	"github.com/Liyracat/tool-rss-reader/internal/domain"
)

// ErrUnsupportedDomain classifies links no extractor claims. It is a
// validation failure, distinct from a scraping failure.
var ErrUnsupportedDomain = errors.New("link domain is not supported for metrics")

// Extractor computes structural metrics for article links under a single
// URL prefix.
type Extractor interface {
	Name() string
	// Prefix is the link prefix this extractor claims, e.g. "https://note.com/".
	Prefix() string
	Extract(ctx context.Context, link string) (domain.MetricsOutcome, error)
}

// Registry keeps the registered extractors in registration order.
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an extractor; the first matching prefix wins on resolve.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Prefixes lists the claimed link prefixes, for narrowing storage queries.
func (r *Registry) Prefixes() []string {
	out := make([]string, 0, len(r.extractors))
	for _, e := range r.extractors {
		out = append(out, e.Prefix())
	}
	return out
}

// ResolveForLink returns the extractor claiming the link, or
// ErrUnsupportedDomain.
func (r *Registry) ResolveForLink(link string) (Extractor, error) {
	for _, e := range r.extractors {
		if strings.HasPrefix(link, e.Prefix()) {
			return e, nil
		}
	}
	return nil, ErrUnsupportedDomain
}

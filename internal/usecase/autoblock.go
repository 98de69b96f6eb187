package usecase

import "github.com/Liyracat/tool-rss-reader/internal/domain"

// AutoBlockPolicy decides whether a creator should be blocked from the
// structural metrics of one article. The coefficients are business
// policy, configured rather than hard-coded.
type AutoBlockPolicy struct {
	Enabled bool
	// MinCharacterCount is the content volume below which an article is
	// considered thin.
	MinCharacterCount int
	// LinksPerParagraph is the tolerated link density; more links than
	// this ratio allows marks the article as promotional.
	LinksPerParagraph float64
}

// DefaultAutoBlockPolicy mirrors the shipped configuration defaults.
func DefaultAutoBlockPolicy() AutoBlockPolicy {
	return AutoBlockPolicy{
		Enabled:           true,
		MinCharacterCount: 800,
		LinksPerParagraph: 0.5,
	}
}

// ShouldBlock fires on thin, promotion-heavy paid articles: a purchase
// CTA combined with little text and a disproportionate number of links.
func (p AutoBlockPolicy) ShouldBlock(m domain.ArticleMetrics) bool {
	if !p.Enabled {
		return false
	}
	if m.HasPurchaseCTA == 0 {
		return false
	}
	if m.TotalCharacterCount >= p.MinCharacterCount {
		return false
	}
	return float64(m.LinkCount) > p.LinksPerParagraph*float64(m.PCount)
}

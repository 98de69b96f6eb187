package domain

// ArticleMetrics holds the structural counts scraped from an article body.
type ArticleMetrics struct {
	HasPurchaseCTA      int
	TotalCharacterCount int
	H2Count             int
	H3Count             int
	ImgCount            int
	LinkCount           int
	PCount              int
	BrInPCount          int
	PeriodCount         int
}

// OutcomeKind distinguishes a full extraction from a paywall inference.
type OutcomeKind int

const (
	// OutcomeDone means the article body was found and counted.
	OutcomeDone OutcomeKind = iota
	// OutcomePaywalled means the body region was absent; the page is
	// classified as paywalled with only the purchase CTA flag set.
	OutcomePaywalled
)

// MetricsOutcome is the tagged result of a metrics extraction. A missing
// body is a meaningful outcome, not an error.
type MetricsOutcome struct {
	Kind    OutcomeKind
	Metrics ArticleMetrics
}

// Paywalled builds the soft-success outcome.
func Paywalled() MetricsOutcome {
	return MetricsOutcome{
		Kind:    OutcomePaywalled,
		Metrics: ArticleMetrics{HasPurchaseCTA: 1},
	}
}

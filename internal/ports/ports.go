package ports

import (
	"context"
	"time"

	"github.com/Liyracat/tool-rss-reader/internal/domain"
)

// SourceStore reads feed sources and records fetch attempts.
type SourceStore interface {
	ListEnabled(ctx context.Context) ([]domain.Source, error)
	// TouchFetched records that an attempt happened, successful or not.
	TouchFetched(ctx context.Context, sourceID int64, at time.Time) error
}

// ItemStore persists ingested items and their metrics lifecycle.
type ItemStore interface {
	// InsertBatch inserts the items of one source as a unit, ignoring
	// fingerprints that already exist. Returns the number actually inserted.
	InsertBatch(ctx context.Context, items []domain.NewItem) (int, error)
	GetRef(ctx context.Context, itemID int64) (domain.ItemRef, error)
	// PendingMetrics returns up to limit pending items whose link starts
	// with one of the prefixes, newest first.
	PendingMetrics(ctx context.Context, prefixes []string, limit int) ([]domain.ItemRef, error)
	// SaveOutcome atomically persists a metrics result and marks the item done.
	SaveOutcome(ctx context.Context, itemID int64, outcome domain.MetricsOutcome, fetchedAt time.Time) error
	MarkMetricsFailed(ctx context.Context, itemID int64, fetchedAt time.Time) error
	// DeleteIgnoredBefore purges ignored items last updated at or before cutoff.
	DeleteIgnoredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuthorRuleStore reads block rules and records auto-blocks.
type AuthorRuleStore interface {
	BlockedCreators(ctx context.Context, sourceID int64) (map[string]struct{}, error)
	// BlockCreator inserts a block rule (an existing rule is a no-op) and
	// moves the item to ignored, as one unit.
	BlockCreator(ctx context.Context, itemID, sourceID int64, creatorName, memo string) error
}

// TextFetcher performs a GET and returns the body decoded per its
// declared charset.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// RunLock serializes whole ingestion runs across process invocations.
type RunLock interface {
	// TryAcquire reports whether the lock was taken; contention is not an error.
	TryAcquire() (bool, error)
	Release() error
}

// Clock supplies UTC timestamps; a fixed clock is injected in tests.
type Clock interface {
	Now() time.Time
}

// Scheduler controls recurring execution in daemon mode.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

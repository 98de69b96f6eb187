package domain

import "time"

// ItemStatus tracks the user-facing lifecycle of an ingested item.
type ItemStatus string

const (
	StatusUnread  ItemStatus = "unread"
	StatusSaved   ItemStatus = "saved"
	StatusIgnored ItemStatus = "ignored"
)

// MetricsStatus tracks the enrichment lifecycle; it moves from pending to
// done or failed and is only reset by an explicit re-fetch.
type MetricsStatus string

const (
	MetricsPending MetricsStatus = "pending"
	MetricsDone    MetricsStatus = "done"
	MetricsFailed  MetricsStatus = "failed"
)

// NewItem is the insert payload produced by the ingestion pipeline.
// Fingerprint is the dedup key: inserting an existing fingerprint is a no-op.
type NewItem struct {
	SourceID      int64
	Title         string
	Link          string
	CreatorName   string
	PublishedAt   *time.Time
	PublishedDate string
	Fingerprint   string
}

// ItemRef is the slice of an item the metrics stage needs.
type ItemRef struct {
	ID          int64
	SourceID    int64
	Link        string
	CreatorName string
}

package domain

import "time"

// Source is a configured feed endpoint. The API layer owns all fields;
// the ingestion core only reads them and touches LastFetchedAt.
type Source struct {
	ID               int64
	SiteName         string
	FeedURL          string
	CreatorTag       string
	IsEnabled        bool
	FetchIntervalMin int
	LastFetchedAt    *time.Time
}

// Package storage persists sources, items, and author rules in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/Liyracat/tool-rss-reader/internal/domain"
	"github.com/Liyracat/tool-rss-reader/internal/ports"
)

// Timestamp layouts: publish instants and fetch markers are stored as
// RFC 3339; updated_at mirrors sqlite's datetime('now') format so the
// retention cutoff compares as a plain string.
const (
	instantLayout = time.RFC3339
	updateLayout  = "2006-01-02 15:04:05"
)

// SQLiteRepository backs every store port with one database handle.
// modernc.org/sqlite is pure Go; a single open connection serializes writes.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ ports.SourceStore     = (*SQLiteRepository)(nil)
	_ ports.ItemStore       = (*SQLiteRepository)(nil)
	_ ports.AuthorRuleStore = (*SQLiteRepository)(nil)
)

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 3000`); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	r := &SQLiteRepository{db: db}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error { return r.db.Close() }

// migrate creates the schema idempotently. keyword_rules and the tag
// tables belong to the API layer; keyword_rules is created here so a
// fresh database serves both processes.
func (r *SQLiteRepository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sources (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            site_name TEXT NOT NULL DEFAULT '',
            feed_url TEXT NOT NULL,
            source_type TEXT NOT NULL DEFAULT 'search',
            creator_tag TEXT NOT NULL DEFAULT 'note:creatorName',
            is_enabled INTEGER NOT NULL DEFAULT 1,
            fetch_interval_min INTEGER NOT NULL DEFAULT 120,
            last_fetched_at TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            link TEXT NOT NULL,
            creator_name TEXT,
            published_at TEXT,
            published_date TEXT,
            fingerprint TEXT NOT NULL UNIQUE,
            status TEXT NOT NULL DEFAULT 'unread'
                CHECK (status IN ('unread','saved','ignored')),
            fetched_at TEXT NOT NULL DEFAULT (datetime('now')),
            updated_at TEXT NOT NULL DEFAULT (datetime('now')),
            metrics_status TEXT NOT NULL DEFAULT 'pending'
                CHECK (metrics_status IN ('pending','done','failed')),
            metrics_fetched_at TEXT,
            has_purchase_cta INTEGER,
            total_character_count INTEGER,
            h2_count INTEGER,
            h3_count INTEGER,
            img_count INTEGER,
            link_count INTEGER,
            p_count INTEGER,
            br_in_p_count INTEGER,
            period_count INTEGER
        );`,
		`CREATE TABLE IF NOT EXISTS author_rules (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
            creator_name TEXT NOT NULL,
            rule_type TEXT NOT NULL
                CHECK (rule_type IN ('block','allow','boost')),
            memo TEXT,
            UNIQUE (source_id, creator_name)
        );`,
		`CREATE TABLE IF NOT EXISTS keyword_rules (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            keyword TEXT NOT NULL,
            rule_type TEXT NOT NULL
                CHECK (rule_type IN ('mute','boost','tab'))
        );`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// ListEnabled returns every enabled source in id order.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]domain.Source, error) {
	query, args, err := sq.
		Select("id", "site_name", "feed_url", "creator_tag", "is_enabled", "fetch_interval_min", "last_fetched_at").
		From("sources").
		Where(sq.Eq{"is_enabled": 1}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var s domain.Source
		var enabled int
		var lastFetched sql.NullString
		if err := rows.Scan(&s.ID, &s.SiteName, &s.FeedURL, &s.CreatorTag, &enabled, &s.FetchIntervalMin, &lastFetched); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		s.IsEnabled = enabled != 0
		if lastFetched.Valid {
			if t, perr := time.Parse(instantLayout, lastFetched.String); perr == nil {
				s.LastFetchedAt = &t
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// TouchFetched stamps the source with the run start time.
func (r *SQLiteRepository) TouchFetched(ctx context.Context, sourceID int64, at time.Time) error {
	query, args, err := sq.
		Update("sources").
		Set("last_fetched_at", at.UTC().Format(instantLayout)).
		Where(sq.Eq{"id": sourceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch source %d: %w", sourceID, err)
	}
	return nil
}

// InsertBatch inserts one source's entries inside a transaction. Existing
// fingerprints are ignored, so re-ingesting an unchanged feed is a no-op.
func (r *SQLiteRepository) InsertBatch(ctx context.Context, items []domain.NewItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, item := range items {
		builder := sq.
			Insert("items").
			Options("OR IGNORE").
			Columns("source_id", "title", "link", "creator_name", "published_at", "published_date", "fingerprint").
			Values(
				item.SourceID,
				item.Title,
				item.Link,
				nullable(item.CreatorName),
				nullableInstant(item.PublishedAt),
				nullable(item.PublishedDate),
				item.Fingerprint,
			)
		query, args, err := builder.ToSql()
		if err != nil {
			return 0, fmt.Errorf("build item insert: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert item %s: %w", item.Link, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, nil
}

// GetRef loads the item slice the metrics stage works on.
func (r *SQLiteRepository) GetRef(ctx context.Context, itemID int64) (domain.ItemRef, error) {
	query, args, err := sq.
		Select("id", "source_id", "link", "COALESCE(creator_name, '')").
		From("items").
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return domain.ItemRef{}, fmt.Errorf("build item query: %w", err)
	}
	var ref domain.ItemRef
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&ref.ID, &ref.SourceID, &ref.Link, &ref.CreatorName)
	if err != nil {
		return domain.ItemRef{}, fmt.Errorf("load item %d: %w", itemID, err)
	}
	return ref, nil
}

// PendingMetrics returns pending items under the supported link prefixes,
// newest first.
func (r *SQLiteRepository) PendingMetrics(ctx context.Context, prefixes []string, limit int) ([]domain.ItemRef, error) {
	if len(prefixes) == 0 || limit <= 0 {
		return nil, nil
	}

	prefixFilter := make(sq.Or, 0, len(prefixes))
	for _, p := range prefixes {
		prefixFilter = append(prefixFilter, sq.Like{"link": p + "%"})
	}

	query, args, err := sq.
		Select("id", "source_id", "link", "COALESCE(creator_name, '')").
		From("items").
		Where(sq.Eq{"metrics_status": string(domain.MetricsPending)}).
		Where(prefixFilter).
		OrderBy("COALESCE(published_at, published_date) DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending items: %w", err)
	}
	defer rows.Close()

	var out []domain.ItemRef
	for rows.Next() {
		var ref domain.ItemRef
		if err := rows.Scan(&ref.ID, &ref.SourceID, &ref.Link, &ref.CreatorName); err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending items: %w", err)
	}
	return out, nil
}

// SaveOutcome persists a metrics result in a single statement. A
// paywalled outcome only sets the CTA flag, leaving the other counts NULL.
func (r *SQLiteRepository) SaveOutcome(ctx context.Context, itemID int64, outcome domain.MetricsOutcome, fetchedAt time.Time) error {
	builder := sq.
		Update("items").
		Set("metrics_status", string(domain.MetricsDone)).
		Set("metrics_fetched_at", fetchedAt.UTC().Format(instantLayout)).
		Set("has_purchase_cta", outcome.Metrics.HasPurchaseCTA)

	if outcome.Kind == domain.OutcomeDone {
		m := outcome.Metrics
		builder = builder.
			Set("total_character_count", m.TotalCharacterCount).
			Set("h2_count", m.H2Count).
			Set("h3_count", m.H3Count).
			Set("img_count", m.ImgCount).
			Set("link_count", m.LinkCount).
			Set("p_count", m.PCount).
			Set("br_in_p_count", m.BrInPCount).
			Set("period_count", m.PeriodCount)
	}

	query, args, err := builder.Where(sq.Eq{"id": itemID}).ToSql()
	if err != nil {
		return fmt.Errorf("build metrics update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save metrics for item %d: %w", itemID, err)
	}
	return nil
}

// MarkMetricsFailed records an attempt that did not yield metrics.
func (r *SQLiteRepository) MarkMetricsFailed(ctx context.Context, itemID int64, fetchedAt time.Time) error {
	query, args, err := sq.
		Update("items").
		Set("metrics_status", string(domain.MetricsFailed)).
		Set("metrics_fetched_at", fetchedAt.UTC().Format(instantLayout)).
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build failed update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark metrics failed for item %d: %w", itemID, err)
	}
	return nil
}

// DeleteIgnoredBefore purges ignored items whose last update is at or
// before cutoff.
func (r *SQLiteRepository) DeleteIgnoredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := sq.
		Delete("items").
		Where(sq.Eq{"status": string(domain.StatusIgnored)}).
		Where(sq.LtOrEq{"updated_at": cutoff.UTC().Format(updateLayout)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sweep query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete ignored items: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted items: %w", err)
	}
	return deleted, nil
}

// BlockedCreators loads the block set applied before persistence.
func (r *SQLiteRepository) BlockedCreators(ctx context.Context, sourceID int64) (map[string]struct{}, error) {
	query, args, err := sq.
		Select("creator_name").
		From("author_rules").
		Where(sq.Eq{"source_id": sourceID, "rule_type": string(domain.RuleBlock)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build block query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query block rules: %w", err)
	}
	defer rows.Close()

	blocked := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan block rule: %w", err)
		}
		blocked[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate block rules: %w", err)
	}
	return blocked, nil
}

// BlockCreator inserts a block rule and moves the item to ignored as one
// transaction. A rule that already exists is tolerated; any other insert
// failure aborts.
func (r *SQLiteRepository) BlockCreator(ctx context.Context, itemID, sourceID int64, creatorName, memo string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin block: %w", err)
	}
	defer tx.Rollback()

	insertQuery, insertArgs, err := sq.
		Insert("author_rules").
		Columns("source_id", "creator_name", "rule_type", "memo").
		Values(sourceID, creatorName, string(domain.RuleBlock), nullable(memo)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rule insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
		if !isUniqueViolation(err) {
			return fmt.Errorf("insert block rule for %q: %w", creatorName, err)
		}
	}

	updateQuery, updateArgs, err := sq.
		Update("items").
		Set("status", string(domain.StatusIgnored)).
		Set("updated_at", time.Now().UTC().Format(updateLayout)).
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build ignore update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, updateQuery, updateArgs...); err != nil {
		return fmt.Errorf("ignore item %d: %w", itemID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInstant(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(instantLayout)
}

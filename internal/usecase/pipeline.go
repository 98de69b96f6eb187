package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Liyracat/tool-rss-reader/internal/domain"
	"github.com/Liyracat/tool-rss-reader/internal/feed"
	"github.com/Liyracat/tool-rss-reader/internal/ports"
	"github.com/Liyracat/tool-rss-reader/internal/scraper"
)

const autoBlockMemo = "auto-blocked by content metrics"

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Sources  ports.SourceStore
	Items    ports.ItemStore
	Rules    ports.AuthorRuleStore
	Fetcher  ports.TextFetcher
	Scrapers *scraper.Registry
	Clock    ports.Clock
	Logger   *slog.Logger

	MetricsBatchSize int
	MetricsDelay     time.Duration
	Retention        time.Duration
	AutoBlock        AutoBlockPolicy
}

// Pipeline implements the ingestion workflow: per-source fetch, parse,
// filter, idempotent insert; then a rate-limited metrics batch feeding
// the auto-block heuristic; then the retention sweep.
type Pipeline struct {
	sources  ports.SourceStore
	items    ports.ItemStore
	rules    ports.AuthorRuleStore
	fetcher  ports.TextFetcher
	scrapers *scraper.Registry
	clock    ports.Clock
	logger   *slog.Logger

	batchSize int
	delay     time.Duration
	retention time.Duration
	autoBlock AutoBlockPolicy
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		sources:   deps.Sources,
		items:     deps.Items,
		rules:     deps.Rules,
		fetcher:   deps.Fetcher,
		scrapers:  deps.Scrapers,
		clock:     deps.Clock,
		logger:    deps.Logger,
		batchSize: deps.MetricsBatchSize,
		delay:     deps.MetricsDelay,
		retention: deps.Retention,
		autoBlock: deps.AutoBlock,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.batchSize <= 0 {
		p.batchSize = 10
	}
	if p.delay <= 0 {
		p.delay = 5 * time.Second
	}
	if p.retention <= 0 {
		p.retention = 24 * time.Hour
	}
	return p
}

// Run executes one full ingestion pass. Every enabled source is
// attempted; a failing source is logged and reflected in the report but
// never aborts its siblings. Only loading the source list is fatal.
func (p *Pipeline) Run(ctx context.Context) domain.RunReport {
	started := p.clock.Now().UTC()
	report := domain.RunReport{StartedAt: started}

	sources, err := p.sources.ListEnabled(ctx)
	if err != nil {
		report.Err = fmt.Errorf("list sources: %w", err)
		return report
	}

	var merr *multierror.Error
	for _, src := range sources {
		report.Attempted++
		inserted, err := p.processSource(ctx, src)
		if err != nil {
			report.Failed++
			merr = multierror.Append(merr, fmt.Errorf("source %d: %w", src.ID, err))
			p.logger.Error("source failed",
				"source_id", src.ID, "feed_url", src.FeedURL, "error", err)
		} else {
			report.Inserted += inserted
			p.logger.Info("source fetched",
				"source_id", src.ID, "feed_url", src.FeedURL, "items", inserted)
		}
		// The attempt is recorded either way; a failing stamp must not
		// block the next source.
		if terr := p.sources.TouchFetched(ctx, src.ID, started); terr != nil {
			p.logger.Warn("touch source failed", "source_id", src.ID, "error", terr)
		}
	}
	report.Err = merr.ErrorOrNil()

	p.runMetricsBatch(ctx)
	p.sweep(ctx)

	return report
}

// processSource runs fetch→parse→filter→insert for one source.
func (p *Pipeline) processSource(ctx context.Context, src domain.Source) (int, error) {
	blocked, err := p.rules.BlockedCreators(ctx, src.ID)
	if err != nil {
		return 0, fmt.Errorf("load block rules: %w", err)
	}

	text, err := p.fetcher.FetchText(ctx, src.FeedURL)
	if err != nil {
		return 0, fmt.Errorf("fetch feed: %w", err)
	}
	root, err := feed.ParseTree(strings.NewReader(text))
	if err != nil {
		return 0, fmt.Errorf("parse feed: %w", err)
	}

	entries, skipped := feed.ExtractEntries(root, feed.ParseCreatorLocator(src.CreatorTag))
	if skipped > 0 {
		p.logger.Debug("skipped entries missing title/link",
			"source_id", src.ID, "count", skipped)
	}

	batch := make([]domain.NewItem, 0, len(entries))
	for _, e := range entries {
		if _, isBlocked := blocked[e.CreatorName]; isBlocked && e.CreatorName != "" {
			p.logger.Debug("skip blocked author",
				"source_id", src.ID, "creator", e.CreatorName)
			continue
		}
		publishedAt, publishedDate := feed.NormalizePubDate(e.PubDate, p.clock.Now())
		batch = append(batch, domain.NewItem{
			SourceID:      src.ID,
			Title:         e.Title,
			Link:          e.Link,
			CreatorName:   e.CreatorName,
			PublishedAt:   publishedAt,
			PublishedDate: publishedDate,
			Fingerprint:   feed.Fingerprint(e.Link),
		})
	}

	inserted, err := p.items.InsertBatch(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("insert items: %w", err)
	}
	return inserted, nil
}

// runMetricsBatch enriches a bounded batch of pending items, sleeping a
// fixed interval between them to rate-limit the scraped site. Failures
// are logged per item and never abort the batch.
func (p *Pipeline) runMetricsBatch(ctx context.Context) {
	pending, err := p.items.PendingMetrics(ctx, p.scrapers.Prefixes(), p.batchSize)
	if err != nil {
		p.logger.Warn("load pending metrics items failed", "error", err)
		return
	}

	for _, ref := range pending {
		if _, err := p.fetchMetricsFor(ctx, ref); err != nil {
			p.logger.Error("metrics failed", "item_id", ref.ID, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.delay):
		}
	}
}

// FetchItemMetrics computes and persists metrics for a single item, the
// entry point for explicit API-driven re-fetches.
func (p *Pipeline) FetchItemMetrics(ctx context.Context, itemID int64) (domain.MetricsOutcome, error) {
	ref, err := p.items.GetRef(ctx, itemID)
	if err != nil {
		return domain.MetricsOutcome{}, err
	}
	return p.fetchMetricsFor(ctx, ref)
}

func (p *Pipeline) fetchMetricsFor(ctx context.Context, ref domain.ItemRef) (domain.MetricsOutcome, error) {
	fetchedAt := p.clock.Now().UTC()

	extractor, err := p.scrapers.ResolveForLink(ref.Link)
	if err != nil {
		p.markFailed(ctx, ref.ID, fetchedAt)
		return domain.MetricsOutcome{}, fmt.Errorf("item %d: %w", ref.ID, err)
	}

	outcome, err := extractor.Extract(ctx, ref.Link)
	if err != nil {
		p.markFailed(ctx, ref.ID, fetchedAt)
		return domain.MetricsOutcome{}, fmt.Errorf("item %d: %w", ref.ID, err)
	}

	if err := p.items.SaveOutcome(ctx, ref.ID, outcome, fetchedAt); err != nil {
		return outcome, fmt.Errorf("persist metrics for item %d: %w", ref.ID, err)
	}

	p.maybeAutoBlock(ctx, ref, outcome)
	return outcome, nil
}

func (p *Pipeline) markFailed(ctx context.Context, itemID int64, at time.Time) {
	if err := p.items.MarkMetricsFailed(ctx, itemID, at); err != nil {
		p.logger.Warn("mark metrics failed errored", "item_id", itemID, "error", err)
	}
}

// maybeAutoBlock applies the block policy to a fresh outcome. This is
// the only path besides explicit user action that mutates item status.
func (p *Pipeline) maybeAutoBlock(ctx context.Context, ref domain.ItemRef, outcome domain.MetricsOutcome) {
	if ref.CreatorName == "" {
		return
	}
	if !p.autoBlock.ShouldBlock(outcome.Metrics) {
		return
	}
	if err := p.rules.BlockCreator(ctx, ref.ID, ref.SourceID, ref.CreatorName, autoBlockMemo); err != nil {
		p.logger.Error("auto-block failed",
			"item_id", ref.ID, "creator", ref.CreatorName, "error", err)
		return
	}
	p.logger.Info("creator auto-blocked",
		"source_id", ref.SourceID, "creator", ref.CreatorName, "item_id", ref.ID)
}

// sweep purges ignored items past the retention window.
func (p *Pipeline) sweep(ctx context.Context) {
	cutoff := p.clock.Now().UTC().Add(-p.retention)
	deleted, err := p.items.DeleteIgnoredBefore(ctx, cutoff)
	if err != nil {
		p.logger.Warn("retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("deleted ignored items", "count", deleted)
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/Liyracat/tool-rss-reader/internal/domain"
	"github.com/Liyracat/tool-rss-reader/internal/scraper"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type fakeSourceStore struct {
	sources []domain.Source
	touched map[int64]time.Time
	listErr error
}

func (f *fakeSourceStore) ListEnabled(ctx context.Context) ([]domain.Source, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sources, nil
}

func (f *fakeSourceStore) TouchFetched(ctx context.Context, sourceID int64, at time.Time) error {
	if f.touched == nil {
		f.touched = map[int64]time.Time{}
	}
	f.touched[sourceID] = at
	return nil
}

type storedItem struct {
	domain.NewItem
	id            int64
	status        domain.ItemStatus
	metricsStatus domain.MetricsStatus
	outcome       domain.MetricsOutcome
}

type fakeItemStore struct {
	nextID int64
	items  map[string]*storedItem // by fingerprint
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: map[string]*storedItem{}}
}

func (f *fakeItemStore) InsertBatch(ctx context.Context, items []domain.NewItem) (int, error) {
	inserted := 0
	for _, item := range items {
		if _, exists := f.items[item.Fingerprint]; exists {
			continue
		}
		f.nextID++
		f.items[item.Fingerprint] = &storedItem{
			NewItem:       item,
			id:            f.nextID,
			status:        domain.StatusUnread,
			metricsStatus: domain.MetricsPending,
		}
		inserted++
	}
	return inserted, nil
}

func (f *fakeItemStore) byID(id int64) *storedItem {
	for _, item := range f.items {
		if item.id == id {
			return item
		}
	}
	return nil
}

func (f *fakeItemStore) GetRef(ctx context.Context, itemID int64) (domain.ItemRef, error) {
	item := f.byID(itemID)
	if item == nil {
		return domain.ItemRef{}, fmt.Errorf("item %d not found", itemID)
	}
	return domain.ItemRef{ID: item.id, SourceID: item.SourceID, Link: item.Link, CreatorName: item.CreatorName}, nil
}

func (f *fakeItemStore) PendingMetrics(ctx context.Context, prefixes []string, limit int) ([]domain.ItemRef, error) {
	var out []domain.ItemRef
	for _, item := range f.items {
		if item.metricsStatus != domain.MetricsPending {
			continue
		}
		match := false
		for _, p := range prefixes {
			if len(item.Link) >= len(p) && item.Link[:len(p)] == p {
				match = true
			}
		}
		if !match {
			continue
		}
		out = append(out, domain.ItemRef{ID: item.id, SourceID: item.SourceID, Link: item.Link, CreatorName: item.CreatorName})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeItemStore) SaveOutcome(ctx context.Context, itemID int64, outcome domain.MetricsOutcome, fetchedAt time.Time) error {
	item := f.byID(itemID)
	if item == nil {
		return fmt.Errorf("item %d not found", itemID)
	}
	item.metricsStatus = domain.MetricsDone
	item.outcome = outcome
	return nil
}

func (f *fakeItemStore) MarkMetricsFailed(ctx context.Context, itemID int64, fetchedAt time.Time) error {
	item := f.byID(itemID)
	if item == nil {
		return fmt.Errorf("item %d not found", itemID)
	}
	item.metricsStatus = domain.MetricsFailed
	return nil
}

func (f *fakeItemStore) DeleteIgnoredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeRuleStore struct {
	blocked map[int64]map[string]struct{}
	items   *fakeItemStore
}

func newFakeRuleStore(items *fakeItemStore) *fakeRuleStore {
	return &fakeRuleStore{blocked: map[int64]map[string]struct{}{}, items: items}
}

func (f *fakeRuleStore) BlockedCreators(ctx context.Context, sourceID int64) (map[string]struct{}, error) {
	set := map[string]struct{}{}
	for name := range f.blocked[sourceID] {
		set[name] = struct{}{}
	}
	return set, nil
}

func (f *fakeRuleStore) BlockCreator(ctx context.Context, itemID, sourceID int64, creatorName, memo string) error {
	if f.blocked[sourceID] == nil {
		f.blocked[sourceID] = map[string]struct{}{}
	}
	f.blocked[sourceID][creatorName] = struct{}{}
	if item := f.items.byID(itemID); item != nil {
		item.status = domain.StatusIgnored
	}
	return nil
}

type fakeFetcher struct {
	responses map[string]string
	errs      map[string]error
}

func (f *fakeFetcher) FetchText(ctx context.Context, url string) (string, error) {
	if err := f.errs[url]; err != nil {
		return "", err
	}
	body, ok := f.responses[url]
	if !ok {
		return "", fmt.Errorf("no response for %s", url)
	}
	return body, nil
}

type fakeExtractor struct {
	prefix   string
	outcomes map[string]domain.MetricsOutcome
	err      error
}

func (f *fakeExtractor) Name() string   { return "fake" }
func (f *fakeExtractor) Prefix() string { return f.prefix }
func (f *fakeExtractor) Extract(ctx context.Context, link string) (domain.MetricsOutcome, error) {
	if f.err != nil {
		return domain.MetricsOutcome{}, f.err
	}
	return f.outcomes[link], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func feedDoc(entries string) string {
	return `<rss xmlns:note="https://note.com/ns"><channel>` + entries + `</channel></rss>`
}

func entryXML(title, link, creator string) string {
	return `<item><title>` + title + `</title><link>` + link + `</link>` +
		`<pubDate>Mon, 5 Feb 2024 10:30:00 +0900</pubDate>` +
		`<note:creatorName>` + creator + `</note:creatorName></item>`
}

func newTestPipeline(sources *fakeSourceStore, items *fakeItemStore, rules *fakeRuleStore, fetcher *fakeFetcher, reg *scraper.Registry) *Pipeline {
	if reg == nil {
		reg = scraper.NewRegistry()
		reg.Register(&fakeExtractor{prefix: "https://note.com/"})
	}
	return NewPipeline(PipelineDeps{
		Sources:          sources,
		Items:            items,
		Rules:            rules,
		Fetcher:          fetcher,
		Scrapers:         reg,
		Clock:            fixedClock{at: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)},
		Logger:           testLogger(),
		MetricsBatchSize: 10,
		MetricsDelay:     time.Millisecond,
		Retention:        24 * time.Hour,
		AutoBlock:        DefaultAutoBlockPolicy(),
	})
}

func TestRunIsolatesFailingSource(t *testing.T) {
	t.Parallel()

	sources := &fakeSourceStore{sources: []domain.Source{
		{ID: 1, FeedURL: "https://a.example/feed", CreatorTag: "note:creatorName", IsEnabled: true},
		{ID: 2, FeedURL: "https://b.example/feed", CreatorTag: "note:creatorName", IsEnabled: true},
	}}
	items := newFakeItemStore()
	rules := newFakeRuleStore(items)
	fetcher := &fakeFetcher{
		responses: map[string]string{
			"https://b.example/feed": feedDoc(entryXML("B1", "https://note.com/u/n/b1", "bob")),
		},
		errs: map[string]error{
			"https://a.example/feed": errors.New("connection refused"),
		},
	}

	p := newTestPipeline(sources, items, rules, fetcher, nil)
	report := p.Run(context.Background())

	if report.Attempted != 2 {
		t.Fatalf("both sources must be attempted, got %d", report.Attempted)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failed source, got %d", report.Failed)
	}
	if report.ExitCode() != 1 {
		t.Fatalf("run must report failure when any source fails")
	}
	if len(items.items) != 1 {
		t.Fatalf("healthy source's items must be persisted, got %d", len(items.items))
	}
	if _, ok := sources.touched[1]; !ok {
		t.Fatalf("failed source must still be stamped")
	}
	if _, ok := sources.touched[2]; !ok {
		t.Fatalf("healthy source must be stamped")
	}
}

func TestRunSecondPassInsertsNothing(t *testing.T) {
	t.Parallel()

	sources := &fakeSourceStore{sources: []domain.Source{
		{ID: 1, FeedURL: "https://a.example/feed", CreatorTag: "note:creatorName", IsEnabled: true},
	}}
	items := newFakeItemStore()
	rules := newFakeRuleStore(items)
	fetcher := &fakeFetcher{responses: map[string]string{
		"https://a.example/feed": feedDoc(
			entryXML("One", "https://note.com/u/n/1", "alice") +
				entryXML("Two", "https://note.com/u/n/2", "alice"),
		),
	}}

	p := newTestPipeline(sources, items, rules, fetcher, nil)
	first := p.Run(context.Background())
	if first.Inserted != 2 {
		t.Fatalf("expected 2 inserts on first run, got %d", first.Inserted)
	}

	second := p.Run(context.Background())
	if second.Inserted != 0 {
		t.Fatalf("unchanged feed must insert nothing, got %d", second.Inserted)
	}
	if second.ExitCode() != 0 {
		t.Fatalf("clean run must exit 0")
	}
	if len(items.items) != 2 {
		t.Fatalf("expected 2 items total, got %d", len(items.items))
	}
}

func TestRunSkipsBlockedAuthors(t *testing.T) {
	t.Parallel()

	sources := &fakeSourceStore{sources: []domain.Source{
		{ID: 1, FeedURL: "https://a.example/feed", CreatorTag: "note:creatorName", IsEnabled: true},
	}}
	items := newFakeItemStore()
	rules := newFakeRuleStore(items)
	rules.blocked[1] = map[string]struct{}{"spammer": {}}
	fetcher := &fakeFetcher{responses: map[string]string{
		"https://a.example/feed": feedDoc(
			entryXML("Spam", "https://note.com/u/n/spam", "spammer") +
				entryXML("Good", "https://note.com/u/n/good", "alice"),
		),
	}}

	p := newTestPipeline(sources, items, rules, fetcher, nil)
	report := p.Run(context.Background())
	if report.ExitCode() != 0 {
		t.Fatalf("run failed: %v", report.Err)
	}
	if len(items.items) != 1 {
		t.Fatalf("blocked author's entry must never be inserted, got %d items", len(items.items))
	}
	for _, item := range items.items {
		if item.CreatorName == "spammer" {
			t.Fatalf("blocked creator persisted: %+v", item)
		}
	}
}

func TestRunAppliesDateFallback(t *testing.T) {
	t.Parallel()

	sources := &fakeSourceStore{sources: []domain.Source{
		{ID: 1, FeedURL: "https://a.example/feed", CreatorTag: "note:creatorName", IsEnabled: true},
	}}
	items := newFakeItemStore()
	rules := newFakeRuleStore(items)
	fetcher := &fakeFetcher{responses: map[string]string{
		"https://a.example/feed": feedDoc(
			`<item><title>T</title><link>https://note.com/u/n/1</link><pubDate>2024-13-40</pubDate></item>`,
		),
	}}

	p := newTestPipeline(sources, items, rules, fetcher, nil)
	if report := p.Run(context.Background()); report.ExitCode() != 0 {
		t.Fatalf("run failed: %v", report.Err)
	}

	var got *storedItem
	for _, item := range items.items {
		got = item
	}
	if got == nil {
		t.Fatalf("expected one item")
	}
	if got.PublishedAt != nil {
		t.Fatalf("invalid calendar date must not yield an instant, got %v", got.PublishedAt)
	}
	if got.PublishedDate != "2024-13-40" {
		t.Fatalf("unexpected fallback date: %q", got.PublishedDate)
	}
}

func TestMetricsBatchAutoBlocks(t *testing.T) {
	t.Parallel()

	sources := &fakeSourceStore{sources: []domain.Source{
		{ID: 1, FeedURL: "https://a.example/feed", CreatorTag: "note:creatorName", IsEnabled: true},
	}}
	items := newFakeItemStore()
	rules := newFakeRuleStore(items)
	fetcher := &fakeFetcher{responses: map[string]string{
		"https://a.example/feed": feedDoc(entryXML("Thin", "https://note.com/u/n/1", "seller")),
	}}

	reg := scraper.NewRegistry()
	reg.Register(&fakeExtractor{
		prefix: "https://note.com/",
		outcomes: map[string]domain.MetricsOutcome{
			"https://note.com/u/n/1": {
				Kind: domain.OutcomeDone,
				Metrics: domain.ArticleMetrics{
					HasPurchaseCTA:      1,
					TotalCharacterCount: 120,
					LinkCount:           9,
					PCount:              4,
				},
			},
		},
	})

	p := newTestPipeline(sources, items, rules, fetcher, reg)
	if report := p.Run(context.Background()); report.ExitCode() != 0 {
		t.Fatalf("run failed: %v", report.Err)
	}

	if _, ok := rules.blocked[1]["seller"]; !ok {
		t.Fatalf("expected creator to be auto-blocked")
	}
	item := items.byID(1)
	if item.status != domain.StatusIgnored {
		t.Fatalf("auto-blocked item must be ignored, got %q", item.status)
	}
	if item.metricsStatus != domain.MetricsDone {
		t.Fatalf("metrics must be done, got %q", item.metricsStatus)
	}
}

func TestFetchItemMetricsUnsupportedDomain(t *testing.T) {
	t.Parallel()

	items := newFakeItemStore()
	rules := newFakeRuleStore(items)
	_, _ = items.InsertBatch(context.Background(), []domain.NewItem{
		{SourceID: 1, Title: "t", Link: "https://example.com/a", Fingerprint: "fp-1"},
	})

	p := newTestPipeline(&fakeSourceStore{}, items, rules, &fakeFetcher{}, nil)
	_, err := p.FetchItemMetrics(context.Background(), 1)
	if !errors.Is(err, scraper.ErrUnsupportedDomain) {
		t.Fatalf("expected ErrUnsupportedDomain, got %v", err)
	}
	if items.byID(1).metricsStatus != domain.MetricsFailed {
		t.Fatalf("unsupported domain must mark the item failed")
	}
}

func TestFetchItemMetricsPaywalled(t *testing.T) {
	t.Parallel()

	items := newFakeItemStore()
	rules := newFakeRuleStore(items)
	_, _ = items.InsertBatch(context.Background(), []domain.NewItem{
		{SourceID: 1, Title: "t", Link: "https://note.com/u/n/1", CreatorName: "alice", Fingerprint: "fp-1"},
	})

	reg := scraper.NewRegistry()
	reg.Register(&fakeExtractor{
		prefix: "https://note.com/",
		outcomes: map[string]domain.MetricsOutcome{
			"https://note.com/u/n/1": domain.Paywalled(),
		},
	})

	p := newTestPipeline(&fakeSourceStore{}, items, rules, &fakeFetcher{}, reg)
	outcome, err := p.FetchItemMetrics(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchItemMetrics: %v", err)
	}
	if outcome.Kind != domain.OutcomePaywalled {
		t.Fatalf("expected paywalled outcome, got %v", outcome.Kind)
	}
	item := items.byID(1)
	if item.metricsStatus != domain.MetricsDone {
		t.Fatalf("paywalled is a soft success, got %q", item.metricsStatus)
	}
	// A paywalled-only outcome carries no counts, so it never blocks.
	if item.status != domain.StatusUnread {
		t.Fatalf("paywalled item must stay unread, got %q", item.status)
	}
}

func TestFetchItemMetricsExtractionFailure(t *testing.T) {
	t.Parallel()

	items := newFakeItemStore()
	rules := newFakeRuleStore(items)
	_, _ = items.InsertBatch(context.Background(), []domain.NewItem{
		{SourceID: 1, Title: "t", Link: "https://note.com/u/n/1", Fingerprint: "fp-1"},
	})

	reg := scraper.NewRegistry()
	reg.Register(&fakeExtractor{prefix: "https://note.com/", err: errors.New("boom")})

	p := newTestPipeline(&fakeSourceStore{}, items, rules, &fakeFetcher{}, reg)
	if _, err := p.FetchItemMetrics(context.Background(), 1); err == nil {
		t.Fatalf("expected extraction error to surface")
	}
	if items.byID(1).metricsStatus != domain.MetricsFailed {
		t.Fatalf("extraction failure must mark the item failed")
	}
}

func TestAutoBlockPolicy(t *testing.T) {
	t.Parallel()

	policy := DefaultAutoBlockPolicy()

	cases := []struct {
		name string
		m    domain.ArticleMetrics
		want bool
	}{
		{"thin promo with cta", domain.ArticleMetrics{HasPurchaseCTA: 1, TotalCharacterCount: 100, LinkCount: 5, PCount: 2}, true},
		{"no cta", domain.ArticleMetrics{TotalCharacterCount: 100, LinkCount: 5, PCount: 2}, false},
		{"long article", domain.ArticleMetrics{HasPurchaseCTA: 1, TotalCharacterCount: 5000, LinkCount: 5, PCount: 2}, false},
		{"few links", domain.ArticleMetrics{HasPurchaseCTA: 1, TotalCharacterCount: 100, LinkCount: 1, PCount: 20}, false},
		{"paywalled only", domain.ArticleMetrics{HasPurchaseCTA: 1}, false},
	}
	for _, c := range cases {
		if got := policy.ShouldBlock(c.m); got != c.want {
			t.Fatalf("%s: ShouldBlock = %v, want %v", c.name, got, c.want)
		}
	}

	disabled := policy
	disabled.Enabled = false
	if disabled.ShouldBlock(cases[0].m) {
		t.Fatalf("disabled policy must never block")
	}
}

package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbitrage-scout/internal/common/config"
	"arbitrage-scout/internal/common/database"
	stderrors "arbitrage-scout/internal/common/errors"
	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/filters"
	"arbitrage-scout/internal/models"
)

// fakeScraper serves canned envelopes and lets tests hook individual
// calls.
type fakeScraper struct {
	mu          sync.Mutex
	salesCalls  []string
	onSales     func(storeID string)
	salesErr    map[string]error
	products    map[string][]map[string]interface{}
	competitors map[string][]string
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{
		salesErr:    map[string]error{},
		products:    map[string][]map[string]interface{}{},
		competitors: map[string][]string{},
	}
}

func (f *fakeScraper) FetchSalesData(ctx context.Context, storeID string) (models.Envelope, error) {
	f.mu.Lock()
	f.salesCalls = append(f.salesCalls, storeID)
	f.mu.Unlock()
	if f.onSales != nil {
		f.onSales(storeID)
	}
	if err := f.salesErr[storeID]; err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{
		Success: true,
		Data: map[string]interface{}{
			"revenue_30d":     float64(900000),
			"order_count_30d": float64(400),
		},
	}, nil
}

func (f *fakeScraper) FetchProducts(ctx context.Context, storeID string, maxCount int) (models.Envelope, error) {
	rows := make([]interface{}, 0)
	for _, p := range f.products[storeID] {
		rows = append(rows, p)
	}
	return models.Envelope{Success: true, Data: map[string]interface{}{"products": rows}}, nil
}

func (f *fakeScraper) FetchProductDetail(ctx context.Context, url string) (models.Envelope, error) {
	ids := make([]interface{}, 0)
	for _, id := range f.competitors[url] {
		ids = append(ids, id)
	}
	return models.Envelope{Success: true, Data: map[string]interface{}{"competitor_store_ids": ids}}, nil
}

func (f *fakeScraper) salesCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.salesCalls)
}

type fakeSearcher struct {
	err   error
	calls int
}

func (f *fakeSearcher) SearchByImage(ctx context.Context, imageURL string) ([]models.CandidateSourceOffer, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []models.CandidateSourceOffer{{OfferID: "o-1", Title: "offer", PriceMinor: 100}}, nil
}

type fakeMatcher struct {
	tier models.ConfidenceTier
	err  error
}

func (f *fakeMatcher) Match(ctx context.Context, product models.ProductRecord, candidates []models.CandidateSourceOffer) (*models.MatchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.MatchResult{Product: product, Tier: f.tier}, nil
}

func passingFilters() *filters.Manager {
	return filters.New(
		config.StoreThresholds{MinRevenue30d: 500000, MinOrders30d: 250},
		config.ProductThresholds{},
	)
}

func productRow(id string) map[string]interface{} {
	return map[string]interface{}{
		"product_id": id,
		"title":      "widget " + id,
		"image_url":  "https://img.example.com/" + id + ".jpg",
	}
}

func testOrchestrator(deps Deps, cfg config.ScraperConfig) *Orchestrator {
	o := New(deps, cfg, false)
	o.pollInterval = 10 * time.Millisecond
	return o
}

func storeIDs(n int) []models.StoreRecord {
	stores := make([]models.StoreRecord, 0, n)
	for i := 0; i < n; i++ {
		stores = append(stores, models.StoreRecord{StoreID: string(rune('a' + i))})
	}
	return stores
}

func drain(t *testing.T, results <-chan models.StoreResult, summaryCh <-chan models.RunSummary) ([]models.StoreResult, models.RunSummary) {
	t.Helper()
	var got []models.StoreResult
	for r := range results {
		got = append(got, r)
	}
	select {
	case s := <-summaryCh:
		return got, s
	case <-time.After(5 * time.Second):
		t.Fatal("summary never delivered")
		return nil, models.RunSummary{}
	}
}

func TestRunCompletesAllStoresInOrder(t *testing.T) {
	scraper := newFakeScraper()
	scraper.products["a"] = []map[string]interface{}{productRow("p-1"), productRow("p-2")}
	scraper.products["b"] = []map[string]interface{}{productRow("p-3")}

	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: &fakeSearcher{},
		Matcher:  &fakeMatcher{tier: models.TierMedium},
		Filters:  passingFilters(),
		Logger:   logger.NewTestLogger(t),
	}, config.ScraperConfig{MaxProducts: 50})

	results, summaryCh := o.Run(context.Background(), "run-1", []models.StoreRecord{
		{StoreID: "a"}, {StoreID: "b"},
	})
	got, summary := drain(t, results, summaryCh)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Store.StoreID)
	assert.Equal(t, "b", got[1].Store.StoreID)
	assert.Equal(t, models.StoreDone, got[0].State)
	assert.Len(t, got[0].Products, 2)
	assert.Equal(t, models.ProductDone, got[0].Products[0].State)
	assert.EqualValues(t, 900000, got[0].Store.Revenue30d)

	assert.Equal(t, models.TerminationCompleted, summary.Termination)
	assert.Equal(t, 2, summary.Completed)
}

func TestRunStoreFilteredOut(t *testing.T) {
	scraper := newFakeScraper()
	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: &fakeSearcher{},
		Matcher:  &fakeMatcher{tier: models.TierLow},
		Filters: filters.New(
			config.StoreThresholds{MinRevenue30d: 1000000, MinOrders30d: 250},
			config.ProductThresholds{},
		),
		Logger: logger.NewTestLogger(t),
	}, config.ScraperConfig{})

	results, summaryCh := o.Run(context.Background(), "run-1", storeIDs(1))
	got, summary := drain(t, results, summaryCh)

	require.Len(t, got, 1)
	assert.Equal(t, models.StoreFilteredOut, got[0].State)
	require.NotNil(t, got[0].Decision)
	assert.Empty(t, got[0].Products)
	assert.Equal(t, 1, summary.FilteredOut)
	assert.Equal(t, models.TerminationCompleted, summary.Termination)
}

func TestRunStopViaRedisControl(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	defer rdb.Close()

	scraper := newFakeScraper()
	// Another client writes STOP while the fourth store is mid-fetch; the
	// fifth store must never start.
	scraper.onSales = func(storeID string) {
		if storeID == "d" {
			mr.Set(controlKeyPrefix+"run-1", string(SignalStop))
		}
	}

	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: &fakeSearcher{},
		Matcher:  &fakeMatcher{tier: models.TierLow},
		Filters:  passingFilters(),
		Control:  NewRedisControl(rdb, "run-1"),
		Logger:   logger.NewTestLogger(t),
	}, config.ScraperConfig{})

	results, summaryCh := o.Run(context.Background(), "run-1", storeIDs(5))
	got, summary := drain(t, results, summaryCh)

	require.Len(t, got, 4)
	assert.Equal(t, models.TerminationStopped, summary.Termination)
	assert.Equal(t, 4, summary.Stores)
	assert.Equal(t, 4, scraper.salesCallCount())
}

func TestRunStopMidStoreMarksIncomplete(t *testing.T) {
	control := NewMemoryControl()
	scraper := newFakeScraper()
	scraper.products["a"] = []map[string]interface{}{
		productRow("p-1"), productRow("p-2"), productRow("p-3"),
	}

	stopAfter := 2
	searcher := &fakeSearcher{}
	matcher := &fakeMatcher{tier: models.TierLow}
	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: searcher,
		Matcher:  matcherFunc(func(ctx context.Context, product models.ProductRecord, candidates []models.CandidateSourceOffer) (*models.MatchResult, error) {
			stopAfter--
			if stopAfter == 0 {
				control.Set(SignalStop)
			}
			return matcher.Match(ctx, product, candidates)
		}),
		Filters: passingFilters(),
		Control: control,
		Logger:  logger.NewTestLogger(t),
	}, config.ScraperConfig{})

	results, summaryCh := o.Run(context.Background(), "run-1", storeIDs(1))
	got, summary := drain(t, results, summaryCh)

	require.Len(t, got, 1)
	assert.Equal(t, models.StoreIncomplete, got[0].State)
	assert.Len(t, got[0].Products, 2, "partial product results preserved")
	assert.Equal(t, models.TerminationStopped, summary.Termination)
}

type matcherFunc func(ctx context.Context, product models.ProductRecord, candidates []models.CandidateSourceOffer) (*models.MatchResult, error)

func (f matcherFunc) Match(ctx context.Context, product models.ProductRecord, candidates []models.CandidateSourceOffer) (*models.MatchResult, error) {
	return f(ctx, product, candidates)
}

func TestRunPauseHoldsUntilResume(t *testing.T) {
	control := NewMemoryControl()
	control.Set(SignalPause)

	scraper := newFakeScraper()
	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: &fakeSearcher{},
		Matcher:  &fakeMatcher{tier: models.TierLow},
		Filters:  passingFilters(),
		Control:  control,
		Logger:   logger.NewTestLogger(t),
	}, config.ScraperConfig{})

	results, summaryCh := o.Run(context.Background(), "run-1", storeIDs(1))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, scraper.salesCallCount(), "no work while paused")

	control.Set(SignalResume)
	got, summary := drain(t, results, summaryCh)
	require.Len(t, got, 1)
	assert.Equal(t, models.TerminationCompleted, summary.Termination)
}

func TestRunAuthErrorIsFatal(t *testing.T) {
	scraper := newFakeScraper()
	scraper.products["a"] = []map[string]interface{}{productRow("p-1")}

	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: &fakeSearcher{err: stderrors.NewAuthError("credentials rejected")},
		Matcher:  &fakeMatcher{tier: models.TierLow},
		Filters:  passingFilters(),
		Logger:   logger.NewTestLogger(t),
	}, config.ScraperConfig{MaxRetries: 2})

	results, summaryCh := o.Run(context.Background(), "run-1", storeIDs(2))
	got, summary := drain(t, results, summaryCh)

	require.Len(t, got, 1, "run halts before the second store")
	assert.Equal(t, models.StoreFailed, got[0].State)
	assert.Equal(t, models.ProductFailed, got[0].Products[0].State)
	assert.Equal(t, models.TerminationFatal, summary.Termination)
	assert.NotEmpty(t, summary.FatalError)
}

func TestRunPerStoreFailureIsIsolated(t *testing.T) {
	scraper := newFakeScraper()
	scraper.salesErr["a"] = stderrors.NewScrapeFailedError("fetch_sales_data", context.DeadlineExceeded)
	scraper.products["b"] = []map[string]interface{}{productRow("p-1")}

	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: &fakeSearcher{},
		Matcher:  &fakeMatcher{tier: models.TierLow},
		Filters:  passingFilters(),
		Logger:   logger.NewTestLogger(t),
	}, config.ScraperConfig{})

	results, summaryCh := o.Run(context.Background(), "run-1", storeIDs(2))
	got, summary := drain(t, results, summaryCh)

	require.Len(t, got, 2)
	assert.Equal(t, models.StoreFailed, got[0].State)
	assert.Equal(t, models.StoreDone, got[1].State)
	assert.Equal(t, models.TerminationCompleted, summary.Termination)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Completed)
}

func TestRunProductWithoutImageIsExcluded(t *testing.T) {
	scraper := newFakeScraper()
	noImage := productRow("p-1")
	delete(noImage, "image_url")
	scraper.products["a"] = []map[string]interface{}{noImage, productRow("p-2")}

	searcher := &fakeSearcher{}
	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: searcher,
		Matcher:  &fakeMatcher{tier: models.TierLow},
		Filters:  passingFilters(),
		Logger:   logger.NewTestLogger(t),
	}, config.ScraperConfig{})

	results, summaryCh := o.Run(context.Background(), "run-1", storeIDs(1))
	got, summary := drain(t, results, summaryCh)

	require.Len(t, got, 1)
	assert.Equal(t, models.StoreDone, got[0].State, "a missing image excludes the product, not the store")
	require.Len(t, got[0].Products, 2)
	assert.Equal(t, models.ProductExcluded, got[0].Products[0].State)
	assert.Equal(t, models.ProductDone, got[0].Products[1].State)
	assert.Equal(t, 1, searcher.calls, "no search for the excluded product")
	assert.Equal(t, models.TerminationCompleted, summary.Termination)
}

func TestRunCompetitorExpansionCappedAtOneLevel(t *testing.T) {
	scraper := newFakeScraper()
	row := productRow("p-1")
	row["detail_url"] = "https://shop.example.com/p-1"
	scraper.products["a"] = []map[string]interface{}{row}
	scraper.competitors["https://shop.example.com/p-1"] = []string{"x", "a"}

	rowX := productRow("p-2")
	rowX["detail_url"] = "https://shop.example.com/p-2"
	scraper.products["x"] = []map[string]interface{}{rowX}
	scraper.competitors["https://shop.example.com/p-2"] = []string{"y"}

	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: &fakeSearcher{},
		Matcher:  &fakeMatcher{tier: models.TierHigh},
		Filters:  passingFilters(),
		Logger:   logger.NewTestLogger(t),
	}, config.ScraperConfig{CompetitorDepth: 1})

	results, summaryCh := o.Run(context.Background(), "run-1", storeIDs(1))
	got, summary := drain(t, results, summaryCh)

	require.Len(t, got, 2, "one expansion level, already-seen stores deduplicated")
	assert.Equal(t, "a", got[0].Store.StoreID)
	assert.Equal(t, "x", got[1].Store.StoreID)
	assert.Equal(t, models.TerminationCompleted, summary.Termination)
	assert.Equal(t, 2, summary.Stores)
}

func TestRunRetriesRetryableScrape(t *testing.T) {
	scraper := newFakeScraper()
	failures := 2
	scraper.onSales = func(storeID string) {
		if failures > 0 {
			failures--
			scraper.salesErr["a"] = stderrors.NewFetchFailedError("sales page", context.DeadlineExceeded)
		} else {
			delete(scraper.salesErr, "a")
		}
	}

	o := testOrchestrator(Deps{
		Scraper:  scraper,
		Searcher: &fakeSearcher{},
		Matcher:  &fakeMatcher{tier: models.TierLow},
		Filters:  passingFilters(),
		Logger:   logger.NewTestLogger(t),
	}, config.ScraperConfig{MaxRetries: 2, RetryGap: time.Millisecond})

	results, summaryCh := o.Run(context.Background(), "run-1", storeIDs(1))
	got, summary := drain(t, results, summaryCh)

	require.Len(t, got, 1)
	assert.Equal(t, models.StoreDone, got[0].State)
	assert.Equal(t, 3, scraper.salesCallCount())
	assert.Equal(t, models.TerminationCompleted, summary.Termination)
}

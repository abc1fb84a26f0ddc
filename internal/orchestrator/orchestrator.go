// Package orchestrator runs the store pipeline end to end: sales data,
// store filter, product scrape, product filter, source matching. It owns
// the run state machines and the out-of-band PAUSE/RESUME/STOP handling.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arbitrage-scout/internal/common/config"
	stderrors "arbitrage-scout/internal/common/errors"
	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/common/metrics"
	"arbitrage-scout/internal/common/retry"
	"arbitrage-scout/internal/filters"
	"arbitrage-scout/internal/models"
	"arbitrage-scout/internal/scrapers"
)

// errStopRequested unwinds the run loops after a STOP signal or context
// cancellation. It never escapes Run.
var errStopRequested = errors.New("stop requested")

// ProductMatcher narrows the matcher surface the orchestrator needs.
type ProductMatcher interface {
	Match(ctx context.Context, product models.ProductRecord, candidates []models.CandidateSourceOffer) (*models.MatchResult, error)
}

// Deps are the collaborators injected at construction. All are required
// except Control, which defaults to an always-RUN in-memory source.
type Deps struct {
	Scraper  scrapers.StoreScraper
	Searcher scrapers.SourcingSearcher
	Matcher  ProductMatcher
	Filters  *filters.Manager
	Control  ControlSource
	Logger   logger.Logger
}

type Orchestrator struct {
	scraper  scrapers.StoreScraper
	searcher scrapers.SourcingSearcher
	matcher  ProductMatcher
	filters  *filters.Manager
	control  ControlSource
	cfg      config.ScraperConfig
	dryRun   bool
	log      logger.Logger

	pollInterval time.Duration
	now          func() time.Time
}

func New(deps Deps, cfg config.ScraperConfig, dryRun bool) *Orchestrator {
	control := deps.Control
	if control == nil {
		control = NewMemoryControl()
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Orchestrator{
		scraper:      deps.Scraper,
		searcher:     deps.Searcher,
		matcher:      deps.Matcher,
		filters:      deps.Filters,
		control:      control,
		cfg:          cfg,
		dryRun:       dryRun,
		log:          log.With(map[string]interface{}{"component": "orchestrator"}),
		pollInterval: time.Second,
		now:          time.Now,
	}
}

// queuedStore carries the expansion depth alongside the record so the
// competitor recursion cap is checked before any further expansion.
type queuedStore struct {
	store models.StoreRecord
	depth int
}

// Run processes the stores in order, yielding one StoreResult per store as
// it completes and a single RunSummary once the sequence ends. Both
// channels are closed by the run goroutine; the summary channel delivers
// exactly one value.
func (o *Orchestrator) Run(ctx context.Context, runID string, stores []models.StoreRecord) (<-chan models.StoreResult, <-chan models.RunSummary) {
	results := make(chan models.StoreResult)
	summaryCh := make(chan models.RunSummary, 1)

	go func() {
		defer close(results)
		defer close(summaryCh)

		summary := models.RunSummary{
			RunID:       runID,
			Termination: models.TerminationCompleted,
			Started:     o.now(),
		}

		queue := make([]queuedStore, 0, len(stores))
		seen := make(map[string]bool, len(stores))
		for _, s := range stores {
			queue = append(queue, queuedStore{store: s})
			seen[s.StoreID] = true
		}

		o.log.Info("run started", map[string]interface{}{
			"runId":  runID,
			"stores": len(stores),
		})

	loop:
		for i := 0; i < len(queue); i++ {
			if err := o.checkpoint(ctx); err != nil {
				summary.Termination = models.TerminationStopped
				break
			}

			item := queue[i]
			result, expansions, err := o.processStore(ctx, item)
			summary.Stores++

			switch result.State {
			case models.StoreDone:
				summary.Completed++
			case models.StoreFilteredOut:
				summary.FilteredOut++
			case models.StoreFailed:
				summary.Failed++
			}
			metrics.StoresProcessed.WithLabelValues(string(result.State)).Inc()

			select {
			case results <- result:
			case <-ctx.Done():
				summary.Termination = models.TerminationStopped
				break loop
			}

			switch {
			case errors.Is(err, errStopRequested):
				summary.Termination = models.TerminationStopped
				break loop
			case err != nil:
				summary.Termination = models.TerminationFatal
				summary.FatalError = err.Error()
				break loop
			}

			for _, id := range expansions {
				if seen[id] {
					continue
				}
				seen[id] = true
				queue = append(queue, queuedStore{
					store: models.StoreRecord{StoreID: id},
					depth: item.depth + 1,
				})
			}
		}

		summary.Finished = o.now()
		o.log.Info("run finished", map[string]interface{}{
			"runId":       runID,
			"termination": string(summary.Termination),
			"stores":      summary.Stores,
			"completed":   summary.Completed,
		})
		summaryCh <- summary
	}()

	return results, summaryCh
}

// processStore drives one store through its state machine. The returned
// error is errStopRequested for a mid-store STOP or a fatal error that
// must end the run; per-store failures are reported in the result instead.
func (o *Orchestrator) processStore(ctx context.Context, item queuedStore) (models.StoreResult, []string, error) {
	started := o.now()
	result := models.StoreResult{Store: item.store, State: models.StorePending}
	log := o.log.With(map[string]interface{}{"storeId": item.store.StoreID})

	finish := func(state models.StoreState) models.StoreResult {
		result.State = state
		result.Elapsed = o.now().Sub(started)
		return result
	}

	result.State = models.StoreFetchingSls
	env, err := o.retryCall(ctx, "fetch_sales_data", func(ctx context.Context) (models.Envelope, error) {
		return o.scraper.FetchSalesData(ctx, item.store.StoreID)
	})
	if err == nil {
		var revenue int64
		var orders int
		revenue, orders, err = scrapers.ParseSalesData(env)
		if err == nil {
			result.Store.Revenue30d = revenue
			result.Store.OrderCount30 = orders
		}
	}
	if err != nil {
		log.WithError(err).Error("sales data fetch failed", nil)
		result.Error = err.Error()
		if stderrors.IsFatal(err) {
			return finish(models.StoreFailed), nil, err
		}
		return finish(models.StoreFailed), nil, nil
	}

	decision := o.filters.EvaluateStore(result.Store, o.dryRun)
	result.Decision = &decision
	if !decision.Passed {
		log.Info("store filtered out", map[string]interface{}{"reasons": decision.Reasons})
		return finish(models.StoreFilteredOut), nil, nil
	}

	result.State = models.StoreFetchingPrd
	env, err = o.retryCall(ctx, "fetch_products", func(ctx context.Context) (models.Envelope, error) {
		return o.scraper.FetchProducts(ctx, item.store.StoreID, o.cfg.MaxProducts)
	})
	var products []models.ProductRecord
	if err == nil {
		var dropped []string
		products, dropped, err = scrapers.ParseProducts(env, item.store.StoreID)
		if len(dropped) > 0 {
			log.Warn("dropped invalid product rows", map[string]interface{}{
				"dropped": len(dropped),
				"reasons": dropped,
			})
		}
	}
	if err != nil {
		log.WithError(err).Error("product fetch failed", nil)
		result.Error = err.Error()
		if stderrors.IsFatal(err) {
			return finish(models.StoreFailed), nil, err
		}
		return finish(models.StoreFailed), nil, nil
	}

	result.State = models.StoreProductLoop
	var expansions []string
	for _, product := range products {
		if err := o.checkpoint(ctx); err != nil {
			log.Info("store interrupted by stop", map[string]interface{}{
				"processed": len(result.Products),
				"total":     len(products),
			})
			return finish(models.StoreIncomplete), nil, errStopRequested
		}

		pr, fatal := o.processProduct(ctx, item, product, &expansions)
		result.Products = append(result.Products, pr)
		metrics.ProductsProcessed.WithLabelValues(string(pr.State)).Inc()
		if fatal != nil {
			result.Error = fatal.Error()
			return finish(models.StoreFailed), nil, fatal
		}
	}

	return finish(models.StoreDone), expansions, nil
}

// processProduct runs one product through filter, search and match. Fatal
// errors (auth, browser lock) propagate; everything else is isolated to
// the product.
func (o *Orchestrator) processProduct(ctx context.Context, item queuedStore, product models.ProductRecord, expansions *[]string) (models.ProductResult, error) {
	pr := models.ProductResult{Product: product, State: models.ProductFilterCheck}
	log := o.log.With(map[string]interface{}{
		"storeId":   item.store.StoreID,
		"productId": product.ProductID,
	})

	decision := o.filters.EvaluateProduct(product, o.dryRun)
	pr.Decision = &decision
	if !decision.Passed {
		pr.State = models.ProductSkipped
		return pr, nil
	}

	if product.ImageURL == "" {
		pr.State = models.ProductExcluded
		pr.Error = "product has no image URL"
		return pr, nil
	}

	pr.State = models.ProductMatching
	candidates, err := o.retryOffers(ctx, product.ImageURL)
	if err != nil {
		return o.failProduct(pr, log, err)
	}

	match, err := o.matcher.Match(ctx, product, candidates)
	if err != nil {
		return o.failProduct(pr, log, err)
	}
	pr.Match = match
	pr.State = models.ProductScored

	if match.Tier == models.TierHigh && item.depth < o.cfg.CompetitorDepth && product.DetailURL != "" {
		ids, err := o.fetchCompetitors(ctx, product.DetailURL)
		if err != nil {
			// Expansion is best effort; the product result stands.
			log.WithError(err).Warn("competitor expansion failed", nil)
		} else {
			*expansions = append(*expansions, ids...)
		}
	}

	pr.State = models.ProductDone
	return pr, nil
}

func (o *Orchestrator) failProduct(pr models.ProductResult, log logger.Logger, err error) (models.ProductResult, error) {
	log.WithError(err).Error("product processing failed", nil)
	pr.State = models.ProductFailed
	pr.Error = err.Error()
	if stderrors.IsFatal(err) {
		return pr, err
	}
	return pr, nil
}

func (o *Orchestrator) fetchCompetitors(ctx context.Context, detailURL string) ([]string, error) {
	env, err := o.retryCall(ctx, "fetch_product_detail", func(ctx context.Context) (models.Envelope, error) {
		return o.scraper.FetchProductDetail(ctx, detailURL)
	})
	if err != nil {
		return nil, err
	}
	return scrapers.ParseCompetitors(env)
}

// retryCall wraps a scraper envelope call with the run's backoff policy
// and retry accounting.
func (o *Orchestrator) retryCall(ctx context.Context, operation string, call func(context.Context) (models.Envelope, error)) (models.Envelope, error) {
	var env models.Envelope
	attempts := 0
	err := retry.Do(ctx, o.retryConfig(), operation, stderrors.IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			metrics.ScraperRetries.WithLabelValues(operation).Inc()
		}
		callCtx := ctx
		if o.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
		}
		var callErr error
		env, callErr = call(callCtx)
		return callErr
	})
	return env, err
}

func (o *Orchestrator) retryOffers(ctx context.Context, imageURL string) ([]models.CandidateSourceOffer, error) {
	var offers []models.CandidateSourceOffer
	attempts := 0
	err := retry.Do(ctx, o.retryConfig(), "search_by_image", stderrors.IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			metrics.ScraperRetries.WithLabelValues("search_by_image").Inc()
		}
		var callErr error
		offers, callErr = o.searcher.SearchByImage(ctx, imageURL)
		return callErr
	})
	return offers, err
}

func (o *Orchestrator) retryConfig() retry.Config {
	return retry.Config{
		MaxRetries: o.cfg.MaxRetries,
		BaseDelay:  o.cfg.RetryGap,
		MaxDelay:   30 * time.Second,
	}
}

// checkpoint polls the control source. PAUSE holds here until RESUME or
// STOP arrives; STOP and context cancellation return errStopRequested.
func (o *Orchestrator) checkpoint(ctx context.Context) error {
	paused := false
	for {
		select {
		case <-ctx.Done():
			return errStopRequested
		default:
		}

		sig, err := o.control.Current(ctx)
		if err != nil {
			o.log.WithError(err).Warn("control source unreadable, continuing", nil)
			return nil
		}

		switch sig {
		case SignalStop:
			return errStopRequested
		case SignalPause:
			if !paused {
				paused = true
				o.log.Info("run paused", nil)
			}
			select {
			case <-ctx.Done():
				return errStopRequested
			case <-time.After(o.pollInterval):
			}
		default:
			if paused {
				o.log.Info("run resumed", nil)
			}
			return nil
		}
	}
}

// RunID derives a readable unique run identifier.
func RunID(prefix string, t time.Time, unique string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, t.UTC().Format("20060102-150405"), unique)
}

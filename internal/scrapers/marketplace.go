package scrapers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"arbitrage-scout/internal/common/config"
	stderrors "arbitrage-scout/internal/common/errors"
	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/models"
)

// Marketplace pages hydrate their React state into a window global; the
// scraper reads that instead of walking the DOM, which survives layout
// changes.
const pageDataScript = `() => JSON.stringify(window.__PAGE_DATA__ || null)`

// MarketplaceScraper drives store and product pages through the shared
// browser session. All pages run on the one session; the scraper opens a
// tab per call and closes it before returning.
type MarketplaceScraper struct {
	browser *rod.Browser
	baseURL string
	log     logger.Logger
}

func NewMarketplaceScraper(b *rod.Browser, cfg config.ScraperConfig, log logger.Logger) *MarketplaceScraper {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &MarketplaceScraper{
		browser: b,
		baseURL: cfg.BaseURL,
		log:     log.With(map[string]interface{}{"component": "marketplace-scraper"}),
	}
}

func (s *MarketplaceScraper) FetchSalesData(ctx context.Context, storeID string) (models.Envelope, error) {
	url := fmt.Sprintf("%s/store/%s/analytics", s.baseURL, storeID)
	return s.fetchPageData(ctx, "fetch_sales_data", url)
}

func (s *MarketplaceScraper) FetchProducts(ctx context.Context, storeID string, maxCount int) (models.Envelope, error) {
	url := fmt.Sprintf("%s/store/%s/products?limit=%d", s.baseURL, storeID, maxCount)
	return s.fetchPageData(ctx, "fetch_products", url)
}

func (s *MarketplaceScraper) FetchProductDetail(ctx context.Context, url string) (models.Envelope, error) {
	return s.fetchPageData(ctx, "fetch_product_detail", url)
}

// fetchPageData opens the page, waits for load and reads the hydrated
// page state into an envelope.
func (s *MarketplaceScraper) fetchPageData(ctx context.Context, operation, url string) (models.Envelope, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return models.Envelope{}, stderrors.NewScrapeFailedError(operation, fmt.Errorf("open page: %w", err))
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.WaitLoad(); err != nil {
		return models.Envelope{}, stderrors.NewScrapeFailedError(operation, fmt.Errorf("wait load: %w", err))
	}

	res, err := page.Eval(pageDataScript)
	if err != nil {
		return models.Envelope{}, stderrors.NewScrapeFailedError(operation, fmt.Errorf("eval page data: %w", err))
	}

	raw := res.Value.Str()
	if raw == "" || raw == "null" {
		return models.Envelope{
			Success:      false,
			ErrorMessage: "page exposed no hydrated data",
		}, nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return models.Envelope{}, stderrors.NewScrapeFailedError(operation, fmt.Errorf("decode page data: %w", err))
	}

	s.log.Debug("page data extracted", map[string]interface{}{
		"operation": operation,
		"url":       url,
	})
	return models.Envelope{Success: true, Data: data}, nil
}

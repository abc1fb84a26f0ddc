package scrapers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"arbitrage-scout/internal/common/config"
	stderrors "arbitrage-scout/internal/common/errors"
	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/models"
)

// SourcingClient calls the wholesale platform's image-search endpoint.
// Requests are HMAC-signed with the app key/secret from environment
// configuration and throttled to the courtesy rate.
type SourcingClient struct {
	cfg     config.SourcingConfig
	client  *http.Client
	limiter *rate.Limiter
	log     logger.Logger
	now     func() time.Time
}

// NewSourcingClient creates the search client. Credentials must already be
// resolved; they are never accepted as per-call parameters.
func NewSourcingClient(cfg config.SourcingConfig, log logger.Logger) (*SourcingClient, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil, stderrors.NewAuthError("sourcing app key/secret not configured")
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &SourcingClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerS), 1),
		log:     log.With(map[string]interface{}{"component": "sourcing-search"}),
		now:     time.Now,
	}, nil
}

type searchResponse struct {
	Offers []models.CandidateSourceOffer `json:"offers"`
}

// SearchByImage finds candidate offers for a product image, capped at the
// configured page size.
func (c *SourcingClient) SearchByImage(ctx context.Context, imageURL string) ([]models.CandidateSourceOffer, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("image_url", imageURL)
	params.Set("page_size", strconv.Itoa(c.cfg.PageSize))
	params.Set("app_key", c.cfg.AppKey)
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("sign", c.sign(params))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/search/image?"+params.Encode(), nil)
	if err != nil {
		return nil, stderrors.NewValidationError("image_url", err.Error())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, stderrors.NewFetchFailedError(imageURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, stderrors.NewAuthError(fmt.Sprintf("sourcing search rejected credentials: status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, stderrors.NewFetchFailedError(imageURL, fmt.Errorf("status %d", resp.StatusCode))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, stderrors.NewFetchFailedError(imageURL, err)
	}

	offers := payload.Offers
	if len(offers) > c.cfg.PageSize {
		offers = offers[:c.cfg.PageSize]
	}

	c.log.Debug("image search completed", map[string]interface{}{
		"imageUrl": imageURL,
		"offers":   len(offers),
	})
	return offers, nil
}

// sign computes the platform signature: hex HMAC-SHA256 of the sorted
// query string (url.Values.Encode sorts by key) under the app secret.
func (c *SourcingClient) sign(params url.Values) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.AppSecret))
	mac.Write([]byte(params.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

package similarity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	stderrors "arbitrage-scout/internal/common/errors"
	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/models"
)

// SemanticScorer judges product/offer similarity from textual metadata.
type SemanticScorer interface {
	Score(ctx context.Context, product models.ProductRecord, offer models.CandidateSourceOffer) (float64, error)
}

const semanticSystemPrompt = `You compare an e-commerce listing with a wholesale sourcing offer.
Judge whether they describe the same physical product, considering title, category and price plausibility.
Reply with a single decimal number between 0 and 1 and nothing else. 1 means certainly the same product.`

// LLMScorer implements SemanticScorer over an OpenAI-compatible chat API.
type LLMScorer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     logger.Logger
}

// LLMConfig holds the semantic stage settings.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  logger.Logger
}

// NewLLMScorer creates a chat-based semantic scorer.
func NewLLMScorer(cfg LLMConfig) *LLMScorer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &LLMScorer{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     log.With(map[string]interface{}{"component": "semantic-scorer"}),
	}
}

// Score sends one chat completion with the fixed evaluation prompt and
// parses the bare numeric reply.
func (s *LLMScorer) Score(ctx context.Context, product models.ProductRecord, offer models.CandidateSourceOffer) (float64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	userPrompt := fmt.Sprintf(
		"Listing: title=%q category=%q\nOffer: title=%q category_id=%q unit_price_minor=%d min_order_qty=%d",
		product.Title, product.Category,
		offer.Title, offer.CategoryID, offer.PriceMinor, offer.MinOrderQty,
	)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0,
		MaxTokens:   8,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: semanticSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return 0, stderrors.NewSemanticCallFailedError(err)
	}
	if len(resp.Choices) == 0 {
		return 0, stderrors.NewSemanticCallFailedError(fmt.Errorf("empty completion"))
	}

	return parseScore(resp.Choices[0].Message.Content)
}

// parseScore accepts a bare number, tolerating surrounding prose, and
// clamps it into [0,1].
func parseScore(reply string) (float64, error) {
	for _, field := range strings.Fields(strings.TrimSpace(reply)) {
		field = strings.Trim(field, ".,;:%")
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			continue
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v, nil
	}
	return 0, stderrors.NewSemanticCallFailedError(fmt.Errorf("no numeric score in reply %q", reply))
}

// StaticScorer always returns a fixed value. Used in simulate mode.
type StaticScorer struct {
	Value float64
}

func (s StaticScorer) Score(context.Context, models.ProductRecord, models.CandidateSourceOffer) (float64, error) {
	return s.Value, nil
}

// Package export ships completed store results to Elasticsearch for later
// analysis. The sink is best effort: export failures are logged and
// counted, never surfaced to the pipeline.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"arbitrage-scout/internal/common/config"
	"arbitrage-scout/internal/common/database"
	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/common/metrics"
	"arbitrage-scout/internal/models"
)

// Sink indexes run output. Implementations must never fail the run.
type Sink interface {
	ExportStore(ctx context.Context, runID string, result models.StoreResult)
	ExportSummary(ctx context.Context, summary models.RunSummary)
}

// ElasticsearchSink writes one document per store result into a per-run
// index named <prefix>-<runID>.
type ElasticsearchSink struct {
	es     *database.ElasticsearchClient
	prefix string
	log    logger.Logger
}

func NewElasticsearchSink(es *database.ElasticsearchClient, cfg config.ExportConfig, log logger.Logger) *ElasticsearchSink {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ElasticsearchSink{
		es:     es,
		prefix: cfg.IndexPrefix,
		log:    log.With(map[string]interface{}{"component": "export"}),
	}
}

func (s *ElasticsearchSink) ExportStore(ctx context.Context, runID string, result models.StoreResult) {
	docID := fmt.Sprintf("%s-%s", runID, result.Store.StoreID)
	s.index(ctx, s.indexName(runID), docID, result)
}

func (s *ElasticsearchSink) ExportSummary(ctx context.Context, summary models.RunSummary) {
	s.index(ctx, s.indexName(summary.RunID), summary.RunID+"-summary", summary)
}

func (s *ElasticsearchSink) indexName(runID string) string {
	return fmt.Sprintf("%s-%s", s.prefix, runID)
}

func (s *ElasticsearchSink) index(ctx context.Context, index, docID string, doc interface{}) {
	body, err := json.Marshal(doc)
	if err != nil {
		s.fail(index, docID, err)
		return
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.es.Client)
	if err != nil {
		s.fail(index, docID, err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		s.fail(index, docID, fmt.Errorf("index response: %s", res.Status()))
		return
	}

	s.log.Debug("result exported", map[string]interface{}{
		"index": index,
		"docId": docID,
	})
}

func (s *ElasticsearchSink) fail(index, docID string, err error) {
	metrics.ExportFailures.Inc()
	s.log.WithError(err).Warn("export failed", map[string]interface{}{
		"index": index,
		"docId": docID,
	})
}

// NoOpSink is used when export is disabled.
type NoOpSink struct{}

func (NoOpSink) ExportStore(context.Context, string, models.StoreResult) {}
func (NoOpSink) ExportSummary(context.Context, models.RunSummary)       {}

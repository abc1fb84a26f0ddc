package scrapers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	stderrors "arbitrage-scout/internal/common/errors"
	"arbitrage-scout/internal/models"
)

// productRowSchema validates one product row inside a FetchProducts
// envelope before it enters the pipeline. image_url is deliberately not
// required: a product without one is excluded from matching later, not
// rejected here.
const productRowSchema = `{
	"type": "object",
	"required": ["product_id", "title"],
	"properties": {
		"product_id": {"type": "string", "minLength": 1},
		"title": {"type": "string", "minLength": 1},
		"category": {"type": "string"},
		"category_local": {"type": "string"},
		"listing_age_days": {"type": "integer", "minimum": 0},
		"sales_volume": {"type": "integer", "minimum": 0},
		"weight_grams": {"type": "number", "minimum": 0},
		"image_url": {"type": "string"},
		"detail_url": {"type": "string"}
	}
}`

const salesDataSchema = `{
	"type": "object",
	"required": ["revenue_30d", "order_count_30d"],
	"properties": {
		"revenue_30d": {"type": "integer", "minimum": 0},
		"order_count_30d": {"type": "integer", "minimum": 0}
	}
}`

var (
	productRowLoader = gojsonschema.NewStringLoader(productRowSchema)
	salesDataLoader  = gojsonschema.NewStringLoader(salesDataSchema)
)

// ParseSalesData validates and decodes a FetchSalesData envelope into the
// store record's sales fields.
func ParseSalesData(env models.Envelope) (revenue int64, orders int, err error) {
	data, err := DecodeEnvelope(env, "fetch_sales_data")
	if err != nil {
		return 0, 0, stderrors.NewScrapeFailedError("fetch_sales_data", err)
	}
	if err := validate(salesDataLoader, data, "sales_data"); err != nil {
		return 0, 0, err
	}

	var payload struct {
		Revenue30d   int64 `json:"revenue_30d"`
		OrderCount30 int   `json:"order_count_30d"`
	}
	if err := remarshal(data, &payload); err != nil {
		return 0, 0, stderrors.NewValidationError("sales_data", err.Error())
	}
	return payload.Revenue30d, payload.OrderCount30, nil
}

// ParseProducts validates and decodes a FetchProducts envelope. Rows that
// fail validation are dropped and reported; valid rows flow through.
func ParseProducts(env models.Envelope, storeID string) (products []models.ProductRecord, dropped []string, err error) {
	data, err := DecodeEnvelope(env, "fetch_products")
	if err != nil {
		return nil, nil, stderrors.NewScrapeFailedError("fetch_products", err)
	}

	rawRows, ok := data["products"].([]interface{})
	if !ok {
		return nil, nil, stderrors.NewValidationError("products", "missing or non-array products field")
	}

	for i, raw := range rawRows {
		row, ok := raw.(map[string]interface{})
		if !ok {
			dropped = append(dropped, fmt.Sprintf("row %d: not an object", i))
			continue
		}
		if err := validate(productRowLoader, row, "product_row"); err != nil {
			dropped = append(dropped, fmt.Sprintf("row %d: %v", i, err))
			continue
		}

		var p models.ProductRecord
		if err := remarshal(row, &p); err != nil {
			dropped = append(dropped, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		p.StoreID = storeID
		products = append(products, p)
	}
	return products, dropped, nil
}

// ParseCompetitors extracts competitor store IDs from a product detail
// envelope. A detail page without the field yields an empty list.
func ParseCompetitors(env models.Envelope) ([]string, error) {
	data, err := DecodeEnvelope(env, "fetch_product_detail")
	if err != nil {
		return nil, stderrors.NewScrapeFailedError("fetch_product_detail", err)
	}

	raw, ok := data["competitor_store_ids"].([]interface{})
	if !ok {
		return nil, nil
	}

	var ids []string
	for _, v := range raw {
		if id, ok := v.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func validate(schema gojsonschema.JSONLoader, doc map[string]interface{}, subject string) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return stderrors.NewValidationError(subject, err.Error())
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return stderrors.NewValidationError(subject, strings.Join(msgs, "; "))
	}
	return nil
}

func remarshal(in interface{}, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

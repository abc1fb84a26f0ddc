package models

// StoreRecord is one row from the input store listing. Read-only to the
// pipeline; consumed once per orchestration pass.
type StoreRecord struct {
	StoreID      string `json:"store_id"`
	Revenue30d   int64  `json:"revenue_30d"`
	OrderCount30 int    `json:"order_count_30d"`
}

// ProductRecord is one product scraped from a store listing.
//
// ImageURL must be present for a product to enter source-matching;
// products without one are excluded before matching, not treated as match
// failures.
type ProductRecord struct {
	ProductID      string   `json:"product_id"`
	Title          string   `json:"title"`
	Category       string   `json:"category"`
	CategoryLocal  string   `json:"category_local,omitempty"`
	ListingAgeDays *int     `json:"listing_age_days,omitempty"`
	SalesVolume    *int     `json:"sales_volume,omitempty"`
	WeightGrams    *float64 `json:"weight_grams,omitempty"`
	ImageURL       string   `json:"image_url"`
	DetailURL      string   `json:"detail_url,omitempty"`
	StoreID        string   `json:"store_id"`
}

// CandidateSourceOffer is one wholesale listing returned by the
// sourcing-platform image search. Consumed read-only.
type CandidateSourceOffer struct {
	OfferID       string `json:"offer_id"`
	Title         string `json:"title"`
	PriceMinor    int64  `json:"price_minor"` // minor currency unit
	ImageURL      string `json:"image_url"`
	MinOrderQty   int    `json:"min_order_qty"`
	SupplierState string `json:"supplier_state"`
	CategoryID    string `json:"category_id"`
}

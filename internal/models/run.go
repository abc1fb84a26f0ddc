package models

import "time"

// StoreState is the per-store state machine.
type StoreState string

const (
	StorePending     StoreState = "PENDING"
	StoreFetchingSls StoreState = "FETCHING_SALES_DATA"
	StoreFilteredOut StoreState = "FILTERED_OUT"
	StoreFetchingPrd StoreState = "FETCHING_PRODUCTS"
	StoreProductLoop StoreState = "PRODUCT_LOOP"
	StoreDone        StoreState = "DONE"
	StoreFailed      StoreState = "FAILED"
	StoreIncomplete  StoreState = "INCOMPLETE" // interrupted by STOP, not failed
)

// ProductState is the per-product state machine inside the product loop.
type ProductState string

const (
	ProductPending     ProductState = "PENDING"
	ProductFilterCheck ProductState = "FILTER_CHECK"
	ProductSkipped     ProductState = "SKIPPED"
	ProductMatching    ProductState = "SOURCE_MATCHING"
	ProductScored      ProductState = "SCORED"
	ProductDone        ProductState = "DONE"
	ProductFailed      ProductState = "FAILED"
	ProductExcluded    ProductState = "EXCLUDED" // missing required field, e.g. image URL
)

// ProductResult is the outcome for one product within a store pass.
type ProductResult struct {
	Product  ProductRecord   `json:"product"`
	State    ProductState    `json:"state"`
	Decision *FilterDecision `json:"decision,omitempty"`
	Match    *MatchResult    `json:"match,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// StoreResult is the outcome for one store, yielded lazily by the
// orchestrator as each store completes.
type StoreResult struct {
	Store    StoreRecord     `json:"store"`
	State    StoreState      `json:"state"`
	Decision *FilterDecision `json:"decision,omitempty"`
	Products []ProductResult `json:"products,omitempty"`
	Error    string          `json:"error,omitempty"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// TerminationReason explains why a run ended.
type TerminationReason string

const (
	TerminationCompleted TerminationReason = "COMPLETED"
	TerminationStopped   TerminationReason = "STOPPED"
	TerminationFatal     TerminationReason = "FATAL_ERROR"
)

// RunSummary is returned to the caller when the store sequence ends. A
// terminated run always carries the partial results accumulated so far.
type RunSummary struct {
	RunID       string            `json:"run_id"`
	Termination TerminationReason `json:"termination"`
	FatalError  string            `json:"fatal_error,omitempty"`
	Stores      int               `json:"stores"`
	Completed   int               `json:"completed"`
	FilteredOut int               `json:"filtered_out"`
	Failed      int               `json:"failed"`
	Started     time.Time         `json:"started"`
	Finished    time.Time         `json:"finished"`
}

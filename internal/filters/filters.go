// Package filters implements the store and product predicates. Every
// sub-condition is recorded in a FilterDecision; dry-run mode records the
// real outcomes but forces the aggregate to pass.
package filters

import (
	"strings"

	"arbitrage-scout/internal/common/config"
	"arbitrage-scout/internal/models"
)

// Manager evaluates the closed set of predicates.
type Manager struct {
	store   config.StoreThresholds
	product config.ProductThresholds
}

// New creates a Manager with the configured thresholds.
func New(store config.StoreThresholds, product config.ProductThresholds) *Manager {
	return &Manager{store: store, product: product}
}

// EvaluateStore applies the store predicate: 30-day revenue and order
// count must both meet their configured minimums.
func (m *Manager) EvaluateStore(store models.StoreRecord, dryRun bool) models.FilterDecision {
	conditions := []models.ConditionResult{
		{
			Field:      "revenue_30d",
			Actual:     store.Revenue30d,
			Threshold:  m.store.MinRevenue30d,
			Comparator: ">=",
			Applicable: true,
			Passed:     store.Revenue30d >= m.store.MinRevenue30d,
		},
		{
			Field:      "order_count_30d",
			Actual:     store.OrderCount30,
			Threshold:  m.store.MinOrders30d,
			Comparator: ">=",
			Applicable: true,
			Passed:     store.OrderCount30 >= m.store.MinOrders30d,
		},
	}
	return aggregate("store:"+store.StoreID, conditions, dryRun)
}

// EvaluateProduct applies the product predicate. A missing optional field
// renders its condition not applicable; it is recorded but excluded from
// the aggregate.
func (m *Manager) EvaluateProduct(product models.ProductRecord, dryRun bool) models.FilterDecision {
	var conditions []models.ConditionResult

	if len(m.product.CategoryBlocklist) > 0 {
		blocked := categoryBlocked(m.product.CategoryBlocklist, product.Category, product.CategoryLocal)
		conditions = append(conditions, models.ConditionResult{
			Field:      "category",
			Actual:     product.Category,
			Threshold:  m.product.CategoryBlocklist,
			Comparator: "not in",
			Applicable: true,
			Passed:     !blocked,
		})
	}

	if m.product.MaxListingAgeDays > 0 {
		c := models.ConditionResult{
			Field:      "listing_age_days",
			Threshold:  m.product.MaxListingAgeDays,
			Comparator: "<=",
		}
		if product.ListingAgeDays != nil {
			c.Actual = *product.ListingAgeDays
			c.Applicable = true
			c.Passed = *product.ListingAgeDays <= m.product.MaxListingAgeDays
		}
		conditions = append(conditions, c)
	}

	if m.product.MinSalesVolume > 0 || m.product.MaxSalesVolume > 0 {
		c := models.ConditionResult{
			Field:      "sales_volume",
			Threshold:  []int{m.product.MinSalesVolume, m.product.MaxSalesVolume},
			Comparator: "in range",
		}
		if product.SalesVolume != nil {
			v := *product.SalesVolume
			c.Actual = v
			c.Applicable = true
			c.Passed = v >= m.product.MinSalesVolume &&
				(m.product.MaxSalesVolume == 0 || v <= m.product.MaxSalesVolume)
		}
		conditions = append(conditions, c)
	}

	if m.product.MinWeightGrams > 0 || m.product.MaxWeightGrams > 0 {
		c := models.ConditionResult{
			Field:      "weight_grams",
			Threshold:  []float64{m.product.MinWeightGrams, m.product.MaxWeightGrams},
			Comparator: "in range",
		}
		if product.WeightGrams != nil {
			v := *product.WeightGrams
			c.Actual = v
			c.Applicable = true
			c.Passed = v >= m.product.MinWeightGrams &&
				(m.product.MaxWeightGrams == 0 || v <= m.product.MaxWeightGrams)
		}
		conditions = append(conditions, c)
	}

	return aggregate("product:"+product.ProductID, conditions, dryRun)
}

// categoryBlocked checks both the local and foreign-language category
// strings against the blocklist, case-insensitively.
func categoryBlocked(blocklist []string, categories ...string) bool {
	for _, blocked := range blocklist {
		b := strings.ToLower(strings.TrimSpace(blocked))
		if b == "" {
			continue
		}
		for _, cat := range categories {
			if cat == "" {
				continue
			}
			if strings.Contains(strings.ToLower(cat), b) {
				return true
			}
		}
	}
	return false
}

// aggregate combines condition outcomes with AND over applicable
// conditions. Dry-run forces the aggregate to pass but leaves the detail
// untouched.
func aggregate(subject string, conditions []models.ConditionResult, dryRun bool) models.FilterDecision {
	passed := true
	var reasons []string
	for _, c := range conditions {
		if !c.Applicable {
			reasons = append(reasons, c.Field+": not applicable (field missing)")
			continue
		}
		if !c.Passed {
			passed = false
			reasons = append(reasons, models.Reason(c))
		}
	}

	if dryRun {
		passed = true
	}

	return models.FilterDecision{
		Subject:    subject,
		Passed:     passed,
		DryRun:     dryRun,
		Conditions: conditions,
		Reasons:    reasons,
	}
}

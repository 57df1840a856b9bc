package validation

import (
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
)

// Reasons a variant is left out of pricing.
const (
	ReasonDeleted          = "deleted"
	ReasonMissingMoney     = "missing price or unit cost"
	ReasonCurrencyMismatch = "price and unit cost currencies differ"
)

type Validator struct {
	logger *logger.Logger
}

func New(logger *logger.Logger) *Validator {
	return &Validator{
		logger: logger,
	}
}

// PricingCandidate reports whether a variant carries what the pricing
// engine needs. The reason is empty when it does.
func (v *Validator) PricingCandidate(variant models.Variant) (bool, string) {
	switch {
	case variant.IsDeleted:
		return false, ReasonDeleted
	case !variant.HasPricing():
		return false, ReasonMissingMoney
	case variant.PriceMoney.Currency != variant.DefaultUnitCost.Currency:
		v.logger.Debug("Variation %s: price in %s, cost in %s", variant.ID, variant.PriceMoney.Currency, variant.DefaultUnitCost.Currency)
		return false, ReasonCurrencyMismatch
	}
	return true, ""
}

// ZeroMargin reports whether a priced variant sells at or below its cost.
func (v *Validator) ZeroMargin(variant models.Variant) bool {
	if ok, _ := v.PricingCandidate(variant); !ok {
		return false
	}
	return variant.PriceMoney.Amount <= variant.DefaultUnitCost.Amount
}

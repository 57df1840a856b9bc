package validation

import (
	"testing"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/stretchr/testify/assert"
)

func priced(price, cost int64) models.Variant {
	return models.Variant{
		ID:              "V1",
		PriceMoney:      &models.Money{Amount: price, Currency: "GBP"},
		DefaultUnitCost: &models.Money{Amount: cost, Currency: "GBP"},
	}
}

func TestPricingCandidate(t *testing.T) {
	v := New(logger.NewNop())

	deleted := priced(100, 50)
	deleted.IsDeleted = true
	noCost := priced(100, 50)
	noCost.DefaultUnitCost = nil
	mixed := priced(100, 50)
	mixed.DefaultUnitCost.Currency = "EUR"

	tests := []struct {
		name    string
		variant models.Variant
		ok      bool
		reason  string
	}{
		{"priced", priced(100, 50), true, ""},
		{"deleted", deleted, false, ReasonDeleted},
		{"missing cost", noCost, false, ReasonMissingMoney},
		{"no money at all", models.Variant{ID: "V2"}, false, ReasonMissingMoney},
		{"currency mismatch", mixed, false, ReasonCurrencyMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := v.PricingCandidate(tt.variant)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestZeroMargin(t *testing.T) {
	v := New(logger.NewNop())

	assert.True(t, v.ZeroMargin(priced(50, 80)))
	assert.True(t, v.ZeroMargin(priced(80, 80)))
	assert.False(t, v.ZeroMargin(priced(135, 86)))
	assert.False(t, v.ZeroMargin(models.Variant{ID: "V3"}))
}

package repricing

import (
	"errors"
	"testing"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/pricing"
	"catalogsync/internal/worker/processors/validation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepricer() *Repricer {
	taxes := pricing.TaxTable{
		"TAX-STD":  decimal.RequireFromString("0.20"),
		"TAX-ZERO": decimal.Zero,
	}
	l := logger.NewNop()
	return New(pricing.Policy{TargetMargin: pricing.DefaultTargetMargin}, taxes, validation.New(l), l)
}

func variation(id, itemID string, price, cost int64) models.Variant {
	v := models.Variant{ID: id, ItemID: itemID, Version: 1}
	if price != 0 {
		v.PriceMoney = &models.Money{Amount: price, Currency: "GBP"}
	}
	if cost != 0 {
		v.DefaultUnitCost = &models.Money{Amount: cost, Currency: "GBP"}
	}
	return v
}

func TestItemIDsOnlyCoversCandidates(t *testing.T) {
	r := newRepricer()
	variants := []models.Variant{
		variation("A", "I2", 100, 50),
		variation("B", "I1", 100, 50),
		variation("C", "I2", 200, 50),
		variation("D", "I3", 0, 50),
	}

	assert.Equal(t, []string{"I1", "I2"}, r.ItemIDs(variants))
}

func TestPlan(t *testing.T) {
	r := newRepricer()
	variants := []models.Variant{
		variation("low", "I1", 13500, 8600),
		variation("healthy", "I1", 20000, 8600),
		variation("loss", "I1", 50, 80),
		variation("untaxed", "I2", 13500, 8600),
		variation("noprice", "I1", 0, 8600),
		variation("zerotax", "I3", 8000, 6000),
	}
	taxIDs := map[string]string{"I1": "TAX-STD", "I3": "TAX-ZERO"}

	updates, summary, err := r.Plan(variants, taxIDs)
	require.NoError(t, err)

	assert.Equal(t, Summary{Fetched: 6, Excluded: 1, NoTax: 1, Unchanged: 2, Retargeted: 2}, summary)
	require.Len(t, updates, 2)

	assert.Equal(t, "low", updates[0].Variant.ID)
	assert.Equal(t, models.Money{Amount: 17199, Currency: "GBP"}, updates[0].NewPrice)
	assert.Equal(t, "TAX-STD", updates[0].TaxID)

	// 60.00 / 0.60 = 100.00 with no tax, ends in 0 already.
	assert.Equal(t, "zerotax", updates[1].Variant.ID)
	assert.Equal(t, int64(10000), updates[1].NewPrice.Amount)
}

func TestPlanFailsOnUnknownTaxCategory(t *testing.T) {
	r := newRepricer()
	variants := []models.Variant{variation("A", "I1", 13500, 8600)}

	_, _, err := r.Plan(variants, map[string]string{"I1": "TAX-MYSTERY"})

	var unknown *pricing.UnknownTaxCategoryError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "TAX-MYSTERY", unknown.TaxID)
}

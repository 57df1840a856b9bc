package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTargetMargin is the margin on retail items are raised to.
var DefaultTargetMargin = decimal.RequireFromString("0.40")

// UnknownTaxCategoryError is returned for a tax id missing from the table.
// There is no fallback rate; the run must stop.
type UnknownTaxCategoryError struct {
	TaxID string
}

func (e *UnknownTaxCategoryError) Error() string {
	return fmt.Sprintf("unknown tax category %q: no rate configured", e.TaxID)
}

// TaxTable maps Square tax ids to their rate as a fraction (0.20 = 20%).
type TaxTable map[string]decimal.Decimal

// ParseTaxTable parses "TAXID=0.20,OTHER=0.05".
func ParseTaxTable(s string) (TaxTable, error) {
	table := make(TaxTable)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, raw, ok := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid tax rate entry %q: want TAXID=RATE", entry)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid tax rate for %s: %w", id, err)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			return nil, fmt.Errorf("tax rate for %s must be in [0, 1), got %s", id, rate)
		}
		table[id] = rate
	}
	return table, nil
}

func (t TaxTable) Rate(taxID string) (decimal.Decimal, error) {
	rate, ok := t[taxID]
	if !ok {
		return decimal.Zero, &UnknownTaxCategoryError{TaxID: taxID}
	}
	return rate, nil
}

func (t TaxTable) IDs() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Policy is the margin target applied by ApplyPriceTargets.
type Policy struct {
	TargetMargin decimal.Decimal
}

func NewPolicy(target string) (Policy, error) {
	margin, err := decimal.NewFromString(target)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid target margin %q: %w", target, err)
	}
	if !margin.IsPositive() || margin.GreaterThanOrEqual(one) {
		return Policy{}, fmt.Errorf("target margin must be in (0, 1), got %s", margin)
	}
	return Policy{TargetMargin: margin}, nil
}

// Quote is the pricing decision for one variant.
type Quote struct {
	Figures       Figures
	MarginBefore  decimal.Decimal
	MarginAfter   decimal.Decimal
	NewPriceMinor int64
	Retarget      bool
}

// Quote decides whether an item is repriced and at what retail price.
// Items that are not viable, or already at or above target, keep their price.
// Prices only go up: a snapped price at or below the current one is dropped.
func (p Policy) Quote(priceMinor, costMinor int64, taxRate decimal.Decimal) Quote {
	f := NewFigures(priceMinor, costMinor, taxRate)
	q := Quote{
		Figures:       f,
		MarginBefore:  f.MarginOnRetail(),
		MarginAfter:   f.MarginOnRetail(),
		NewPriceMinor: priceMinor,
	}
	if !f.NeedsRetarget(p.TargetMargin) {
		return q
	}

	retargeted := f.SetMargin(p.TargetMargin)
	snapped := RoundToRetailEnding(retargeted.RetailPrice)
	if snapped <= priceMinor {
		return q
	}
	q.NewPriceMinor = snapped
	q.MarginAfter = NewFigures(snapped, costMinor, taxRate).MarginOnRetail()
	q.Retarget = true
	return q
}

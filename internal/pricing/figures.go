package pricing

import (
	"github.com/shopspring/decimal"
)

// Rounding conventions used throughout this package:
//   - round: decimal.Round, half away from zero
//   - trunc: decimal.Truncate, toward zero
// The order of these steps determines the published price and must not change.

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

const scale = 2

// FromMinorUnits converts pennies to a 2-place decimal, truncating.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(hundred).Truncate(scale)
}

// ToMinorUnits converts a decimal amount to pennies, rounding to the
// nearest penny.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// Figures holds the three inputs every derived price quantity is computed
// from. Derived values are never stored.
type Figures struct {
	RetailPrice decimal.Decimal
	UnitCost    decimal.Decimal
	TaxRate     decimal.Decimal
}

func NewFigures(priceMinor, costMinor int64, taxRate decimal.Decimal) Figures {
	return Figures{
		RetailPrice: FromMinorUnits(priceMinor),
		UnitCost:    FromMinorUnits(costMinor),
		TaxRate:     taxRate,
	}
}

// VAT is the tax contained in a tax-inclusive retail price.
func (f Figures) VAT() decimal.Decimal {
	exTax := f.RetailPrice.Div(one.Add(f.TaxRate))
	return f.RetailPrice.Sub(exTax).Round(scale)
}

func (f Figures) Net() decimal.Decimal {
	return f.RetailPrice.Sub(f.VAT()).Round(scale)
}

func (f Figures) Profit() decimal.Decimal {
	return f.Net().Sub(f.UnitCost)
}

// MarginOnRetail is profit over net price, rounded to 2 places. A zero net
// price yields zero.
func (f Figures) MarginOnRetail() decimal.Decimal {
	net := f.Net()
	if net.IsZero() {
		return decimal.Zero
	}
	return f.Profit().Div(net).Round(scale)
}

// Viable reports whether the figures can be repriced automatically: both
// amounts positive and the cost below the price.
func (f Figures) Viable() bool {
	return f.RetailPrice.IsPositive() &&
		f.UnitCost.IsPositive() &&
		f.UnitCost.LessThan(f.RetailPrice)
}

// NeedsRetarget reports whether a viable item sits strictly below target.
func (f Figures) NeedsRetarget(target decimal.Decimal) bool {
	return f.Viable() && f.MarginOnRetail().LessThan(target)
}

// SetMargin returns figures whose retail price gives the target margin on
// retail, truncating the net price and then the gross price to 2 places.
func (f Figures) SetMargin(target decimal.Decimal) Figures {
	net := f.UnitCost.Div(one.Sub(target))
	gross := net.Truncate(scale).Mul(one.Add(f.TaxRate))

	out := f
	out.RetailPrice = gross.Truncate(scale)
	return out
}

// RoundToRetailEnding converts price to pennies and snaps the last digit to
// 0, 5 or 9 (digits 0-2, 3-5 and 6-9 respectively). Sign is preserved.
func RoundToRetailEnding(price decimal.Decimal) int64 {
	pennies := ToMinorUnits(price)

	sign := int64(1)
	if pennies < 0 {
		sign = -1
		pennies = -pennies
	}

	last := pennies % 10
	base := pennies - last
	switch {
	case last <= 2:
		// base already ends in 0
	case last <= 5:
		base += 5
	default:
		base += 9
	}
	return sign * base
}

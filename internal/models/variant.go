package models

// Money is an amount in minor units (pennies) plus its currency code.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Variant is one sellable ITEM_VARIATION snapshot fetched during a run.
type Variant struct {
	ID              string  `json:"id"`
	Version         int64   `json:"version"`
	IsDeleted       bool    `json:"is_deleted"`
	ItemID          string  `json:"item_id"`
	Name            string  `json:"name"`
	SKU             *string `json:"sku,omitempty"`
	UPC             *string `json:"upc,omitempty"`
	PricingType     string  `json:"pricing_type"`
	PriceMoney      *Money  `json:"price_money,omitempty"`
	DefaultUnitCost *Money  `json:"default_unit_cost,omitempty"`
}

// Barcode returns the UPC, or "" when the variant has none.
func (v Variant) Barcode() string {
	if v.UPC == nil {
		return ""
	}
	return *v.UPC
}

func (v Variant) SKUOrEmpty() string {
	if v.SKU == nil {
		return ""
	}
	return *v.SKU
}

// HasPricing reports whether both the price and the unit cost are set.
func (v Variant) HasPricing() bool {
	return v.PriceMoney != nil && v.DefaultUnitCost != nil
}

// Package pricing derives cart totals. Every function is pure: the same items
// and policy always give the same snapshot.
//
// Intermediate sums stay unrounded; only outputs are rounded, half-up to
// cents.
package pricing

import (
	"fmt"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

const centPlaces = 2

// Policy holds the fixed pricing constants.
type Policy struct {
	TaxRate              decimal.Decimal
	ShippingBase         decimal.Decimal
	ShippingPerExtraUnit decimal.Decimal
}

// DefaultPolicy is 6% tax, $10.00 shipping for the first unit and $2.00 for
// every unit after it. The flat $10.00 shipping variant is not supported.
var DefaultPolicy = Policy{
	TaxRate:              decimal.RequireFromString("0.06"),
	ShippingBase:         decimal.RequireFromString("10.00"),
	ShippingPerExtraUnit: decimal.RequireFromString("2.00"),
}

// ParsePolicy builds a policy from decimal strings, as found in config.
func ParsePolicy(taxRate, shippingBase, perExtraUnit string) (Policy, error) {
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid tax rate %q: %w", taxRate, err)
	}
	base, err := decimal.NewFromString(shippingBase)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid shipping base %q: %w", shippingBase, err)
	}
	extra, err := decimal.NewFromString(perExtraUnit)
	if err != nil {
		return Policy{}, fmt.Errorf("invalid shipping per extra unit %q: %w", perExtraUnit, err)
	}
	if rate.IsNegative() || base.IsNegative() || extra.IsNegative() {
		return Policy{}, fmt.Errorf("pricing policy values must be non-negative")
	}
	return Policy{TaxRate: rate, ShippingBase: base, ShippingPerExtraUnit: extra}, nil
}

// Subtotal is Σ price × quantity, unrounded.
func Subtotal(items []models.CartLineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// Units is the sum of quantities.
func Units(items []models.CartLineItem) int {
	return models.Cart{Items: items}.Units()
}

// Tax is round(subtotal × rate, 2).
func (p Policy) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate).Round(centPlaces)
}

// Shipping is base + perExtra × max(0, units-1).
func (p Policy) Shipping(units int) decimal.Decimal {
	extra := units - 1
	if extra < 0 {
		extra = 0
	}
	return p.ShippingBase.Add(p.ShippingPerExtraUnit.Mul(decimal.NewFromInt(int64(extra)))).Round(centPlaces)
}

// Quote computes subtotal, tax, shipping and grand total together.
func (p Policy) Quote(items []models.CartLineItem) models.PricingSnapshot {
	subtotal := Subtotal(items)
	units := Units(items)
	tax := p.Tax(subtotal)
	shipping := p.Shipping(units)

	return models.PricingSnapshot{
		Subtotal:   subtotal.Round(centPlaces),
		Tax:        tax,
		Shipping:   shipping,
		GrandTotal: subtotal.Add(tax).Add(shipping).Round(centPlaces),
		Units:      units,
	}
}

// LineTotal is a line's price × quantity rounded for display.
func LineTotal(item models.CartLineItem) decimal.Decimal {
	return item.LineTotal().Round(centPlaces)
}

// FormatMoney renders an amount as $0.00.
func FormatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(centPlaces)
}

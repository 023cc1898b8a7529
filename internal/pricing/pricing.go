// Package pricing computes line and invoice amounts. Every intermediate
// figure is rounded half-up to two decimal places so that invoice totals
// reconcile with the sum of their already-rounded lines.
package pricing

import "github.com/shopspring/decimal"

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

type LineInput struct {
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	Discount       *Discount
	TaxRatePercent *decimal.Decimal
}

type LineAmounts struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxableAmount  decimal.Decimal
	TaxAmount      decimal.Decimal
	LineTotal      decimal.Decimal
}

type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero, which is half-up for the non-negative
// amounts billed here.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func CalculateLine(in LineInput) LineAmounts {
	subtotal := Round2(in.Quantity.Mul(in.UnitPrice))
	discount := discountAmount(subtotal, in.Discount)
	taxable := Round2(subtotal.Sub(discount))

	tax := decimal.Zero
	if in.TaxRatePercent != nil {
		tax = Round2(taxable.Mul(*in.TaxRatePercent).Div(hundred))
	}

	return LineAmounts{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxableAmount:  taxable,
		TaxAmount:      tax,
		LineTotal:      Round2(taxable.Add(tax)),
	}
}

// discountAmount is clamped to [0, subtotal].
func discountAmount(subtotal decimal.Decimal, d *Discount) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch d.Type {
	case DiscountPercentage:
		amount = Round2(subtotal.Mul(d.Value).Div(hundred))
	case DiscountFixed:
		amount = Round2(d.Value)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}

func CalculateTotals(lines []LineAmounts) Totals {
	var t Totals
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.Subtotal)
		t.DiscountAmount = t.DiscountAmount.Add(l.DiscountAmount)
		t.TaxAmount = t.TaxAmount.Add(l.TaxAmount)
		t.Total = t.Total.Add(l.LineTotal)
	}
	t.Subtotal = Round2(t.Subtotal)
	t.DiscountAmount = Round2(t.DiscountAmount)
	t.TaxAmount = Round2(t.TaxAmount)
	t.Total = Round2(t.Total)
	return t
}

func IsFullyPaid(total, paid decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(total)
}

package planning

import "github.com/shopspring/decimal"

// Product is the catalog view the calculator needs.
type Product struct {
	Reference          string
	ConsumptionPer1000 float64
	Conversion         *UnitConversion
	Hidden             bool
}

// RatioSource tells where a consumption ratio came from.
type RatioSource string

const (
	RatioSourceWeek    RatioSource = "week"
	RatioSourceProduct RatioSource = "product"
	RatioSourceNone    RatioSource = "none"
)

// ConsumptionRatio returns the units of p consumed per 1000 of forecast revenue
// in week w. The week's imported snapshot wins over the catalog value; a
// missing, negative or non-finite ratio resolves to zero.
func ConsumptionRatio(p Product, w Week) decimal.Decimal {
	ratio, _ := ResolveConsumptionRatio(p, w)
	return ratio
}

// ResolveConsumptionRatio is ConsumptionRatio plus the source that supplied the value.
func ResolveConsumptionRatio(p Product, w Week) (decimal.Decimal, RatioSource) {
	if v, ok := w.ConsumptionData[p.Reference]; ok {
		return nonNegative(v), RatioSourceWeek
	}
	if p.ConsumptionPer1000 != 0 {
		return nonNegative(p.ConsumptionPer1000), RatioSourceProduct
	}
	return decimal.Zero, RatioSourceNone
}

func nonNegative(v float64) decimal.Decimal {
	d := toDecimal(v)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

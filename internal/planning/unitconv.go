package planning

import (
	"math"

	"github.com/shopspring/decimal"
)

// UnitConversion describes how many stock units make up one orderable pack.
type UnitConversion struct {
	NumberOfPacks float64 `json:"number_of_packs"`
	UnitsPerPack  float64 `json:"units_per_pack"`
	Unit          string  `json:"unit,omitempty"`
}

// TotalUnitsPerPack is the divisor applied to raw stock-unit needs.
func (c UnitConversion) TotalUnitsPerPack() decimal.Decimal {
	return toDecimal(c.NumberOfPacks).Mul(toDecimal(c.UnitsPerPack))
}

// Valid reports whether the conversion yields a positive divisor.
func (c UnitConversion) Valid() bool {
	return c.TotalUnitsPerPack().IsPositive()
}

// ResolveUnitConversion converts a need in stock units into order units.
// Without a conversion the need is returned unchanged; a conversion whose
// divisor is not positive resolves to zero.
func ResolveUnitConversion(rawNeed decimal.Decimal, conv *UnitConversion) decimal.Decimal {
	if conv == nil {
		return rawNeed
	}
	total := conv.TotalUnitsPerPack()
	if !total.IsPositive() {
		return decimal.Zero
	}
	return rawNeed.DivRound(total, divisionPrecision)
}

// divisionPrecision keeps quotients exact enough that a whole number of packs
// never rounds up to the next pack.
const divisionPrecision = 12

func toDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(Sanitize(v))
}

// Sanitize maps NaN and infinities to zero.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

package planning

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnitConversionWithoutRuleReturnsNeed(t *testing.T) {
	need := decimal.RequireFromString("12.75")
	require.True(t, ResolveUnitConversion(need, nil).Equal(need))
}

func TestResolveUnitConversionPacks(t *testing.T) {
	conv := &UnitConversion{NumberOfPacks: 4, UnitsPerPack: 6, Unit: "bottle"}
	got := ResolveUnitConversion(decimal.NewFromInt(100), conv).Ceil()
	require.Equal(t, int64(5), got.IntPart())

	exact := ResolveUnitConversion(decimal.NewFromInt(48), conv)
	require.True(t, exact.Equal(decimal.NewFromInt(2)), "48/24 must stay exactly 2, got %s", exact)
	require.Equal(t, int64(2), exact.Ceil().IntPart())
}

func TestResolveUnitConversionDegenerateIsZero(t *testing.T) {
	rules := []UnitConversion{
		{NumberOfPacks: 0, UnitsPerPack: 6},
		{NumberOfPacks: 4, UnitsPerPack: 0},
		{NumberOfPacks: -1, UnitsPerPack: 6},
		{NumberOfPacks: math.NaN(), UnitsPerPack: 6},
	}
	for _, rule := range rules {
		rule := rule
		assert.False(t, rule.Valid())
		for _, need := range []int64{0, 1, 10, 1000} {
			got := ResolveUnitConversion(decimal.NewFromInt(need), &rule)
			assert.True(t, got.IsZero(), "rule %+v need %d gave %s", rule, need, got)
		}
	}
}

func TestResolveUnitConversionMonotonic(t *testing.T) {
	rules := []UnitConversion{
		{NumberOfPacks: 1, UnitsPerPack: 1},
		{NumberOfPacks: 4, UnitsPerPack: 6},
		{NumberOfPacks: 0.5, UnitsPerPack: 3},
		{NumberOfPacks: 12, UnitsPerPack: 0.25},
	}
	for _, rule := range rules {
		rule := rule
		prev := ResolveUnitConversion(decimal.Zero, &rule)
		for i := 1; i <= 400; i++ {
			need := decimal.NewFromFloat(float64(i) * 0.37)
			got := ResolveUnitConversion(need, &rule)
			require.True(t, got.GreaterThanOrEqual(prev), "rule %+v not monotonic at %s", rule, need)
			prev = got
		}
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, 0.0, Sanitize(math.NaN()))
	assert.Equal(t, 0.0, Sanitize(math.Inf(1)))
	assert.Equal(t, 0.0, Sanitize(math.Inf(-1)))
	assert.Equal(t, 2.5, Sanitize(2.5))
}

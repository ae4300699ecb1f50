package units

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func approxEqual(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	diff := want.Sub(got).Abs()
	assert.True(t, diff.LessThan(dec("0.000000001")), "want %s got %s", want, got)
}

func TestDefaultTablesAreValid(t *testing.T) {
	require.NoError(t, DefaultTables().Validate())
}

func TestValidateRejectsBadTables(t *testing.T) {
	tests := []struct {
		name   string
		tables Tables
	}{
		{name: "empty", tables: Tables{}},
		{name: "empty type", tables: Tables{Weight: {}}},
		{name: "zero factor", tables: Tables{Weight: {"kg": decimal.Zero}}},
		{name: "negative factor", tables: Tables{Weight: {"kg": dec("-1")}}},
		{name: "blank unit", tables: Tables{Weight: {" ": dec("1")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tables.Validate()
			assert.ErrorIs(t, err, ErrInvalidTable)
			_, err = NewEngine(tt.tables)
			assert.Error(t, err)
		})
	}
}

func TestAvailableUnitsExcludesCoarserUnits(t *testing.T) {
	engine := MustEngine(nil)

	assert.Equal(t, []string{"gram", "pound", "kg"}, engine.AvailableUnits(Weight, "kg", "kg"))
	assert.Equal(t, []string{"gram", "pound", "kg", "ton"}, engine.AvailableUnits(Weight, "ton", "kg"))
	assert.Equal(t, []string{"gram"}, engine.AvailableUnits(Weight, "gram", "kg"))
	assert.Equal(t, []string{"mm", "cm", "meter"}, engine.AvailableUnits(Length, "meter", "meter"))
}

func TestAvailableUnitsFallsBackToDefaultUnit(t *testing.T) {
	engine := MustEngine(nil)

	assert.Equal(t, []string{"bundle"}, engine.AvailableUnits(UnitType("bulk"), "crate", "bundle"))
	assert.Equal(t, []string{"crate"}, engine.AvailableUnits(UnitType("bulk"), "crate", ""))
	assert.Equal(t, []string{"sack"}, engine.AvailableUnits(Weight, "sack", "kg"))
}

func TestResolveNamesTheFallbackBranch(t *testing.T) {
	engine := MustEngine(nil)

	assert.Equal(t, Scaled, engine.Resolve(Weight, "gram").Mode)
	assert.Equal(t, Exempt, engine.Resolve(Piece, "dozen").Mode)
	assert.Equal(t, Fallback, engine.Resolve(Weight, "sack").Mode)
	assert.Equal(t, Fallback, engine.Resolve(UnitType("bulk"), "kg").Mode)
	assert.False(t, engine.Known(Weight, "sack"))
	assert.True(t, engine.Known(Piece, "dozen"))
}

func TestToBaseAndFromBase(t *testing.T) {
	engine := MustEngine(nil)

	assert.True(t, engine.ToBase(dec("1500"), "gram", Weight).Equal(dec("1.5")))
	assert.True(t, engine.FromBase(dec("1.5"), "gram", Weight).Equal(dec("1500")))
	assert.True(t, engine.ToBase(dec("2"), "ton", Weight).Equal(dec("2000")))
	assert.True(t, engine.ToBase(dec("250"), "ml", Volume).Equal(dec("0.25")))

	// missing table or unit passes the quantity through
	assert.True(t, engine.ToBase(dec("7"), "sack", Weight).Equal(dec("7")))
	assert.True(t, engine.FromBase(dec("7"), "kg", UnitType("bulk")).Equal(dec("7")))
}

func TestZeroFactorIsTreatedAsMissing(t *testing.T) {
	engine := &Engine{tables: Tables{Weight: {"kg": dec("1"), "broken": decimal.Zero}}}
	assert.True(t, engine.FromBase(dec("3"), "broken", Weight).Equal(dec("3")))
}

func TestPieceTypeIsConversionExempt(t *testing.T) {
	engine := MustEngine(nil)

	assert.True(t, engine.Convert(dec("2"), "dozen", "piece", Piece).Equal(dec("2")))
	assert.True(t, engine.PriceForUnit(dec("5"), "dozen", Piece).Equal(dec("5")))
	assert.True(t, engine.BasePricePerBaseUnit(dec("60"), "dozen", Piece).Equal(dec("60")))
}

func TestConvertRoundTrip(t *testing.T) {
	engine := MustEngine(nil)
	quantities := []string{"1", "0.25", "3.75", "1000", "0.001"}

	for unitType, table := range engine.Tables() {
		for from := range table {
			for to := range table {
				for _, raw := range quantities {
					q := dec(raw)
					there := engine.Convert(q, from, to, unitType)
					back := engine.Convert(there, to, from, unitType)
					approxEqual(t, q, back)
				}
			}
		}
	}
}

func TestConvertIdentity(t *testing.T) {
	engine := MustEngine(nil)
	assert.True(t, engine.Convert(dec("3.3"), "kg", "kg", Weight).Equal(dec("3.3")))
}

func TestPriceDerivation(t *testing.T) {
	engine := MustEngine(nil)

	base := engine.BasePricePerBaseUnit(dec("100"), "kg", Weight)
	assert.True(t, base.Equal(dec("100")))
	assert.True(t, engine.PriceForUnit(base, "gram", Weight).Equal(dec("0.1")))
	assert.True(t, engine.PriceForUnit(base, "ton", Weight).Equal(dec("100000")))

	perGram := engine.BasePricePerBaseUnit(dec("0.2"), "gram", Weight)
	assert.True(t, perGram.Equal(dec("200")))
}

func TestTablesCloneDoesNotShareMaps(t *testing.T) {
	original := DefaultTables()
	clone := original.Clone()
	clone[Weight]["kg"] = dec("2")
	assert.True(t, original[Weight]["kg"].Equal(dec("1")))
}

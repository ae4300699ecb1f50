package units

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type UnitType string

const (
	Weight UnitType = "weight"
	Volume UnitType = "volume"
	Piece  UnitType = "piece"
	Length UnitType = "length"
)

// Table maps a unit name to how many base units one of it is worth.
type Table map[string]decimal.Decimal

// Tables holds one conversion table per unit type.
type Tables map[UnitType]Table

var ErrInvalidTable = errors.New("invalid conversion table")

func DefaultTables() Tables {
	return Tables{
		Weight: {
			"ton":   decimal.NewFromInt(1000),
			"kg":    decimal.NewFromInt(1),
			"gram":  decimal.RequireFromString("0.001"),
			"pound": decimal.RequireFromString("0.453592"),
		},
		Volume: {
			"liter": decimal.NewFromInt(1),
			"ml":    decimal.RequireFromString("0.001"),
		},
		Piece: {
			"piece": decimal.NewFromInt(1),
			"dozen": decimal.NewFromInt(12),
			"box":   decimal.NewFromInt(1),
		},
		Length: {
			"meter": decimal.NewFromInt(1),
			"cm":    decimal.RequireFromString("0.01"),
			"mm":    decimal.RequireFromString("0.001"),
		},
	}
}

func (t Tables) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no unit types", ErrInvalidTable)
	}
	for unitType, table := range t {
		if len(table) == 0 {
			return fmt.Errorf("%w: %s has no units", ErrInvalidTable, unitType)
		}
		for unit, factor := range table {
			if strings.TrimSpace(unit) == "" {
				return fmt.Errorf("%w: %s has an empty unit name", ErrInvalidTable, unitType)
			}
			if !factor.IsPositive() {
				return fmt.Errorf("%w: %s/%s factor must be positive", ErrInvalidTable, unitType, unit)
			}
		}
	}
	return nil
}

// Clone returns a deep copy so callers can hand tables out without sharing maps.
func (t Tables) Clone() Tables {
	out := make(Tables, len(t))
	for unitType, table := range t {
		copied := make(Table, len(table))
		for unit, factor := range table {
			copied[unit] = factor
		}
		out[unitType] = copied
	}
	return out
}

// Mode tells how a unit was resolved against the tables.
type Mode int

const (
	// Scaled units have a known factor and are converted through the base unit.
	Scaled Mode = iota
	// Exempt units belong to the piece type and pass through unscaled.
	Exempt
	// Fallback is used when the unit type or unit is missing from the tables.
	// Values pass through unchanged; callers must not treat this as validated.
	Fallback
)

func (m Mode) String() string {
	switch m {
	case Scaled:
		return "scaled"
	case Exempt:
		return "exempt"
	default:
		return "fallback"
	}
}

type Conversion struct {
	Mode   Mode
	Factor decimal.Decimal
}

type Engine struct {
	tables Tables
}

func NewEngine(tables Tables) (*Engine, error) {
	if tables == nil {
		tables = DefaultTables()
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return &Engine{tables: tables.Clone()}, nil
}

// MustEngine is NewEngine for static tables known to be valid.
func MustEngine(tables Tables) *Engine {
	engine, err := NewEngine(tables)
	if err != nil {
		panic(err)
	}
	return engine
}

func (e *Engine) Tables() Tables {
	return e.tables.Clone()
}

// Known reports whether unit has a real factor in the table of unitType.
func (e *Engine) Known(unitType UnitType, unit string) bool {
	table, ok := e.tables[unitType]
	if !ok {
		return false
	}
	_, ok = table[unit]
	return ok
}

func (e *Engine) Resolve(unitType UnitType, unit string) Conversion {
	table, ok := e.tables[unitType]
	if !ok {
		return Conversion{Mode: Fallback, Factor: decimal.NewFromInt(1)}
	}
	factor, ok := table[unit]
	if !ok || !factor.IsPositive() {
		return Conversion{Mode: Fallback, Factor: decimal.NewFromInt(1)}
	}
	if unitType == Piece {
		return Conversion{Mode: Exempt, Factor: decimal.NewFromInt(1)}
	}
	return Conversion{Mode: Scaled, Factor: factor}
}

// AvailableUnits lists the units a stock bought in purchaseUnit can be sold in,
// finest first. Units coarser than the purchase unit are excluded.
func (e *Engine) AvailableUnits(unitType UnitType, purchaseUnit string, defaultUnit string) []string {
	table, ok := e.tables[unitType]
	if !ok {
		return singleUnit(defaultUnit, purchaseUnit)
	}
	ceiling, ok := table[purchaseUnit]
	if !ok {
		return singleUnit(purchaseUnit, defaultUnit)
	}

	out := make([]string, 0, len(table))
	for unit, factor := range table {
		if factor.LessThanOrEqual(ceiling) {
			out = append(out, unit)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		fi, fj := table[out[i]], table[out[j]]
		if fi.Equal(fj) {
			return out[i] < out[j]
		}
		return fi.LessThan(fj)
	})
	return out
}

func singleUnit(preferred string, alternative string) []string {
	if preferred != "" {
		return []string{preferred}
	}
	if alternative != "" {
		return []string{alternative}
	}
	return []string{string(Piece)}
}

func (e *Engine) ToBase(quantity decimal.Decimal, unit string, unitType UnitType) decimal.Decimal {
	conv := e.Resolve(unitType, unit)
	if conv.Mode != Scaled {
		return quantity
	}
	return quantity.Mul(conv.Factor)
}

func (e *Engine) FromBase(quantity decimal.Decimal, unit string, unitType UnitType) decimal.Decimal {
	conv := e.Resolve(unitType, unit)
	if conv.Mode != Scaled {
		return quantity
	}
	return quantity.Div(conv.Factor)
}

func (e *Engine) Convert(quantity decimal.Decimal, fromUnit string, toUnit string, unitType UnitType) decimal.Decimal {
	if fromUnit == toUnit {
		return quantity
	}
	return e.FromBase(e.ToBase(quantity, fromUnit, unitType), toUnit, unitType)
}

// PriceForUnit is the only way a displayed unit price is produced from the
// frozen per-base-unit price.
func (e *Engine) PriceForUnit(basePricePerBaseUnit decimal.Decimal, targetUnit string, unitType UnitType) decimal.Decimal {
	conv := e.Resolve(unitType, targetUnit)
	if conv.Mode != Scaled {
		return basePricePerBaseUnit
	}
	return basePricePerBaseUnit.Mul(conv.Factor)
}

func (e *Engine) BasePricePerBaseUnit(price decimal.Decimal, unit string, unitType UnitType) decimal.Decimal {
	conv := e.Resolve(unitType, unit)
	if conv.Mode != Scaled {
		return price
	}
	return price.Div(conv.Factor)
}

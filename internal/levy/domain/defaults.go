package levy

import (
	"fmt"
	"time"

	amr "energy-costing/internal/amr/domain"
)

// BracketSpec is the configuration shape of a bracket.
type BracketSpec struct {
	Start string  `yaml:"start"`
	End   string  `yaml:"end"`
	Rate  float64 `yaml:"rate"`
}

// FromSpecs builds a table from configured brackets keyed by fuel name.
func FromSpecs(specs map[string][]BracketSpec) (*Table, error) {
	brackets := make(map[amr.FuelType][]Bracket, len(specs))
	for fuelName, list := range specs {
		fuel := amr.FuelType(fuelName)
		if !fuel.IsValid() {
			return nil, fmt.Errorf("%w: unknown fuel %q", ErrInvalidBracket, fuelName)
		}
		for _, spec := range list {
			start, err := amr.ParseDay(spec.Start)
			if err != nil {
				return nil, fmt.Errorf("levy: parse start %q: %w", spec.Start, err)
			}
			end, err := amr.ParseDay(spec.End)
			if err != nil {
				return nil, fmt.Errorf("levy: parse end %q: %w", spec.End, err)
			}
			brackets[fuel] = append(brackets[fuel], Bracket{Start: start, End: end, Rate: spec.Rate})
		}
	}
	return NewTable(brackets)
}

// Default returns the UK main rates, April 2019 to March 2026.
func Default() *Table {
	table, err := NewTable(map[amr.FuelType][]Bracket{
		amr.FuelElectricity: financialYears(2019, 0.00847, 0.00811, 0.00775, 0.00775, 0.00775, 0.00775, 0.00775),
		amr.FuelGas:         financialYears(2019, 0.00339, 0.00406, 0.00465, 0.00568, 0.00672, 0.00775, 0.00775),
	})
	if err != nil {
		panic(err)
	}
	return table
}

func financialYears(firstYear int, rates ...float64) []Bracket {
	brackets := make([]Bracket, 0, len(rates))
	for i, rate := range rates {
		year := firstYear + i
		brackets = append(brackets, Bracket{
			Start: amr.Day(year, time.April, 1),
			End:   amr.Day(year+1, time.March, 31),
			Rate:  rate,
		})
	}
	return brackets
}

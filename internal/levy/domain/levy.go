package levy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	amr "energy-costing/internal/amr/domain"
)

// BucketName is the generic zero-rate bucket used for gaps between brackets.
const BucketName = "climate_change_levy"

var (
	// ErrMissingLevyData is returned when a date is beyond the latest configured bracket.
	ErrMissingLevyData = errors.New("levy: missing climate change levy data")
	// ErrInvalidBracket is returned when a bracket has an inverted or zero date range.
	ErrInvalidBracket = errors.New("levy: invalid bracket")
	// ErrOverlappingBrackets is returned when two brackets of one fuel overlap.
	ErrOverlappingBrackets = errors.New("levy: overlapping brackets")
)

// Bracket is one date range (inclusive) with a £/kWh rate.
type Bracket struct {
	Start time.Time
	End   time.Time
	Rate  float64
}

// Bucket returns the bucket name encoding the bracket's start and end year.
func (b Bracket) Bucket() string {
	return fmt.Sprintf("%s__%d_%d", BucketName, b.Start.Year(), b.End.Year())
}

func (b Bracket) contains(date time.Time) bool {
	return !date.Before(b.Start) && !date.After(b.End)
}

// Table is an immutable fuel -> ordered brackets lookup. Safe for concurrent reads.
type Table struct {
	brackets map[amr.FuelType][]Bracket
}

// NewTable validates and sorts the brackets per fuel.
func NewTable(brackets map[amr.FuelType][]Bracket) (*Table, error) {
	t := &Table{brackets: make(map[amr.FuelType][]Bracket, len(brackets))}
	for fuel, list := range brackets {
		sorted := make([]Bracket, 0, len(list))
		for _, b := range list {
			b.Start = amr.TruncateDay(b.Start)
			b.End = amr.TruncateDay(b.End)
			if b.Start.IsZero() || b.End.Before(b.Start) {
				return nil, fmt.Errorf("%w: %s %s..%s", ErrInvalidBracket, fuel, amr.FormatDay(b.Start), amr.FormatDay(b.End))
			}
			sorted = append(sorted, b)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
		for i := 1; i < len(sorted); i++ {
			if !sorted[i].Start.After(sorted[i-1].End) {
				return nil, fmt.Errorf("%w: %s at %s", ErrOverlappingBrackets, fuel, amr.FormatDay(sorted[i].Start))
			}
		}
		t.brackets[fuel] = sorted
	}
	return t, nil
}

// Rate returns the levy bucket name and £/kWh rate for a fuel on a date.
// Dates inside the known horizon but outside any bracket resolve to a zero rate;
// only dates after the final bracket fail.
func (t *Table) Rate(fuel amr.FuelType, date time.Time) (string, float64, error) {
	list := t.brackets[fuel]
	if len(list) == 0 {
		return "", 0, fmt.Errorf("%w: no brackets for %s", ErrMissingLevyData, fuel)
	}
	date = amr.TruncateDay(date)

	idx := sort.Search(len(list), func(i int) bool { return !list[i].End.Before(date) })
	if idx == len(list) {
		return "", 0, fmt.Errorf("%w: %s on %s", ErrMissingLevyData, fuel, amr.FormatDay(date))
	}
	if list[idx].contains(date) {
		return list[idx].Bucket(), list[idx].Rate, nil
	}
	return BucketName, 0, nil
}

// LatestEnd returns the final configured date for a fuel.
func (t *Table) LatestEnd(fuel amr.FuelType) (time.Time, bool) {
	list := t.brackets[fuel]
	if len(list) == 0 {
		return time.Time{}, false
	}
	return list[len(list)-1].End, true
}

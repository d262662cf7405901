package tariff

import (
	"fmt"
	"strconv"
	"strings"

	amr "energy-costing/internal/amr/domain"
)

const (
	minutesPerSlot = 30
	minutesPerDay  = 24 * 60
)

// TimeOfDay is a clock time without a date. 24:00 is allowed as a range end.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	tod := TimeOfDay{Hour: hour, Minute: minute}
	if minute < 0 || minute > 59 || hour < 0 || tod.minutes() > minutesPerDay {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return tod, nil
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// Aligned reports whether the time falls on a half-hour boundary.
func (t TimeOfDay) Aligned() bool { return t.Minute%minutesPerSlot == 0 }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// TimeRange is the half-open clock interval [Start, End). An End at or before
// Start wraps past midnight.
type TimeRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

// WholeDay covers 00:00 to 24:00.
var WholeDay = TimeRange{Start: TimeOfDay{}, End: TimeOfDay{Hour: 24}}

func (r TimeRange) String() string { return r.Start.String() + "-" + r.End.String() }

// Mask returns a weight vector with 1 in every slot whose start lies in the range.
func (r TimeRange) Mask() amr.HalfHourVector {
	var mask amr.HalfHourVector
	start, end := r.Start.minutes(), r.End.minutes()
	for slot := range mask {
		m := slot * minutesPerSlot
		var in bool
		if start < end {
			in = m >= start && m < end
		} else if start > end {
			in = m >= start || m < end
		}
		if in {
			mask[slot] = 1
		}
	}
	return mask
}

// CheckCoverage validates that the ranges are half-hour aligned and together
// cover every slot exactly once.
func CheckCoverage(ranges ...TimeRange) []Diagnostic {
	var diagnostics []Diagnostic
	var counts [amr.SlotsPerDay]int
	for _, r := range ranges {
		if !r.Start.Aligned() || !r.End.Aligned() {
			diagnostics = append(diagnostics, Diagnostic{Code: DiagnosticMisaligned, Message: r.String()})
		}
		if r.Start.minutes() == r.End.minutes() {
			diagnostics = append(diagnostics, Diagnostic{Code: DiagnosticEmpty, Message: r.String()})
		}
		mask := r.Mask()
		for i, w := range mask {
			if w > 0 {
				counts[i]++
			}
		}
	}
	for slot, count := range counts {
		switch {
		case count == 0:
			diagnostics = append(diagnostics, Diagnostic{Code: DiagnosticGap, Message: "slot " + slotLabel(slot) + " not covered"})
		case count > 1:
			diagnostics = append(diagnostics, Diagnostic{Code: DiagnosticOverlap, Message: fmt.Sprintf("slot %s covered %d times", slotLabel(slot), count)})
		}
	}
	return diagnostics
}

func slotLabel(slot int) string {
	return TimeOfDay{Hour: slot / 2, Minute: (slot % 2) * minutesPerSlot}.String()
}

package tariff

import (
	"fmt"
	"time"

	amr "energy-costing/internal/amr/domain"
	levy "energy-costing/internal/levy/domain"
)

// Source records which attribute family a tariff was parsed from.
type Source string

const (
	SourceAccounting Source = "accounting"
	SourceGeneric    Source = "generic"
)

// LevyLookup resolves the Climate Change Levy for a fuel on a date.
type LevyLookup interface {
	Rate(fuel amr.FuelType, date time.Time) (string, float64, error)
}

// Calendar answers weekend questions for weekday/weekend tariffs.
type Calendar interface {
	IsWeekend(date time.Time) bool
}

// WeekendCalendar treats Saturday and Sunday as the weekend.
type WeekendCalendar struct{}

func (WeekendCalendar) IsWeekend(date time.Time) bool { return amr.IsWeekend(date) }

// AccountingTariff is one dated rate plan. Dates are inclusive; a zero date is open-ended.
type AccountingTariff struct {
	Name              string
	Source            Source
	Fuel              amr.FuelType
	StartDate         time.Time
	EndDate           time.Time
	Default           bool
	Tag               DayType
	Rates             RateStructure
	StandingCharges   []StandingCharge
	ClimateChangeLevy bool

	diagnostics []Diagnostic
}

// NewAccountingTariff validates a parsed tariff and precomputes its slot masks.
// Time-range problems on differential rates are diagnostics in lenient mode and
// ErrInvalidTimeRanges in strict mode.
func NewAccountingTariff(spec AccountingTariff, mode ValidationMode) (*AccountingTariff, error) {
	if spec.Rates == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingRates, spec.Name)
	}
	if !spec.StartDate.IsZero() && !spec.EndDate.IsZero() && spec.EndDate.Before(spec.StartDate) {
		return nil, fmt.Errorf("%w: %s %s..%s", ErrInvalidDateRange, spec.Name, amr.FormatDay(spec.StartDate), amr.FormatDay(spec.EndDate))
	}
	for _, charge := range spec.StandingCharges {
		if _, err := ParsePeriod(string(charge.Per)); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Name, err)
		}
	}

	t := spec
	if !t.StartDate.IsZero() {
		t.StartDate = amr.TruncateDay(t.StartDate)
	}
	if !t.EndDate.IsZero() {
		t.EndDate = amr.TruncateDay(t.EndDate)
	}
	t.StandingCharges = append([]StandingCharge(nil), spec.StandingCharges...)
	t.Rates = spec.Rates.clone()
	if generic, ok := t.Rates.(*GenericRates); ok && t.ClimateChangeLevy {
		t.Rates = generic.without(levy.BucketName)
	}
	t.diagnostics = nil
	if err := t.compile(mode); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *AccountingTariff) compile(mode ValidationMode) error {
	for _, d := range t.Rates.compile() {
		d.Tariff = t.Name
		t.diagnostics = append(t.diagnostics, d)
	}
	if mode == ValidationStrict && len(t.diagnostics) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeRanges, t.diagnostics[0])
	}
	return nil
}

// Diagnostics returns the soft validation issues recorded at construction.
func (t *AccountingTariff) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), t.diagnostics...)
}

// Covers reports whether date lies within the tariff's inclusive date range.
func (t *AccountingTariff) Covers(date time.Time) bool {
	date = amr.TruncateDay(date)
	if !t.StartDate.IsZero() && date.Before(t.StartDate) {
		return false
	}
	if !t.EndDate.IsZero() && date.After(t.EndDate) {
		return false
	}
	return true
}

// Overlaps reports whether the two tariffs' date ranges share a day.
func (t *AccountingTariff) Overlaps(other *AccountingTariff) bool {
	if !t.EndDate.IsZero() && !other.StartDate.IsZero() && t.EndDate.Before(other.StartDate) {
		return false
	}
	if !other.EndDate.IsZero() && !t.StartDate.IsZero() && other.EndDate.Before(t.StartDate) {
		return false
	}
	return true
}

// Differential reports whether the rate depends on time of day.
func (t *AccountingTariff) Differential() bool { return t.Rates.differential() }

// Cost prices one day of consumption.
func (t *AccountingTariff) Cost(date time.Time, kwh *amr.HalfHourVector, weekend bool, levies LevyLookup) (CostBreakdown, error) {
	b := NewCostBreakdown(t.Name)
	b.Differential = t.Differential()
	t.Rates.apply(kwh, weekend, b.Rates)

	for _, charge := range t.StandingCharges {
		amount, err := charge.DailyAmount(date)
		if err != nil {
			return CostBreakdown{}, err
		}
		b.Standing[charge.Name] += amount
	}

	if t.ClimateChangeLevy {
		if levies == nil {
			return CostBreakdown{}, fmt.Errorf("tariff %s: %w", t.Name, levy.ErrMissingLevyData)
		}
		bucket, rate, err := levies.Rate(t.Fuel, date)
		if err != nil {
			return CostBreakdown{}, fmt.Errorf("tariff %s: %w", t.Name, err)
		}
		b.Rates[bucket] = amr.Scale(kwh, rate)
	}
	return b, nil
}

// Merge applies overlay's fields onto base: rate buckets and standing charges are
// replaced by name, the levy flag is set if either sets it. Dates, default flag and
// day tag stay the base's.
func Merge(base, overlay *AccountingTariff) *AccountingTariff {
	if overlay == nil {
		return base
	}
	merged := *base
	merged.Name = base.Name + "+" + overlay.Name
	merged.Rates = mergeRates(base.Rates, overlay.Rates)
	merged.StandingCharges = mergeStandingCharges(base.StandingCharges, overlay.StandingCharges)
	merged.ClimateChangeLevy = base.ClimateChangeLevy || overlay.ClimateChangeLevy
	merged.diagnostics = nil
	_ = merged.compile(ValidationLenient)
	return &merged
}

// EconomicTariff is a time-invariant tariff for what-if costing: a flat rate and
// an optional fixed day/night split.
type EconomicTariff struct {
	Name     string
	Rate     float64
	DayNight *DayNightRates
}

// NewEconomicTariff precomputes the day/night masks.
func NewEconomicTariff(spec EconomicTariff) (*EconomicTariff, []Diagnostic) {
	e := spec
	var diagnostics []Diagnostic
	if spec.DayNight != nil {
		e.DayNight = spec.DayNight.clone().(*DayNightRates)
		for _, d := range e.DayNight.compile() {
			d.Tariff = e.Name
			diagnostics = append(diagnostics, d)
		}
	}
	return &e, diagnostics
}

// Cost prices a day; the day/night split is used only when differential is true.
func (e *EconomicTariff) Cost(kwh *amr.HalfHourVector, differential bool) CostBreakdown {
	b := NewCostBreakdown(e.Name)
	if differential && e.DayNight != nil {
		b.Differential = true
		e.DayNight.apply(kwh, false, b.Rates)
		return b
	}
	(&FlatRate{Rate: e.Rate}).apply(kwh, false, b.Rates)
	return b
}

// DifferentialOverride forces the differential answer over an inclusive date
// range. A zero date is open-ended.
type DifferentialOverride struct {
	Start        time.Time
	End          time.Time
	Differential bool
}

// Covers reports whether date lies within the override.
func (o DifferentialOverride) Covers(date time.Time) bool {
	date = amr.TruncateDay(date)
	if !o.Start.IsZero() && date.Before(amr.TruncateDay(o.Start)) {
		return false
	}
	return o.End.IsZero() || !date.After(amr.TruncateDay(o.End))
}

// AttributeSet is one meter's parsed tariff configuration.
type AttributeSet struct {
	Economic              *EconomicTariff
	Accounting            []AccountingTariff
	Overrides             []AccountingTariff
	Merges                []AccountingTariff
	DifferentialOverrides []DifferentialOverride
}

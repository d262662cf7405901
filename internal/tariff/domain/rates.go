package tariff

import (
	"fmt"
	"math"

	amr "energy-costing/internal/amr/domain"
)

// Bucket names used by the fixed-shape structures.
const (
	BucketFlatRate  = "flat_rate"
	BucketDayRate   = "daytime_rate"
	BucketNightRate = "nighttime_rate"
)

// DayType restricts a rate bucket or tariff to weekdays or weekends.
type DayType int

const (
	AllDays DayType = iota
	WeekdaysOnly
	WeekendsOnly
)

func (d DayType) appliesOn(weekend bool) bool {
	switch d {
	case WeekdaysOnly:
		return !weekend
	case WeekendsOnly:
		return weekend
	default:
		return true
	}
}

func (d DayType) String() string {
	switch d {
	case WeekdaysOnly:
		return "weekday"
	case WeekendsOnly:
		return "weekend"
	default:
		return "all"
	}
}

// RateStructure is the closed set of per-kWh rate shapes: FlatRate,
// DayNightRates and GenericRates. The shape is fixed at construction.
type RateStructure interface {
	// compile precomputes masks and returns time-range diagnostics.
	compile() []Diagnostic
	apply(kwh *amr.HalfHourVector, weekend bool, out map[string]amr.HalfHourVector)
	differential() bool
	clone() RateStructure
}

// FlatRate charges every slot at one £/kWh rate.
type FlatRate struct {
	Rate float64
}

func (r *FlatRate) compile() []Diagnostic { return nil }

func (r *FlatRate) apply(kwh *amr.HalfHourVector, _ bool, out map[string]amr.HalfHourVector) {
	out[BucketFlatRate] = amr.Scale(kwh, r.Rate)
}

func (r *FlatRate) differential() bool { return false }

func (r *FlatRate) clone() RateStructure { c := *r; return &c }

// TimedRate is a £/kWh rate applying within a clock range.
type TimedRate struct {
	Range TimeRange
	Rate  float64
	mask  amr.HalfHourVector
}

// DayNightRates is the two-bucket differential ("Economy 7") shape.
type DayNightRates struct {
	Day   TimedRate
	Night TimedRate
}

func (r *DayNightRates) compile() []Diagnostic {
	r.Day.mask = r.Day.Range.Mask()
	r.Night.mask = r.Night.Range.Mask()
	return CheckCoverage(r.Day.Range, r.Night.Range)
}

func (r *DayNightRates) apply(kwh *amr.HalfHourVector, _ bool, out map[string]amr.HalfHourVector) {
	day := amr.Multiply(kwh, &r.Day.mask)
	night := amr.Multiply(kwh, &r.Night.mask)
	out[BucketDayRate] = amr.Scale(&day, r.Day.Rate)
	out[BucketNightRate] = amr.Scale(&night, r.Night.Rate)
}

func (r *DayNightRates) differential() bool { return true }

func (r *DayNightRates) clone() RateStructure { c := *r; return &c }

// Tier is one consumption band [Low, High) billed at Rate. High of +Inf is open-ended.
type Tier struct {
	Low  float64
	High float64
	Rate float64
}

// TierCost returns the £ billed in one tier for a single slot's kWh.
// Tiers are evaluated per slot, never cumulatively across the day. A slot
// exactly on the tier's low threshold bills nothing in that tier.
func TierCost(kwh float64, tier Tier) float64 {
	above := kwh - tier.Low
	if above <= 0 {
		return 0
	}
	return tier.Rate * math.Min(above, tier.High-tier.Low)
}

// RateBucket is one named rate of a generic tariff.
type RateBucket struct {
	Name    string
	Range   *TimeRange
	DayType DayType
	Rate    float64
	Tiers   []Tier

	mask      amr.HalfHourVector
	tierNames []string
}

func (b *RateBucket) timeRange() TimeRange {
	if b.Range == nil {
		return WholeDay
	}
	return *b.Range
}

// GenericRates is an arbitrary set of named, optionally tiered, optionally
// day-restricted buckets.
type GenericRates struct {
	Buckets []RateBucket
}

func (r *GenericRates) compile() []Diagnostic {
	var weekday, weekend []TimeRange
	for i := range r.Buckets {
		b := &r.Buckets[i]
		b.mask = b.timeRange().Mask()
		names := make([]string, 0, len(b.Tiers))
		for t := range b.Tiers {
			names = append(names, fmt.Sprintf("%s_tier%d", b.Name, t))
		}
		b.tierNames = names
		// Whole-day, all-days buckets apply on top of any time-of-day split.
		if !b.restricted() {
			continue
		}
		if b.DayType.appliesOn(false) {
			weekday = append(weekday, b.timeRange())
		}
		if b.DayType.appliesOn(true) {
			weekend = append(weekend, b.timeRange())
		}
	}
	if len(weekday) == 0 && len(weekend) == 0 {
		return nil
	}
	diagnostics := CheckCoverage(weekday...)
	if hasDayRestriction(r.Buckets) {
		diagnostics = append(diagnostics, CheckCoverage(weekend...)...)
	}
	return diagnostics
}

// restricted reports whether the bucket is limited to part of the day or week.
func (b *RateBucket) restricted() bool {
	return b.timeRange() != WholeDay || b.DayType != AllDays
}

func hasDayRestriction(buckets []RateBucket) bool {
	for _, b := range buckets {
		if b.DayType != AllDays {
			return true
		}
	}
	return false
}

func (r *GenericRates) apply(kwh *amr.HalfHourVector, weekend bool, out map[string]amr.HalfHourVector) {
	for i := range r.Buckets {
		b := &r.Buckets[i]
		if !b.DayType.appliesOn(weekend) {
			continue
		}
		masked := amr.Multiply(kwh, &b.mask)
		if len(b.Tiers) == 0 {
			out[b.Name] = amr.Scale(&masked, b.Rate)
			continue
		}
		for t, tier := range b.Tiers {
			var cost amr.HalfHourVector
			for slot, w := range b.mask {
				if w == 0 {
					continue
				}
				cost[slot] = TierCost(masked[slot], tier)
			}
			out[b.tierNames[t]] = cost
		}
	}
}

// differential is false when every bucket is whole-day, untiered and applies
// on all days (or there are no buckets at all).
func (r *GenericRates) differential() bool {
	for i := range r.Buckets {
		b := &r.Buckets[i]
		if b.restricted() || len(b.Tiers) > 0 {
			return true
		}
	}
	return false
}

func (r *GenericRates) clone() RateStructure {
	c := &GenericRates{Buckets: make([]RateBucket, len(r.Buckets))}
	for i, b := range r.Buckets {
		b.Tiers = append([]Tier(nil), b.Tiers...)
		b.tierNames = append([]string(nil), b.tierNames...)
		c.Buckets[i] = b
	}
	return c
}

// without returns a copy with the named bucket removed.
func (r *GenericRates) without(name string) *GenericRates {
	c := &GenericRates{}
	for _, b := range r.Buckets {
		if b.Name != name {
			c.Buckets = append(c.Buckets, b)
		}
	}
	return c
}

// mergeRates overlays rate structures: generic buckets merge by name, any other
// combination is replaced wholesale by the overlay. An overlay without buckets
// keeps the base rates.
func mergeRates(base, overlay RateStructure) RateStructure {
	if o, ok := overlay.(*GenericRates); ok && len(o.Buckets) == 0 {
		overlay = nil
	}
	if overlay == nil {
		if base == nil {
			return nil
		}
		return base.clone()
	}
	b, okBase := base.(*GenericRates)
	o, okOverlay := overlay.(*GenericRates)
	if !okBase || !okOverlay {
		return overlay.clone()
	}
	merged := b.clone().(*GenericRates)
	for _, bucket := range o.Buckets {
		replaced := false
		for i := range merged.Buckets {
			if merged.Buckets[i].Name == bucket.Name {
				merged.Buckets[i] = bucket
				replaced = true
				break
			}
		}
		if !replaced {
			merged.Buckets = append(merged.Buckets, bucket)
		}
	}
	return merged
}

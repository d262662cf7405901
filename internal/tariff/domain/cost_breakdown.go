package tariff

import (
	"sort"

	amr "energy-costing/internal/amr/domain"
)

// CostBreakdown is one day's £ cost: per-bucket half-hourly vectors plus daily
// standing charges.
type CostBreakdown struct {
	TariffName   string
	Rates        map[string]amr.HalfHourVector
	Standing     map[string]float64
	Differential bool
}

// NewCostBreakdown returns an empty breakdown.
func NewCostBreakdown(tariffName string) CostBreakdown {
	return CostBreakdown{
		TariffName: tariffName,
		Rates:      make(map[string]amr.HalfHourVector),
		Standing:   make(map[string]float64),
	}
}

// RateNames returns the rate bucket names in sorted order.
func (b CostBreakdown) RateNames() []string {
	names := make([]string, 0, len(b.Rates))
	for name := range b.Rates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StandingNames returns the standing charge names in sorted order.
func (b CostBreakdown) StandingNames() []string {
	names := make([]string, 0, len(b.Standing))
	for name := range b.Standing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HalfHourTotal sums every rate bucket per slot.
func (b CostBreakdown) HalfHourTotal() amr.HalfHourVector {
	var total amr.HalfHourVector
	for _, name := range b.RateNames() {
		v := b.Rates[name]
		amr.Add(&total, &v)
	}
	return total
}

// RatesTotal is the day's consumption-dependent £.
func (b CostBreakdown) RatesTotal() float64 {
	total := b.HalfHourTotal()
	return amr.Total(&total)
}

// StandingTotal is the day's fixed £.
func (b CostBreakdown) StandingTotal() float64 {
	var total float64
	for _, name := range b.StandingNames() {
		total += b.Standing[name]
	}
	return total
}

// Total is rates plus standing charges.
func (b CostBreakdown) Total() float64 { return b.RatesTotal() + b.StandingTotal() }

// Accumulate adds other into b bucket by bucket.
func (b *CostBreakdown) Accumulate(other CostBreakdown) {
	if b.Rates == nil {
		b.Rates = make(map[string]amr.HalfHourVector)
	}
	if b.Standing == nil {
		b.Standing = make(map[string]float64)
	}
	for _, name := range other.RateNames() {
		sum := b.Rates[name]
		v := other.Rates[name]
		amr.Add(&sum, &v)
		b.Rates[name] = sum
	}
	for _, name := range other.StandingNames() {
		b.Standing[name] += other.Standing[name]
	}
	b.Differential = b.Differential || other.Differential
}

// ScaleStanding returns a copy with every standing charge multiplied by k.
func (b CostBreakdown) ScaleStanding(k float64) CostBreakdown {
	out := NewCostBreakdown(b.TariffName)
	out.Differential = b.Differential
	for name, v := range b.Rates {
		out.Rates[name] = v
	}
	for name, v := range b.Standing {
		out.Standing[name] = v * k
	}
	return out
}

// Clone returns a copy that shares no maps with b.
func (b CostBreakdown) Clone() CostBreakdown { return b.ScaleStanding(1) }

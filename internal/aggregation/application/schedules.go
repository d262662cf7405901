package application

import (
	"fmt"
	"sync"
	"time"

	amr "energy-costing/internal/amr/domain"
	meter "energy-costing/internal/meter/domain"
	tariff "energy-costing/internal/tariff/domain"
)

// CombinedCostSchedule prices an aggregate by costing every component on its
// own reading and summing the breakdowns bucket by bucket.
type CombinedCostSchedule struct {
	name         string
	differential bool
	components   []*meter.Meter
}

// NewCombinedCostSchedule constructs a combined schedule over the components.
func NewCombinedCostSchedule(name string, differential bool, components []*meter.Meter) *CombinedCostSchedule {
	return &CombinedCostSchedule{
		name:         name,
		differential: differential,
		components:   append([]*meter.Meter(nil), components...),
	}
}

// Cost ignores kwh; components absent on date contribute nothing.
func (s *CombinedCostSchedule) Cost(date time.Time, _ *amr.HalfHourVector) (tariff.CostBreakdown, error) {
	total := tariff.NewCostBreakdown(s.name)
	total.Differential = s.differential
	for _, c := range s.components {
		kwh := c.Series.VectorFor(date)
		if kwh == nil {
			continue
		}
		b, err := c.Cost(date, kwh)
		if err != nil {
			return tariff.CostBreakdown{}, fmt.Errorf("aggregation: cost %s on %s: %w", c.MPXN, amr.FormatDay(date), err)
		}
		total.Accumulate(b)
	}
	return total, nil
}

type sharedKey struct {
	date time.Time
	kwh  amr.HalfHourVector
}

// SharedCostSchedule prices an aggregate's own kWh through one tariff manager,
// caching by date and reading. Standing charges are billed once per component
// present on the date.
type SharedCostSchedule struct {
	tariffs    meter.Tariffs
	components []*meter.Meter

	mu    sync.Mutex
	cache map[sharedKey]tariff.CostBreakdown
}

// NewSharedCostSchedule constructs a shared schedule over components that all
// carry the same tariff configuration.
func NewSharedCostSchedule(tariffs meter.Tariffs, components []*meter.Meter) *SharedCostSchedule {
	return &SharedCostSchedule{
		tariffs:    tariffs,
		components: append([]*meter.Meter(nil), components...),
		cache:      make(map[sharedKey]tariff.CostBreakdown),
	}
}

func (s *SharedCostSchedule) Cost(date time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error) {
	if kwh == nil {
		return tariff.CostBreakdown{}, fmt.Errorf("%w on %s", meter.ErrNoReading, amr.FormatDay(date))
	}
	key := sharedKey{date: amr.TruncateDay(date), kwh: *kwh}

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return cached.Clone(), nil
	}

	b, err := s.tariffs.AccountingCost(date, kwh)
	if err != nil {
		return tariff.CostBreakdown{}, err
	}
	b = b.ScaleStanding(float64(s.present(date)))
	s.mu.Lock()
	s.cache[key] = b.Clone()
	s.mu.Unlock()
	return b, nil
}

// present counts the components with a reading on date, at least one.
func (s *SharedCostSchedule) present(date time.Time) int {
	n := 0
	for _, c := range s.components {
		if c.Series != nil && c.Series.DateExists(date) {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

// Cached returns the number of cached days.
func (s *SharedCostSchedule) Cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// ProportionedCostSchedule prices one side of a split meter. Rates come from the
// side's own kWh; standing charges are shared in proportion to each side's rate £,
// going wholly to the remainder side when neither side costs anything.
type ProportionedCostSchedule struct {
	tariffs   meter.Tariffs
	other     *amr.Series
	remainder bool
}

// NewProportionedCostSchedule constructs the schedule for one side; other is the
// opposite side's series.
func NewProportionedCostSchedule(tariffs meter.Tariffs, other *amr.Series, remainder bool) *ProportionedCostSchedule {
	return &ProportionedCostSchedule{tariffs: tariffs, other: other, remainder: remainder}
}

func (s *ProportionedCostSchedule) Cost(date time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error) {
	if kwh == nil {
		return tariff.CostBreakdown{}, fmt.Errorf("%w on %s", meter.ErrNoReading, amr.FormatDay(date))
	}
	own, err := s.tariffs.AccountingCost(date, kwh)
	if err != nil {
		return tariff.CostBreakdown{}, err
	}
	otherKWh := s.other.VectorFor(date)
	if otherKWh == nil {
		otherKWh = &amr.HalfHourVector{}
	}
	other, err := s.tariffs.AccountingCost(date, otherKWh)
	if err != nil {
		return tariff.CostBreakdown{}, err
	}
	return own.ScaleStanding(standingShare(own.RatesTotal(), other.RatesTotal(), s.remainder)), nil
}

const costEpsilon = 1e-9

func standingShare(own, other float64, remainder bool) float64 {
	total := own + other
	if total < costEpsilon {
		if remainder {
			return 1
		}
		return 0
	}
	return own / total
}

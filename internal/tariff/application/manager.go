package application

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	amr "energy-costing/internal/amr/domain"
	tariff "energy-costing/internal/tariff/domain"
)

// Option configures the manager.
type Option func(*Manager)

// WithCalendar sets the weekend calendar used for weekday/weekend tariffs.
func WithCalendar(calendar tariff.Calendar) Option {
	return func(m *Manager) {
		if calendar != nil {
			m.calendar = calendar
		}
	}
}

// WithLevyTable sets the Climate Change Levy lookup.
func WithLevyTable(levies tariff.LevyLookup) Option {
	return func(m *Manager) {
		if levies != nil {
			m.levies = levies
		}
	}
}

// WithValidation sets how differential time-range problems are treated.
func WithValidation(mode tariff.ValidationMode) Option {
	return func(m *Manager) {
		m.mode = mode
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

type resolution struct {
	tariff *tariff.AccountingTariff
	err    error
}

// Manager selects the accounting tariff applying to one meter on a date. Its
// resolution cache belongs to the instance and is never shared across meters.
type Manager struct {
	meterID               string
	fuel                  amr.FuelType
	economic              *tariff.EconomicTariff
	accounting            []*tariff.AccountingTariff
	overrides             []*tariff.AccountingTariff
	merges                []*tariff.AccountingTariff
	differentialOverrides []tariff.DifferentialOverride
	diagnostics           []tariff.Diagnostic

	calendar tariff.Calendar
	levies   tariff.LevyLookup
	mode     tariff.ValidationMode
	logger   *log.Logger

	mu    sync.Mutex
	cache map[time.Time]resolution
}

// NewManager builds and validates the tariffs of one meter.
func NewManager(meterID string, fuel amr.FuelType, attrs tariff.AttributeSet, opts ...Option) (*Manager, error) {
	if meterID == "" {
		return nil, errors.New("tariff manager: empty meter id")
	}
	m := &Manager{
		meterID:               meterID,
		fuel:                  fuel,
		differentialOverrides: append([]tariff.DifferentialOverride(nil), attrs.DifferentialOverrides...),
		calendar:              tariff.WeekendCalendar{},
		logger:                log.Default(),
		cache:                 make(map[time.Time]resolution),
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	if m.accounting, err = m.build(attrs.Accounting); err != nil {
		return nil, err
	}
	if m.overrides, err = m.build(attrs.Overrides); err != nil {
		return nil, err
	}
	if m.merges, err = m.build(attrs.Merges); err != nil {
		return nil, err
	}
	if attrs.Economic != nil {
		var diagnostics []tariff.Diagnostic
		m.economic, diagnostics = tariff.NewEconomicTariff(*attrs.Economic)
		m.diagnostics = append(m.diagnostics, diagnostics...)
	}

	if err := validateOverlaps(m.accounting, true); err != nil {
		return nil, fmt.Errorf("meter %s: %w", meterID, err)
	}
	if err := validateOverlaps(m.accounting, false); err != nil {
		return nil, fmt.Errorf("meter %s: %w", meterID, err)
	}

	for _, d := range m.diagnostics {
		m.logger.Printf("event=tariff.diagnostic meter_id=%s code=%s tariff=%q message=%q", meterID, d.Code, d.Tariff, d.Message)
	}
	return m, nil
}

func (m *Manager) build(specs []tariff.AccountingTariff) ([]*tariff.AccountingTariff, error) {
	out := make([]*tariff.AccountingTariff, 0, len(specs))
	for _, spec := range specs {
		if spec.Fuel == "" {
			spec.Fuel = m.fuel
		}
		t, err := tariff.NewAccountingTariff(spec, m.mode)
		if err != nil {
			return nil, fmt.Errorf("meter %s: %w", m.meterID, err)
		}
		m.diagnostics = append(m.diagnostics, t.Diagnostics()...)
		out = append(out, t)
	}
	return out, nil
}

// validateOverlaps rejects overlapping tariffs within one default tier. The
// only overlap allowed is one weekday tariff against one weekend tariff.
func validateOverlaps(tariffs []*tariff.AccountingTariff, isDefault bool) error {
	var tier []*tariff.AccountingTariff
	for _, t := range tariffs {
		if t.Default == isDefault {
			tier = append(tier, t)
		}
	}
	for i := 0; i < len(tier); i++ {
		for j := i + 1; j < len(tier); j++ {
			a, b := tier[i], tier[j]
			if !a.Overlaps(b) {
				continue
			}
			if err := overlapError(a, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func overlapError(a, b *tariff.AccountingTariff) error {
	pair := fmt.Sprintf("%q and %q", a.Name, b.Name)
	switch {
	case a.Tag == tariff.AllDays && b.Tag == tariff.AllDays:
		return fmt.Errorf("%w: %s", tariff.ErrOverlappingTariffs, pair)
	case a.Tag == tariff.AllDays || b.Tag == tariff.AllDays:
		return fmt.Errorf("%w: %s", tariff.ErrMixedWeekdayWeekendTariffs, pair)
	case a.Tag == tariff.WeekdaysOnly && b.Tag == tariff.WeekdaysOnly:
		return fmt.Errorf("%w: %s", tariff.ErrTooManyWeekdayTariffs, pair)
	case a.Tag == tariff.WeekendsOnly && b.Tag == tariff.WeekendsOnly:
		return fmt.Errorf("%w: %s", tariff.ErrTooManyWeekendTariffs, pair)
	}
	return nil
}

// MeterID returns the meter the manager prices.
func (m *Manager) MeterID() string { return m.meterID }

// Fuel returns the meter's fuel type.
func (m *Manager) Fuel() amr.FuelType { return m.fuel }

// Diagnostics returns the soft validation issues collected at construction.
func (m *Manager) Diagnostics() []tariff.Diagnostic {
	return append([]tariff.Diagnostic(nil), m.diagnostics...)
}

// IsWeekend applies the manager's calendar.
func (m *Manager) IsWeekend(date time.Time) bool { return m.calendar.IsWeekend(date) }

// AccountingTariffForDate returns the tariff applying on date, or nil when the
// meter has no accounting tariffs covering it. Results are memoized per date.
func (m *Manager) AccountingTariffForDate(date time.Time) (*tariff.AccountingTariff, error) {
	date = amr.TruncateDay(date)
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.cache[date]; ok {
		return r.tariff, r.err
	}
	t, err := m.resolve(date)
	m.cache[date] = resolution{tariff: t, err: err}
	return t, err
}

func (m *Manager) resolve(date time.Time) (*tariff.AccountingTariff, error) {
	for _, t := range m.overrides {
		if t.Covers(date) {
			return t, nil
		}
	}
	if len(m.accounting) == 0 {
		return nil, nil
	}

	candidates := covering(m.accounting, date, false)
	if len(candidates) == 0 {
		candidates = covering(m.accounting, date, true)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	selected, err := m.selectByDay(date, candidates)
	if err != nil {
		return nil, fmt.Errorf("meter %s on %s: %w", m.meterID, amr.FormatDay(date), err)
	}
	for _, merge := range m.merges {
		if merge.Covers(date) {
			selected = tariff.Merge(selected, merge)
		}
	}
	return selected, nil
}

func covering(tariffs []*tariff.AccountingTariff, date time.Time, isDefault bool) []*tariff.AccountingTariff {
	var out []*tariff.AccountingTariff
	for _, t := range tariffs {
		if t.Default == isDefault && t.Covers(date) {
			out = append(out, t)
		}
	}
	return out
}

func (m *Manager) selectByDay(date time.Time, candidates []*tariff.AccountingTariff) (*tariff.AccountingTariff, error) {
	var weekdays, weekends, untagged []*tariff.AccountingTariff
	for _, t := range candidates {
		switch t.Tag {
		case tariff.WeekdaysOnly:
			weekdays = append(weekdays, t)
		case tariff.WeekendsOnly:
			weekends = append(weekends, t)
		default:
			untagged = append(untagged, t)
		}
	}

	if len(weekdays) == 0 && len(weekends) == 0 {
		if len(untagged) > 1 {
			return nil, fmt.Errorf("%w: %s", tariff.ErrOverlappingTariffs, names(untagged))
		}
		return untagged[0], nil
	}
	switch {
	case len(untagged) > 0:
		return nil, fmt.Errorf("%w: %s", tariff.ErrMixedWeekdayWeekendTariffs, names(candidates))
	case len(weekdays) > 1:
		return nil, fmt.Errorf("%w: %s", tariff.ErrTooManyWeekdayTariffs, names(weekdays))
	case len(weekends) > 1:
		return nil, fmt.Errorf("%w: %s", tariff.ErrTooManyWeekendTariffs, names(weekends))
	case len(weekdays) == 0:
		return nil, fmt.Errorf("%w: %s", tariff.ErrMissingWeekdayTariff, names(weekends))
	case len(weekends) == 0:
		return nil, fmt.Errorf("%w: %s", tariff.ErrMissingWeekendTariff, names(weekdays))
	}
	if m.calendar.IsWeekend(date) {
		return weekends[0], nil
	}
	return weekdays[0], nil
}

func names(tariffs []*tariff.AccountingTariff) string {
	out := make([]string, 0, len(tariffs))
	for _, t := range tariffs {
		out = append(out, fmt.Sprintf("%q", t.Name))
	}
	return strings.Join(out, ", ")
}

func (m *Manager) differentialOverride(date time.Time) (bool, bool) {
	for _, o := range m.differentialOverrides {
		if o.Covers(date) {
			return o.Differential, true
		}
	}
	return false, false
}

// DifferentialTariffOnDate reports whether costs on date depend on time of day.
// An explicit differential override wins; a date with no tariff is not differential.
func (m *Manager) DifferentialTariffOnDate(date time.Time) (bool, error) {
	if differential, ok := m.differentialOverride(date); ok {
		return differential, nil
	}
	t, err := m.AccountingTariffForDate(date)
	if err != nil || t == nil {
		return false, err
	}
	return t.Differential(), nil
}

// DifferentialTariffBetween reports whether any date in [start, end] is differential.
func (m *Manager) DifferentialTariffBetween(start, end time.Time) (bool, error) {
	var (
		found bool
		err   error
	)
	amr.EachDay(start, end, func(day time.Time) bool {
		found, err = m.DifferentialTariffOnDate(day)
		return err == nil && !found
	})
	return found, err
}

// AccountingCost prices one day under the tariff resolved for date.
func (m *Manager) AccountingCost(date time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error) {
	t, err := m.AccountingTariffForDate(date)
	if err != nil {
		return tariff.CostBreakdown{}, err
	}
	if t == nil {
		return tariff.CostBreakdown{}, fmt.Errorf("%w: meter %s on %s", tariff.ErrMissingAccountingTariff, m.meterID, amr.FormatDay(date))
	}
	cost, err := t.Cost(date, kwh, m.calendar.IsWeekend(date), m.levies)
	if err != nil {
		return tariff.CostBreakdown{}, fmt.Errorf("meter %s on %s: %w", m.meterID, amr.FormatDay(date), err)
	}
	if differential, ok := m.differentialOverride(date); ok {
		cost.Differential = differential
	}
	return cost, nil
}

// EconomicCost prices one day under the economic tariff. The day/night split is
// used only on dates the accounting side reports as differential.
func (m *Manager) EconomicCost(date time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error) {
	if m.economic == nil {
		return tariff.CostBreakdown{}, fmt.Errorf("%w: meter %s", tariff.ErrMissingEconomicTariff, m.meterID)
	}
	differential, err := m.DifferentialTariffOnDate(date)
	if err != nil {
		return tariff.CostBreakdown{}, err
	}
	return m.economic.Cost(kwh, differential), nil
}

// Fingerprint describes the meter's whole tariff configuration. Managers with equal
// fingerprints price identical consumption identically.
func (m *Manager) Fingerprint() string {
	var b strings.Builder
	for _, group := range [][]*tariff.AccountingTariff{m.accounting, m.overrides, m.merges} {
		for _, t := range group {
			b.WriteString(t.Fingerprint())
			b.WriteByte(';')
		}
		b.WriteByte('#')
	}
	for _, o := range m.differentialOverrides {
		fmt.Fprintf(&b, "%s..%s=%t;", amr.FormatDay(o.Start), amr.FormatDay(o.End), o.Differential)
	}
	return b.String()
}

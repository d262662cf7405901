package meter

import (
	"errors"
	"fmt"
	"time"

	amr "energy-costing/internal/amr/domain"
	tariff "energy-costing/internal/tariff/domain"

	"github.com/google/uuid"
)

var (
	// ErrNoCostSchedule is returned when a meter has neither tariffs nor a cost schedule.
	ErrNoCostSchedule = errors.New("meter: no cost schedule")
	// ErrNoCarbonSource is returned when a meter has no carbon collaborator.
	ErrNoCarbonSource = errors.New("meter: no carbon source")
	// ErrNoReading is returned when a meter has no reading for a date.
	ErrNoReading = errors.New("meter: no reading for date")
)

// SubMeterKind names a sub-meter slot on a parent meter.
type SubMeterKind string

const (
	SubMeterMainsConsume              SubMeterKind = "mains_consume"
	SubMeterGeneration                SubMeterKind = "generation"
	SubMeterExport                    SubMeterKind = "export"
	SubMeterSelfConsume               SubMeterKind = "self_consume"
	SubMeterMainsPlusSelfConsume      SubMeterKind = "mains_plus_self_consume"
	SubMeterStorageHeaters            SubMeterKind = "storage_heaters"
	SubMeterMainsIncludingStorageHeat SubMeterKind = "mains_including_storage_heaters"
)

// Tariffs is the per-meter tariff manager seen from the meter.
type Tariffs interface {
	AccountingCost(date time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error)
	EconomicCost(date time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error)
	DifferentialTariffOnDate(date time.Time) (bool, error)
	DifferentialTariffBetween(start, end time.Time) (bool, error)
	Fingerprint() string
}

// CostSchedule prices one day of a meter.
type CostSchedule interface {
	Cost(date time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error)
}

// CarbonSource returns per-slot emission factors in kg/kWh.
type CarbonSource interface {
	Factor(date time.Time) (amr.HalfHourVector, error)
}

// TariffSchedule prices a meter directly through its tariffs.
type TariffSchedule struct {
	Tariffs Tariffs
}

func (s TariffSchedule) Cost(date time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error) {
	return s.Tariffs.AccountingCost(date, kwh)
}

// AggregationRules are a meter's aggregation attributes.
type AggregationRules struct {
	IgnoreStartDate bool `mapstructure:"ignore_start_date"`
	IgnoreEndDate   bool `mapstructure:"ignore_end_date"`
}

// Meter is a physical or synthetic consumption point.
type Meter struct {
	MPXN         string
	ID           uuid.UUID
	Name         string
	Fuel         amr.FuelType
	Series       *amr.Series
	SubMeters    map[SubMeterKind]*Meter
	Rules        AggregationRules
	FloorArea    *float64
	Pupils       *int
	Tariffs      Tariffs
	CostSchedule CostSchedule
	CarbonSource CarbonSource
	Synthetic    bool
	// ComponentIDs lists the mpxns an aggregate was built from, comma separated.
	ComponentIDs string
}

// New returns a real meter with an id derived from its mpxn.
func New(mpxn, name string, fuel amr.FuelType, series *amr.Series) *Meter {
	return &Meter{
		MPXN:      mpxn,
		ID:        uuid.NewSHA1(namespace, []byte("mpxn/"+mpxn)),
		Name:      name,
		Fuel:      fuel,
		Series:    series,
		SubMeters: make(map[SubMeterKind]*Meter),
	}
}

// AggregatedSeries returns the meter's consumption series.
func (m *Meter) AggregatedSeries() *amr.Series { return m.Series }

// SubMeter returns the named sub-meter or nil.
func (m *Meter) SubMeter(kind SubMeterKind) *Meter { return m.SubMeters[kind] }

// SetSubMeter attaches a sub-meter.
func (m *Meter) SetSubMeter(kind SubMeterKind, sub *Meter) {
	if m.SubMeters == nil {
		m.SubMeters = make(map[SubMeterKind]*Meter)
	}
	m.SubMeters[kind] = sub
}

// Cost prices one day. Meters with an explicit schedule use it (aggregates may
// ignore kwh and sum their components); otherwise the meter's own tariffs apply.
func (m *Meter) Cost(date time.Time, kwh *amr.HalfHourVector) (tariff.CostBreakdown, error) {
	switch {
	case m.CostSchedule != nil:
		return m.CostSchedule.Cost(date, kwh)
	case m.Tariffs != nil:
		return m.Tariffs.AccountingCost(date, kwh)
	default:
		return tariff.CostBreakdown{}, fmt.Errorf("%w: %s", ErrNoCostSchedule, m.MPXN)
	}
}

// CostOn prices the meter's own reading for date.
func (m *Meter) CostOn(date time.Time) (tariff.CostBreakdown, error) {
	kwh := m.Series.VectorFor(date)
	if kwh == nil {
		return tariff.CostBreakdown{}, fmt.Errorf("%w: %s on %s", ErrNoReading, m.MPXN, amr.FormatDay(date))
	}
	return m.Cost(date, kwh)
}

// Carbon returns the day's half-hourly emissions in kg.
func (m *Meter) Carbon(date time.Time) (amr.HalfHourVector, error) {
	if m.CarbonSource == nil {
		return amr.HalfHourVector{}, fmt.Errorf("%w: %s", ErrNoCarbonSource, m.MPXN)
	}
	kwh := m.Series.VectorFor(date)
	if kwh == nil {
		return amr.HalfHourVector{}, fmt.Errorf("%w: %s on %s", ErrNoReading, m.MPXN, amr.FormatDay(date))
	}
	factor, err := m.CarbonSource.Factor(date)
	if err != nil {
		return amr.HalfHourVector{}, err
	}
	return amr.Multiply(kwh, &factor), nil
}

package application

import (
	"context"
	"errors"
	"testing"
	"time"

	amr "energy-costing/internal/amr/domain"
	meter "energy-costing/internal/meter/domain"
	tariff "energy-costing/internal/tariff/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flatYield float64

func (y flatYield) YieldPerKWp(time.Time) (amr.HalfHourVector, error) { return amr.Filled(float64(y)), nil }

type failingYield struct{}

func (failingYield) YieldPerKWp(time.Time) (amr.HalfHourVector, error) {
	return amr.HalfHourVector{}, errors.New("no yield data")
}

func TestReconcileSolarInvertsPositiveExport(t *testing.T) {
	mains := electricityMeter(t, "1", day(1), day(3), 1, 0.1)
	generation := meter.New("g", "pv", amr.FuelElectricity, filledSeries(t, "g", day(1), day(3), 2))
	export := meter.New("x", "export", amr.FuelElectricity, filledSeries(t, "x", day(1), day(3), 0.5))

	consolidated, err := newEngine(t).ReconcileSolar(context.Background(), SolarInput{
		Mains:      mains,
		Generation: generation,
		Export:     export,
	})
	require.NoError(t, err)

	assert.Equal(t, mains.MPXN, consolidated.MPXN)
	assert.Equal(t, amr.Filled(-0.5), *consolidated.SubMeter(meter.SubMeterExport).Series.VectorFor(day(2)))
	assert.Equal(t, amr.Filled(1.5), *consolidated.SubMeter(meter.SubMeterSelfConsume).Series.VectorFor(day(2)))
	assert.Equal(t, amr.Filled(2.5), *consolidated.AggregatedSeries().VectorFor(day(2)))
	for _, kind := range []meter.SubMeterKind{
		meter.SubMeterMainsConsume,
		meter.SubMeterGeneration,
		meter.SubMeterExport,
		meter.SubMeterSelfConsume,
		meter.SubMeterMainsPlusSelfConsume,
	} {
		assert.NotNil(t, consolidated.SubMeter(kind), kind)
	}
	assert.Equal(t, "x", consolidated.SubMeter(meter.SubMeterExport).MPXN)

	cost, err := consolidated.CostOn(day(2))
	require.NoError(t, err)
	assert.InDelta(t, 48*1*0.1, cost.Total(), 1e-9)
}

func TestNormaliseExportSignKeepsNegativeMajority(t *testing.T) {
	s := amr.NewSeries("x")
	v := amr.Filled(-1)
	v[0] = 2
	require.NoError(t, s.Add(day(1), v))

	assert.Same(t, s, NormaliseExportSign(s))

	mostlyPositive := amr.NewSeries("y")
	require.NoError(t, mostlyPositive.Add(day(1), amr.Filled(1)))
	flipped := NormaliseExportSign(mostlyPositive)
	assert.Equal(t, amr.Filled(-1), *flipped.VectorFor(day(1)))
}

func TestReconcileSolarAlignsToMainsWindow(t *testing.T) {
	mains := electricityMeter(t, "1", day(1), day(5), 1, 0.1)
	generation := meter.New("g", "pv", amr.FuelElectricity, filledSeries(t, "g", day(3), day(9), 1))
	export := meter.New("x", "export", amr.FuelElectricity, filledSeries(t, "x", day(3), day(9), -0.2))

	consolidated, err := newEngine(t).ReconcileSolar(context.Background(), SolarInput{Mains: mains, Generation: generation, Export: export})
	require.NoError(t, err)

	gen := consolidated.SubMeter(meter.SubMeterGeneration).Series
	assert.Equal(t, day(1), gen.StartDate())
	assert.Equal(t, day(5), gen.EndDate())
	assert.Equal(t, amr.HalfHourVector{}, *gen.VectorFor(day(2)))
	assert.Equal(t, amr.Filled(1), *gen.VectorFor(day(4)))
}

func TestReconcileSolarSynthesisesFromYield(t *testing.T) {
	mains := electricityMeter(t, "1", day(1), day(2), 0, 0.1)

	consolidated, err := newEngine(t).ReconcileSolar(context.Background(), SolarInput{
		Mains:       mains,
		KWp:         10,
		BaseloadKWh: 0.5,
		Yield:       flatYield(0.1),
	})
	require.NoError(t, err)

	gen := consolidated.SubMeter(meter.SubMeterGeneration)
	assert.True(t, gen.Synthetic)
	assert.Equal(t, "60000000123456", gen.MPXN)
	assert.Equal(t, amr.Filled(1), *gen.Series.VectorFor(day(1)))
	assert.Equal(t, amr.Filled(-0.5), *consolidated.SubMeter(meter.SubMeterExport).Series.VectorFor(day(1)))
	assert.Equal(t, amr.Filled(0.5), *consolidated.SubMeter(meter.SubMeterSelfConsume).Series.VectorFor(day(1)))
}

func TestReconcileSolarIncomplete(t *testing.T) {
	e := newEngine(t)
	_, err := e.ReconcileSolar(context.Background(), SolarInput{})
	assert.ErrorIs(t, err, ErrIncompleteSolarReconciliation)

	mains := electricityMeter(t, "1", day(1), day(2), 1, 0.1)
	_, err = e.ReconcileSolar(context.Background(), SolarInput{Mains: mains})
	assert.ErrorIs(t, err, ErrIncompleteSolarReconciliation)

	_, err = e.ReconcileSolar(context.Background(), SolarInput{Mains: mains, KWp: 5, Yield: failingYield{}})
	assert.Error(t, err)
}

func TestReconcileSolarRejectsUnrepresentableSyntheticMPXN(t *testing.T) {
	e, err := NewEngine(10_000_000_000_000, WithLogger(quietLogger()))
	require.NoError(t, err)
	mains := electricityMeter(t, "1", day(1), day(2), 0, 0.1)

	_, err = e.ReconcileSolar(context.Background(), SolarInput{Mains: mains, KWp: 10, Yield: flatYield(0.1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	// real members keep their identity but the mains-plus member is still synthetic
	generation := meter.New("g", "pv", amr.FuelElectricity, filledSeries(t, "g", day(1), day(2), 2))
	export := meter.New("x", "export", amr.FuelElectricity, filledSeries(t, "x", day(1), day(2), -0.5))
	selfConsume := meter.New("s", "self", amr.FuelElectricity, filledSeries(t, "s", day(1), day(2), 1.5))
	_, err = e.ReconcileSolar(context.Background(), SolarInput{Mains: mains, Generation: generation, Export: export, SelfConsume: selfConsume})
	assert.Error(t, err)
}

func chargeWindow(t *testing.T) ChargeWindowModel {
	t.Helper()
	from, err := tariff.ParseTimeOfDay("00:00")
	require.NoError(t, err)
	to, err := tariff.ParseTimeOfDay("07:00")
	require.NoError(t, err)
	return ChargeWindowModel{Windows: []tariff.TimeRange{{Start: from, End: to}}, BaseloadKWh: 0.5}
}

func TestSplitStorageHeatersProportionsStandingCharges(t *testing.T) {
	m := meter.New("1", "school", amr.FuelElectricity, filledSeries(t, "1", day(1), day(3), 2))
	m.Tariffs = flatManager(t, "1", amr.FuelElectricity, 0.1, tariff.StandingCharge{Name: "standing_charge", Rate: 9, Per: tariff.PerDay})

	storage, remainder, err := newEngine(t).SplitStorageHeaters(context.Background(), m, chargeWindow(t))
	require.NoError(t, err)

	assert.Equal(t, 21.0, amr.Total(storage.Series.VectorFor(day(1))))
	assert.Equal(t, 75.0, amr.Total(remainder.Series.VectorFor(day(1))))
	assert.Same(t, m, remainder.SubMeter(meter.SubMeterMainsIncludingStorageHeat))
	assert.Same(t, storage, remainder.SubMeter(meter.SubMeterStorageHeaters))
	assert.Equal(t, m.ID, remainder.ID)

	heat, err := storage.CostOn(day(1))
	require.NoError(t, err)
	rest, err := remainder.CostOn(day(1))
	require.NoError(t, err)
	assert.InDelta(t, 9*21.0/96.0, heat.StandingTotal(), 1e-9)
	assert.InDelta(t, 9.0, heat.StandingTotal()+rest.StandingTotal(), 1e-9)
	assert.InDelta(t, 2.1, heat.RatesTotal(), 1e-9)
}

func TestSplitStorageHeatersZeroCostGoesToRemainder(t *testing.T) {
	m := meter.New("1", "school", amr.FuelElectricity, filledSeries(t, "1", day(1), day(1), 0))
	m.Tariffs = flatManager(t, "1", amr.FuelElectricity, 0.1, tariff.StandingCharge{Name: "standing_charge", Rate: 9, Per: tariff.PerDay})

	storage, remainder, err := newEngine(t).SplitStorageHeaters(context.Background(), m, chargeWindow(t))
	require.NoError(t, err)

	heat, err := storage.CostOn(day(1))
	require.NoError(t, err)
	rest, err := remainder.CostOn(day(1))
	require.NoError(t, err)
	assert.Zero(t, heat.StandingTotal())
	assert.InDelta(t, 9.0, rest.StandingTotal(), 1e-9)
}

func TestCombineStorageHeaters(t *testing.T) {
	heated := meter.New("1", "main", amr.FuelElectricity, filledSeries(t, "1", day(1), day(3), 2))
	heated.Tariffs = flatManager(t, "1", amr.FuelElectricity, 0.1)
	plain := electricityMeter(t, "2", day(1), day(3), 1, 0.1)

	storage, electricity, err := newEngine(t).CombineStorageHeaters(context.Background(),
		[]*meter.Meter{plain, heated},
		map[string]StorageHeaterModel{"1": chargeWindow(t)},
	)
	require.NoError(t, err)

	require.NotNil(t, storage)
	assert.Equal(t, "1-storage_heater", storage.MPXN)
	assert.Equal(t, "90000000123456", electricity.MPXN)
	assert.Equal(t, 75.0+48.0, amr.Total(electricity.Series.VectorFor(day(2))))
	require.IsType(t, &CombinedCostSchedule{}, electricity.CostSchedule)

	_, _, err = newEngine(t).SplitStorageHeaters(context.Background(),
		meter.New("3", "gas", amr.FuelGas, filledSeries(t, "3", day(1), day(1), 1)), chargeWindow(t))
	assert.ErrorIs(t, err, ErrNotElectricity)
}

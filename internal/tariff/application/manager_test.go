package application

import (
	"bytes"
	"log"
	"testing"
	"time"

	amr "energy-costing/internal/amr/domain"
	tariff "energy-costing/internal/tariff/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flat(name string, rate float64, start, end time.Time) tariff.AccountingTariff {
	return tariff.AccountingTariff{
		Name:      name,
		StartDate: start,
		EndDate:   end,
		Rates:     &tariff.FlatRate{Rate: rate},
	}
}

func dayNight(t *testing.T) *tariff.DayNightRates {
	t.Helper()
	midnight, err := tariff.ParseTimeOfDay("00:00")
	require.NoError(t, err)
	morning, err := tariff.ParseTimeOfDay("07:00")
	require.NoError(t, err)
	end, err := tariff.ParseTimeOfDay("24:00")
	require.NoError(t, err)
	return &tariff.DayNightRates{
		Night: tariff.TimedRate{Range: tariff.TimeRange{Start: midnight, End: morning}, Rate: 0.08},
		Day:   tariff.TimedRate{Range: tariff.TimeRange{Start: morning, End: end}, Rate: 0.2},
	}
}

func quietLogger() *log.Logger { return log.New(&bytes.Buffer{}, "", 0) }

var (
	jan1  = amr.Day(2024, time.January, 1)
	dec31 = amr.Day(2024, time.December, 31)
)

func TestWeekdayWeekendPairResolution(t *testing.T) {
	weekday := flat("weekday", 0.2, jan1, dec31)
	weekday.Tag = tariff.WeekdaysOnly
	weekend := flat("weekend", 0.1, jan1, dec31)
	weekend.Tag = tariff.WeekendsOnly

	m, err := NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{
		Accounting: []tariff.AccountingTariff{weekday, weekend},
	}, WithLogger(quietLogger()))
	require.NoError(t, err)

	saturday, err := m.AccountingTariffForDate(amr.Day(2024, time.June, 8))
	require.NoError(t, err)
	assert.Equal(t, "weekend", saturday.Name)

	tuesday, err := m.AccountingTariffForDate(amr.Day(2024, time.June, 4))
	require.NoError(t, err)
	assert.Equal(t, "weekday", tuesday.Name)
}

func TestWeekdayWeekendResolutionErrors(t *testing.T) {
	tagged := func(name string, tag tariff.DayType) tariff.AccountingTariff {
		a := flat(name, 0.1, jan1, dec31)
		a.Tag = tag
		return a
	}
	tuesday := amr.Day(2024, time.June, 4)

	tests := []struct {
		name    string
		tariffs []tariff.AccountingTariff
		want    error
	}{
		{"missing weekday", []tariff.AccountingTariff{tagged("b", tariff.WeekendsOnly)}, tariff.ErrMissingWeekdayTariff},
		{"missing weekend", []tariff.AccountingTariff{tagged("a", tariff.WeekdaysOnly)}, tariff.ErrMissingWeekendTariff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{Accounting: tt.tariffs}, WithLogger(quietLogger()))
			require.NoError(t, err)

			_, err = m.AccountingTariffForDate(tuesday)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tariff.KindConfig, tariff.Kind(err))
		})
	}
}

func TestOverlappingTaggedTariffsRejectedAtConstruction(t *testing.T) {
	tagged := func(name string, tag tariff.DayType, start, end time.Time) tariff.AccountingTariff {
		a := flat(name, 0.1, start, end)
		a.Tag = tag
		return a
	}
	jun30 := amr.Day(2024, time.June, 30)

	tests := []struct {
		name    string
		tariffs []tariff.AccountingTariff
		want    error
	}{
		{"two weekday", []tariff.AccountingTariff{
			tagged("a", tariff.WeekdaysOnly, jan1, jun30),
			tagged("b", tariff.WeekdaysOnly, jun30, dec31),
			tagged("c", tariff.WeekendsOnly, jan1, dec31),
		}, tariff.ErrTooManyWeekdayTariffs},
		{"two weekend", []tariff.AccountingTariff{
			tagged("a", tariff.WeekdaysOnly, jan1, dec31),
			tagged("b", tariff.WeekendsOnly, jan1, jun30),
			tagged("c", tariff.WeekendsOnly, jun30, dec31),
		}, tariff.ErrTooManyWeekendTariffs},
		{"tagged and untagged", []tariff.AccountingTariff{
			tagged("a", tariff.WeekdaysOnly, jan1, dec31),
			tagged("b", tariff.WeekendsOnly, jan1, dec31),
			tagged("c", tariff.AllDays, jun30, dec31),
		}, tariff.ErrMixedWeekdayWeekendTariffs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{Accounting: tt.tariffs}, WithLogger(quietLogger()))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tariff.KindConfig, tariff.Kind(err))
		})
	}

	// consecutive weekday tariffs that do not overlap are fine
	_, err := NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{Accounting: []tariff.AccountingTariff{
		tagged("a", tariff.WeekdaysOnly, jan1, amr.Day(2024, time.June, 29)),
		tagged("b", tariff.WeekdaysOnly, jun30, dec31),
		tagged("c", tariff.WeekendsOnly, jan1, dec31),
	}}, WithLogger(quietLogger()))
	assert.NoError(t, err)
}

func TestOverlappingUntaggedTariffsRejected(t *testing.T) {
	_, err := NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{
		Accounting: []tariff.AccountingTariff{
			flat("a", 0.1, jan1, amr.Day(2024, time.June, 30)),
			flat("b", 0.1, amr.Day(2024, time.June, 30), dec31),
		},
	}, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, tariff.ErrOverlappingTariffs)

	defaultTier := flat("fallback", 0.3, time.Time{}, time.Time{})
	defaultTier.Default = true
	_, err = NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{
		Accounting: []tariff.AccountingTariff{flat("a", 0.1, jan1, dec31), defaultTier},
	}, WithLogger(quietLogger()))
	assert.NoError(t, err)
}

func TestPrecedence(t *testing.T) {
	fallback := flat("default", 0.3, time.Time{}, time.Time{})
	fallback.Default = true
	override := flat("override", 0.5, amr.Day(2024, time.March, 1), amr.Day(2024, time.March, 31))

	m, err := NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{
		Accounting: []tariff.AccountingTariff{flat("contract", 0.1, jan1, amr.Day(2024, time.June, 30)), fallback},
		Overrides:  []tariff.AccountingTariff{override},
	}, WithLogger(quietLogger()))
	require.NoError(t, err)

	tests := []struct {
		date time.Time
		want string
	}{
		{amr.Day(2024, time.February, 1), "contract"},
		{amr.Day(2024, time.March, 15), "override"},
		{amr.Day(2024, time.August, 1), "default"},
	}
	for _, tt := range tests {
		got, err := m.AccountingTariffForDate(tt.date)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Name, amr.FormatDay(tt.date))
	}
}

func TestMergeTariffApplied(t *testing.T) {
	merge := tariff.AccountingTariff{
		Name:            "duos",
		StartDate:       amr.Day(2024, time.April, 1),
		EndDate:         dec31,
		Rates:           &tariff.GenericRates{},
		StandingCharges: []tariff.StandingCharge{{Name: "agreed_capacity", Rate: 2, Per: tariff.PerDay}},
	}
	m, err := NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{
		Accounting: []tariff.AccountingTariff{flat("contract", 0.1, jan1, dec31)},
		Merges:     []tariff.AccountingTariff{merge},
	}, WithLogger(quietLogger()))
	require.NoError(t, err)

	kwh := amr.Filled(1)
	before, err := m.AccountingCost(amr.Day(2024, time.March, 1), &kwh)
	require.NoError(t, err)
	assert.Zero(t, before.StandingTotal())

	after, err := m.AccountingCost(amr.Day(2024, time.May, 1), &kwh)
	require.NoError(t, err)
	assert.Equal(t, 2.0, after.StandingTotal())
	assert.InDelta(t, 4.8, after.RatesTotal(), 1e-9)
}

func TestMissingAccountingTariff(t *testing.T) {
	m, err := NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{
		Accounting: []tariff.AccountingTariff{flat("contract", 0.1, jan1, dec31)},
	}, WithLogger(quietLogger()))
	require.NoError(t, err)

	got, err := m.AccountingTariffForDate(amr.Day(2025, time.January, 1))
	require.NoError(t, err)
	assert.Nil(t, got)

	kwh := amr.Filled(1)
	_, err = m.AccountingCost(amr.Day(2025, time.January, 1), &kwh)
	assert.ErrorIs(t, err, tariff.ErrMissingAccountingTariff)
	assert.Equal(t, tariff.KindData, tariff.Kind(err))

	differential, err := m.DifferentialTariffOnDate(amr.Day(2025, time.January, 1))
	require.NoError(t, err)
	assert.False(t, differential)
}

func TestDifferentialOverrideAndEconomicCost(t *testing.T) {
	e7 := tariff.AccountingTariff{Name: "e7", StartDate: jan1, EndDate: dec31, Rates: dayNight(t)}
	m, err := NewManager("mpan-1", amr.FuelElectricity, tariff.AttributeSet{
		Economic:   &tariff.EconomicTariff{Name: "economic", Rate: 0.15, DayNight: dayNight(t)},
		Accounting: []tariff.AccountingTariff{e7},
		DifferentialOverrides: []tariff.DifferentialOverride{
			{Start: amr.Day(2024, time.July, 1), End: amr.Day(2024, time.July, 31), Differential: false},
		},
	}, WithLogger(quietLogger()))
	require.NoError(t, err)

	june, err := m.DifferentialTariffOnDate(amr.Day(2024, time.June, 3))
	require.NoError(t, err)
	assert.True(t, june)
	july, err := m.DifferentialTariffOnDate(amr.Day(2024, time.July, 3))
	require.NoError(t, err)
	assert.False(t, july)

	kwh := amr.Filled(1)
	split, err := m.EconomicCost(amr.Day(2024, time.June, 3), &kwh)
	require.NoError(t, err)
	assert.InDelta(t, 14*0.08+34*0.2, split.RatesTotal(), 1e-9)

	flatCost, err := m.EconomicCost(amr.Day(2024, time.July, 3), &kwh)
	require.NoError(t, err)
	assert.InDelta(t, 48*0.15, flatCost.RatesTotal(), 1e-9)

	between, err := m.DifferentialTariffBetween(amr.Day(2024, time.July, 1), amr.Day(2024, time.August, 2))
	require.NoError(t, err)
	assert.True(t, between)
}

func TestStrictValidationRejectsIncompleteRanges(t *testing.T) {
	rates := dayNight(t)
	rates.Day.Range.End = tariff.TimeOfDay{Hour: 23, Minute: 30}
	attrs := tariff.AttributeSet{Accounting: []tariff.AccountingTariff{{Name: "e7", Rates: rates}}}

	m, err := NewManager("mpan-1", amr.FuelElectricity, attrs, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Len(t, m.Diagnostics(), 1)

	_, err = NewManager("mpan-1", amr.FuelElectricity, attrs, WithValidation(tariff.ValidationStrict), WithLogger(quietLogger()))
	assert.ErrorIs(t, err, tariff.ErrInvalidTimeRanges)
}

func TestCacheIsPerManager(t *testing.T) {
	date := amr.Day(2024, time.June, 4)
	a, err := NewManager("mpan-a", amr.FuelElectricity, tariff.AttributeSet{
		Accounting: []tariff.AccountingTariff{flat("a", 0.1, jan1, dec31)},
	}, WithLogger(quietLogger()))
	require.NoError(t, err)
	b, err := NewManager("mpan-b", amr.FuelElectricity, tariff.AttributeSet{
		Accounting: []tariff.AccountingTariff{flat("b", 0.2, jan1, dec31)},
	}, WithLogger(quietLogger()))
	require.NoError(t, err)

	ta, err := a.AccountingTariffForDate(date)
	require.NoError(t, err)
	tb, err := b.AccountingTariffForDate(date)
	require.NoError(t, err)
	assert.Equal(t, "a", ta.Name)
	assert.Equal(t, "b", tb.Name)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

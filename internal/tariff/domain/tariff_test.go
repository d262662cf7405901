package tariff

import (
	"math"
	"testing"
	"time"

	amr "energy-costing/internal/amr/domain"
	levy "energy-costing/internal/levy/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tod(t *testing.T, value string) TimeOfDay {
	t.Helper()
	v, err := ParseTimeOfDay(value)
	require.NoError(t, err)
	return v
}

func dayNight(t *testing.T, nightEnd, dayEnd string) *DayNightRates {
	return &DayNightRates{
		Night: TimedRate{Range: TimeRange{Start: tod(t, "00:00"), End: tod(t, nightEnd)}, Rate: 0.08},
		Day:   TimedRate{Range: TimeRange{Start: tod(t, nightEnd), End: tod(t, dayEnd)}, Rate: 0.20},
	}
}

func TestFlatTariffCost(t *testing.T) {
	flat, err := NewAccountingTariff(AccountingTariff{
		Name:            "flat",
		Fuel:            amr.FuelElectricity,
		Rates:           &FlatRate{Rate: 0.12},
		StandingCharges: []StandingCharge{{Name: "standing_charge", Rate: 38.35, Per: PerQuarter}},
	}, ValidationLenient)
	require.NoError(t, err)

	var kwh amr.HalfHourVector
	kwh[20] = 10
	cost, err := flat.Cost(amr.Day(2023, time.February, 14), &kwh, false, nil)

	require.NoError(t, err)
	assert.False(t, cost.Differential)
	assert.InDelta(t, 1.20, cost.Rates[BucketFlatRate][20], 1e-12)
	assert.InDelta(t, 1.20, cost.RatesTotal(), 1e-12)
	assert.InDelta(t, 38.35/90, cost.Standing["standing_charge"], 1e-12)
	assert.InDelta(t, 1.20+38.35/90, cost.Total(), 1e-12)
}

func TestStandingChargePeriods(t *testing.T) {
	date := amr.Day(2024, time.February, 10)

	perDay, err := StandingCharge{Name: "a", Rate: 1.5, Per: PerDay}.DailyAmount(date)
	require.NoError(t, err)
	assert.Equal(t, 1.5, perDay)

	perMonth, err := StandingCharge{Name: "b", Rate: 29, Per: PerMonth}.DailyAmount(date)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, perMonth, 1e-12)

	_, err = StandingCharge{Name: "c", Rate: 1, Per: "year"}.DailyAmount(date)
	assert.ErrorIs(t, err, ErrUnexpectedRateType)

	_, err = NewAccountingTariff(AccountingTariff{
		Name:            "bad",
		Rates:           &FlatRate{Rate: 0.1},
		StandingCharges: []StandingCharge{{Name: "c", Rate: 1, Per: "fortnight"}},
	}, ValidationLenient)
	assert.ErrorIs(t, err, ErrUnexpectedRateType)
	assert.Equal(t, KindConfig, Kind(err))
}

func TestDayNightCoverage(t *testing.T) {
	complete, err := NewAccountingTariff(AccountingTariff{Name: "e7", Rates: dayNight(t, "06:30", "24:00")}, ValidationStrict)
	require.NoError(t, err)
	assert.Empty(t, complete.Diagnostics())
	assert.True(t, complete.Differential())

	lenient, err := NewAccountingTariff(AccountingTariff{Name: "short", Rates: dayNight(t, "06:30", "23:30")}, ValidationLenient)
	require.NoError(t, err)
	diagnostics := lenient.Diagnostics()
	require.Len(t, diagnostics, 1)
	assert.Equal(t, DiagnosticGap, diagnostics[0].Code)
	assert.Equal(t, "short", diagnostics[0].Tariff)
	assert.Contains(t, diagnostics[0].Message, "23:30")

	_, err = NewAccountingTariff(AccountingTariff{Name: "short", Rates: dayNight(t, "06:30", "23:30")}, ValidationStrict)
	assert.ErrorIs(t, err, ErrInvalidTimeRanges)
}

func TestDayNightCostSplitsByMask(t *testing.T) {
	e7, err := NewAccountingTariff(AccountingTariff{Name: "e7", Rates: dayNight(t, "06:30", "24:00")}, ValidationLenient)
	require.NoError(t, err)

	kwh := amr.Filled(1)
	cost, err := e7.Cost(amr.Day(2023, time.May, 2), &kwh, false, nil)
	require.NoError(t, err)

	night := cost.Rates[BucketNightRate]
	day := cost.Rates[BucketDayRate]
	assert.InDelta(t, 13*0.08, amr.Total(&night), 1e-9)
	assert.InDelta(t, 35*0.20, amr.Total(&day), 1e-9)
	assert.Zero(t, night[13])
	assert.Zero(t, day[12])
}

func TestWrappingRangeMask(t *testing.T) {
	r := TimeRange{Start: tod(t, "23:00"), End: tod(t, "07:00")}
	mask := r.Mask()
	assert.Equal(t, 16.0, amr.Total(&mask))
	assert.Equal(t, 1.0, mask[46])
	assert.Equal(t, 1.0, mask[13])
	assert.Zero(t, mask[14])

	_, err := ParseTimeOfDay("24:30")
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
	assert.NotEmpty(t, CheckCoverage(TimeRange{Start: tod(t, "00:15"), End: tod(t, "24:00")}))
}

func TestTieredRate(t *testing.T) {
	tiered, err := NewAccountingTariff(AccountingTariff{
		Name:   "tiered",
		Source: SourceGeneric,
		Rates: &GenericRates{Buckets: []RateBucket{{
			Name: "rate0",
			Tiers: []Tier{
				{Low: 0, High: 5, Rate: 0.10},
				{Low: 5, High: math.Inf(1), Rate: 0.05},
			},
		}}},
	}, ValidationLenient)
	require.NoError(t, err)
	assert.True(t, tiered.Differential())

	var kwh amr.HalfHourVector
	kwh[0] = 8
	kwh[1] = 5
	kwh[2] = 3
	cost, err := tiered.Cost(amr.Day(2023, time.May, 2), &kwh, false, nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.50, cost.Rates["rate0_tier0"][0], 1e-12)
	assert.InDelta(t, 0.15, cost.Rates["rate0_tier1"][0], 1e-12)
	// exactly on the threshold: nothing billed in the upper tier
	assert.InDelta(t, 0.50, cost.Rates["rate0_tier0"][1], 1e-12)
	assert.Zero(t, cost.Rates["rate0_tier1"][1])
	assert.InDelta(t, 0.30, cost.Rates["rate0_tier0"][2], 1e-12)
	assert.Zero(t, cost.Rates["rate0_tier1"][2])
}

func TestGenericWeekdayWeekendBuckets(t *testing.T) {
	generic, err := NewAccountingTariff(AccountingTariff{
		Name: "school",
		Rates: &GenericRates{Buckets: []RateBucket{
			{Name: "rate0", DayType: WeekdaysOnly, Rate: 0.2},
			{Name: "rate1", DayType: WeekendsOnly, Rate: 0.1},
		}},
	}, ValidationStrict)
	require.NoError(t, err)

	kwh := amr.Filled(1)
	weekday, err := generic.Cost(amr.Day(2024, time.June, 4), &kwh, false, nil)
	require.NoError(t, err)
	weekend, err := generic.Cost(amr.Day(2024, time.June, 8), &kwh, true, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"rate0"}, weekday.RateNames())
	assert.Equal(t, []string{"rate1"}, weekend.RateNames())
	assert.InDelta(t, 4.8, weekend.RatesTotal(), 1e-9)
}

func TestSingleFlatGenericIsNotDifferential(t *testing.T) {
	generic, err := NewAccountingTariff(AccountingTariff{
		Name:  "generic",
		Rates: &GenericRates{Buckets: []RateBucket{{Name: "rate0", Rate: 0.15}}},
	}, ValidationLenient)
	require.NoError(t, err)
	assert.False(t, generic.Differential())
}

func TestWholeDayGenericBucketsStackWithoutDiagnostics(t *testing.T) {
	generic, err := NewAccountingTariff(AccountingTariff{
		Name: "generic",
		Rates: &GenericRates{Buckets: []RateBucket{
			{Name: "rate0", Rate: 0.15},
			{Name: "rate1", Rate: 0.02},
		}},
	}, ValidationStrict)
	require.NoError(t, err)
	assert.Empty(t, generic.Diagnostics())
	assert.False(t, generic.Differential())

	kwh := amr.Filled(1)
	cost, err := generic.Cost(amr.Day(2024, time.June, 4), &kwh, false, nil)
	require.NoError(t, err)
	assert.InDelta(t, 48*0.17, cost.RatesTotal(), 1e-9)

	// a whole-day adder alongside a day/night split is not an overlap
	split, err := NewAccountingTariff(AccountingTariff{
		Name: "split",
		Rates: &GenericRates{Buckets: []RateBucket{
			{Name: "rate0", Range: &TimeRange{Start: tod(t, "00:00"), End: tod(t, "07:00")}, Rate: 0.08},
			{Name: "rate1", Range: &TimeRange{Start: tod(t, "07:00"), End: tod(t, "24:00")}, Rate: 0.2},
			{Name: "rate2", Rate: 0.01},
		}},
	}, ValidationStrict)
	require.NoError(t, err)
	assert.Empty(t, split.Diagnostics())
	assert.True(t, split.Differential())
}

func TestEmbeddedLevy(t *testing.T) {
	table, err := levy.NewTable(map[amr.FuelType][]levy.Bracket{
		amr.FuelElectricity: {{Start: amr.Day(2023, time.April, 1), End: amr.Day(2024, time.March, 31), Rate: 0.00775}},
	})
	require.NoError(t, err)

	generic, err := NewAccountingTariff(AccountingTariff{
		Name:              "with levy",
		Fuel:              amr.FuelElectricity,
		ClimateChangeLevy: true,
		Rates: &GenericRates{Buckets: []RateBucket{
			{Name: "rate0", Rate: 0.15},
			{Name: levy.BucketName, Rate: 99},
		}},
	}, ValidationLenient)
	require.NoError(t, err)

	kwh := amr.Filled(2)
	cost, err := generic.Cost(amr.Day(2023, time.July, 3), &kwh, false, table)
	require.NoError(t, err)
	levyCost := cost.Rates["climate_change_levy__2023_2024"]
	assert.InDelta(t, 96*0.00775, amr.Total(&levyCost), 1e-9)
	_, stale := cost.Rates[levy.BucketName]
	assert.False(t, stale)

	_, err = generic.Cost(amr.Day(2024, time.July, 3), &kwh, false, table)
	assert.ErrorIs(t, err, levy.ErrMissingLevyData)
}

func TestMergeOverridesByName(t *testing.T) {
	base, err := NewAccountingTariff(AccountingTariff{
		Name:      "base",
		StartDate: amr.Day(2023, time.January, 1),
		EndDate:   amr.Day(2023, time.December, 31),
		Rates: &GenericRates{Buckets: []RateBucket{
			{Name: "rate0", Range: &TimeRange{Start: tod(t, "07:00"), End: tod(t, "24:00")}, Rate: 0.2},
			{Name: "rate1", Range: &TimeRange{Start: tod(t, "00:00"), End: tod(t, "07:00")}, Rate: 0.1},
		}},
		StandingCharges: []StandingCharge{{Name: "fixed", Rate: 1, Per: PerDay}},
	}, ValidationStrict)
	require.NoError(t, err)
	overlay, err := NewAccountingTariff(AccountingTariff{
		Name:              "duos",
		Rates:             &GenericRates{Buckets: []RateBucket{{Name: "rate1", Range: &TimeRange{Start: tod(t, "00:00"), End: tod(t, "07:00")}, Rate: 0.05}}},
		StandingCharges:   []StandingCharge{{Name: "fixed", Rate: 2, Per: PerDay}, {Name: "agreed_capacity", Rate: 3, Per: PerDay}},
		ClimateChangeLevy: true,
	}, ValidationLenient)
	require.NoError(t, err)

	merged := Merge(base, overlay)

	assert.Equal(t, base.StartDate, merged.StartDate)
	assert.True(t, merged.ClimateChangeLevy)
	assert.Empty(t, merged.Diagnostics())
	kwh := amr.Filled(1)
	merged.ClimateChangeLevy = false
	cost, err := merged.Cost(amr.Day(2023, time.March, 1), &kwh, false, nil)
	require.NoError(t, err)
	night := cost.Rates["rate1"]
	assert.InDelta(t, 14*0.05, amr.Total(&night), 1e-9)
	assert.Equal(t, 2.0, cost.Standing["fixed"])
	assert.Equal(t, 3.0, cost.Standing["agreed_capacity"])

	// base is untouched
	baseCost, err := base.Cost(amr.Day(2023, time.March, 1), &kwh, false, nil)
	require.NoError(t, err)
	baseNight := baseCost.Rates["rate1"]
	assert.InDelta(t, 14*0.1, amr.Total(&baseNight), 1e-9)
}

func TestEconomicCost(t *testing.T) {
	economic, diagnostics := NewEconomicTariff(EconomicTariff{Name: "economic", Rate: 0.15, DayNight: dayNight(t, "07:00", "24:00")})
	assert.Empty(t, diagnostics)

	kwh := amr.Filled(1)
	flat := economic.Cost(&kwh, false)
	assert.InDelta(t, 48*0.15, flat.RatesTotal(), 1e-9)

	split := economic.Cost(&kwh, true)
	assert.True(t, split.Differential)
	assert.InDelta(t, 14*0.08+34*0.20, split.RatesTotal(), 1e-9)
}

func TestInvalidDateRange(t *testing.T) {
	_, err := NewAccountingTariff(AccountingTariff{
		Name:      "inverted",
		StartDate: amr.Day(2023, time.May, 2),
		EndDate:   amr.Day(2023, time.May, 1),
		Rates:     &FlatRate{Rate: 0.1},
	}, ValidationLenient)
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = NewAccountingTariff(AccountingTariff{Name: "empty"}, ValidationLenient)
	assert.ErrorIs(t, err, ErrMissingRates)
}

func TestAccumulateAndScale(t *testing.T) {
	a := NewCostBreakdown("a")
	a.Rates["flat_rate"] = amr.Filled(1)
	a.Standing["fixed"] = 2
	b := NewCostBreakdown("b")
	b.Rates["flat_rate"] = amr.Filled(0.5)
	b.Rates["daytime_rate"] = amr.Filled(0.25)
	b.Standing["fixed"] = 1
	b.Differential = true

	a.Accumulate(b)
	assert.True(t, a.Differential)
	assert.InDelta(t, 48*1.75, a.RatesTotal(), 1e-9)
	assert.Equal(t, 3.0, a.StandingTotal())

	half := a.ScaleStanding(0.5)
	assert.Equal(t, 1.5, half.StandingTotal())
	assert.Equal(t, a.RatesTotal(), half.RatesTotal())
}

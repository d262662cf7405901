package attributes

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	amr "energy-costing/internal/amr/domain"
	meter "energy-costing/internal/meter/domain"
	tariff "energy-costing/internal/tariff/domain"

	"github.com/mitchellh/mapstructure"
)

// ErrInvalidAttributes is returned when a raw record cannot be decoded.
var ErrInvalidAttributes = errors.New("attributes: invalid record")

const perKWh = "kwh"

type tierRecord struct {
	Low  float64  `mapstructure:"low"`
	High *float64 `mapstructure:"high"`
	Rate float64  `mapstructure:"rate"`
}

type rateRecord struct {
	Rate    float64      `mapstructure:"rate"`
	Per     string       `mapstructure:"per"`
	From    string       `mapstructure:"from"`
	To      string       `mapstructure:"to"`
	Weekday bool         `mapstructure:"weekday"`
	Weekend bool         `mapstructure:"weekend"`
	Tiers   []tierRecord `mapstructure:"tiers"`
}

type tariffRecord struct {
	Name              string                `mapstructure:"name"`
	Source            string                `mapstructure:"source"`
	StartDate         string                `mapstructure:"start_date"`
	EndDate           string                `mapstructure:"end_date"`
	Default           bool                  `mapstructure:"default"`
	Weekday           *bool                 `mapstructure:"weekday"`
	Weekend           *bool                 `mapstructure:"weekend"`
	ClimateChangeLevy bool                  `mapstructure:"climate_change_levy"`
	Rates             map[string]rateRecord `mapstructure:"rates"`
}

type differentialRecord struct {
	StartDate    string `mapstructure:"start_date"`
	EndDate      string `mapstructure:"end_date"`
	Differential bool   `mapstructure:"differential"`
}

type windowRecord struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

type storageHeaterRecord struct {
	ChargeWindows []windowRecord `mapstructure:"charge_windows"`
	BaseloadKWh   float64        `mapstructure:"baseload_kwh"`
}

type solarRecord struct {
	KWp         float64 `mapstructure:"kwp"`
	BaseloadKWh float64 `mapstructure:"baseload_kwh"`
}

type meterRecord struct {
	Economic              *tariffRecord          `mapstructure:"economic_tariff"`
	Accounting            []tariffRecord         `mapstructure:"accounting_tariffs"`
	Overrides             []tariffRecord         `mapstructure:"override_tariffs"`
	Merges                []tariffRecord         `mapstructure:"merge_tariffs"`
	DifferentialOverrides []differentialRecord   `mapstructure:"differential_overrides"`
	Aggregation           meter.AggregationRules `mapstructure:"aggregation"`
	StorageHeaters        *storageHeaterRecord   `mapstructure:"storage_heaters"`
	SolarPV               *solarRecord           `mapstructure:"solar_pv"`
}

// StorageHeaterConfig configures the charge-window storage heater model.
type StorageHeaterConfig struct {
	ChargeWindows []tariff.TimeRange
	BaseloadKWh   float64
}

// SolarConfig configures synthesised solar members.
type SolarConfig struct {
	KWp         float64
	BaseloadKWh float64
}

// MeterAttributes is one meter's decoded attribute record.
type MeterAttributes struct {
	Tariffs        tariff.AttributeSet
	Aggregation    meter.AggregationRules
	StorageHeaters *StorageHeaterConfig
	Solar          *SolarConfig
}

// Parse decodes a raw attribute record.
func Parse(raw map[string]any) (MeterAttributes, error) {
	var rec meterRecord
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rec,
	})
	if err != nil {
		return MeterAttributes{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return MeterAttributes{}, fmt.Errorf("%w: %v", ErrInvalidAttributes, err)
	}

	out := MeterAttributes{Aggregation: rec.Aggregation}
	if rec.Economic != nil {
		if out.Tariffs.Economic, err = economicTariff(*rec.Economic); err != nil {
			return MeterAttributes{}, err
		}
	}
	if out.Tariffs.Accounting, err = accountingTariffs(rec.Accounting); err != nil {
		return MeterAttributes{}, err
	}
	if out.Tariffs.Overrides, err = accountingTariffs(rec.Overrides); err != nil {
		return MeterAttributes{}, err
	}
	if out.Tariffs.Merges, err = accountingTariffs(rec.Merges); err != nil {
		return MeterAttributes{}, err
	}
	for _, d := range rec.DifferentialOverrides {
		start, end, err := dates(d.StartDate, d.EndDate)
		if err != nil {
			return MeterAttributes{}, err
		}
		out.Tariffs.DifferentialOverrides = append(out.Tariffs.DifferentialOverrides, tariff.DifferentialOverride{
			Start:        start,
			End:          end,
			Differential: d.Differential,
		})
	}

	if rec.StorageHeaters != nil {
		cfg := &StorageHeaterConfig{BaseloadKWh: rec.StorageHeaters.BaseloadKWh}
		for _, w := range rec.StorageHeaters.ChargeWindows {
			r, err := timeRange(w.From, w.To)
			if err != nil {
				return MeterAttributes{}, err
			}
			cfg.ChargeWindows = append(cfg.ChargeWindows, r)
		}
		out.StorageHeaters = cfg
	}
	if rec.SolarPV != nil {
		out.Solar = &SolarConfig{KWp: rec.SolarPV.KWp, BaseloadKWh: rec.SolarPV.BaseloadKWh}
	}
	return out, nil
}

func accountingTariffs(records []tariffRecord) ([]tariff.AccountingTariff, error) {
	out := make([]tariff.AccountingTariff, 0, len(records))
	for _, rec := range records {
		t, err := accountingTariff(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func accountingTariff(rec tariffRecord) (tariff.AccountingTariff, error) {
	start, end, err := dates(rec.StartDate, rec.EndDate)
	if err != nil {
		return tariff.AccountingTariff{}, fmt.Errorf("tariff %q: %w", rec.Name, err)
	}
	tag, err := dayTag(rec.Weekday, rec.Weekend)
	if err != nil {
		return tariff.AccountingTariff{}, fmt.Errorf("tariff %q: %w", rec.Name, err)
	}
	source := tariff.SourceAccounting
	if rec.Source == string(tariff.SourceGeneric) {
		source = tariff.SourceGeneric
	}

	t := tariff.AccountingTariff{
		Name:              rec.Name,
		Source:            source,
		StartDate:         start,
		EndDate:           end,
		Default:           rec.Default,
		Tag:               tag,
		ClimateChangeLevy: rec.ClimateChangeLevy,
	}
	var consumption map[string]rateRecord
	if t.StandingCharges, consumption, err = splitRates(rec.Rates); err != nil {
		return tariff.AccountingTariff{}, fmt.Errorf("tariff %q: %w", rec.Name, err)
	}
	if t.Rates, err = rateStructure(source, consumption); err != nil {
		return tariff.AccountingTariff{}, fmt.Errorf("tariff %q: %w", rec.Name, err)
	}
	return t, nil
}

func economicTariff(rec tariffRecord) (*tariff.EconomicTariff, error) {
	e := &tariff.EconomicTariff{Name: rec.Name}
	if flat, ok := rec.Rates[tariff.BucketFlatRate]; ok {
		e.Rate = flat.Rate
	}
	day, hasDay := rec.Rates[tariff.BucketDayRate]
	night, hasNight := rec.Rates[tariff.BucketNightRate]
	if hasDay && hasNight {
		dn, err := dayNight(day, night)
		if err != nil {
			return nil, fmt.Errorf("economic tariff %q: %w", rec.Name, err)
		}
		e.DayNight = dn
	}
	return e, nil
}

// dayTag maps the weekday/weekend keys to a tag. A key present without a true
// value on either side is a configuration error.
func dayTag(weekday, weekend *bool) (tariff.DayType, error) {
	isWeekday := weekday != nil && *weekday
	isWeekend := weekend != nil && *weekend
	switch {
	case isWeekday && isWeekend:
		return tariff.AllDays, tariff.ErrBothWeekdayAndWeekend
	case isWeekday:
		return tariff.WeekdaysOnly, nil
	case isWeekend:
		return tariff.WeekendsOnly, nil
	case weekday != nil || weekend != nil:
		return tariff.AllDays, tariff.ErrMissingWeekdayTagValue
	default:
		return tariff.AllDays, nil
	}
}

func splitRates(rates map[string]rateRecord) ([]tariff.StandingCharge, map[string]rateRecord, error) {
	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Strings(names)

	var standing []tariff.StandingCharge
	consumption := make(map[string]rateRecord)
	for _, name := range names {
		r := rates[name]
		if r.Per == "" || r.Per == perKWh {
			consumption[name] = r
			continue
		}
		per, err := tariff.ParsePeriod(r.Per)
		if err != nil {
			return nil, nil, err
		}
		standing = append(standing, tariff.StandingCharge{Name: name, Rate: r.Rate, Per: per})
	}
	return standing, consumption, nil
}

func rateStructure(source tariff.Source, rates map[string]rateRecord) (tariff.RateStructure, error) {
	if source == tariff.SourceAccounting {
		if flat, ok := rates[tariff.BucketFlatRate]; ok && len(rates) == 1 {
			return &tariff.FlatRate{Rate: flat.Rate}, nil
		}
		day, hasDay := rates[tariff.BucketDayRate]
		night, hasNight := rates[tariff.BucketNightRate]
		if hasDay && hasNight && len(rates) == 2 {
			return dayNight(day, night)
		}
	}

	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Strings(names)

	generic := &tariff.GenericRates{}
	for _, name := range names {
		r := rates[name]
		bucket := tariff.RateBucket{Name: name, Rate: r.Rate}
		if r.From != "" || r.To != "" {
			tr, err := timeRange(r.From, r.To)
			if err != nil {
				return nil, err
			}
			bucket.Range = &tr
		}
		switch {
		case r.Weekday && r.Weekend:
			return nil, fmt.Errorf("rate %s: %w", name, tariff.ErrBothWeekdayAndWeekend)
		case r.Weekday:
			bucket.DayType = tariff.WeekdaysOnly
		case r.Weekend:
			bucket.DayType = tariff.WeekendsOnly
		}
		for _, tier := range r.Tiers {
			high := math.Inf(1)
			if tier.High != nil {
				high = *tier.High
			}
			bucket.Tiers = append(bucket.Tiers, tariff.Tier{Low: tier.Low, High: high, Rate: tier.Rate})
		}
		sort.Slice(bucket.Tiers, func(i, j int) bool { return bucket.Tiers[i].Low < bucket.Tiers[j].Low })
		generic.Buckets = append(generic.Buckets, bucket)
	}
	return generic, nil
}

func dayNight(day, night rateRecord) (*tariff.DayNightRates, error) {
	dayRange, err := timeRange(day.From, day.To)
	if err != nil {
		return nil, err
	}
	nightRange, err := timeRange(night.From, night.To)
	if err != nil {
		return nil, err
	}
	return &tariff.DayNightRates{
		Day:   tariff.TimedRate{Range: dayRange, Rate: day.Rate},
		Night: tariff.TimedRate{Range: nightRange, Rate: night.Rate},
	}, nil
}

func timeRange(from, to string) (tariff.TimeRange, error) {
	start, err := tariff.ParseTimeOfDay(from)
	if err != nil {
		return tariff.TimeRange{}, err
	}
	end, err := tariff.ParseTimeOfDay(to)
	if err != nil {
		return tariff.TimeRange{}, err
	}
	return tariff.TimeRange{Start: start, End: end}, nil
}

func dates(start, end string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if start != "" {
		if from, err = amr.ParseDay(start); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start date %q", ErrInvalidAttributes, start)
		}
	}
	if end != "" {
		if to, err = amr.ParseDay(end); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %q", ErrInvalidAttributes, end)
		}
	}
	return from, to, nil
}

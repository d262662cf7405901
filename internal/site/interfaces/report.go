package interfaces

import (
	"fmt"
	"sort"
	"time"

	amr "energy-costing/internal/amr/domain"
	meter "energy-costing/internal/meter/domain"
	site "energy-costing/internal/site/domain"
)

// DailyCost is one costed day of a meter.
type DailyCost struct {
	Date     time.Time
	KWh      float64
	Rates    float64
	Standing float64
	CarbonKg float64
	Buckets  map[string]float64
}

// Total is rates plus standing charges.
func (d DailyCost) Total() float64 { return d.Rates + d.Standing }

// MeterReport is the costed history of one consolidated meter.
type MeterReport struct {
	MPXN          string
	Name          string
	Fuel          amr.FuelType
	ComponentIDs  string
	Days          []DailyCost
	BucketNames   []string
	CarbonMissing int
}

// Totals sums the report's days.
func (m MeterReport) Totals() DailyCost {
	total := DailyCost{Buckets: make(map[string]float64)}
	for _, d := range m.Days {
		total.KWh += d.KWh
		total.Rates += d.Rates
		total.Standing += d.Standing
		total.CarbonKg += d.CarbonKg
		for name, v := range d.Buckets {
			total.Buckets[name] += v
		}
	}
	return total
}

// SiteReport is one site's cost export.
type SiteReport struct {
	Site        site.Site
	GeneratedAt time.Time
	Meters      []MeterReport
	Skipped     []site.SkippedMeter
	Diagnostics int
}

// BuildSiteReport costs every day of the site's consolidated meters.
func BuildSiteReport(result *site.Result, generatedAt time.Time) (SiteReport, error) {
	if result == nil {
		return SiteReport{}, fmt.Errorf("site report: nil result")
	}
	report := SiteReport{
		Site:        result.Site,
		GeneratedAt: generatedAt.UTC(),
		Skipped:     result.Skipped,
		Diagnostics: len(result.Diagnostics),
	}
	for _, m := range result.Consolidated() {
		mr, err := buildMeterReport(m)
		if err != nil {
			return SiteReport{}, err
		}
		report.Meters = append(report.Meters, mr)
	}
	return report, nil
}

func buildMeterReport(m *meter.Meter) (MeterReport, error) {
	mr := MeterReport{MPXN: m.MPXN, Name: m.Name, Fuel: m.Fuel, ComponentIDs: m.ComponentIDs}
	buckets := make(map[string]struct{})
	series := m.AggregatedSeries()
	for _, date := range series.Dates() {
		kwh := series.VectorFor(date)
		cost, err := m.Cost(date, kwh)
		if err != nil {
			return MeterReport{}, fmt.Errorf("site report: %s: %w", m.MPXN, err)
		}
		day := DailyCost{
			Date:     date,
			KWh:      amr.Total(kwh),
			Rates:    cost.RatesTotal(),
			Standing: cost.StandingTotal(),
			Buckets:  make(map[string]float64),
		}
		for _, name := range cost.RateNames() {
			v := cost.Rates[name]
			day.Buckets[name] = amr.Total(&v)
			buckets[name] = struct{}{}
		}
		for _, name := range cost.StandingNames() {
			day.Buckets[name] = cost.Standing[name]
			buckets[name] = struct{}{}
		}
		if carbonKg, err := m.Carbon(date); err == nil {
			day.CarbonKg = amr.Total(&carbonKg)
		} else {
			mr.CarbonMissing++
		}
		mr.Days = append(mr.Days, day)
	}
	for name := range buckets {
		mr.BucketNames = append(mr.BucketNames, name)
	}
	sort.Strings(mr.BucketNames)
	return mr, nil
}

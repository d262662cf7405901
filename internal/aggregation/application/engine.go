package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	amr "energy-costing/internal/amr/domain"
	carbon "energy-costing/internal/carbon/domain"
	meter "energy-costing/internal/meter/domain"
	"energy-costing/internal/observability/metrics"
)

var (
	// ErrInvalidAggregationWindow is returned when the negotiated start is after the end.
	ErrInvalidAggregationWindow = errors.New("aggregation: invalid aggregation window")
	// ErrNoComponents is returned when an aggregation has nothing to combine.
	ErrNoComponents = errors.New("aggregation: no component meters")
	// ErrMixedFuel is returned when components of different fuels are combined.
	ErrMixedFuel = errors.New("aggregation: mixed fuel types")
	// ErrIncompleteSolarReconciliation is returned when a solar member cannot be derived.
	ErrIncompleteSolarReconciliation = errors.New("aggregation: incomplete solar pv reconciliation")
)

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithGridIntensity sets the electricity carbon collaborator.
func WithGridIntensity(grid *carbon.GridIntensity) Option {
	return func(e *Engine) {
		if grid != nil {
			e.grid = grid
		}
	}
}

// Engine combines one site's meters into synthetic meters.
type Engine struct {
	siteURN int64
	grid    *carbon.GridIntensity
	logger  *log.Logger
}

// NewEngine constructs an engine for one site.
func NewEngine(siteURN int64, opts ...Option) (*Engine, error) {
	if siteURN < 0 {
		return nil, fmt.Errorf("aggregation: invalid site urn %d", siteURN)
	}
	e := &Engine{
		siteURN: siteURN,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// SiteURN returns the site the engine builds identities for.
func (e *Engine) SiteURN() int64 { return e.siteURN }

// AggregateRequest names the meters to combine. Kind defaults to the fuel.
type AggregateRequest struct {
	Fuel       amr.FuelType
	Kind       meter.Kind
	Components []*meter.Meter
}

// Aggregate combines the components into one synthetic meter. A single
// component is returned as is.
func (e *Engine) Aggregate(ctx context.Context, req AggregateRequest) (*meter.Meter, error) {
	started := time.Now()
	kind := req.Kind
	if kind == "" {
		kind = meter.Kind(req.Fuel)
	}

	aggregate, days, err := e.aggregate(ctx, req, kind)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		e.logger.Printf("event=aggregation.failed site=%d kind=%s components=%d err=%v", e.siteURN, kind, len(req.Components), err)
	}
	metrics.ObserveAggregation(string(kind), result, days, time.Since(started))
	return aggregate, err
}

func (e *Engine) aggregate(ctx context.Context, req AggregateRequest, kind meter.Kind) (*meter.Meter, int, error) {
	if len(req.Components) == 0 {
		return nil, 0, ErrNoComponents
	}
	for _, c := range req.Components {
		if c == nil {
			return nil, 0, fmt.Errorf("aggregation: nil component meter")
		}
		if c.Fuel != req.Fuel {
			return nil, 0, fmt.Errorf("%w: %s is %s, want %s", ErrMixedFuel, c.MPXN, c.Fuel, req.Fuel)
		}
	}
	if len(req.Components) == 1 {
		only := req.Components[0]
		return only, only.Series.Len(), nil
	}

	start, end, err := Window(req.Components)
	if err != nil {
		return nil, 0, err
	}

	mpxn, err := meter.SyntheticMPXN(e.siteURN, kind)
	if err != nil {
		return nil, 0, err
	}
	series, err := sumSeries(ctx, mpxn, req.Components, start, end)
	if err != nil {
		return nil, 0, err
	}

	differential, err := anyDifferential(req.Fuel, req.Components, start, end)
	if err != nil {
		return nil, 0, err
	}

	aggregate := &meter.Meter{
		MPXN:         mpxn,
		ID:           meter.SyntheticID(e.siteURN, kind),
		Name:         joinNames(req.Components),
		Fuel:         req.Fuel,
		Series:       series,
		SubMeters:    make(map[meter.SubMeterKind]*meter.Meter),
		FloorArea:    sumFloorArea(req.Components),
		Pupils:       sumPupils(req.Components),
		CarbonSource: carbon.ForFuel(req.Fuel, e.grid),
		Synthetic:    true,
		ComponentIDs: joinIDs(req.Components),
	}

	aggregate.Tariffs = req.Components[0].Tariffs
	schedule := "shared"
	if differential || !sharesTariffs(req.Components) {
		schedule = "combined"
		aggregate.CostSchedule = NewCombinedCostSchedule(aggregate.Name, differential, req.Components)
	} else {
		aggregate.CostSchedule = NewSharedCostSchedule(req.Components[0].Tariffs, req.Components)
	}

	e.logger.Printf(
		"event=aggregation.done site=%d kind=%s mpxn=%s components=%d start=%s end=%s days=%d differential=%t schedule=%s",
		e.siteURN, kind, mpxn, len(req.Components), amr.FormatDay(start), amr.FormatDay(end), series.Len(), differential, schedule,
	)
	return aggregate, series.Len(), nil
}

// Window negotiates the combined date range. Components that ignore their start
// (end) date are left out of the max (min); when every component ignores a bound
// it falls back to the earliest start (latest end).
func Window(components []*meter.Meter) (time.Time, time.Time, error) {
	var (
		start, end         time.Time
		earliest, latest   time.Time
		haveStart, haveEnd bool
	)
	for i, c := range components {
		if c.Series == nil || c.Series.Len() == 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("aggregation: %s: %w", c.MPXN, amr.ErrEmptySeries)
		}
		s, e := c.Series.StartDate(), c.Series.EndDate()
		if i == 0 || s.Before(earliest) {
			earliest = s
		}
		if i == 0 || e.After(latest) {
			latest = e
		}
		if !c.Rules.IgnoreStartDate && (!haveStart || s.After(start)) {
			start, haveStart = s, true
		}
		if !c.Rules.IgnoreEndDate && (!haveEnd || e.Before(end)) {
			end, haveEnd = e, true
		}
	}
	if !haveStart {
		start = earliest
	}
	if !haveEnd {
		end = latest
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s..%s", ErrInvalidAggregationWindow, amr.FormatDay(start), amr.FormatDay(end))
	}
	return start, end, nil
}

func sumSeries(ctx context.Context, mpxn string, components []*meter.Meter, start, end time.Time) (*amr.Series, error) {
	out := amr.NewSeries(mpxn)
	vectors := make([]*amr.HalfHourVector, len(components))
	var err error
	amr.EachDay(start, end, func(day time.Time) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		for i, c := range components {
			vectors[i] = c.Series.VectorFor(day)
		}
		sum, present := amr.Sum(vectors...)
		if present == 0 {
			return true
		}
		err = out.Add(day, sum)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func anyDifferential(fuel amr.FuelType, components []*meter.Meter, start, end time.Time) (bool, error) {
	if fuel != amr.FuelElectricity {
		return false, nil
	}
	for _, c := range components {
		if c.Tariffs == nil {
			continue
		}
		differential, err := c.Tariffs.DifferentialTariffBetween(start, end)
		if err != nil {
			return false, fmt.Errorf("aggregation: %s: %w", c.MPXN, err)
		}
		if differential {
			return true, nil
		}
	}
	return false, nil
}

// sharesTariffs reports whether every component is priced by one identical
// tariff configuration on its own tariffs.
func sharesTariffs(components []*meter.Meter) bool {
	first := components[0]
	if first.Tariffs == nil || first.CostSchedule != nil {
		return false
	}
	fingerprint := first.Tariffs.Fingerprint()
	for _, c := range components[1:] {
		if c.Tariffs == nil || c.CostSchedule != nil {
			return false
		}
		if c.Tariffs.Fingerprint() != fingerprint {
			return false
		}
	}
	return true
}

func joinNames(components []*meter.Meter) string {
	names := make([]string, 0, len(components))
	for _, c := range components {
		name := c.Name
		if name == "" {
			name = c.MPXN
		}
		names = append(names, name)
	}
	return strings.Join(names, " + ")
}

func joinIDs(components []*meter.Meter) string {
	ids := make([]string, 0, len(components))
	for _, c := range components {
		ids = append(ids, c.MPXN)
	}
	return strings.Join(ids, ",")
}

func sumFloorArea(components []*meter.Meter) *float64 {
	var total float64
	for _, c := range components {
		if c.FloorArea == nil {
			return nil
		}
		total += *c.FloorArea
	}
	return &total
}

func sumPupils(components []*meter.Meter) *int {
	var total int
	for _, c := range components {
		if c.Pupils == nil {
			return nil
		}
		total += *c.Pupils
	}
	return &total
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	aggregation "energy-costing/internal/aggregation/application"
	amr "energy-costing/internal/amr/domain"
	carbon "energy-costing/internal/carbon/domain"
	meter "energy-costing/internal/meter/domain"
	"energy-costing/internal/observability/metrics"
	site "energy-costing/internal/site/domain"
	tariffapp "energy-costing/internal/tariff/application"
	tariff "energy-costing/internal/tariff/domain"
	"energy-costing/internal/tariff/infrastructure/attributes"
)

// Option configures the runner.
type Option func(*Runner)

// WithLevyTable sets the Climate Change Levy table shared by every meter.
func WithLevyTable(levies tariff.LevyLookup) Option {
	return func(r *Runner) {
		if levies != nil {
			r.levies = levies
		}
	}
}

// WithCalendar overrides the weekend calendar.
func WithCalendar(calendar tariff.Calendar) Option {
	return func(r *Runner) {
		if calendar != nil {
			r.calendar = calendar
		}
	}
}

// WithGridIntensity sets the electricity carbon series.
func WithGridIntensity(grid *carbon.GridIntensity) Option {
	return func(r *Runner) {
		if grid != nil {
			r.grid = grid
		}
	}
}

// WithSolarYield sets the regional yield used to synthesise solar members.
func WithSolarYield(yield aggregation.SolarYieldSource) Option {
	return func(r *Runner) {
		if yield != nil {
			r.yield = yield
		}
	}
}

// WithValidation selects lenient or strict tariff validation.
func WithValidation(mode tariff.ValidationMode) Option {
	return func(r *Runner) {
		r.mode = mode
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner runs one site at a time through tariffs, subflows and aggregation.
// A runner is safe for concurrent use; every run builds its own managers.
type Runner struct {
	repo     site.Repository
	levies   tariff.LevyLookup
	calendar tariff.Calendar
	grid     *carbon.GridIntensity
	yield    aggregation.SolarYieldSource
	mode     tariff.ValidationMode
	logger   *log.Logger
}

// NewRunner constructs a runner.
func NewRunner(repo site.Repository, opts ...Option) (*Runner, error) {
	if repo == nil {
		return nil, errors.New("site runner: nil repository")
	}
	r := &Runner{
		repo:     repo,
		calendar: tariff.WeekendCalendar{},
		logger:   log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

type builtMeter struct {
	meter *meter.Meter
	attrs attributes.MeterAttributes
}

// Run costs and consolidates one site.
func (r *Runner) Run(ctx context.Context, s site.Site) (*site.Result, error) {
	started := time.Now()
	result, err := r.run(ctx, s)
	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = metrics.ResultError
		r.logger.Printf("event=site.failed site=%d action=%s reason=%s err=%v", s.URN, Classify(err), Reason(err), err)
	} else {
		r.logger.Printf("event=site.done site=%d meters=%d skipped=%d diagnostics=%d duration=%s",
			s.URN, len(result.Meters), len(result.Skipped), len(result.Diagnostics), time.Since(started))
	}
	metrics.ObserveSiteRun(outcome, time.Since(started))
	return result, err
}

func (r *Runner) run(ctx context.Context, s site.Site) (*site.Result, error) {
	records, err := r.repo.ListMeters(ctx, s.URN)
	if err != nil {
		return nil, fmt.Errorf("%w: list meters of site %d: %v", ErrRepository, s.URN, err)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].MPXN < records[j].MPXN })

	engine, err := aggregation.NewEngine(s.URN, aggregation.WithLogger(r.logger), aggregation.WithGridIntensity(r.grid))
	if err != nil {
		return nil, err
	}

	result := &site.Result{Site: s}
	children := make(map[string][]site.MeterRecord)
	var mains []builtMeter
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := rec.Validate(); err != nil {
			r.skip(result, rec.MPXN, "invalid_record", err)
			continue
		}
		if rec.Role != site.RoleMain {
			children[rec.ParentMPXN] = append(children[rec.ParentMPXN], rec)
			continue
		}
		built, diagnostics, err := r.buildMeter(ctx, rec)
		result.Diagnostics = append(result.Diagnostics, diagnostics...)
		if err != nil {
			if Classify(err) == ActionSkipMeter {
				r.skip(result, rec.MPXN, Reason(err), err)
				continue
			}
			return nil, fmt.Errorf("site %d: meter %s: %w", s.URN, rec.MPXN, err)
		}
		mains = append(mains, built)
	}
	recordDiagnostics(result.Diagnostics)

	for i, b := range mains {
		if b.meter.Fuel != amr.FuelElectricity || (b.attrs.Solar == nil && len(children[b.meter.MPXN]) == 0) {
			continue
		}
		consolidated, err := r.reconcileSolar(ctx, engine, b, children[b.meter.MPXN])
		if err != nil {
			return nil, fmt.Errorf("site %d: meter %s: %w", s.URN, b.meter.MPXN, err)
		}
		mains[i].meter = consolidated
	}

	var electricity, gas []*meter.Meter
	models := make(map[string]aggregation.StorageHeaterModel)
	for _, b := range mains {
		result.Meters = append(result.Meters, b.meter)
		switch b.meter.Fuel {
		case amr.FuelElectricity:
			electricity = append(electricity, b.meter)
			if cfg := b.attrs.StorageHeaters; cfg != nil {
				models[b.meter.MPXN] = aggregation.ChargeWindowModel{Windows: cfg.ChargeWindows, BaseloadKWh: cfg.BaseloadKWh}
			}
		case amr.FuelGas:
			gas = append(gas, b.meter)
		}
	}
	if len(electricity) == 0 && len(gas) == 0 {
		return nil, fmt.Errorf("%w: site %d", site.ErrNoMeters, s.URN)
	}

	if len(electricity) > 0 {
		if len(models) > 0 {
			result.StorageHeaters, result.Electricity, err = engine.CombineStorageHeaters(ctx, electricity, models)
		} else {
			result.Electricity, err = engine.Aggregate(ctx, aggregation.AggregateRequest{Fuel: amr.FuelElectricity, Kind: meter.KindElectricity, Components: electricity})
		}
		if err != nil {
			return nil, fmt.Errorf("site %d: electricity: %w", s.URN, err)
		}
	}
	if len(gas) > 0 {
		result.Gas, err = engine.Aggregate(ctx, aggregation.AggregateRequest{Fuel: amr.FuelGas, Kind: meter.KindGas, Components: gas})
		if err != nil {
			return nil, fmt.Errorf("site %d: gas: %w", s.URN, err)
		}
	}
	return result, nil
}

func (r *Runner) buildMeter(ctx context.Context, rec site.MeterRecord) (builtMeter, []tariff.Diagnostic, error) {
	series, err := r.loadSeries(ctx, rec.MPXN)
	if err != nil {
		return builtMeter{}, nil, err
	}
	attrs, err := attributes.Parse(rec.Attributes)
	if err != nil {
		return builtMeter{}, nil, err
	}
	opts := []tariffapp.Option{
		tariffapp.WithCalendar(r.calendar),
		tariffapp.WithValidation(r.mode),
		tariffapp.WithLogger(r.logger),
	}
	if r.levies != nil {
		opts = append(opts, tariffapp.WithLevyTable(r.levies))
	}
	manager, err := tariffapp.NewManager(rec.MPXN, rec.Fuel, attrs.Tariffs, opts...)
	if err != nil {
		return builtMeter{}, nil, err
	}

	m := meter.New(rec.MPXN, rec.Name, rec.Fuel, series)
	m.Tariffs = manager
	m.Rules = attrs.Aggregation
	m.FloorArea = rec.FloorArea
	m.Pupils = rec.Pupils
	m.CarbonSource = carbon.ForFuel(rec.Fuel, r.grid)

	// Cost the first and last days so missing tariffs surface before aggregation.
	for _, date := range []time.Time{series.StartDate(), series.EndDate()} {
		if _, err := m.CostOn(date); err != nil {
			return builtMeter{}, manager.Diagnostics(), err
		}
	}
	return builtMeter{meter: m, attrs: attrs}, manager.Diagnostics(), nil
}

func (r *Runner) loadSeries(ctx context.Context, mpxn string) (*amr.Series, error) {
	series, err := r.repo.LoadSeries(ctx, mpxn)
	if err != nil {
		return nil, fmt.Errorf("%w: load series %s: %v", ErrRepository, mpxn, err)
	}
	if series == nil || series.Len() == 0 {
		return nil, fmt.Errorf("meter %s: %w", mpxn, amr.ErrEmptySeries)
	}
	return series, nil
}

func (r *Runner) reconcileSolar(ctx context.Context, engine *aggregation.Engine, mains builtMeter, children []site.MeterRecord) (*meter.Meter, error) {
	in := aggregation.SolarInput{Mains: mains.meter, Yield: r.yield}
	if cfg := mains.attrs.Solar; cfg != nil {
		in.KWp = cfg.KWp
		in.BaseloadKWh = cfg.BaseloadKWh
	}
	for _, rec := range children {
		series, err := r.loadSeries(ctx, rec.MPXN)
		if err != nil {
			if Classify(err) == ActionSkipMeter {
				r.logger.Printf("event=site.solar_member_skipped mpxn=%s role=%s err=%v", rec.MPXN, rec.Role, err)
				continue
			}
			return nil, err
		}
		member := meter.New(rec.MPXN, rec.Name, amr.FuelElectricity, series)
		member.CarbonSource = carbon.ForFuel(amr.FuelElectricity, r.grid)
		switch rec.Role {
		case site.RoleGeneration:
			in.Generation = member
		case site.RoleExport:
			in.Export = member
		case site.RoleSelfConsume:
			in.SelfConsume = member
		}
	}
	return engine.ReconcileSolar(ctx, in)
}

func (r *Runner) skip(result *site.Result, mpxn, reason string, err error) {
	result.Skipped = append(result.Skipped, site.SkippedMeter{MPXN: mpxn, Reason: reason, Err: err})
	metrics.IncMeterSkipped(reason)
	r.logger.Printf("event=site.meter_skipped site=%d mpxn=%s reason=%s err=%v", result.Site.URN, mpxn, reason, err)
}

func recordDiagnostics(diagnostics []tariff.Diagnostic) {
	counts := make(map[tariff.DiagnosticCode]int)
	for _, d := range diagnostics {
		counts[d.Code]++
	}
	for code, n := range counts {
		metrics.AddTariffDiagnostics(string(code), n)
	}
}

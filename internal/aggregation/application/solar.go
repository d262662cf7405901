package application

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	amr "energy-costing/internal/amr/domain"
	carbon "energy-costing/internal/carbon/domain"
	meter "energy-costing/internal/meter/domain"
	tariff "energy-costing/internal/tariff/domain"
)

const (
	trivialKWh          = 1e-6
	negativeExportShare = 0.9
)

// SolarYieldSource returns the regional half-hourly yield for 1 kWp of panels.
type SolarYieldSource interface {
	YieldPerKWp(date time.Time) (amr.HalfHourVector, error)
}

// SolarInput is a site's solar installation as metered. Any of Generation,
// Export and SelfConsume may be nil; they are synthesised where possible.
type SolarInput struct {
	Mains       *meter.Meter
	Generation  *meter.Meter
	Export      *meter.Meter
	SelfConsume *meter.Meter
	KWp         float64
	BaseloadKWh float64
	Yield       SolarYieldSource
}

// ReconcileSolar aligns the solar members to the mains window, fixes the export
// sign, synthesises what is missing and returns one consolidated meter with every
// member attached as a sub-meter. The consolidated meter keeps the mains identity,
// reports mains plus self consumption, and is costed on mains import.
func (e *Engine) ReconcileSolar(ctx context.Context, in SolarInput) (*meter.Meter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mains := in.Mains
	if mains == nil || mains.Series == nil || mains.Series.Len() == 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteSolarReconciliation, meter.SubMeterMainsConsume)
	}
	if mains.Fuel != amr.FuelElectricity {
		return nil, fmt.Errorf("%w: %s", ErrNotElectricity, mains.MPXN)
	}
	start, end := mains.Series.StartDate(), mains.Series.EndDate()

	var generation, export, selfConsume *amr.Series
	if in.Generation != nil {
		generation = align(in.Generation.Series, start, end)
	}
	if in.Export != nil {
		export = NormaliseExportSign(align(in.Export.Series, start, end))
	}
	if in.SelfConsume != nil {
		selfConsume = align(in.SelfConsume.Series, start, end)
	}

	var err error
	if generation == nil && in.Yield != nil && in.KWp > 0 {
		if generation, err = e.synthesiseGeneration(mains.Series, in.Yield, in.KWp); err != nil {
			return nil, err
		}
	}
	if export == nil && generation != nil {
		export = synthesiseExport(mains.Series, generation, in.BaseloadKWh)
	}
	if selfConsume == nil && generation != nil && export != nil {
		mpxn, err := e.syntheticMPXN(meter.KindSolarSelfConsumption)
		if err != nil {
			return nil, err
		}
		selfConsume = sumDays(mpxn, generation, export)
	}

	var missing []string
	if generation == nil {
		missing = append(missing, string(meter.SubMeterGeneration))
	}
	if export == nil {
		missing = append(missing, string(meter.SubMeterExport))
	}
	if selfConsume == nil {
		missing = append(missing, string(meter.SubMeterSelfConsume))
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteSolarReconciliation, strings.Join(missing, ","))
	}
	mpxn, err := e.syntheticMPXN(meter.KindMainsPlusSelfConsume)
	if err != nil {
		return nil, err
	}
	mainsPlus := sumDays(mpxn, mains.Series, selfConsume)

	grid := carbon.ForFuel(amr.FuelElectricity, e.grid)
	consolidated := meter.New(mains.MPXN, mains.Name, amr.FuelElectricity, mainsPlus)
	consolidated.Tariffs = mains.Tariffs
	consolidated.Rules = mains.Rules
	consolidated.FloorArea = mains.FloorArea
	consolidated.Pupils = mains.Pupils
	consolidated.CarbonSource = grid
	consolidated.CostSchedule = mainsImportSchedule{mains: mains}
	consolidated.ComponentIDs = mains.MPXN

	consolidated.SetSubMeter(meter.SubMeterMainsConsume, mains)
	members := []struct {
		slot   meter.SubMeterKind
		real   *meter.Meter
		kind   meter.Kind
		name   string
		series *amr.Series
	}{
		{meter.SubMeterGeneration, in.Generation, meter.KindSolarPV, "solar pv", generation},
		{meter.SubMeterExport, in.Export, meter.KindExportedSolarPV, "exported solar pv", export},
		{meter.SubMeterSelfConsume, in.SelfConsume, meter.KindSolarSelfConsumption, "solar self consumption", selfConsume},
		{meter.SubMeterMainsPlusSelfConsume, nil, meter.KindMainsPlusSelfConsume, "mains plus self consumption", mainsPlus},
	}
	for _, m := range members {
		member, err := e.solarMember(m.real, m.kind, m.name, m.series, grid)
		if err != nil {
			return nil, err
		}
		consolidated.SetSubMeter(m.slot, member)
	}

	e.logger.Printf(
		"event=aggregation.solar_reconciled site=%d mpxn=%s start=%s end=%s generation_real=%t export_real=%t self_consume_real=%t",
		e.siteURN, mains.MPXN, amr.FormatDay(start), amr.FormatDay(end), in.Generation != nil, in.Export != nil, in.SelfConsume != nil,
	)
	return consolidated, nil
}

// NormaliseExportSign returns export with the negative-is-export convention:
// left as is when more than 90% of non-trivial values are already negative,
// inverted otherwise.
func NormaliseExportSign(export *amr.Series) *amr.Series {
	var nonTrivial, negative int
	for _, day := range export.Dates() {
		for _, v := range export.VectorFor(day) {
			if math.Abs(v) <= trivialKWh {
				continue
			}
			nonTrivial++
			if v < 0 {
				negative++
			}
		}
	}
	if nonTrivial == 0 || float64(negative) > negativeExportShare*float64(nonTrivial) {
		return export
	}
	return export.Map(export.MPXN(), func(_ time.Time, v *amr.HalfHourVector) amr.HalfHourVector {
		return amr.Negate(v)
	})
}

func align(series *amr.Series, start, end time.Time) *amr.Series {
	if series == nil || series.Len() == 0 {
		return nil
	}
	return series.BackfillZeros(start).Truncate(start, end)
}

func (e *Engine) synthesiseGeneration(mains *amr.Series, yield SolarYieldSource, kwp float64) (*amr.Series, error) {
	mpxn, err := e.syntheticMPXN(meter.KindSolarPV)
	if err != nil {
		return nil, err
	}
	out := amr.NewSeries(mpxn)
	for _, day := range mains.Dates() {
		perKWp, err := yield.YieldPerKWp(day)
		if err != nil {
			return nil, fmt.Errorf("aggregation: solar yield %s: %w", amr.FormatDay(day), err)
		}
		if err := out.Add(day, amr.Scale(&perKWp, kwp)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// synthesiseExport treats generation above baseload as exported in slots where
// the mains meter imports nothing.
func synthesiseExport(mains, generation *amr.Series, baseload float64) *amr.Series {
	return generation.Map(generation.MPXN(), func(day time.Time, gen *amr.HalfHourVector) amr.HalfHourVector {
		var out amr.HalfHourVector
		imports := mains.VectorFor(day)
		for i := range out {
			if imports != nil && math.Abs(imports[i]) > trivialKWh {
				continue
			}
			out[i] = -math.Max(gen[i]-baseload, 0)
		}
		return out
	})
}

func sumDays(mpxn string, a, b *amr.Series) *amr.Series {
	out := amr.NewSeries(mpxn)
	for _, day := range a.Dates() {
		sum, _ := amr.Sum(a.VectorFor(day), b.VectorFor(day))
		_ = out.Add(day, sum)
	}
	return out
}

func (e *Engine) syntheticMPXN(kind meter.Kind) (string, error) {
	mpxn, err := meter.SyntheticMPXN(e.siteURN, kind)
	if err != nil {
		return "", fmt.Errorf("aggregation: %w", err)
	}
	return mpxn, nil
}

// solarMember wraps a reconciled series, keeping a real meter's identity when
// one was supplied.
func (e *Engine) solarMember(real *meter.Meter, kind meter.Kind, name string, series *amr.Series, grid carbon.Source) (*meter.Meter, error) {
	if real != nil {
		member := *real
		member.Series = series
		return &member, nil
	}
	mpxn, err := e.syntheticMPXN(kind)
	if err != nil {
		return nil, err
	}
	return &meter.Meter{
		MPXN:         mpxn,
		ID:           meter.SyntheticID(e.siteURN, kind),
		Name:         name,
		Fuel:         amr.FuelElectricity,
		Series:       series,
		SubMeters:    make(map[meter.SubMeterKind]*meter.Meter),
		CarbonSource: grid,
		Synthetic:    true,
	}, nil
}

type mainsImportSchedule struct {
	mains *meter.Meter
}

func (s mainsImportSchedule) Cost(date time.Time, _ *amr.HalfHourVector) (tariff.CostBreakdown, error) {
	return s.mains.CostOn(date)
}

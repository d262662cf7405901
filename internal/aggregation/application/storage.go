package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	amr "energy-costing/internal/amr/domain"
	meter "energy-costing/internal/meter/domain"
	tariff "energy-costing/internal/tariff/domain"
)

// ErrNotElectricity is returned when a storage heater split is asked of a gas meter.
var ErrNotElectricity = errors.New("aggregation: storage heaters need an electricity meter")

// StorageHeaterModel splits an electricity series into the storage heater share
// and the remainder.
type StorageHeaterModel interface {
	Split(series *amr.Series) (storage, remainder *amr.Series, err error)
}

// ChargeWindowModel attributes consumption above a baseload inside the charge
// windows to the heaters.
type ChargeWindowModel struct {
	Windows     []tariff.TimeRange
	BaseloadKWh float64
}

func (m ChargeWindowModel) Split(series *amr.Series) (*amr.Series, *amr.Series, error) {
	if len(m.Windows) == 0 {
		return nil, nil, errors.New("aggregation: storage heater model has no charge windows")
	}
	var mask amr.HalfHourVector
	for _, w := range m.Windows {
		wm := w.Mask()
		amr.Add(&mask, &wm)
	}

	storage := series.Map(series.MPXN(), func(_ time.Time, v *amr.HalfHourVector) amr.HalfHourVector {
		var out amr.HalfHourVector
		for i := range out {
			if mask[i] > 0 {
				out[i] = math.Max(v[i]-m.BaseloadKWh, 0)
			}
		}
		return out
	})
	remainder := series.Map(series.MPXN(), func(day time.Time, v *amr.HalfHourVector) amr.HalfHourVector {
		heat := storage.VectorFor(day)
		out := *v
		for i := range out {
			out[i] -= heat[i]
		}
		return out
	})
	return storage, remainder, nil
}

// SplitStorageHeaters splits m into a storage heater meter and a remainder meter.
// The remainder keeps m's identity and carries m and the storage meter as
// sub-meters. Both sides share m's standing charges in proportion to their own
// rate costs.
func (e *Engine) SplitStorageHeaters(ctx context.Context, m *meter.Meter, model StorageHeaterModel) (storage, remainder *meter.Meter, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if m == nil || model == nil {
		return nil, nil, errors.New("aggregation: nil meter or storage heater model")
	}
	if m.Fuel != amr.FuelElectricity {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotElectricity, m.MPXN)
	}

	heatSeries, restSeries, err := model.Split(m.Series)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregation: split %s: %w", m.MPXN, err)
	}

	storage = meter.New(m.MPXN+"-"+string(meter.KindStorageHeater), m.Name+" storage heaters", m.Fuel, heatSeries)
	storage.Synthetic = true
	storage.Tariffs = m.Tariffs
	storage.CarbonSource = m.CarbonSource
	storage.Rules = m.Rules
	storage.ComponentIDs = m.MPXN

	remainder = meter.New(m.MPXN, m.Name, m.Fuel, restSeries)
	remainder.Synthetic = true
	remainder.Tariffs = m.Tariffs
	remainder.CarbonSource = m.CarbonSource
	remainder.Rules = m.Rules
	remainder.FloorArea = m.FloorArea
	remainder.Pupils = m.Pupils
	remainder.ComponentIDs = m.MPXN
	remainder.SetSubMeter(meter.SubMeterMainsIncludingStorageHeat, m)
	remainder.SetSubMeter(meter.SubMeterStorageHeaters, storage)

	if m.Tariffs != nil {
		storage.CostSchedule = NewProportionedCostSchedule(m.Tariffs, restSeries, false)
		remainder.CostSchedule = NewProportionedCostSchedule(m.Tariffs, heatSeries, true)
	}

	e.logger.Printf("event=aggregation.storage_split site=%d mpxn=%s days=%d", e.siteURN, m.MPXN, heatSeries.Len())
	return storage, remainder, nil
}

// CombineStorageHeaters splits every meter that has a model and aggregates the
// storage sides into one storage heater meter and the remainders, together with
// the meters that have no model, into one electricity meter. The storage result
// is nil when no meter has a model.
func (e *Engine) CombineStorageHeaters(ctx context.Context, meters []*meter.Meter, models map[string]StorageHeaterModel) (storage, electricity *meter.Meter, err error) {
	if len(meters) == 0 {
		return nil, nil, ErrNoComponents
	}
	sorted := append([]*meter.Meter(nil), meters...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MPXN < sorted[j].MPXN })

	var heaters, remainders []*meter.Meter
	for _, m := range sorted {
		model, ok := models[m.MPXN]
		if !ok {
			remainders = append(remainders, m)
			continue
		}
		heat, rest, err := e.SplitStorageHeaters(ctx, m, model)
		if err != nil {
			return nil, nil, err
		}
		heaters = append(heaters, heat)
		remainders = append(remainders, rest)
	}

	if len(heaters) > 0 {
		storage, err = e.Aggregate(ctx, AggregateRequest{Fuel: amr.FuelElectricity, Kind: meter.KindStorageHeater, Components: heaters})
		if err != nil {
			return nil, nil, err
		}
	}
	electricity, err = e.Aggregate(ctx, AggregateRequest{Fuel: amr.FuelElectricity, Kind: meter.KindElectricity, Components: remainders})
	if err != nil {
		return nil, nil, err
	}
	return storage, electricity, nil
}

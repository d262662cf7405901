package carbon

import (
	"errors"
	"fmt"
	"time"

	amr "energy-costing/internal/amr/domain"
)

// GasKgPerKWh is the fixed emission factor for mains gas.
const GasKgPerKWh = 0.210

// ErrMissingIntensity is returned when the grid intensity series has no data for a date.
var ErrMissingIntensity = errors.New("carbon: missing grid intensity")

// Source returns per-slot emission factors in kg/kWh.
type Source interface {
	Factor(date time.Time) (amr.HalfHourVector, error)
}

// GridIntensity serves a read-only half-hourly kg/kWh series for electricity.
type GridIntensity struct {
	series *amr.Series
}

// NewGridIntensity wraps a fully loaded intensity series. The series must not be
// modified afterwards.
func NewGridIntensity(series *amr.Series) *GridIntensity {
	return &GridIntensity{series: series}
}

func (g *GridIntensity) Factor(date time.Time) (amr.HalfHourVector, error) {
	v := g.series.VectorFor(date)
	if v == nil {
		return amr.HalfHourVector{}, fmt.Errorf("%w: %s", ErrMissingIntensity, amr.FormatDay(date))
	}
	return *v, nil
}

// FixedFactor applies one factor to every slot.
type FixedFactor float64

func (f FixedFactor) Factor(time.Time) (amr.HalfHourVector, error) {
	return amr.Filled(float64(f)), nil
}

// ForFuel picks the carbon collaborator for a fuel: the grid series for
// electricity, the fixed gas factor otherwise. Electricity without a grid series
// reports ErrMissingIntensity for every date.
func ForFuel(fuel amr.FuelType, grid *GridIntensity) Source {
	if fuel == amr.FuelElectricity {
		if grid == nil {
			return noIntensity{}
		}
		return grid
	}
	return FixedFactor(GasKgPerKWh)
}

type noIntensity struct{}

func (noIntensity) Factor(date time.Time) (amr.HalfHourVector, error) {
	return amr.HalfHourVector{}, fmt.Errorf("%w: no grid series loaded for %s", ErrMissingIntensity, amr.FormatDay(date))
}

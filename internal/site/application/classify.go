package application

import (
	"context"
	"errors"

	aggregation "energy-costing/internal/aggregation/application"
	amr "energy-costing/internal/amr/domain"
	levy "energy-costing/internal/levy/domain"
	meter "energy-costing/internal/meter/domain"
	site "energy-costing/internal/site/domain"
	tariff "energy-costing/internal/tariff/domain"
	"energy-costing/internal/tariff/infrastructure/attributes"
)

// ErrRepository wraps failures of the site repository.
var ErrRepository = errors.New("site run: repository failure")

// Action is what a caller should do about a run error.
type Action int

const (
	ActionNone Action = iota
	// ActionSkipMeter drops the meter and keeps the site.
	ActionSkipMeter
	// ActionSkipSite fails the site and keeps the batch.
	ActionSkipSite
	// ActionAbort stops the batch.
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSkipMeter:
		return "skip_meter"
	case ActionSkipSite:
		return "skip_site"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Classify maps a run error to an action. Missing readings and levy data skip the
// meter, cancellation and repository failures abort; anything else fails the site.
func Classify(err error) Action {
	switch {
	case err == nil:
		return ActionNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrRepository):
		return ActionAbort
	case errors.Is(err, amr.ErrEmptySeries),
		errors.Is(err, meter.ErrNoReading),
		errors.Is(err, levy.ErrMissingLevyData):
		return ActionSkipMeter
	default:
		return ActionSkipSite
	}
}

// Reason returns a short label for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrRepository):
		return "repository"
	case errors.Is(err, amr.ErrEmptySeries), errors.Is(err, meter.ErrNoReading):
		return "no_data"
	case tariff.Kind(err) == tariff.KindData:
		return "missing_tariff"
	case errors.Is(err, levy.ErrMissingLevyData):
		return "levy_horizon"
	case tariff.Kind(err) == tariff.KindConfig, errors.Is(err, attributes.ErrInvalidAttributes):
		return "tariff_config"
	case errors.Is(err, aggregation.ErrInvalidAggregationWindow):
		return "aggregation_window"
	case errors.Is(err, aggregation.ErrIncompleteSolarReconciliation):
		return "solar_incomplete"
	case errors.Is(err, site.ErrNoMeters):
		return "no_meters"
	default:
		return "other"
	}
}

package site

import (
	"context"
	"errors"
	"fmt"

	amr "energy-costing/internal/amr/domain"
	meter "energy-costing/internal/meter/domain"
	tariff "energy-costing/internal/tariff/domain"
)

var (
	// ErrSiteNotFound is returned when a site does not exist.
	ErrSiteNotFound = errors.New("site: not found")
	// ErrNoMeters is returned when a site has no usable meters.
	ErrNoMeters = errors.New("site: no usable meters")
)

// Role places a meter record within its site.
type Role string

const (
	// RoleMain is a fiscal import meter.
	RoleMain        Role = ""
	RoleGeneration  Role = "generation"
	RoleExport      Role = "export"
	RoleSelfConsume Role = "self_consume"
)

// IsValid checks the role is supported.
func (r Role) IsValid() bool {
	switch r {
	case RoleMain, RoleGeneration, RoleExport, RoleSelfConsume:
		return true
	default:
		return false
	}
}

// Site is one school.
type Site struct {
	URN       int64
	Name      string
	FloorArea *float64
	Pupils    *int
}

// MeterRecord is a stored meter with its raw attribute record.
type MeterRecord struct {
	MPXN       string
	SiteURN    int64
	Name       string
	Fuel       amr.FuelType
	Role       Role
	ParentMPXN string
	FloorArea  *float64
	Pupils     *int
	Attributes map[string]any
}

// Validate checks required fields.
func (m MeterRecord) Validate() error {
	if m.MPXN == "" {
		return errors.New("site: empty mpxn")
	}
	if !m.Fuel.IsValid() {
		return fmt.Errorf("site: meter %s has unsupported fuel %q", m.MPXN, m.Fuel)
	}
	if !m.Role.IsValid() {
		return fmt.Errorf("site: meter %s has unsupported role %q", m.MPXN, m.Role)
	}
	if m.Role != RoleMain && m.ParentMPXN == "" {
		return fmt.Errorf("site: %s meter %s has no parent", m.Role, m.MPXN)
	}
	return nil
}

// Repository loads sites and their readings.
type Repository interface {
	ListSites(ctx context.Context) ([]Site, error)
	GetSite(ctx context.Context, urn int64) (*Site, error)
	ListMeters(ctx context.Context, siteURN int64) ([]MeterRecord, error)
	LoadSeries(ctx context.Context, mpxn string) (*amr.Series, error)
}

// SkippedMeter records a meter left out of a run.
type SkippedMeter struct {
	MPXN   string
	Reason string
	Err    error
}

// Result is one site's run output.
type Result struct {
	Site           Site
	Electricity    *meter.Meter
	Gas            *meter.Meter
	StorageHeaters *meter.Meter
	Meters         []*meter.Meter
	Skipped        []SkippedMeter
	Diagnostics    []tariff.Diagnostic
}

// Consolidated returns the site level meters that exist, electricity first.
func (r *Result) Consolidated() []*meter.Meter {
	var out []*meter.Meter
	for _, m := range []*meter.Meter{r.Electricity, r.StorageHeaters, r.Gas} {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amr "energy-costing/internal/amr/domain"
	site "energy-costing/internal/site/domain"
)

// DBTX is the subset of *sql.DB and *sql.Tx the repository needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is a Postgres implementation of site.Repository.
type Repository struct {
	db DBTX
}

// NewRepository constructs a repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) check() error {
	if r == nil || r.db == nil {
		return errors.New("site repo: nil db")
	}
	return nil
}

// ListSites returns every site ordered by urn.
func (r *Repository) ListSites(ctx context.Context) ([]site.Site, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT urn, name, floor_area, pupils
FROM sites
ORDER BY urn`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []site.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSite loads one site, returning nil when it does not exist.
func (r *Repository) GetSite(ctx context.Context, urn int64) (*site.Site, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
SELECT urn, name, floor_area, pupils
FROM sites
WHERE urn = $1
LIMIT 1`, urn)
	s, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(row scanner) (site.Site, error) {
	var (
		s         site.Site
		floorArea sql.NullFloat64
		pupils    sql.NullInt64
	)
	if err := row.Scan(&s.URN, &s.Name, &floorArea, &pupils); err != nil {
		return site.Site{}, err
	}
	s.FloorArea = nullFloat(floorArea)
	s.Pupils = nullInt(pupils)
	return s, nil
}

// ListMeters returns a site's meters with their attribute records.
func (r *Repository) ListMeters(ctx context.Context, siteURN int64) ([]site.MeterRecord, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT m.mpxn, m.site_urn, m.name, m.fuel, m.role, m.parent_mpxn, m.floor_area, m.pupils, a.attributes
FROM meters m
LEFT JOIN meter_attributes a ON a.mpxn = m.mpxn
WHERE m.site_urn = $1
ORDER BY m.mpxn`, siteURN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []site.MeterRecord
	for rows.Next() {
		var (
			rec       site.MeterRecord
			fuel      string
			role      string
			floorArea sql.NullFloat64
			pupils    sql.NullInt64
			raw       []byte
		)
		if err := rows.Scan(&rec.MPXN, &rec.SiteURN, &rec.Name, &fuel, &role, &rec.ParentMPXN, &floorArea, &pupils, &raw); err != nil {
			return nil, err
		}
		rec.Fuel = amr.FuelType(fuel)
		rec.Role = site.Role(role)
		rec.FloorArea = nullFloat(floorArea)
		rec.Pupils = nullInt(pupils)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rec.Attributes); err != nil {
				return nil, fmt.Errorf("site repo: meter %s attributes: %w", rec.MPXN, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadSeries returns a meter's half-hourly readings; missing meters yield an empty series.
func (r *Repository) LoadSeries(ctx context.Context, mpxn string) (*amr.Series, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT reading_date, kwh
FROM amr_readings
WHERE mpxn = $1
ORDER BY reading_date`, mpxn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := amr.NewSeries(mpxn)
	for rows.Next() {
		var (
			date time.Time
			raw  []byte
			kwh  []float64
		)
		if err := rows.Scan(&date, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &kwh); err != nil {
			return nil, fmt.Errorf("site repo: %s on %s: %w", mpxn, amr.FormatDay(date), err)
		}
		if len(kwh) != amr.SlotsPerDay {
			return nil, fmt.Errorf("site repo: %s on %s: %d readings, want %d", mpxn, amr.FormatDay(date), len(kwh), amr.SlotsPerDay)
		}
		var v amr.HalfHourVector
		copy(v[:], kwh)
		if err := series.Add(date, v); err != nil {
			return nil, fmt.Errorf("site repo: %s: %w", mpxn, err)
		}
	}
	return series, rows.Err()
}

// SaveSite upserts a site.
func (r *Repository) SaveSite(ctx context.Context, s site.Site) error {
	if err := r.check(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sites (urn, name, floor_area, pupils)
VALUES ($1, $2, $3, $4)
ON CONFLICT (urn)
DO UPDATE SET
	name = EXCLUDED.name,
	floor_area = EXCLUDED.floor_area,
	pupils = EXCLUDED.pupils,
	updated_at = NOW()`, s.URN, s.Name, s.FloorArea, s.Pupils)
	return err
}

// SaveMeter upserts a meter and its attribute record.
func (r *Repository) SaveMeter(ctx context.Context, rec site.MeterRecord) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO meters (mpxn, site_urn, name, fuel, role, parent_mpxn, floor_area, pupils)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (mpxn)
DO UPDATE SET
	site_urn = EXCLUDED.site_urn,
	name = EXCLUDED.name,
	fuel = EXCLUDED.fuel,
	role = EXCLUDED.role,
	parent_mpxn = EXCLUDED.parent_mpxn,
	floor_area = EXCLUDED.floor_area,
	pupils = EXCLUDED.pupils,
	updated_at = NOW()`,
		rec.MPXN, rec.SiteURN, rec.Name, string(rec.Fuel), string(rec.Role), rec.ParentMPXN, rec.FloorArea, rec.Pupils)
	if err != nil {
		return err
	}
	if rec.Attributes == nil {
		return nil
	}
	raw, err := json.Marshal(rec.Attributes)
	if err != nil {
		return fmt.Errorf("site repo: meter %s attributes: %w", rec.MPXN, err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO meter_attributes (mpxn, attributes)
VALUES ($1, $2::jsonb)
ON CONFLICT (mpxn)
DO UPDATE SET attributes = EXCLUDED.attributes, updated_at = NOW()`, rec.MPXN, string(raw))
	return err
}

// SaveReadings upserts every day of a series.
func (r *Repository) SaveReadings(ctx context.Context, series *amr.Series) error {
	if err := r.check(); err != nil {
		return err
	}
	for _, date := range series.Dates() {
		raw, err := json.Marshal(series.VectorFor(date)[:])
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, `
INSERT INTO amr_readings (mpxn, reading_date, kwh)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (mpxn, reading_date)
DO UPDATE SET kwh = EXCLUDED.kwh, updated_at = NOW()`, series.MPXN(), date, string(raw)); err != nil {
			return fmt.Errorf("site repo: save %s on %s: %w", series.MPXN(), amr.FormatDay(date), err)
		}
	}
	return nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

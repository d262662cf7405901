package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	amr "energy-costing/internal/amr/domain"
	site "energy-costing/internal/site/domain"
)

// Repository is an in-memory site repository.
type Repository struct {
	mu       sync.RWMutex
	sites    map[int64]site.Site
	meters   map[int64][]site.MeterRecord
	readings map[string]*amr.Series
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		sites:    make(map[int64]site.Site),
		meters:   make(map[int64][]site.MeterRecord),
		readings: make(map[string]*amr.Series),
	}
}

// SaveSite upserts a site.
func (r *Repository) SaveSite(s site.Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[s.URN] = s
}

// SaveMeter upserts a meter record under its site.
func (r *Repository) SaveMeter(rec site.MeterRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sites[rec.SiteURN]; !ok {
		return fmt.Errorf("%w: %d", site.ErrSiteNotFound, rec.SiteURN)
	}
	list := r.meters[rec.SiteURN]
	for i := range list {
		if list[i].MPXN == rec.MPXN {
			list[i] = rec
			return nil
		}
	}
	r.meters[rec.SiteURN] = append(list, rec)
	return nil
}

// SaveSeries stores a copy of a meter's readings.
func (r *Repository) SaveSeries(mpxn string, series *amr.Series) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings[mpxn] = series.Clone()
}

func (r *Repository) ListSites(ctx context.Context) ([]site.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]site.Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URN < out[j].URN })
	return out, nil
}

func (r *Repository) GetSite(ctx context.Context, urn int64) (*site.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[urn]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *Repository) ListMeters(ctx context.Context, siteURN int64) ([]site.MeterRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.sites[siteURN]; !ok {
		return nil, fmt.Errorf("%w: %d", site.ErrSiteNotFound, siteURN)
	}
	return append([]site.MeterRecord(nil), r.meters[siteURN]...), nil
}

// LoadSeries returns a copy of the readings, or an empty series when none are stored.
func (r *Repository) LoadSeries(ctx context.Context, mpxn string) (*amr.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	series, ok := r.readings[mpxn]
	if !ok {
		return amr.NewSeries(mpxn), nil
	}
	return series.Clone(), nil
}

package amr

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateDate is returned when a day is added twice to a series.
	ErrDuplicateDate = errors.New("amr: duplicate date")
	// ErrInvalidDate is returned for zero dates.
	ErrInvalidDate = errors.New("amr: invalid date")
	// ErrEmptySeries is returned when an operation needs at least one day.
	ErrEmptySeries = errors.New("amr: empty series")
)

// Series is a meter's half-hourly history indexed by day offset from its first day.
// Invariants:
// 1) No duplicate dates.
// 2) The first and last slots are always present; interior gaps are explicit.
type Series struct {
	mpxn    string
	start   time.Time
	days    []HalfHourVector
	present []bool
	count   int
}

// NewSeries constructs an empty series for a meter.
func NewSeries(mpxn string) *Series {
	return &Series{mpxn: mpxn}
}

// MPXN returns the owning meter reference.
func (s *Series) MPXN() string { return s.mpxn }

// Len returns the number of days with data.
func (s *Series) Len() int { return s.count }

// StartDate returns the first day with data.
func (s *Series) StartDate() time.Time { return s.start }

// EndDate returns the last day with data.
func (s *Series) EndDate() time.Time {
	if len(s.days) == 0 {
		return time.Time{}
	}
	return s.start.AddDate(0, 0, len(s.days)-1)
}

// Add appends a day. Days may arrive in any order.
func (s *Series) Add(date time.Time, kwh HalfHourVector) error {
	if date.IsZero() {
		return ErrInvalidDate
	}
	date = TruncateDay(date)

	if len(s.days) == 0 {
		s.start = date
		s.days = []HalfHourVector{kwh}
		s.present = []bool{true}
		s.count = 1
		return nil
	}

	if date.Before(s.start) {
		shift := DaysBetween(date, s.start)
		days := make([]HalfHourVector, shift+len(s.days))
		present := make([]bool, shift+len(s.present))
		copy(days[shift:], s.days)
		copy(present[shift:], s.present)
		s.days, s.present, s.start = days, present, date
	}

	idx := DaysBetween(s.start, date)
	if idx >= len(s.days) {
		grow := idx - len(s.days) + 1
		s.days = append(s.days, make([]HalfHourVector, grow)...)
		s.present = append(s.present, make([]bool, grow)...)
	}
	if s.present[idx] {
		return ErrDuplicateDate
	}
	s.days[idx] = kwh
	s.present[idx] = true
	s.count++
	return nil
}

// DateExists reports whether the series holds data for the day.
func (s *Series) DateExists(date time.Time) bool {
	idx, ok := s.index(date)
	return ok && s.present[idx]
}

// VectorFor returns the day's vector, or nil when the day is absent.
// The returned pointer aliases the series storage and must not be mutated.
func (s *Series) VectorFor(date time.Time) *HalfHourVector {
	idx, ok := s.index(date)
	if !ok || !s.present[idx] {
		return nil
	}
	return &s.days[idx]
}

// Dates returns the present days in ascending order.
func (s *Series) Dates() []time.Time {
	dates := make([]time.Time, 0, s.count)
	for i, ok := range s.present {
		if ok {
			dates = append(dates, s.start.AddDate(0, 0, i))
		}
	}
	return dates
}

// DayTotal returns the day's kWh total and whether the day exists.
func (s *Series) DayTotal(date time.Time) (float64, bool) {
	v := s.VectorFor(date)
	if v == nil {
		return 0, false
	}
	return Total(v), true
}

// Truncate returns a copy restricted to [start, end].
func (s *Series) Truncate(start, end time.Time) *Series {
	out := NewSeries(s.mpxn)
	EachDay(start, end, func(day time.Time) bool {
		if v := s.VectorFor(day); v != nil {
			_ = out.Add(day, *v)
		}
		return true
	})
	return out
}

// BackfillZeros returns a copy where every missing day from start up to the
// series' own start date is filled with a zero vector.
func (s *Series) BackfillZeros(start time.Time) *Series {
	out := s.Clone()
	start = TruncateDay(start)
	if s.count == 0 || !start.Before(s.start) {
		return out
	}
	EachDay(start, s.start.AddDate(0, 0, -1), func(day time.Time) bool {
		_ = out.Add(day, HalfHourVector{})
		return true
	})
	return out
}

// Map returns a copy with fn applied to every present day.
func (s *Series) Map(mpxn string, fn func(day time.Time, v *HalfHourVector) HalfHourVector) *Series {
	out := NewSeries(mpxn)
	for i, ok := range s.present {
		if !ok {
			continue
		}
		day := s.start.AddDate(0, 0, i)
		_ = out.Add(day, fn(day, &s.days[i]))
	}
	return out
}

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	out := &Series{mpxn: s.mpxn, start: s.start, count: s.count}
	out.days = append([]HalfHourVector(nil), s.days...)
	out.present = append([]bool(nil), s.present...)
	return out
}

func (s *Series) index(date time.Time) (int, bool) {
	if len(s.days) == 0 {
		return 0, false
	}
	date = TruncateDay(date)
	if date.Before(s.start) {
		return 0, false
	}
	idx := DaysBetween(s.start, date)
	if idx >= len(s.days) {
		return 0, false
	}
	return idx, true
}

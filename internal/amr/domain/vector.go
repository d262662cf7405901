package amr

import "math"

// SlotsPerDay is the number of half-hour readings in one day.
const SlotsPerDay = 48

// HalfHourVector holds one value per half hour, index 0 = 00:00-00:30.
// It is used for kWh, £ and kg series alike.
type HalfHourVector [SlotsPerDay]float64

// Sum adds vectors elementwise. Nil entries are absent contributors and are
// skipped rather than treated as zero; the count of present contributors is returned.
func Sum(vectors ...*HalfHourVector) (HalfHourVector, int) {
	var out HalfHourVector
	present := 0
	for _, v := range vectors {
		if v == nil {
			continue
		}
		present++
		for i := range out {
			out[i] += v[i]
		}
	}
	return out, present
}

// Add adds src into dst in place.
func Add(dst *HalfHourVector, src *HalfHourVector) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Multiply returns the elementwise product of a and weights.
func Multiply(a, weights *HalfHourVector) HalfHourVector {
	var out HalfHourVector
	for i := range out {
		out[i] = a[i] * weights[i]
	}
	return out
}

// Scale multiplies every slot by k.
func Scale(a *HalfHourVector, k float64) HalfHourVector {
	var out HalfHourVector
	for i := range out {
		out[i] = a[i] * k
	}
	return out
}

// Negate flips the sign of every slot.
func Negate(a *HalfHourVector) HalfHourVector {
	return Scale(a, -1)
}

// Total returns the sum of all slots.
func Total(a *HalfHourVector) float64 {
	var total float64
	for _, v := range a {
		total += v
	}
	return total
}

// Filled returns a vector with every slot set to value.
func Filled(value float64) HalfHourVector {
	var out HalfHourVector
	for i := range out {
		out[i] = value
	}
	return out
}

// IsZero reports whether every slot is within tolerance of zero.
func IsZero(a *HalfHourVector, tolerance float64) bool {
	for _, v := range a {
		if math.Abs(v) > tolerance {
			return false
		}
	}
	return true
}

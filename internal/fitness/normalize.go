package fitness

import (
	"fmt"
	"math"
)

// InvalidRangeError reports a normalization range that cannot map values.
type InvalidRangeError struct {
	Min, Max     float64
	Start, End   float64
	TargetFailed bool
}

func (e *InvalidRangeError) Error() string {
	if e.TargetFailed {
		return fmt.Sprintf("invalid target range: end=%v must exceed start=%v", e.End, e.Start)
	}
	return fmt.Sprintf("invalid source range: max=%v must exceed min=%v", e.Max, e.Min)
}

// Range is an empirically fixed bound for one objective's raw fitness.
type Range struct {
	Min float64 `json:"min" yaml:"min" ini:"min"`
	Max float64 `json:"max" yaml:"max" ini:"max"`
}

func (r Range) Validate() error {
	if !(r.Max > r.Min) {
		return &InvalidRangeError{Min: r.Min, Max: r.Max, Start: 0, End: 1}
	}
	return nil
}

// Normalize maps value from [r.Min, r.Max] into [0, 1].
func (r Range) Normalize(value float64) (float64, error) {
	return Normalize(r.Min, r.Max, value)
}

// Bounds of the built-in objectives. The combined range is used when all
// objectives are summed into a single score.
var (
	AvoidObstaclesRange = Range{Min: -1410, Max: 940}
	FollowWallRange     = Range{Min: -1890, Max: 470}
	FollowLineRange     = Range{Min: -940, Max: 470}
	CombinedRange       = Range{Min: -1890, Max: 470}
)

// Normalize maps value from [min, max] into [0, 1], saturating outside.
func Normalize(min, max, value float64) (float64, error) {
	return NormalizeRange(min, max, value, 0, 1)
}

// NormalizeRange maps value from [min, max] into [start, end]. Values at or
// beyond a bound saturate to the matching target bound.
func NormalizeRange(min, max, value, start, end float64) (float64, error) {
	if !(max > min) {
		return 0, &InvalidRangeError{Min: min, Max: max, Start: start, End: end}
	}
	if !(end > start) {
		return 0, &InvalidRangeError{Min: min, Max: max, Start: start, End: end, TargetFailed: true}
	}
	if math.IsNaN(value) {
		return start, nil
	}
	if value >= max {
		return end, nil
	}
	if value <= min {
		return start, nil
	}
	return (value-min)*(end-start)/(max-min) + start, nil
}

// NormalizeAll normalizes every value against r into a new slice.
func NormalizeAll(r Range, values []float64) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		n, err := r.Normalize(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

package fitness

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary is the best/average/worst view of one objective in a generation.
type Summary struct {
	Best      float64
	Average   float64
	Worst     float64
	BestIndex int
}

// Summarize computes a Summary. Ties for best resolve to the lowest index.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{Best: math.NaN(), Average: math.NaN(), Worst: math.NaN(), BestIndex: -1}
	}
	idx := floats.MaxIdx(values)
	return Summary{
		Best:      values[idx],
		Average:   stat.Mean(values, nil),
		Worst:     floats.Min(values),
		BestIndex: idx,
	}
}

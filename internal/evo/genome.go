package evo

import (
	"fmt"
	"math/rand"

	"coevolve/internal/model"
)

// GeneBounds is the closed interval every gene is kept inside.
type GeneBounds struct {
	Min float64
	Max float64
}

func (b GeneBounds) Validate() error {
	if !(b.Max > b.Min) {
		return fmt.Errorf("invalid gene bounds: min=%v max=%v", b.Min, b.Max)
	}
	return nil
}

func (b GeneBounds) Clamp(v float64) float64 {
	if v > b.Max {
		return b.Max
	}
	if v < b.Min {
		return b.Min
	}
	return v
}

// RandomGenome draws n genes uniformly from bounds.
func RandomGenome(rng *rand.Rand, n int, bounds GeneBounds) model.Genome {
	g := make(model.Genome, n)
	for i := range g {
		g[i] = bounds.Min + rng.Float64()*(bounds.Max-bounds.Min)
	}
	return g
}

// CopyInto overwrites dst with src without sharing backing storage.
func CopyInto(dst, src model.Genome) error {
	if len(dst) != len(src) {
		return fmt.Errorf("genome length mismatch: dst=%d src=%d", len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

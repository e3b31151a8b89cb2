package evo

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrIndexOutOfRange   = errors.New("individual index out of range")
	ErrObjectiveMismatch = errors.New("fitness vector does not match objective count")
	ErrTrialComplete     = errors.New("trial already complete")
	ErrUnevenPartition   = errors.New("population size not divisible by objective count")
	ErrBusy              = errors.New("population is reproducing")
)

// Params are the genetic-algorithm settings of one population.
type Params struct {
	Size       int
	Genes      int
	Objectives int
	Bounds     GeneBounds

	ElitismRatio         float64
	ReproductionRatio    float64
	CrossoverProbability float64
	MutationProbability  float64
	MutationSigma        float64
}

func (p Params) Validate() error {
	if p.Size <= 0 {
		return fmt.Errorf("population size must be positive: %d", p.Size)
	}
	if p.Genes <= 0 {
		return fmt.Errorf("gene count must be positive: %d", p.Genes)
	}
	if p.Objectives <= 0 {
		return fmt.Errorf("objective count must be positive: %d", p.Objectives)
	}
	if err := p.Bounds.Validate(); err != nil {
		return err
	}
	probs := []struct {
		name  string
		value float64
	}{
		{"elitism ratio", p.ElitismRatio},
		{"reproduction ratio", p.ReproductionRatio},
		{"crossover probability", p.CrossoverProbability},
		{"mutation probability", p.MutationProbability},
	}
	for _, prob := range probs {
		if prob.value < 0 || prob.value > 1 || math.IsNaN(prob.value) {
			return fmt.Errorf("%s must be in [0,1]: %v", prob.name, prob.value)
		}
	}
	if p.MutationSigma < 0 || math.IsNaN(p.MutationSigma) {
		return fmt.Errorf("mutation sigma must be non-negative: %v", p.MutationSigma)
	}
	return nil
}

// EliteCount is floor(Size * ElitismRatio).
func (p Params) EliteCount() int {
	return int(math.Floor(float64(p.Size) * p.ElitismRatio))
}

// DefaultControllerParams mirrors the reference experiment: 30 controllers,
// genes in [-1, 1], 10% elitism.
func DefaultControllerParams(genes, objectives int) Params {
	return Params{
		Size:                 30,
		Genes:                genes,
		Objectives:           objectives,
		Bounds:               GeneBounds{Min: -1, Max: 1},
		ElitismRatio:         0.1,
		ReproductionRatio:    0.4,
		CrossoverProbability: 0.5,
		MutationProbability:  0.1,
		MutationSigma:        0.2,
	}
}

package scape

import (
	"context"

	"coevolve/internal/model"
)

// Scape evaluates one controller for a full trial under the active games
// and returns the total fitness per game.
type Scape interface {
	Name() string
	Evaluate(ctx context.Context, genes model.Genome, games []model.Genome) ([]float64, error)
}

// StepFunc receives one time step's per-game fitness contribution.
type StepFunc func(deltas []float64, done bool) error

// SteppedScape additionally streams per-step contributions.
type SteppedScape interface {
	Scape
	RunTrial(ctx context.Context, genes model.Genome, games []model.Genome, emit StepFunc) error
}

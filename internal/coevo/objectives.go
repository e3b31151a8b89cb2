package coevo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"coevolve/internal/channel"
	"coevolve/internal/evo"
	"coevolve/internal/fitness"
	"coevolve/internal/model"
)

var ErrNoGames = errors.New("no evolved games available")

// LocalObjectives evolves the game population in-process. Each game is
// scored by the variance of the controller fitness it induced.
type LocalObjectives struct {
	mu     sync.Mutex
	pop    *evo.Population
	logger *slog.Logger

	next  []model.Genome
	ready bool
}

var _ channel.ObjectiveChannel = (*LocalObjectives)(nil)

func NewLocalObjectives(games *evo.Population, logger *slog.Logger) (*LocalObjectives, error) {
	if games == nil {
		return nil, errors.New("game population is required")
	}
	if games.Params().Objectives != 1 {
		return nil, fmt.Errorf("game population must score one objective, got %d", games.Params().Objectives)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LocalObjectives{pop: games, logger: logger}, nil
}

// Population exposes the game population for checkpointing.
func (l *LocalObjectives) Population() *evo.Population {
	return l.pop
}

// Games returns the current game genomes.
func (l *LocalObjectives) Games() []model.Genome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pop.Genomes()
}

func (l *LocalObjectives) SendEvolve(ctx context.Context, sig channel.EvolveSignal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(sig.Fitness) != l.pop.Size() {
		return fmt.Errorf("%w: %d fitness rows for %d games", channel.ErrMalformedMessage, len(sig.Fitness), l.pop.Size())
	}
	width := 0
	if len(sig.Fitness) > 0 {
		width = len(sig.Fitness[0])
	}
	m := fitness.NewMatrix(len(sig.Fitness), width)
	if err := m.AddRows(sig.Fitness); err != nil {
		return err
	}

	for i, v := range m.GameFitness() {
		if err := l.pop.SetFitness(i, []float64{v}); err != nil {
			l.pop.Abandon()
			return fmt.Errorf("score game %d: %w", i, err)
		}
	}
	report, err := l.pop.AdvanceGeneration(ctx)
	if err != nil {
		l.pop.Abandon()
		return err
	}
	l.logger.Debug("games evolved", "generation", report.Generation, "variance", report.Fitness[0])
	l.next = l.pop.Genomes()
	l.ready = true
	return nil
}

// ReceiveGames returns the games bred by the last SendEvolve. Each call
// consumes one evolution.
func (l *LocalObjectives) ReceiveGames(ctx context.Context) ([]model.Genome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil, ErrNoGames
	}
	l.ready = false
	out := l.next
	l.next = nil
	return out, nil
}

// Restore loads a game population snapshot between evolutions.
func (l *LocalObjectives) Restore(snap model.PopulationSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = false
	l.next = nil
	return l.pop.Restore(snap)
}

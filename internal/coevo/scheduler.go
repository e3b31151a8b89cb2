package coevo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"coevolve/internal/channel"
	"coevolve/internal/evo"
	"coevolve/internal/fitness"
	"coevolve/internal/model"
)

type SchedulerOptions struct {
	// Cadence is K: games evolve after every K controller generations.
	Cadence int
	// Coevolve false keeps the initial games for the whole run.
	Coevolve bool
	Games    []model.Genome
	Logger   *slog.Logger
}

// SchedulerState is the resumable part of a Scheduler.
type SchedulerState struct {
	Games           []model.Genome
	GameGenerations int
	SinceEvolve     int
	GameFitness     [][]float64
}

// Scheduler advances the controller population every generation and the
// game population on cadence boundaries.
type Scheduler struct {
	controllers *evo.Population
	objectives  channel.ObjectiveChannel
	cadence     int
	coevolve    bool
	logger      *slog.Logger

	games           []model.Genome
	gameFitness     *fitness.Matrix
	sinceEvolve     int
	gameGenerations int
}

func NewScheduler(controllers *evo.Population, objectives channel.ObjectiveChannel, opts SchedulerOptions) (*Scheduler, error) {
	if controllers == nil {
		return nil, errors.New("controller population is required")
	}
	if opts.Cadence <= 0 {
		return nil, fmt.Errorf("cadence must be positive: %d", opts.Cadence)
	}
	if opts.Coevolve && objectives == nil {
		return nil, errors.New("objective channel is required to coevolve games")
	}
	count := controllers.Params().Objectives
	if err := checkGames(opts.Games, count); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		controllers: controllers,
		objectives:  objectives,
		cadence:     opts.Cadence,
		coevolve:    opts.Coevolve,
		logger:      logger,
		games:       cloneGenomes(opts.Games),
		gameFitness: fitness.NewMatrix(count, controllers.Size()),
	}, nil
}

func checkGames(games []model.Genome, count int) error {
	if len(games) != count {
		return fmt.Errorf("%w: %d games for %d objectives", evo.ErrObjectiveMismatch, len(games), count)
	}
	for i, g := range games {
		if len(g) != fitness.GameGenes {
			return fmt.Errorf("game %d has %d constants, want %d", i, len(g), fitness.GameGenes)
		}
	}
	return nil
}

func (s *Scheduler) Controllers() *evo.Population { return s.controllers }
func (s *Scheduler) GameGenerations() int         { return s.gameGenerations }
func (s *Scheduler) Cadence() int                 { return s.cadence }

// Games returns the active games in objective order.
func (s *Scheduler) Games() []model.Genome {
	return cloneGenomes(s.games)
}

func (s *Scheduler) State() SchedulerState {
	return SchedulerState{
		Games:           s.Games(),
		GameGenerations: s.gameGenerations,
		SinceEvolve:     s.sinceEvolve,
		GameFitness:     s.gameFitness.Rows(),
	}
}

func (s *Scheduler) Restore(state SchedulerState) error {
	if err := checkGames(state.Games, s.controllers.Params().Objectives); err != nil {
		return err
	}
	if state.SinceEvolve < 0 {
		return fmt.Errorf("generations since game evolution must be non-negative: %d", state.SinceEvolve)
	}
	acc := fitness.NewMatrix(s.gameFitness.Objectives(), s.gameFitness.Individuals())
	if len(state.GameFitness) > 0 {
		if err := acc.AddRows(state.GameFitness); err != nil {
			return err
		}
	}
	s.games = cloneGenomes(state.Games)
	s.gameGenerations = state.GameGenerations
	s.sinceEvolve = state.SinceEvolve
	s.gameFitness = acc
	return nil
}

// Advance breeds the next controller generation once every controller is
// evaluated. It reports whether the games were evolved as well.
func (s *Scheduler) Advance(ctx context.Context) (evo.GenerationReport, bool, error) {
	report, err := s.controllers.AdvanceGeneration(ctx)
	if err != nil {
		return evo.GenerationReport{}, false, err
	}
	if !s.coevolve {
		return report, false, nil
	}
	if err := s.gameFitness.AddRows(report.Fitness); err != nil {
		return report, false, err
	}
	s.sinceEvolve++
	if s.sinceEvolve < s.cadence {
		return report, false, nil
	}
	if err := s.evolveGames(ctx); err != nil {
		return report, false, err
	}
	return report, true, nil
}

// evolveGames sends the accumulated fitness and installs the returned games.
// On failure the old games and the accumulated fitness are kept.
func (s *Scheduler) evolveGames(ctx context.Context) error {
	sig := channel.EvolveSignal{Generation: s.gameGenerations, Fitness: s.gameFitness.Rows()}
	if err := s.objectives.SendEvolve(ctx, sig); err != nil {
		return fmt.Errorf("send evolve signal: %w", err)
	}
	games, err := s.objectives.ReceiveGames(ctx)
	if err != nil {
		return fmt.Errorf("receive games: %w", err)
	}
	if err := checkGames(games, len(s.games)); err != nil {
		return fmt.Errorf("receive games: %w", err)
	}
	s.games = cloneGenomes(games)
	s.gameFitness.Reset()
	s.sinceEvolve = 0
	s.gameGenerations++
	s.logger.Info("games evolved", "game_generation", s.gameGenerations, "controller_generation", s.controllers.Generation())
	return nil
}

func cloneGenomes(in []model.Genome) []model.Genome {
	out := make([]model.Genome, len(in))
	for i, g := range in {
		out[i] = g.Clone()
	}
	return out
}

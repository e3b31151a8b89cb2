package coevo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"coevolve/internal/channel"
	"coevolve/internal/evo"
	"coevolve/internal/model"
)

type DriverOptions struct {
	// Evaluator switches the driver to concurrent in-process evaluation.
	Evaluator Evaluator
	Workers   int
	Logger    *slog.Logger
	// OnDrop observes every report the driver discards.
	OnDrop func(error)
	// TrialTimeout bounds one controller's trial on the channel. Zero waits
	// for as long as ctx allows.
	TrialTimeout time.Duration
}

// Driver runs the controller evaluation loop one individual at a time over
// an evaluation channel and hands finished generations to the scheduler.
type Driver struct {
	scheduler *Scheduler
	eval      channel.EvaluationChannel
	evaluator Evaluator
	workers   int
	logger    *slog.Logger
	onDrop    func(error)
	timeout   time.Duration
	dropped   atomic.Int64
}

var (
	ErrTrialTimeout         = errors.New("trial timed out")
	errUnexpectedIndividual = errors.New("report for unexpected individual")
)

func NewDriver(scheduler *Scheduler, eval channel.EvaluationChannel, opts DriverOptions) (*Driver, error) {
	if scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if eval == nil && opts.Evaluator == nil {
		return nil, errors.New("an evaluation channel or evaluator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Driver{
		scheduler: scheduler,
		eval:      eval,
		evaluator: opts.Evaluator,
		workers:   opts.Workers,
		logger:    logger,
		onDrop:    opts.OnDrop,
		timeout:   opts.TrialTimeout,
	}, nil
}

// Dropped counts reports discarded by the driver itself.
func (d *Driver) Dropped() int64 { return d.dropped.Load() }

func (d *Driver) drop(individual int, err error) {
	d.dropped.Add(1)
	d.logger.Warn("dropping fitness report", "individual", individual, "error", err)
	if d.onDrop != nil {
		d.onDrop(err)
	}
}

// Evaluate runs every controller of the current generation. When it fails
// the partial fitness is abandoned and genomes are untouched.
func (d *Driver) Evaluate(ctx context.Context) error {
	pop := d.scheduler.Controllers()
	if pop.State() != evo.StateIdle {
		pop.Abandon()
	}
	games := d.scheduler.Games()
	if d.evaluator != nil {
		return BatchEvaluate(ctx, pop, games, d.evaluator, d.workers)
	}

	for i := 0; i < pop.Size(); i++ {
		if err := d.evaluateOne(ctx, pop, i, games); err != nil {
			pop.Abandon()
			return err
		}
	}
	return nil
}

func (d *Driver) evaluateOne(ctx context.Context, pop *evo.Population, i int, games []model.Genome) error {
	trialCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		trialCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	genes, err := pop.Genome(i)
	if err != nil {
		return err
	}
	msg := channel.GenomeMessage{Individual: i, Generation: pop.Generation(), Genes: genes, Games: games}
	if err := d.eval.Send(trialCtx, msg); err != nil {
		return fmt.Errorf("send individual %d: %w", i, err)
	}
	for {
		report, err := d.eval.Receive(trialCtx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: individual %d after %s", ErrTrialTimeout, i, d.timeout)
			}
			return fmt.Errorf("receive individual %d: %w", i, err)
		}
		if report.Individual != i {
			d.drop(report.Individual, fmt.Errorf("%w: got %d want %d", errUnexpectedIndividual, report.Individual, i))
			continue
		}
		if err := pop.EvaluateStep(i, report.Fitness); err != nil {
			d.drop(i, err)
			if report.Done {
				// The trial is over; keep the fitness accumulated so far.
				return pop.MarkTrialComplete(i)
			}
			continue
		}
		if report.Done {
			return pop.MarkTrialComplete(i)
		}
	}
}

// Step evaluates one controller generation and advances the scheduler.
func (d *Driver) Step(ctx context.Context) (evo.GenerationReport, bool, error) {
	if err := d.Evaluate(ctx); err != nil {
		return evo.GenerationReport{}, false, err
	}
	return d.scheduler.Advance(ctx)
}

// Run performs generations steps, calling after (when set) following each.
func (d *Driver) Run(ctx context.Context, generations int, after func(evo.GenerationReport, bool) error) error {
	for g := 0; g < generations; g++ {
		report, evolved, err := d.Step(ctx)
		if err != nil {
			return err
		}
		if after != nil {
			if err := after(report, evolved); err != nil {
				return err
			}
		}
	}
	return nil
}

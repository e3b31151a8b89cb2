package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"coevolve/internal/model"
)

var ErrClosed = errors.New("channel closed")

// EvaluationChannel carries genomes to the external evaluation loop and
// per-step fitness reports back.
type EvaluationChannel interface {
	Send(ctx context.Context, msg GenomeMessage) error
	Receive(ctx context.Context) (FitnessReport, error)
}

// ObjectiveChannel triggers game evolution and returns the updated games.
type ObjectiveChannel interface {
	SendEvolve(ctx context.Context, signal EvolveSignal) error
	ReceiveGames(ctx context.Context) ([]model.Genome, error)
}

type PipeOptions struct {
	Buffer int
	// Objectives is the fitness vector length reports must carry. Zero
	// disables the check.
	Objectives int
	Logger     *slog.Logger
	// OnDrop is called for every inbound message discarded as malformed.
	OnDrop func(err error)
}

// Pipe is an in-process evaluation channel. Messages cross it encoded, so
// both ends validate exactly what a remote peer would.
type Pipe struct {
	toRobot  chan []byte
	toEngine chan []byte
	done     chan struct{}
	once     sync.Once

	objectives int
	logger     *slog.Logger
	onDrop     func(error)
	dropped    atomic.Int64
}

func NewPipe(opts PipeOptions) *Pipe {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 16
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipe{
		toRobot:    make(chan []byte, buffer),
		toEngine:   make(chan []byte, buffer),
		done:       make(chan struct{}),
		objectives: opts.Objectives,
		logger:     logger,
		onDrop:     opts.OnDrop,
	}
}

// Close unblocks both ends. Safe to call more than once.
func (p *Pipe) Close() {
	p.once.Do(func() { close(p.done) })
}

// Dropped is the number of malformed inbound messages discarded so far.
func (p *Pipe) Dropped() int64 { return p.dropped.Load() }

func (p *Pipe) Engine() *EngineEnd { return &EngineEnd{pipe: p} }
func (p *Pipe) Robot() *RobotEnd   { return &RobotEnd{pipe: p} }

func (p *Pipe) write(ctx context.Context, ch chan []byte, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	case ch <- data:
		return nil
	}
}

func (p *Pipe) read(ctx context.Context, ch chan []byte) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	case data := <-ch:
		return data, nil
	}
}

func (p *Pipe) drop(side string, err error) {
	p.dropped.Add(1)
	p.logger.Warn("dropping malformed message", "side", side, "error", err)
	if p.onDrop != nil {
		p.onDrop(err)
	}
}

// EngineEnd is the optimizer side of a Pipe.
type EngineEnd struct {
	pipe *Pipe
}

func (e *EngineEnd) Send(ctx context.Context, msg GenomeMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := Encode(KindGenome, msg)
	if err != nil {
		return err
	}
	return e.pipe.write(ctx, e.pipe.toRobot, data)
}

// Receive returns the next well-formed report. Malformed reports are
// logged, counted and skipped.
func (e *EngineEnd) Receive(ctx context.Context) (FitnessReport, error) {
	for {
		data, err := e.pipe.read(ctx, e.pipe.toEngine)
		if err != nil {
			return FitnessReport{}, err
		}
		var report FitnessReport
		if err := Decode(data, KindReport, &report); err != nil {
			e.pipe.drop("engine", err)
			continue
		}
		if err := report.Validate(e.pipe.objectives); err != nil {
			e.pipe.drop("engine", err)
			continue
		}
		return report, nil
	}
}

// RobotEnd is the evaluator side of a Pipe.
type RobotEnd struct {
	pipe *Pipe
}

func (r *RobotEnd) ReceiveGenome(ctx context.Context) (GenomeMessage, error) {
	for {
		data, err := r.pipe.read(ctx, r.pipe.toRobot)
		if err != nil {
			return GenomeMessage{}, err
		}
		var msg GenomeMessage
		if err := Decode(data, KindGenome, &msg); err != nil {
			r.pipe.drop("robot", err)
			continue
		}
		if err := msg.Validate(); err != nil {
			r.pipe.drop("robot", err)
			continue
		}
		return msg, nil
	}
}

func (r *RobotEnd) SendReport(ctx context.Context, report FitnessReport) error {
	data, err := Encode(KindReport, report)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return r.pipe.write(ctx, r.pipe.toEngine, data)
}

// SendRaw writes bytes to the engine unchanged.
func (r *RobotEnd) SendRaw(ctx context.Context, data []byte) error {
	return r.pipe.write(ctx, r.pipe.toEngine, data)
}

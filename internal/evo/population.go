package evo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"

	"coevolve/internal/fitness"
	"coevolve/internal/model"
	"coevolve/internal/stats"
)

// State is the lifecycle phase of a population.
type State int

const (
	StateIdle State = iota
	StateEvaluating
	StateAllEvaluated
	StateReproducing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateAllEvaluated:
		return "all_evaluated"
	case StateReproducing:
		return "reproducing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// NotReadyError is returned when a generation is advanced before every
// individual finished its trial.
type NotReadyError struct {
	State   State
	Pending int
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("population not ready to advance: state=%s pending=%d", e.State, e.Pending)
}

type Options struct {
	Name    string
	RunID   string
	Breeder Breeder
	Logger  *slog.Logger
	Sink    stats.Sink
	// Seed replaces the random initial genomes when set.
	Seed []model.Genome
}

// GenerationReport summarizes the raw fitness of a finished generation.
type GenerationReport struct {
	Population string
	Generation int
	Summaries  []fitness.Summary
	Fitness    [][]float64
}

// Population owns the genomes of one evolving population together with the
// fitness accumulated during the current generation.
type Population struct {
	name    string
	runID   string
	params  Params
	rng     *rand.Rand
	breeder Breeder
	logger  *slog.Logger
	sink    stats.Sink

	generation int
	state      State
	genomes    []model.Genome
	acc        *fitness.Matrix
	fitness    [][]float64
	complete   []bool
	pending    int
}

func NewPopulation(params Params, rng *rand.Rand, opts Options) (*Population, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if opts.Breeder == nil {
		return nil, fmt.Errorf("breeder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sink := opts.Sink
	if sink == nil {
		sink = stats.NopSink{}
	}
	name := opts.Name
	if name == "" {
		name = model.PopulationControllers
	}

	genomes := make([]model.Genome, params.Size)
	if opts.Seed != nil {
		if len(opts.Seed) != params.Size {
			return nil, fmt.Errorf("seed has %d genomes, want %d", len(opts.Seed), params.Size)
		}
		for i, g := range opts.Seed {
			if len(g) != params.Genes {
				return nil, fmt.Errorf("seed genome %d has %d genes, want %d", i, len(g), params.Genes)
			}
			genomes[i] = g.Clone()
		}
	} else {
		for i := range genomes {
			genomes[i] = RandomGenome(rng, params.Genes, params.Bounds)
		}
	}

	p := &Population{
		name:    name,
		runID:   opts.RunID,
		params:  params,
		rng:     rng,
		breeder: opts.Breeder,
		logger:  logger.With("population", name),
		sink:    sink,
		genomes: genomes,
		acc:     fitness.NewMatrix(params.Objectives, params.Size),
	}
	p.resetFitness()
	return p, nil
}

func (p *Population) resetFitness() {
	p.acc.Reset()
	p.fitness = make([][]float64, p.params.Size)
	for i := range p.fitness {
		unset := make([]float64, p.params.Objectives)
		for j := range unset {
			unset[j] = math.NaN()
		}
		p.fitness[i] = unset
	}
	p.complete = make([]bool, p.params.Size)
	p.pending = p.params.Size
	p.state = StateIdle
}

func (p *Population) Name() string     { return p.name }
func (p *Population) Params() Params   { return p.params }
func (p *Population) Size() int        { return p.params.Size }
func (p *Population) Generation() int  { return p.generation }
func (p *Population) State() State     { return p.state }
func (p *Population) Pending() int     { return p.pending }
func (p *Population) Breeder() Breeder { return p.breeder }

func (p *Population) checkIndex(i int) error {
	if i < 0 || i >= p.params.Size {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return nil
}

// Genome returns a copy of individual i's genes.
func (p *Population) Genome(i int) (model.Genome, error) {
	if err := p.checkIndex(i); err != nil {
		return nil, err
	}
	return p.genomes[i].Clone(), nil
}

// Genomes returns a deep copy of every genome in slot order.
func (p *Population) Genomes() []model.Genome {
	out := make([]model.Genome, len(p.genomes))
	for i, g := range p.genomes {
		out[i] = g.Clone()
	}
	return out
}

// Fitness returns individual i's recorded fitness vector. Entries are NaN
// until the trial is complete.
func (p *Population) Fitness(i int) ([]float64, error) {
	if err := p.checkIndex(i); err != nil {
		return nil, err
	}
	out := make([]float64, len(p.fitness[i]))
	copy(out, p.fitness[i])
	return out, nil
}

// FitnessRows returns the accumulated fitness as [objective][individual].
func (p *Population) FitnessRows() [][]float64 {
	return p.acc.Rows()
}

// EvaluateStep adds one step's fitness contribution per objective to
// individual i.
func (p *Population) EvaluateStep(i int, delta []float64) error {
	if p.state == StateReproducing {
		return ErrBusy
	}
	if err := p.checkIndex(i); err != nil {
		return err
	}
	if len(delta) != p.params.Objectives {
		return fmt.Errorf("%w: got %d want %d", ErrObjectiveMismatch, len(delta), p.params.Objectives)
	}
	if p.complete[i] {
		return fmt.Errorf("%w: individual %d", ErrTrialComplete, i)
	}
	for obj, d := range delta {
		if err := p.acc.Add(obj, i, d); err != nil {
			return err
		}
	}
	p.state = StateEvaluating
	return nil
}

// MarkTrialComplete freezes individual i's accumulated fitness.
func (p *Population) MarkTrialComplete(i int) error {
	if p.state == StateReproducing {
		return ErrBusy
	}
	if err := p.checkIndex(i); err != nil {
		return err
	}
	if p.complete[i] {
		return fmt.Errorf("%w: individual %d", ErrTrialComplete, i)
	}
	p.fitness[i] = p.acc.Column(i)
	p.complete[i] = true
	p.pending--
	if p.pending == 0 {
		p.state = StateAllEvaluated
	} else {
		p.state = StateEvaluating
	}
	return nil
}

// SetFitness records a complete fitness vector for individual i in one call.
func (p *Population) SetFitness(i int, values []float64) error {
	if p.state == StateReproducing {
		return ErrBusy
	}
	if err := p.checkIndex(i); err != nil {
		return err
	}
	if len(values) != p.params.Objectives {
		return fmt.Errorf("%w: got %d want %d", ErrObjectiveMismatch, len(values), p.params.Objectives)
	}
	if p.complete[i] {
		return fmt.Errorf("%w: individual %d", ErrTrialComplete, i)
	}
	for obj, v := range values {
		if err := p.acc.Set(obj, i, v); err != nil {
			return err
		}
	}
	return p.MarkTrialComplete(i)
}

// Abandon discards the fitness gathered so far. Genomes are left untouched.
func (p *Population) Abandon() {
	if p.state == StateIdle {
		return
	}
	p.logger.Warn("generation abandoned", "generation", p.generation, "pending", p.pending)
	p.resetFitness()
}

// AdvanceGeneration breeds the next generation from the evaluated one and
// replaces every genome at once.
func (p *Population) AdvanceGeneration(ctx context.Context) (GenerationReport, error) {
	if p.state != StateAllEvaluated {
		return GenerationReport{}, &NotReadyError{State: p.state, Pending: p.pending}
	}
	if err := ctx.Err(); err != nil {
		return GenerationReport{}, err
	}

	rows := p.acc.Rows()
	report := GenerationReport{
		Population: p.name,
		Generation: p.generation,
		Summaries:  make([]fitness.Summary, len(rows)),
		Fitness:    rows,
	}
	for obj, row := range rows {
		report.Summaries[obj] = fitness.Summarize(row)
	}

	p.state = StateReproducing
	next, err := p.breeder.Breed(p.rng, p.params, BreedInput{
		Genomes:    p.Genomes(),
		Fitness:    rows,
		Generation: p.generation,
	})
	if err != nil {
		p.state = StateAllEvaluated
		return GenerationReport{}, fmt.Errorf("breed %s generation %d: %w", p.name, p.generation, err)
	}
	if len(next) != p.params.Size {
		p.state = StateAllEvaluated
		return GenerationReport{}, fmt.Errorf("breeder %s returned %d genomes, want %d", p.breeder.Name(), len(next), p.params.Size)
	}

	p.record(ctx, report)

	p.genomes = next
	p.generation++
	p.resetFitness()

	p.logger.Info("generation advanced",
		"generation", p.generation,
		"breeder", p.breeder.Name(),
		"best", report.Summaries[0].Best,
		"average", report.Summaries[0].Average,
	)
	return report, nil
}

// record forwards generation statistics to the sink. Failures are logged
// and never interrupt evolution.
func (p *Population) record(ctx context.Context, report GenerationReport) {
	for obj, s := range report.Summaries {
		rec := model.GenerationRecord{
			RunID:      p.runID,
			Population: p.name,
			Generation: report.Generation,
			Objective:  obj,
			Worst:      s.Worst,
			Average:    s.Average,
			Best:       s.Best,
			BestIndex:  s.BestIndex,
		}
		if err := p.sink.RecordGeneration(ctx, rec); err != nil {
			p.logger.Warn("record generation failed", "generation", report.Generation, "objective", obj, "error", err)
		}
		if s.BestIndex < 0 {
			continue
		}
		best := model.BestGenomeRecord{
			RunID:      p.runID,
			Population: p.name,
			Generation: report.Generation,
			Objective:  obj,
			Index:      s.BestIndex,
			Fitness:    s.Best,
			Genes:      p.genomes[s.BestIndex].Clone(),
		}
		if err := p.sink.RecordBest(ctx, best); err != nil {
			p.logger.Warn("record best genome failed", "generation", report.Generation, "objective", obj, "error", err)
		}
	}
}

// Snapshot captures genomes and generation for checkpointing.
func (p *Population) Snapshot() model.PopulationSnapshot {
	return model.PopulationSnapshot{
		VersionedRecord: model.VersionedRecord{SchemaVersion: 1, CodecVersion: 1},
		ID:              p.runID,
		Population:      p.name,
		Generation:      p.generation,
		Genomes:         p.Genomes(),
	}
}

// Restore replaces genomes and generation from a snapshot. Only allowed
// between generations.
func (p *Population) Restore(snap model.PopulationSnapshot) error {
	if p.state != StateIdle {
		return &NotReadyError{State: p.state, Pending: p.pending}
	}
	if len(snap.Genomes) != p.params.Size {
		return fmt.Errorf("snapshot has %d genomes, want %d", len(snap.Genomes), p.params.Size)
	}
	genomes := make([]model.Genome, len(snap.Genomes))
	for i, g := range snap.Genomes {
		if len(g) != p.params.Genes {
			return fmt.Errorf("snapshot genome %d has %d genes, want %d", i, len(g), p.params.Genes)
		}
		genomes[i] = g.Clone()
	}
	p.genomes = genomes
	p.generation = snap.Generation
	return nil
}

// FillWith puts a copy of genome in every slot, used to re-evaluate a single
// stored individual.
func (p *Population) FillWith(genome model.Genome) error {
	if p.state != StateIdle {
		return &NotReadyError{State: p.state, Pending: p.pending}
	}
	if len(genome) != p.params.Genes {
		return fmt.Errorf("genome has %d genes, want %d", len(genome), p.params.Genes)
	}
	for i := range p.genomes {
		p.genomes[i] = genome.Clone()
	}
	return nil
}

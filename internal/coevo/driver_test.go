package coevo

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"coevolve/internal/channel"
	"coevolve/internal/evo"
	"coevolve/internal/fitness"
	"coevolve/internal/model"
	"coevolve/internal/nn"
	"coevolve/internal/scape"
	"coevolve/internal/stats"
)

// scriptedChannel answers every genome with the reports produced by script.
type scriptedChannel struct {
	sent   []channel.GenomeMessage
	queue  []channel.FitnessReport
	script func(msg channel.GenomeMessage) []channel.FitnessReport
}

func (c *scriptedChannel) Send(_ context.Context, msg channel.GenomeMessage) error {
	c.sent = append(c.sent, msg)
	c.queue = append(c.queue, c.script(msg)...)
	return nil
}

func (c *scriptedChannel) Receive(ctx context.Context) (channel.FitnessReport, error) {
	if err := ctx.Err(); err != nil {
		return channel.FitnessReport{}, err
	}
	if len(c.queue) == 0 {
		return channel.FitnessReport{}, channel.ErrClosed
	}
	r := c.queue[0]
	c.queue = c.queue[1:]
	return r, nil
}

// silentChannel accepts genomes and blocks on Receive until ctx ends, like a
// peer whose final report was lost.
type silentChannel struct{}

func (silentChannel) Send(context.Context, channel.GenomeMessage) error { return nil }

func (silentChannel) Receive(ctx context.Context) (channel.FitnessReport, error) {
	<-ctx.Done()
	return channel.FitnessReport{}, ctx.Err()
}

func newDriverUnderTest(t *testing.T, size, objectives int, eval channel.EvaluationChannel, opts DriverOptions) (*Driver, *Scheduler) {
	t.Helper()
	controllers := newControllers(t, size, objectives, nil)
	sched, err := NewScheduler(controllers, nil, SchedulerOptions{Cadence: 1, Games: fitness.SeedGames(objectives)})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	driver, err := NewDriver(sched, eval, opts)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return driver, sched
}

func TestDriverAccumulatesStepsUntilDone(t *testing.T) {
	eval := &scriptedChannel{script: func(msg channel.GenomeMessage) []channel.FitnessReport {
		i := msg.Individual
		return []channel.FitnessReport{
			{Individual: i, Fitness: []float64{1, float64(i)}},
			{Individual: i, Fitness: []float64{2, float64(i)}},
			{Individual: i, Fitness: []float64{3, 0}, Done: true},
		}
	}}
	driver, sched := newDriverUnderTest(t, 4, 2, eval, DriverOptions{})

	if err := driver.Evaluate(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	pop := sched.Controllers()
	if pop.State() != evo.StateAllEvaluated {
		t.Fatalf("state got=%s want=%s", pop.State(), evo.StateAllEvaluated)
	}
	for i := 0; i < 4; i++ {
		got, err := pop.Fitness(i)
		if err != nil {
			t.Fatalf("fitness %d: %v", i, err)
		}
		want := []float64{6, float64(2 * i)}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("individual %d fitness got=%v want=%v", i, got, want)
		}
	}
	if len(eval.sent) != 4 {
		t.Fatalf("sent got=%d want=4", len(eval.sent))
	}
	if !reflect.DeepEqual(eval.sent[0].Games, fitness.SeedGames(2)) {
		t.Fatalf("games got=%v want=%v", eval.sent[0].Games, fitness.SeedGames(2))
	}
	if driver.Dropped() != 0 {
		t.Fatalf("dropped got=%d want=0", driver.Dropped())
	}
}

func TestDriverDropsMismatchedReports(t *testing.T) {
	var observed atomic.Int64
	eval := &scriptedChannel{script: func(msg channel.GenomeMessage) []channel.FitnessReport {
		i := msg.Individual
		return []channel.FitnessReport{
			{Individual: i + 100, Fitness: []float64{50}},
			{Individual: i, Fitness: []float64{1, 2}},
			{Individual: i, Fitness: []float64{4}, Done: true},
		}
	}}
	driver, sched := newDriverUnderTest(t, 2, 1, eval, DriverOptions{OnDrop: func(error) { observed.Add(1) }})

	if _, _, err := driver.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if driver.Dropped() != 4 || observed.Load() != 4 {
		t.Fatalf("dropped got=%d observed=%d want 4", driver.Dropped(), observed.Load())
	}
	if got := sched.Controllers().Generation(); got != 1 {
		t.Fatalf("generation got=%d want=1", got)
	}
}

func TestDriverCompletesTrialWhenFinalReportIsMalformed(t *testing.T) {
	eval := &scriptedChannel{script: func(msg channel.GenomeMessage) []channel.FitnessReport {
		i := msg.Individual
		return []channel.FitnessReport{
			{Individual: i, Fitness: []float64{2, 3, 4}},
			{Individual: i, Fitness: []float64{1, 2}, Done: true},
		}
	}}
	driver, sched := newDriverUnderTest(t, 3, 3, eval, DriverOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := driver.Evaluate(ctx); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	pop := sched.Controllers()
	if pop.State() != evo.StateAllEvaluated || pop.Pending() != 0 {
		t.Fatalf("state got=%s pending=%d want all evaluated", pop.State(), pop.Pending())
	}
	for i := 0; i < 3; i++ {
		got, err := pop.Fitness(i)
		if err != nil {
			t.Fatalf("fitness %d: %v", i, err)
		}
		if want := []float64{2, 3, 4}; !reflect.DeepEqual(got, want) {
			t.Fatalf("individual %d fitness got=%v want=%v", i, got, want)
		}
	}
	if driver.Dropped() != 3 {
		t.Fatalf("dropped got=%d want=3", driver.Dropped())
	}
}

func TestDriverCompletesTrialWhenOnlyReportIsMalformed(t *testing.T) {
	eval := &scriptedChannel{script: func(msg channel.GenomeMessage) []channel.FitnessReport {
		return []channel.FitnessReport{{Individual: msg.Individual, Fitness: []float64{math.Pi}, Done: true}}
	}}
	driver, sched := newDriverUnderTest(t, 2, 2, eval, DriverOptions{})

	if _, _, err := driver.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := sched.Controllers().Generation(); got != 1 {
		t.Fatalf("generation got=%d want=1", got)
	}
}

func TestDriverTrialTimeout(t *testing.T) {
	driver, sched := newDriverUnderTest(t, 2, 1, silentChannel{}, DriverOptions{TrialTimeout: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := driver.Evaluate(ctx)
	if !errors.Is(err, ErrTrialTimeout) {
		t.Fatalf("expected ErrTrialTimeout, got %v", err)
	}
	pop := sched.Controllers()
	if pop.State() != evo.StateIdle || pop.Pending() != pop.Size() {
		t.Fatalf("expected abandoned generation, state=%s pending=%d", pop.State(), pop.Pending())
	}
}

func TestDriverTrialTimeoutWhenPipeDropsDoneReport(t *testing.T) {
	pipe := channel.NewPipe(channel.PipeOptions{Objectives: 1})
	defer pipe.Close()
	driver, sched := newDriverUnderTest(t, 2, 1, pipe.Engine(), DriverOptions{TrialTimeout: 50 * time.Millisecond})

	go func() {
		robot := pipe.Robot()
		msg, err := robot.ReceiveGenome(context.Background())
		if err != nil {
			return
		}
		_ = robot.SendReport(context.Background(), channel.FitnessReport{Individual: msg.Individual, Fitness: []float64{1}})
		_ = robot.SendReport(context.Background(), channel.FitnessReport{Individual: msg.Individual, Fitness: []float64{1, 2}, Done: true})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := driver.Evaluate(ctx)
	if !errors.Is(err, ErrTrialTimeout) {
		t.Fatalf("expected ErrTrialTimeout, got %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("evaluation only returned because the outer deadline fired")
	}
	if pipe.Dropped() != 1 {
		t.Fatalf("pipe dropped got=%d want=1", pipe.Dropped())
	}
	if got := sched.Controllers().State(); got != evo.StateIdle {
		t.Fatalf("state got=%s want=%s", got, evo.StateIdle)
	}
}

func TestDriverReturnsWhenPipeCloses(t *testing.T) {
	pipe := channel.NewPipe(channel.PipeOptions{Objectives: 1})
	driver, _ := newDriverUnderTest(t, 2, 1, pipe.Engine(), DriverOptions{})

	go func() {
		robot := pipe.Robot()
		if _, err := robot.ReceiveGenome(context.Background()); err != nil {
			return
		}
		// Evaluator dies mid-trial.
		pipe.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := driver.Evaluate(ctx)
	if !errors.Is(err, channel.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDriverAbandonsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eval := &scriptedChannel{script: func(msg channel.GenomeMessage) []channel.FitnessReport {
		if msg.Individual == 1 {
			cancel()
		}
		return []channel.FitnessReport{{Individual: msg.Individual, Fitness: []float64{1}, Done: true}}
	}}
	driver, sched := newDriverUnderTest(t, 3, 1, eval, DriverOptions{})
	before := sched.Controllers().Genomes()

	err := driver.Evaluate(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	pop := sched.Controllers()
	if pop.State() != evo.StateIdle || pop.Pending() != pop.Size() {
		t.Fatalf("state got=%s pending=%d want idle and %d", pop.State(), pop.Pending(), pop.Size())
	}
	if !reflect.DeepEqual(before, pop.Genomes()) {
		t.Fatal("genomes changed after abandoned generation")
	}
	if pop.Generation() != 0 {
		t.Fatalf("generation got=%d want=0", pop.Generation())
	}
}

func TestDriverRequiresEvaluation(t *testing.T) {
	controllers := newControllers(t, 3, 1, nil)
	sched, err := NewScheduler(controllers, nil, SchedulerOptions{Cadence: 1, Games: fitness.SeedGames(1)})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if _, err := NewDriver(sched, nil, DriverOptions{}); err == nil {
		t.Fatal("expected missing channel and evaluator to fail")
	}
}

func sumGenes(_ context.Context, genes model.Genome, games []model.Genome) ([]float64, error) {
	total := 0.0
	for _, g := range genes {
		total += g
	}
	out := make([]float64, len(games))
	for i := range out {
		out[i] = total * float64(i+1)
	}
	return out, nil
}

func TestBatchEvaluateWritesBySlot(t *testing.T) {
	pop := newControllers(t, 12, 2, nil)
	if err := BatchEvaluate(context.Background(), pop, fitness.SeedGames(2), sumGenes, 4); err != nil {
		t.Fatalf("batch evaluate: %v", err)
	}

	if pop.State() != evo.StateAllEvaluated {
		t.Fatalf("state got=%s want=%s", pop.State(), evo.StateAllEvaluated)
	}
	for i, genes := range pop.Genomes() {
		want, _ := sumGenes(context.Background(), genes, fitness.SeedGames(2))
		got, err := pop.Fitness(i)
		if err != nil {
			t.Fatalf("fitness %d: %v", i, err)
		}
		for j := range want {
			if math.Abs(got[j]-want[j]) > 1e-12 {
				t.Fatalf("individual %d objective %d got=%v want=%v", i, j, got[j], want[j])
			}
		}
	}
}

func TestBatchEvaluateFailureAbandons(t *testing.T) {
	pop := newControllers(t, 6, 1, nil)
	target := pop.Genomes()[2]
	boom := errors.New("simulator crashed")
	err := BatchEvaluate(context.Background(), pop, fitness.SeedGames(1), func(_ context.Context, genes model.Genome, _ []model.Genome) ([]float64, error) {
		if genes[0] == target[0] && genes[1] == target[1] {
			return nil, boom
		}
		return []float64{1}, nil
	}, 3)
	if !errors.Is(err, boom) {
		t.Fatalf("expected evaluator error, got %v", err)
	}
	if pop.State() != evo.StateIdle || pop.Pending() != pop.Size() {
		t.Fatalf("state got=%s pending=%d want idle and %d", pop.State(), pop.Pending(), pop.Size())
	}
}

func TestDriverEndToEndOverPipe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shape := nn.Shape{Inputs: scape.SensorInputs(), Outputs: 2}
	trial := scape.DefaultArenaConfig()
	trial.TrialMillis = 10 * trial.TickMillis
	arena, err := scape.NewArena(trial, shape, fitness.WeightedSum{})
	if err != nil {
		t.Fatalf("new arena: %v", err)
	}

	pipe := channel.NewPipe(channel.PipeOptions{Objectives: 3})
	defer pipe.Close()
	go func() { _ = scape.Serve(ctx, arena, pipe.Robot()) }()

	sink := &stats.MemorySink{}
	params := evo.DefaultControllerParams(shape.GeneCount(), 3)
	params.Size = 6
	breeder, err := evo.NewVEGABreeder(fitness.SeedRanges(3))
	if err != nil {
		t.Fatalf("new vega breeder: %v", err)
	}
	controllers, err := evo.NewPopulation(params, newRand(1), evo.Options{Breeder: breeder, Sink: sink})
	if err != nil {
		t.Fatalf("new controllers: %v", err)
	}
	local, err := NewLocalObjectives(newGames(t, 3, sink), nil)
	if err != nil {
		t.Fatalf("new local objectives: %v", err)
	}
	sched, err := NewScheduler(controllers, local, SchedulerOptions{Cadence: 2, Coevolve: true, Games: local.Games()})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	driver, err := NewDriver(sched, pipe.Engine(), DriverOptions{TrialTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}

	var evolutions int
	err = driver.Run(ctx, 4, func(_ evo.GenerationReport, evolved bool) error {
		if evolved {
			evolutions++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if controllers.Generation() != 4 || evolutions != 2 {
		t.Fatalf("generations got=%d evolutions=%d want 4 and 2", controllers.Generation(), evolutions)
	}
	if sched.GameGenerations() != 2 || local.Population().Generation() != 2 {
		t.Fatalf("game generations got=%d population=%d want 2", sched.GameGenerations(), local.Population().Generation())
	}
	if got := len(stats.Filter(sink.Generations(), model.PopulationControllers, -1)); got != 12 {
		t.Fatalf("controller records got=%d want=12", got)
	}
	if got := len(stats.Filter(sink.Generations(), model.PopulationGames, -1)); got != 2 {
		t.Fatalf("game records got=%d want=2", got)
	}
}

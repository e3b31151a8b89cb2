// Package coevolve is the public entry point for running and inspecting
// controller/game coevolution experiments.
package coevolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"coevolve/internal/channel"
	"coevolve/internal/coevo"
	"coevolve/internal/config"
	"coevolve/internal/evo"
	"coevolve/internal/fitness"
	"coevolve/internal/metrics"
	"coevolve/internal/model"
	"coevolve/internal/scape"
	"coevolve/internal/snapshot"
	"coevolve/internal/stats"
	"coevolve/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "coevolve.db"

	trialGrace = 5 * time.Second
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *slog.Logger
	// Metrics receives generation statistics and dropped messages when set.
	Metrics *metrics.Recorder
}

type Client struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Recorder

	runsDir    string
	exportsDir string

	initOnce sync.Once
	initErr  error
}

type RunRequest struct {
	Config config.Config
	// RunID is generated when empty. Resume requires it.
	RunID  string
	Resume bool
	// Progress is called after every controller generation.
	Progress func(report evo.GenerationReport, gamesEvolved bool)
}

type RunResult struct {
	RunID            string
	ArtifactsDir     string
	History          []model.GenerationRecord
	GameHistory      []model.GenerationRecord
	ObjectiveBests   []stats.ObjectiveBest
	FinalGames       []model.Genome
	FinalBestFitness float64
	Generations      int
	GameGenerations  int
	// Dropped counts fitness reports the driver discarded.
	Dropped int64
}

type ReplayRequest struct {
	Config config.Config
	Genome model.Genome
	// Games defaults to the built-in seed games.
	Games []model.Genome
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID                string
	CreatedAtUTC         string
	Strategy             string
	Seed                 int64
	ControllerPopulation int
	GamePopulation       int
	Generations          int
	FinalBestFitness     float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID      string
	Latest     bool
	Population string
	// Objective filters to one objective; negative keeps all.
	Objective int
	Limit     int
}

type BestRequest struct {
	RunID  string
	Latest bool
}

type PlotRequest struct {
	RunID      string
	Latest     bool
	Population string
	Objective  int
	OutPath    string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logger,
		metrics:    opts.Metrics,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Init prepares the backing store. It is safe to call more than once.
func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Store exposes the run history store.
func (c *Client) Store() storage.Store { return c.store }

func (c *Client) newBreeder(cfg config.Config) (evo.Breeder, error) {
	switch cfg.Run.Strategy {
	case config.StrategyVEGA:
		return evo.NewVEGABreeder(cfg.ObjectiveRanges())
	case config.StrategyElitist:
		selector, err := evo.SelectorByName(cfg.Run.Selection, cfg.Controllers.ReproductionRatio)
		if err != nil {
			return nil, err
		}
		breeder := evo.ElitistBreeder{Selector: selector}
		if cfg.Objectives.Normalize {
			breeder.Ranges = cfg.ObjectiveRanges()
		}
		return breeder, nil
	default:
		return nil, fmt.Errorf("unknown strategy: %q", cfg.Run.Strategy)
	}
}

func (c *Client) newArena(cfg config.Config) (*scape.Arena, error) {
	objective, err := fitness.ObjectiveByName(cfg.Run.Objective)
	if err != nil {
		return nil, err
	}
	return scape.NewArena(cfg.Trial, cfg.Network, objective)
}

// newDriver wires the evaluation side: a pipe served by the arena for a
// single worker, or concurrent in-process trials otherwise. The returned
// stop func releases the pipe.
func (c *Client) newDriver(ctx context.Context, cfg config.Config, sched *coevo.Scheduler, arena *scape.Arena) (*coevo.Driver, func(), error) {
	var onDrop func(error)
	if c.metrics != nil {
		onDrop = c.metrics.RecordDropped
	}
	if cfg.Run.Workers > 1 {
		driver, err := coevo.NewDriver(sched, nil, coevo.DriverOptions{
			Evaluator: arena.Evaluate,
			Workers:   cfg.Run.Workers,
			Logger:    c.logger,
			OnDrop:    onDrop,
		})
		return driver, func() {}, err
	}

	pipe := channel.NewPipe(channel.PipeOptions{
		Objectives: cfg.Objectives.Count,
		Logger:     c.logger,
		OnDrop:     onDrop,
	})
	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// A stopped evaluator must not leave the driver waiting on reports.
		defer pipe.Close()
		if err := scape.Serve(serveCtx, arena, pipe.Robot()); err != nil {
			c.logger.Error("evaluator stopped", "error", err)
		}
	}()
	stop := func() {
		pipe.Close()
		cancel()
		<-done
	}
	driver, err := coevo.NewDriver(sched, pipe.Engine(), coevo.DriverOptions{
		Logger:       c.logger,
		OnDrop:       onDrop,
		TrialTimeout: trialTimeout(cfg.Trial),
	})
	if err != nil {
		stop()
		return nil, nil, err
	}
	return driver, stop, nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunResult{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunResult{}, err
	}

	runID := req.RunID
	var checkpoint *snapshot.Checkpoint
	if req.Resume {
		if runID == "" {
			return RunResult{}, errors.New("resume requires a run id")
		}
		cp, err := snapshot.Load(snapshot.Path(c.runsDir, runID))
		if err != nil {
			return RunResult{}, fmt.Errorf("load checkpoint: %w", err)
		}
		checkpoint = &cp
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := c.logger.With("run_id", runID)
	runDir := filepath.Join(c.runsDir, runID)
	started := time.Now().UTC()

	memory := &stats.MemorySink{}
	sinks := stats.MultiSink{memory, stats.StoreSink{Store: c.store}}
	if csvSink, err := stats.NewCSVSink(runDir); err != nil {
		logger.Warn("fitness csv disabled", "dir", runDir, "error", err)
	} else {
		sinks = append(sinks, csvSink)
	}
	if c.metrics != nil {
		sinks = append(sinks, c.metrics)
	}

	breeder, err := c.newBreeder(cfg)
	if err != nil {
		return RunResult{}, err
	}
	seed := cfg.Run.Seed
	if checkpoint != nil {
		// Resumed sessions draw from a new stream.
		seed += int64(checkpoint.ControllerGenerations) * 7919
	}
	controllers, err := evo.NewPopulation(cfg.ControllerParams(), rand.New(rand.NewSource(seed)), evo.Options{
		Name:    model.PopulationControllers,
		RunID:   runID,
		Breeder: breeder,
		Logger:  logger,
		Sink:    sinks,
	})
	if err != nil {
		return RunResult{}, err
	}
	games, err := evo.NewPopulation(cfg.GameParams(), rand.New(rand.NewSource(seed+1)), evo.Options{
		Name:    model.PopulationGames,
		RunID:   runID,
		Breeder: evo.ElitistBreeder{Selector: evo.RouletteSelector{}},
		Logger:  logger,
		Sink:    sinks,
		Seed:    fitness.SeedGames(cfg.Objectives.Count),
	})
	if err != nil {
		return RunResult{}, err
	}
	objectives, err := coevo.NewLocalObjectives(games, logger)
	if err != nil {
		return RunResult{}, err
	}

	if checkpoint != nil {
		if err := controllers.Restore(checkpoint.Controllers); err != nil {
			return RunResult{}, fmt.Errorf("restore controllers: %w", err)
		}
		if err := objectives.Restore(checkpoint.Games); err != nil {
			return RunResult{}, fmt.Errorf("restore games: %w", err)
		}
	}
	sched, err := coevo.NewScheduler(controllers, objectives, coevo.SchedulerOptions{
		Cadence:  cfg.Run.GameCadence,
		Coevolve: cfg.Run.Coevolve,
		Games:    objectives.Games(),
		Logger:   logger,
	})
	if err != nil {
		return RunResult{}, err
	}
	if checkpoint != nil {
		err := sched.Restore(coevo.SchedulerState{
			Games:           objectives.Games(),
			GameGenerations: checkpoint.GameGenerations,
			SinceEvolve:     checkpoint.SinceGameEvolve,
			GameFitness:     checkpoint.GameFitness,
		})
		if err != nil {
			return RunResult{}, fmt.Errorf("restore scheduler: %w", err)
		}
		logger.Info("resuming run", "generation", controllers.Generation(), "game_generation", sched.GameGenerations())
	}

	arena, err := c.newArena(cfg)
	if err != nil {
		return RunResult{}, err
	}
	driver, stop, err := c.newDriver(ctx, cfg, sched, arena)
	if err != nil {
		return RunResult{}, err
	}
	defer stop()

	// Persistence below is best-effort: a failed write is logged and the
	// run carries on.
	if err := c.store.SaveRun(ctx, runSummary(runID, started, time.Time{}, cfg, sched, math.NaN())); err != nil {
		logger.Warn("save run failed", "error", err)
	}
	if err := stats.WriteRunConfig(c.runsDir, runID, runConfig(runID, cfg)); err != nil {
		logger.Warn("write run config failed", "error", err)
	}

	remaining := cfg.Run.Generations - controllers.Generation()
	err = driver.Run(ctx, remaining, func(report evo.GenerationReport, evolved bool) error {
		if req.Progress != nil {
			req.Progress(report, evolved)
		}
		c.checkpoint(ctx, logger, runID, cfg.Run.Seed, sched, objectives)
		return nil
	})
	if err != nil {
		return RunResult{}, err
	}
	if v, ok := breeder.(*evo.VEGABreeder); ok {
		for _, s := range v.Stats() {
			logger.Info("objective summary",
				"objective", s.Objective,
				"normalized_best", s.Best,
				"absolute_best", s.AbsoluteBest,
				"absolute_best_generation", s.AbsoluteBestGeneration,
			)
		}
	}

	history, gameHistory, err := readHistory(runDir, memory.Generations())
	if err != nil {
		logger.Warn("read fitness csv failed, using in-memory history", "error", err)
		history, gameHistory = splitHistory(dedupe(memory.Generations()))
	}
	bests := objectiveBests(memory.Bests())
	if checkpoint != nil {
		previous, ok, err := stats.ReadObjectiveBests(c.runsDir, runID)
		if err != nil {
			logger.Warn("read previous objective bests failed", "error", err)
		} else if ok {
			bests = mergeObjectiveBests(previous, bests)
		}
	}
	finalBest := math.Inf(-1)
	for _, b := range bests {
		finalBest = math.Max(finalBest, b.Fitness)
	}
	if len(bests) == 0 {
		finalBest = 0
	}

	if _, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config:           runConfig(runID, cfg),
		History:          history,
		GameHistory:      gameHistory,
		ObjectiveBests:   bests,
		FinalGames:       sched.Games(),
		FinalBestFitness: finalBest,
	}); err != nil {
		logger.Warn("write run artifacts failed", "error", err)
	}
	if plotted := stats.Filter(history, model.PopulationControllers, 0); len(plotted) > 0 {
		if err := stats.PlotFitness(plotted, "controllers objective 0", filepath.Join(runDir, stats.FitnessPlotFile)); err != nil {
			logger.Warn("plot fitness failed", "error", err)
		}
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:                runID,
		Strategy:             cfg.Run.Strategy,
		ControllerPopulation: cfg.Controllers.Size,
		GamePopulation:       cfg.Games.Size,
		Generations:          controllers.Generation(),
		Seed:                 cfg.Run.Seed,
		FinalBestFitness:     finalBest,
		CreatedAtUTC:         started.Format(time.RFC3339Nano),
	}); err != nil {
		logger.Warn("append run index failed", "error", err)
	}
	if err := c.store.SaveRun(ctx, runSummary(runID, started, time.Now().UTC(), cfg, sched, finalBest)); err != nil {
		logger.Warn("save run failed", "error", err)
	}

	return RunResult{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		History:          history,
		GameHistory:      gameHistory,
		ObjectiveBests:   bests,
		FinalGames:       sched.Games(),
		FinalBestFitness: finalBest,
		Generations:      controllers.Generation(),
		GameGenerations:  sched.GameGenerations(),
		Dropped:          driver.Dropped(),
	}, nil
}

// checkpoint persists the resumable state after a generation. Failures are
// logged; evolution never stops on them.
func (c *Client) checkpoint(ctx context.Context, logger *slog.Logger, runID string, seed int64, sched *coevo.Scheduler, objectives *coevo.LocalObjectives) {
	state := sched.State()
	cp := snapshot.Checkpoint{
		RunID:                 runID,
		Seed:                  seed,
		ControllerGenerations: sched.Controllers().Generation(),
		GameGenerations:       state.GameGenerations,
		SinceGameEvolve:       state.SinceEvolve,
		GameFitness:           state.GameFitness,
		Controllers:           sched.Controllers().Snapshot(),
		Games:                 objectives.Population().Snapshot(),
	}
	if err := snapshot.Save(snapshot.Path(c.runsDir, runID), cp); err != nil {
		logger.Warn("save checkpoint failed", "generation", cp.ControllerGenerations, "error", err)
	}
	for _, snap := range []model.PopulationSnapshot{cp.Controllers, cp.Games} {
		if err := c.store.SaveSnapshot(ctx, snap); err != nil {
			logger.Warn("store snapshot failed", "population", snap.Population, "error", err)
		}
	}
}

// Replay evaluates one genome in every controller slot for a single
// generation without breeding and returns its fitness per game.
func (c *Client) Replay(ctx context.Context, req ReplayRequest) ([]float64, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	games := req.Games
	if games == nil {
		games = fitness.SeedGames(cfg.Objectives.Count)
	}
	params := cfg.ControllerParams()
	controllers, err := evo.NewPopulation(params, rand.New(rand.NewSource(cfg.Run.Seed)), evo.Options{
		Name:    model.PopulationControllers,
		Breeder: evo.ElitistBreeder{Selector: evo.RouletteSelector{}},
		Logger:  c.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := controllers.FillWith(req.Genome); err != nil {
		return nil, err
	}
	sched, err := coevo.NewScheduler(controllers, nil, coevo.SchedulerOptions{Cadence: 1, Games: games, Logger: c.logger})
	if err != nil {
		return nil, err
	}
	arena, err := c.newArena(cfg)
	if err != nil {
		return nil, err
	}
	driver, stop, err := c.newDriver(ctx, cfg, sched, arena)
	if err != nil {
		return nil, err
	}
	defer stop()

	if err := driver.Evaluate(ctx); err != nil {
		return nil, err
	}
	return controllers.Fitness(0)
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:                e.RunID,
			CreatedAtUTC:         e.CreatedAtUTC,
			Strategy:             e.Strategy,
			Seed:                 e.Seed,
			ControllerPopulation: e.ControllerPopulation,
			GamePopulation:       e.GamePopulation,
			Generations:          e.Generations,
			FinalBestFitness:     e.FinalBestFitness,
		})
	}
	return out, nil
}

func (c *Client) resolveRunID(runID string, latest bool, action string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if latest {
		entries, err := stats.ListRunIndex(c.runsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", errors.New("no runs available")
		}
		return entries[0].RunID, nil
	}
	if runID == "" {
		return "", fmt.Errorf("%s requires run id or latest", action)
	}
	return runID, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) FitnessHistory(_ context.Context, req FitnessHistoryRequest) ([]model.GenerationRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "fitness history")
	if err != nil {
		return nil, err
	}

	var (
		history []model.GenerationRecord
		ok      bool
	)
	switch req.Population {
	case "", model.PopulationControllers:
		req.Population = model.PopulationControllers
		history, ok, err = stats.ReadFitnessHistory(c.runsDir, runID)
	case model.PopulationGames:
		history, ok, err = stats.ReadGameHistory(c.runsDir, runID)
	default:
		return nil, fmt.Errorf("unknown population: %q", req.Population)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	history = stats.Filter(history, req.Population, req.Objective)
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return history, nil
}

func (c *Client) Best(_ context.Context, req BestRequest) ([]stats.ObjectiveBest, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "best")
	if err != nil {
		return nil, err
	}
	bests, ok, err := stats.ReadObjectiveBests(c.runsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("best genomes not found for run id: %s", runID)
	}
	return bests, nil
}

// ReadConfig returns the configuration a run was started with.
func (c *Client) ReadConfig(runID string) (stats.RunConfig, error) {
	cfg, ok, err := stats.ReadRunConfig(c.runsDir, runID)
	if err != nil {
		return stats.RunConfig{}, err
	}
	if !ok {
		return stats.RunConfig{}, fmt.Errorf("run config not found for run id: %s", runID)
	}
	return cfg, nil
}

func (c *Client) Plot(ctx context.Context, req PlotRequest) (string, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "plot")
	if err != nil {
		return "", err
	}
	history, err := c.FitnessHistory(ctx, FitnessHistoryRequest{RunID: runID, Population: req.Population, Objective: req.Objective})
	if err != nil {
		return "", err
	}
	out := req.OutPath
	if out == "" {
		out = filepath.Join(c.runsDir, runID, stats.FitnessPlotFile)
	}
	population := req.Population
	if population == "" {
		population = model.PopulationControllers
	}
	title := fmt.Sprintf("%s objective %d", population, req.Objective)
	if err := stats.PlotFitness(history, title, out); err != nil {
		return "", err
	}
	return filepath.Clean(out), nil
}

// trialTimeout gives a trial on the channel twice its simulated duration
// plus a fixed grace period before the driver gives up on it.
func trialTimeout(trial scape.ArenaConfig) time.Duration {
	return 2*time.Duration(trial.TrialMillis)*time.Millisecond + trialGrace
}

func runConfig(runID string, cfg config.Config) stats.RunConfig {
	return stats.RunConfig{
		RunID:                runID,
		Strategy:             cfg.Run.Strategy,
		Selection:            cfg.Run.Selection,
		Objective:            cfg.Run.Objective,
		ControllerPopulation: cfg.Controllers.Size,
		GamePopulation:       cfg.Games.Size,
		Genes:                cfg.Network.GeneCount(),
		Generations:          cfg.Run.Generations,
		GameCadence:          cfg.Run.GameCadence,
		ElitismRatio:         cfg.Controllers.ElitismRatio,
		ReproductionRatio:    cfg.Controllers.ReproductionRatio,
		CrossoverProbability: cfg.Controllers.CrossoverProbability,
		MutationProbability:  cfg.Controllers.MutationProbability,
		MutationSigma:        cfg.Controllers.MutationSigma,
		GeneMin:              cfg.Controllers.GeneMin,
		GeneMax:              cfg.Controllers.GeneMax,
		Seed:                 cfg.Run.Seed,
		Workers:              cfg.Run.Workers,
	}
}

func runSummary(runID string, started, finished time.Time, cfg config.Config, sched *coevo.Scheduler, best float64) model.RunSummary {
	if math.IsNaN(best) || math.IsInf(best, 0) {
		best = 0
	}
	return model.RunSummary{
		RunID:                runID,
		StartedAt:            started,
		FinishedAt:           finished,
		Strategy:             cfg.Run.Strategy,
		Selection:            cfg.Run.Selection,
		ControllerPopulation: cfg.Controllers.Size,
		GamePopulation:       cfg.Games.Size,
		Generations:          sched.Controllers().Generation(),
		GameGenerations:      sched.GameGenerations(),
		Seed:                 cfg.Run.Seed,
		BestFitness:          best,
	}
}

// readHistory prefers the run's fitness.csv, which spans resumed sessions,
// and falls back to the in-memory records.
func readHistory(runDir string, recorded []model.GenerationRecord) ([]model.GenerationRecord, []model.GenerationRecord, error) {
	records, ok, err := stats.ReadFitnessCSV(runDir)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		records = recorded
	}
	controllers, games := splitHistory(dedupe(records))
	return controllers, games, nil
}

func splitHistory(records []model.GenerationRecord) ([]model.GenerationRecord, []model.GenerationRecord) {
	return stats.Filter(records, model.PopulationControllers, -1), stats.Filter(records, model.PopulationGames, -1)
}

// dedupe keeps the last record per population, generation and objective.
func dedupe(records []model.GenerationRecord) []model.GenerationRecord {
	type key struct {
		population string
		generation int
		objective  int
	}
	last := make(map[key]int, len(records))
	for i, r := range records {
		last[key{r.Population, r.Generation, r.Objective}] = i
	}
	out := make([]model.GenerationRecord, 0, len(last))
	for i, r := range records {
		if last[key{r.Population, r.Generation, r.Objective}] == i {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Generation != out[j].Generation {
			return out[i].Generation < out[j].Generation
		}
		return out[i].Objective < out[j].Objective
	})
	return out
}

// objectiveBests picks the best controller ever recorded per objective.
func objectiveBests(records []model.BestGenomeRecord) []stats.ObjectiveBest {
	byObjective := map[int]stats.ObjectiveBest{}
	for _, r := range records {
		if r.Population != model.PopulationControllers {
			continue
		}
		cur, ok := byObjective[r.Objective]
		if !ok || r.Fitness > cur.Fitness {
			byObjective[r.Objective] = stats.ObjectiveBest{
				Objective:  r.Objective,
				Fitness:    r.Fitness,
				Generation: r.Generation,
				Genome:     r.Genes.Clone(),
			}
		}
	}
	out := make([]stats.ObjectiveBest, 0, len(byObjective))
	for _, b := range byObjective {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Objective < out[j].Objective })
	return out
}

func mergeObjectiveBests(previous, current []stats.ObjectiveBest) []stats.ObjectiveBest {
	merged := make([]stats.ObjectiveBest, 0, len(previous)+len(current))
	byObjective := map[int]int{}
	for _, b := range previous {
		byObjective[b.Objective] = len(merged)
		merged = append(merged, b)
	}
	for _, b := range current {
		i, ok := byObjective[b.Objective]
		switch {
		case !ok:
			byObjective[b.Objective] = len(merged)
			merged = append(merged, b)
		case b.Fitness > merged[i].Fitness:
			merged[i] = b
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Objective < merged[j].Objective })
	return merged
}

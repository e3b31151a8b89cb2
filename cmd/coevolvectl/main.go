package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coevolve/internal/config"
	"coevolve/internal/evo"
	"coevolve/internal/metrics"
	"coevolve/internal/model"
	"coevolve/internal/storage"
	"coevolve/pkg/coevolve"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "coevolve.db"
)

// stdout and stderr are swapped out by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "replay":
		return runReplay(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "plot":
		return runPlot(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type clientFlags struct {
	storeKind  *string
	dbPath     *string
	runsDir    *string
	exportsDir *string
	logFormat  *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind:  fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:     fs.String("db-path", defaultDBPath, "sqlite database path"),
		runsDir:    fs.String("runs-dir", defaultRunsDir, "run artifacts directory"),
		exportsDir: fs.String("exports-dir", defaultExportsDir, "export output directory"),
		logFormat:  fs.String("log-format", "auto", "log format: auto|text|json"),
	}
}

func (f clientFlags) client(recorder *metrics.Recorder) (*coevolve.Client, error) {
	logger, err := newLogger(*f.logFormat, stderr)
	if err != nil {
		return nil, err
	}
	return coevolve.New(coevolve.Options{
		StoreKind:  *f.storeKind,
		DBPath:     *f.dbPath,
		RunsDir:    *f.runsDir,
		ExportsDir: *f.exportsDir,
		Logger:     logger,
		Metrics:    recorder,
	})
}

// newLogger picks a text handler for terminals and JSON otherwise.
func newLogger(format string, w io.Writer) (*slog.Logger, error) {
	switch format {
	case "auto":
		if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			return slog.New(slog.NewTextHandler(w, nil)), nil
		}
		return slog.New(slog.NewJSONHandler(w, nil)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, nil)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, nil)), nil
	default:
		return nil, fmt.Errorf("unknown log format: %q", format)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cf := addClientFlags(fs)
	configPath := fs.String("config", "", "optional run config path (.ini or .yaml)")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	resume := fs.Bool("resume", false, "continue the run given by --run-id from its checkpoint")
	generations := fs.Int("gens", 0, "controller generation count (overrides config)")
	population := fs.Int("pop", 0, "controller population size (overrides config)")
	cadence := fs.Int("cadence", 0, "controller generations between game evolutions (overrides config)")
	seed := fs.Int64("seed", 0, "rng seed (overrides config)")
	workers := fs.Int("workers", 0, "concurrent trials; 1 runs over the evaluation channel (overrides config)")
	strategy := fs.String("strategy", "", "controller strategy: vega|elitist (overrides config)")
	selection := fs.String("selection", "", "elitist parent selection: roulette|truncation (overrides config)")
	objective := fs.String("objective", "", "game objective: weighted_sum|product (overrides config)")
	static := fs.Bool("static-games", false, "keep the seed games for the whole run")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	quiet := fs.Bool("quiet", false, "suppress per-generation progress lines")
	jsonOut := fs.Bool("json", false, "emit run result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if *configPath != "" {
		// Storage settings in the file apply unless given on the command line.
		if !set["store"] && cfg.Run.Store != "" {
			*cf.storeKind = cfg.Run.Store
		}
		if !set["db-path"] && cfg.Run.StorePath != "" {
			*cf.dbPath = cfg.Run.StorePath
		}
		if !set["runs-dir"] && cfg.Run.OutDir != "" {
			*cf.runsDir = cfg.Run.OutDir
		}
	}
	if set["gens"] {
		cfg.Run.Generations = *generations
	}
	if set["pop"] {
		cfg.Controllers.Size = *population
	}
	if set["cadence"] {
		cfg.Run.GameCadence = *cadence
	}
	if set["seed"] {
		cfg.Run.Seed = *seed
	}
	if set["workers"] {
		cfg.Run.Workers = *workers
	}
	if set["strategy"] {
		cfg.Run.Strategy = *strategy
	}
	if set["selection"] {
		cfg.Run.Selection = *selection
	}
	if set["objective"] {
		cfg.Run.Objective = *objective
	}
	if *static {
		cfg.Run.Coevolve = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(stderr, "metrics server: %v\n", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, err := cf.client(recorder)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := coevolve.RunRequest{Config: cfg, RunID: *runID, Resume: *resume}
	if !*quiet && !*jsonOut {
		req.Progress = func(report evo.GenerationReport, evolved bool) {
			best := report.Summaries[0]
			fmt.Fprintf(stdout, "generation=%d best=%.6f average=%.6f games_evolved=%t\n",
				report.Generation+1, best.Best, best.Average, evolved)
		}
	}
	started := time.Now()
	result, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(stdout, "run_id=%s strategy=%s generations=%d game_generations=%d final_best_fitness=%.6f dropped=%d elapsed=%s\n",
		result.RunID,
		cfg.Run.Strategy,
		result.Generations,
		result.GameGenerations,
		result.FinalBestFitness,
		result.Dropped,
		time.Since(started).Round(time.Millisecond),
	)
	for _, b := range result.ObjectiveBests {
		fmt.Fprintf(stdout, "objective=%d best=%.6f generation=%d\n", b.Objective, b.Fitness, b.Generation)
	}
	fmt.Fprintf(stdout, "artifacts=%s\n", result.ArtifactsDir)
	return nil
}

func runReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	cf := addClientFlags(fs)
	configPath := fs.String("config", "", "run config path; must match the run's network shape")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "replay from the most recent run")
	objective := fs.Int("objective", 0, "replay the best controller of this objective")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	bests, err := client.Best(ctx, coevolve.BestRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	var genome model.Genome
	for _, b := range bests {
		if b.Objective == *objective {
			genome = b.Genome
		}
	}
	if genome == nil {
		return fmt.Errorf("no best controller for objective %d", *objective)
	}

	fitness, err := client.Replay(ctx, coevolve.ReplayRequest{Config: cfg, Genome: genome})
	if err != nil {
		return err
	}
	for game, v := range fitness {
		fmt.Fprintf(stdout, "game=%d fitness=%.6f\n", game, v)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	cf := addClientFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, coevolve.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	for _, r := range runs {
		created := r.CreatedAtUTC
		if ts, err := time.Parse(time.RFC3339Nano, r.CreatedAtUTC); err == nil {
			created = humanize.Time(ts)
		}
		fmt.Fprintf(stdout, "run_id=%s created=%q strategy=%s seed=%d controllers=%s games=%d gens=%s final_best_fitness=%.6f\n",
			r.RunID,
			created,
			r.Strategy,
			r.Seed,
			humanize.Comma(int64(r.ControllerPopulation)),
			r.GamePopulation,
			humanize.Comma(int64(r.Generations)),
			r.FinalBestFitness,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run")
	population := fs.String("population", model.PopulationControllers, "population: controllers|games")
	objective := fs.Int("objective", -1, "objective index (<0 for all)")
	limit := fs.Int("limit", 50, "max records to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("fitness requires --run-id or --latest")
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, coevolve.FitnessHistoryRequest{
		RunID:      *runID,
		Latest:     *latest,
		Population: *population,
		Objective:  *objective,
		Limit:      *limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(stdout, "no fitness history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for _, rec := range history {
		fmt.Fprintf(stdout, "population=%s generation=%d objective=%d best=%.6f average=%.6f worst=%.6f\n",
			rec.Population, rec.Generation, rec.Objective, rec.Best, rec.Average, rec.Worst)
	}
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show best controllers for the most recent run")
	jsonOut := fs.Bool("json", false, "emit best controllers as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	bests, err := client.Best(ctx, coevolve.BestRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bests)
	}
	for _, b := range bests {
		fmt.Fprintf(stdout, "objective=%d fitness=%.6f generation=%d genes=%d\n", b.Objective, b.Fitness, b.Generation, len(b.Genome))
	}
	return nil
}

func runPlot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "plot the most recent run")
	population := fs.String("population", model.PopulationControllers, "population: controllers|games")
	objective := fs.Int("objective", 0, "objective index")
	out := fs.String("out", "", "output image path (defaults to the run directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	path, err := client.Plot(ctx, coevolve.PlotRequest{
		RunID:      *runID,
		Latest:     *latest,
		Population: *population,
		Objective:  *objective,
		OutPath:    *out,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "plotted to=%s\n", path)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", "", "export output directory (defaults to --exports-dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, coevolve.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", summary.RunID, summary.Directory)
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: coevolvectl <run|replay|runs|fitness|best|plot|export> [flags]", msg)
}

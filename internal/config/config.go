// Package config loads the engine parameters of a coevolution run from INI
// or YAML files.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"coevolve/internal/evo"
	"coevolve/internal/fitness"
	"coevolve/internal/nn"
	"coevolve/internal/scape"
)

const (
	StrategyVEGA     = "vega"
	StrategyElitist  = "elitist"
	DefaultCadence   = 5
	DefaultObjective = "weighted_sum"
)

type RunConfig struct {
	Generations int    `yaml:"generations" ini:"generations"`
	Seed        int64  `yaml:"seed" ini:"seed"`
	Strategy    string `yaml:"strategy" ini:"strategy"`
	Selection   string `yaml:"selection" ini:"selection"`
	Objective   string `yaml:"objective" ini:"objective"`
	// GameCadence is K: games evolve every K controller generations.
	GameCadence int  `yaml:"game_cadence" ini:"game_cadence"`
	Coevolve    bool `yaml:"coevolve" ini:"coevolve"`
	// Workers above 1 evaluates controllers concurrently in-process instead
	// of streaming them through the evaluation channel.
	Workers   int    `yaml:"workers" ini:"workers"`
	Store     string `yaml:"store" ini:"store"`
	StorePath string `yaml:"store_path" ini:"store_path"`
	OutDir    string `yaml:"out_dir" ini:"out_dir"`
}

type PopulationConfig struct {
	Size                 int     `yaml:"size" ini:"size"`
	ElitismRatio         float64 `yaml:"elitism_ratio" ini:"elitism_ratio"`
	ReproductionRatio    float64 `yaml:"reproduction_ratio" ini:"reproduction_ratio"`
	CrossoverProbability float64 `yaml:"crossover_probability" ini:"crossover_probability"`
	MutationProbability  float64 `yaml:"mutation_probability" ini:"mutation_probability"`
	MutationSigma        float64 `yaml:"mutation_sigma" ini:"mutation_sigma"`
	GeneMin              float64 `yaml:"gene_min" ini:"gene_min"`
	GeneMax              float64 `yaml:"gene_max" ini:"gene_max"`
}

type ObjectivesConfig struct {
	Count     int  `yaml:"count" ini:"count"`
	Normalize bool `yaml:"normalize" ini:"normalize"`
	// Ranges overrides the built-in raw fitness bounds. YAML only.
	Ranges []fitness.Range `yaml:"ranges" ini:"-"`
}

type Config struct {
	Run         RunConfig         `yaml:"run"`
	Controllers PopulationConfig  `yaml:"controllers"`
	Games       PopulationConfig  `yaml:"games"`
	Network     nn.Shape          `yaml:"network"`
	Trial       scape.ArenaConfig `yaml:"trial"`
	Objectives  ObjectivesConfig  `yaml:"objectives"`
}

func defaultPopulation(size int) PopulationConfig {
	return PopulationConfig{
		Size:                 size,
		ElitismRatio:         0.1,
		ReproductionRatio:    0.4,
		CrossoverProbability: 0.5,
		MutationProbability:  0.1,
		MutationSigma:        0.2,
		GeneMin:              -1,
		GeneMax:              1,
	}
}

// Default returns the reference experiment: 30 controllers evolved with
// VEGA against three coevolving games.
func Default() Config {
	return Config{
		Run: RunConfig{
			Generations: 50,
			Seed:        1,
			Strategy:    StrategyVEGA,
			Selection:   "roulette",
			Objective:   DefaultObjective,
			GameCadence: DefaultCadence,
			Coevolve:    true,
			Workers:     1,
			Store:       "memory",
			OutDir:      "runs",
		},
		Controllers: defaultPopulation(30),
		Games:       defaultPopulation(3),
		Network:     nn.Shape{Inputs: scape.SensorInputs(), Outputs: 2, Activation: "tanh"},
		Trial:       scape.DefaultArenaConfig(),
		Objectives:  ObjectivesConfig{Count: 3, Normalize: true},
	}
}

// Load reads path over the defaults. The format follows the extension.
func Load(path string) (Config, error) {
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini":
		if err := loadINI(path, &cfg); err != nil {
			return Config{}, err
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

func loadINI(path string, cfg *Config) error {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, path)
	if err != nil {
		return fmt.Errorf("failed to load config file '%s': %w", path, err)
	}

	sections := []struct {
		name string
		dst  any
	}{
		{"run", &cfg.Run},
		{"controllers", &cfg.Controllers},
		{"games", &cfg.Games},
		{"network", &cfg.Network},
		{"trial", &cfg.Trial},
		{"objectives", &cfg.Objectives},
	}
	for _, s := range sections {
		if !file.HasSection(s.name) {
			continue
		}
		if err := file.Section(s.name).MapTo(s.dst); err != nil {
			return fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}
	return nil
}

func (p PopulationConfig) validate(name string) error {
	if p.Size <= 0 {
		return fmt.Errorf("%s size must be positive: %d", name, p.Size)
	}
	if !(p.GeneMin < p.GeneMax) {
		return fmt.Errorf("%s gene bounds must satisfy min < max: [%v, %v]", name, p.GeneMin, p.GeneMax)
	}
	probs := map[string]float64{
		"elitism_ratio":         p.ElitismRatio,
		"reproduction_ratio":    p.ReproductionRatio,
		"crossover_probability": p.CrossoverProbability,
		"mutation_probability":  p.MutationProbability,
	}
	for key, v := range probs {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s %s must be in [0,1]: %v", name, key, v)
		}
	}
	if math.IsNaN(p.MutationSigma) || p.MutationSigma < 0 {
		return fmt.Errorf("%s mutation_sigma must be non-negative: %v", name, p.MutationSigma)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Run.Generations < 0 {
		return fmt.Errorf("generations must be non-negative: %d", c.Run.Generations)
	}
	switch c.Run.Strategy {
	case StrategyVEGA, StrategyElitist:
	default:
		return fmt.Errorf("unknown strategy: %q", c.Run.Strategy)
	}
	if _, err := evo.SelectorByName(c.Run.Selection, c.Controllers.ReproductionRatio); err != nil {
		return err
	}
	if _, err := fitness.ObjectiveByName(c.Run.Objective); err != nil {
		return err
	}
	if c.Run.GameCadence <= 0 {
		return fmt.Errorf("game_cadence must be positive: %d", c.Run.GameCadence)
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("workers must be non-negative: %d", c.Run.Workers)
	}
	if err := c.Controllers.validate("controllers"); err != nil {
		return err
	}
	if err := c.Games.validate("games"); err != nil {
		return err
	}
	if c.Objectives.Count <= 0 {
		return fmt.Errorf("objective count must be positive: %d", c.Objectives.Count)
	}
	if c.Games.Size != c.Objectives.Count {
		return fmt.Errorf("games size %d must equal objective count %d", c.Games.Size, c.Objectives.Count)
	}
	if c.Run.Strategy == StrategyVEGA && c.Controllers.Size%c.Objectives.Count != 0 {
		return fmt.Errorf("%w: size=%d objectives=%d", evo.ErrUnevenPartition, c.Controllers.Size, c.Objectives.Count)
	}
	if n := len(c.Objectives.Ranges); n != 0 && n != c.Objectives.Count {
		return fmt.Errorf("objectives.ranges has %d entries, want %d", n, c.Objectives.Count)
	}
	for i, r := range c.Objectives.Ranges {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("objective %d range: %w", i, err)
		}
	}
	if err := c.Network.Validate(); err != nil {
		return err
	}
	return c.Trial.Validate()
}

// ObjectiveRanges returns the normalization bounds per objective. A single
// objective uses the combined bounds.
func (c Config) ObjectiveRanges() []fitness.Range {
	if len(c.Objectives.Ranges) > 0 {
		out := make([]fitness.Range, len(c.Objectives.Ranges))
		copy(out, c.Objectives.Ranges)
		return out
	}
	if c.Objectives.Count == 1 {
		return []fitness.Range{fitness.CombinedRange}
	}
	return fitness.SeedRanges(c.Objectives.Count)
}

func (p PopulationConfig) params(genes, objectives int) evo.Params {
	return evo.Params{
		Size:                 p.Size,
		Genes:                genes,
		Objectives:           objectives,
		Bounds:               evo.GeneBounds{Min: p.GeneMin, Max: p.GeneMax},
		ElitismRatio:         p.ElitismRatio,
		ReproductionRatio:    p.ReproductionRatio,
		CrossoverProbability: p.CrossoverProbability,
		MutationProbability:  p.MutationProbability,
		MutationSigma:        p.MutationSigma,
	}
}

// ControllerParams sizes controller genomes to the network.
func (c Config) ControllerParams() evo.Params {
	return c.Controllers.params(c.Network.GeneCount(), c.Objectives.Count)
}

// GameParams describes the game population: one game per objective, each
// scored on a single variance objective.
func (c Config) GameParams() evo.Params {
	return c.Games.params(fitness.GameGenes, 1)
}

package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"coevolve/internal/model"
)

const runIndexFile = "run_index.json"

type RunConfig struct {
	RunID                string  `json:"run_id"`
	Strategy             string  `json:"strategy"`
	Selection            string  `json:"selection"`
	Objective            string  `json:"objective"`
	ControllerPopulation int     `json:"controller_population"`
	GamePopulation       int     `json:"game_population"`
	Genes                int     `json:"genes"`
	Generations          int     `json:"generations"`
	GameCadence          int     `json:"game_cadence"`
	ElitismRatio         float64 `json:"elitism_ratio"`
	ReproductionRatio    float64 `json:"reproduction_ratio"`
	CrossoverProbability float64 `json:"crossover_probability"`
	MutationProbability  float64 `json:"mutation_probability"`
	MutationSigma        float64 `json:"mutation_sigma"`
	GeneMin              float64 `json:"gene_min"`
	GeneMax              float64 `json:"gene_max"`
	Seed                 int64   `json:"seed"`
	Workers              int     `json:"workers"`
}

// ObjectiveBest is the best individual ever seen for one objective.
type ObjectiveBest struct {
	Objective  int          `json:"objective"`
	Fitness    float64      `json:"fitness"`
	Generation int          `json:"generation"`
	Genome     model.Genome `json:"genome"`
}

type RunArtifacts struct {
	Config           RunConfig                `json:"config"`
	History          []model.GenerationRecord `json:"history"`
	GameHistory      []model.GenerationRecord `json:"game_history,omitempty"`
	ObjectiveBests   []ObjectiveBest          `json:"objective_bests,omitempty"`
	FinalGames       []model.Genome           `json:"final_games,omitempty"`
	FinalBestFitness float64                  `json:"final_best_fitness"`
}

type RunIndexEntry struct {
	RunID                string  `json:"run_id"`
	Strategy             string  `json:"strategy"`
	ControllerPopulation int     `json:"controller_population"`
	GamePopulation       int     `json:"game_population"`
	Generations          int     `json:"generations"`
	Seed                 int64   `json:"seed"`
	FinalBestFitness     float64 `json:"final_best_fitness"`
	CreatedAtUTC         string  `json:"created_at_utc"`
}

var artifactFiles = []string{"config.json", "fitness_history.json", "game_history.json", "objective_bests.json", "final_games.json"}

// optionalArtifacts are copied on export only when present.
var optionalArtifacts = []string{FitnessCSVFile, BestCSVFile, FitnessPlotFile}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "fitness_history.json"), map[string]any{"history": artifacts.History, "final_best_fitness": artifacts.FinalBestFitness}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "game_history.json"), artifacts.GameHistory); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "objective_bests.json"), artifacts.ObjectiveBests); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "final_games.json"), artifacts.FinalGames); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns runs newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	found, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !found {
		return []RunIndexEntry{}, nil
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range artifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range optionalArtifacts {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	found, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	if err != nil || !found {
		return RunConfig{}, found, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadFitnessHistory(baseDir, runID string) ([]model.GenerationRecord, bool, error) {
	var payload struct {
		History []model.GenerationRecord `json:"history"`
	}
	found, err := readJSON(filepath.Join(baseDir, runID, "fitness_history.json"), &payload)
	if err != nil || !found {
		return nil, found, err
	}
	return payload.History, true, nil
}

func ReadGameHistory(baseDir, runID string) ([]model.GenerationRecord, bool, error) {
	var history []model.GenerationRecord
	found, err := readJSON(filepath.Join(baseDir, runID, "game_history.json"), &history)
	if err != nil || !found {
		return nil, found, err
	}
	return history, true, nil
}

func ReadObjectiveBests(baseDir, runID string) ([]ObjectiveBest, bool, error) {
	var bests []ObjectiveBest
	found, err := readJSON(filepath.Join(baseDir, runID, "objective_bests.json"), &bests)
	if err != nil || !found {
		return nil, found, err
	}
	return bests, true, nil
}

func readJSON(path string, dst any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// Package snapshot stores resumable checkpoints of a coevolution run as TOML.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"coevolve/internal/model"
)

const (
	FileName       = "checkpoint.toml"
	CurrentVersion = 1
)

var ErrVersionMismatch = errors.New("checkpoint version mismatch")

// Checkpoint is everything needed to continue a run between controller
// generations.
type Checkpoint struct {
	Version int    `toml:"version"`
	RunID   string `toml:"run_id"`
	Seed    int64  `toml:"seed"`

	ControllerGenerations int `toml:"controller_generations"`
	GameGenerations       int `toml:"game_generations"`
	// SinceGameEvolve counts controller generations folded into GameFitness
	// since the game population last advanced.
	SinceGameEvolve int         `toml:"since_game_evolve"`
	GameFitness     [][]float64 `toml:"game_fitness"`

	Controllers model.PopulationSnapshot `toml:"controllers"`
	Games       model.PopulationSnapshot `toml:"games"`
}

// Path returns the checkpoint location for a run under baseDir.
func Path(baseDir, runID string) string {
	return filepath.Join(baseDir, runID, FileName)
}

// Save writes cp to path, replacing any previous checkpoint atomically.
func Save(path string, cp Checkpoint) error {
	if cp.Version == 0 {
		cp.Version = CurrentVersion
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(cp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func Load(path string) (Checkpoint, error) {
	var cp Checkpoint
	if _, err := toml.DecodeFile(path, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", filepath.Base(path), err)
	}
	if cp.Version != CurrentVersion {
		return Checkpoint{}, fmt.Errorf("%w: got=%d want=%d", ErrVersionMismatch, cp.Version, CurrentVersion)
	}
	return cp, nil
}

func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

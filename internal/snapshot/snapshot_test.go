package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"coevolve/internal/model"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := Path(t.TempDir(), "run-1")
	cp := Checkpoint{
		RunID:                 "run-1",
		Seed:                  42,
		ControllerGenerations: 7,
		GameGenerations:       1,
		SinceGameEvolve:       2,
		GameFitness:           [][]float64{{0.5, 1.5, 2.5}},
		Controllers: model.PopulationSnapshot{
			ID:         "run-1",
			Population: model.PopulationControllers,
			Generation: 7,
			Genomes:    []model.Genome{{0.1, -0.2}, {0.3, 0.4}, {-1, 1}},
		},
		Games: model.PopulationSnapshot{
			ID:         "run-1",
			Population: model.PopulationGames,
			Generation: 1,
			Genomes:    []model.Genome{{1, 1, 1, 0}},
		},
	}

	if err := Save(path, cp); err != nil {
		t.Fatalf("save: %v", err)
	}
	ok, err := Exists(path)
	if err != nil || !ok {
		t.Fatalf("exists got=%v err=%v want true", ok, err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Version != CurrentVersion {
		t.Fatalf("version got=%d want=%d", got.Version, CurrentVersion)
	}
	if got.RunID != cp.RunID || got.Seed != cp.Seed || got.SinceGameEvolve != cp.SinceGameEvolve {
		t.Fatalf("header got=%s/%d/%d want=%s/%d/%d", got.RunID, got.Seed, got.SinceGameEvolve, cp.RunID, cp.Seed, cp.SinceGameEvolve)
	}
	if !reflect.DeepEqual(got.GameFitness, cp.GameFitness) {
		t.Fatalf("game fitness got=%v want=%v", got.GameFitness, cp.GameFitness)
	}
	if !reflect.DeepEqual(got.Controllers.Genomes, cp.Controllers.Genomes) {
		t.Fatalf("controller genomes got=%v want=%v", got.Controllers.Genomes, cp.Controllers.Genomes)
	}
	if !reflect.DeepEqual(got.Games.Genomes, cp.Games.Genomes) {
		t.Fatalf("game genomes got=%v want=%v", got.Games.Genomes, cp.Games.Genomes)
	}
	if got.Controllers.Generation != 7 {
		t.Fatalf("controller generation got=%d want=7", got.Controllers.Generation)
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	for gen := 1; gen <= 2; gen++ {
		if err := Save(path, Checkpoint{RunID: "a", ControllerGenerations: gen}); err != nil {
			t.Fatalf("save %d: %v", gen, err)
		}
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ControllerGenerations != 2 {
		t.Fatalf("generations got=%d want=2", got.ControllerGenerations)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries got=%d want=1", len(entries))
	}
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := Save(path, Checkpoint{Version: CurrentVersion + 1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := Load(path); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestExistsMissing(t *testing.T) {
	ok, err := Exists(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil || ok {
		t.Fatalf("exists got=%v err=%v want false", ok, err)
	}
}

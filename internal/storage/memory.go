package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"coevolve/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

type recordKey struct {
	runID      string
	population string
	generation int
	objective  int
}

type snapshotKey struct {
	runID      string
	population string
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunSummary
	generations map[recordKey]model.GenerationRecord
	bests       map[recordKey]model.BestGenomeRecord
	snapshots   map[snapshotKey]model.PopulationSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunSummary)
	s.generations = make(map[recordKey]model.GenerationRecord)
	s.bests = make(map[recordKey]model.BestGenomeRecord)
	s.snapshots = make(map[snapshotKey]model.PopulationSnapshot)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	stamp(&run.VersionedRecord)
	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	return run, ok, nil
}

// ListRuns returns runs newest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (s *MemoryStore) AppendGeneration(_ context.Context, rec model.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	stamp(&rec.VersionedRecord)
	s.generations[recordKey{rec.RunID, rec.Population, rec.Generation, rec.Objective}] = rec
	return nil
}

func (s *MemoryStore) GetGenerations(_ context.Context, runID, population string) ([]model.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.GenerationRecord, 0)
	for key, rec := range s.generations {
		if key.runID == runID && (population == "" || key.population == population) {
			out = append(out, rec)
		}
	}
	sortGenerations(out)
	return out, nil
}

func (s *MemoryStore) SaveBestGenome(_ context.Context, rec model.BestGenomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	stamp(&rec.VersionedRecord)
	rec.Genes = rec.Genes.Clone()
	s.bests[recordKey{rec.RunID, rec.Population, rec.Generation, rec.Objective}] = rec
	return nil
}

func (s *MemoryStore) GetBestGenomes(_ context.Context, runID, population string) ([]model.BestGenomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BestGenomeRecord, 0)
	for key, rec := range s.bests {
		if key.runID == runID && (population == "" || key.population == population) {
			rec.Genes = rec.Genes.Clone()
			out = append(out, rec)
		}
	}
	sortBestGenomes(out)
	return out, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap model.PopulationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	stamp(&snap.VersionedRecord)
	snap.Genomes = cloneGenomes(snap.Genomes)
	s.snapshots[snapshotKey{snap.ID, snap.Population}] = snap
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, runID, population string) (model.PopulationSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotKey{runID, population}]
	if !ok {
		return model.PopulationSnapshot{}, false, nil
	}
	snap.Genomes = cloneGenomes(snap.Genomes)
	return snap, true, nil
}

func cloneGenomes(in []model.Genome) []model.Genome {
	out := make([]model.Genome, len(in))
	for i, g := range in {
		out[i] = g.Clone()
	}
	return out
}

package stats

import (
	"context"
	"errors"
	"sync"

	"coevolve/internal/model"
)

// Sink receives per-generation statistics. Implementations are best-effort
// collaborators: callers log returned errors and keep evolving.
type Sink interface {
	RecordGeneration(ctx context.Context, rec model.GenerationRecord) error
	RecordBest(ctx context.Context, rec model.BestGenomeRecord) error
}

type NopSink struct{}

func (NopSink) RecordGeneration(context.Context, model.GenerationRecord) error { return nil }
func (NopSink) RecordBest(context.Context, model.BestGenomeRecord) error       { return nil }

// MultiSink fans records out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) RecordGeneration(ctx context.Context, rec model.GenerationRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordGeneration(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) RecordBest(ctx context.Context, rec model.BestGenomeRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordBest(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps every record in memory.
type MemorySink struct {
	mu          sync.Mutex
	generations []model.GenerationRecord
	bests       []model.BestGenomeRecord
}

func (m *MemorySink) RecordGeneration(_ context.Context, rec model.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations = append(m.generations, rec)
	return nil
}

func (m *MemorySink) RecordBest(_ context.Context, rec model.BestGenomeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Genes = rec.Genes.Clone()
	m.bests = append(m.bests, rec)
	return nil
}

func (m *MemorySink) Generations() []model.GenerationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.GenerationRecord, len(m.generations))
	copy(out, m.generations)
	return out
}

func (m *MemorySink) Bests() []model.BestGenomeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.BestGenomeRecord, len(m.bests))
	for i, b := range m.bests {
		b.Genes = b.Genes.Clone()
		out[i] = b
	}
	return out
}

// Filter returns the generation records of one population and objective in
// recording order. A negative objective keeps every objective.
func Filter(records []model.GenerationRecord, population string, objective int) []model.GenerationRecord {
	out := make([]model.GenerationRecord, 0, len(records))
	for _, r := range records {
		if r.Population == population && (objective < 0 || r.Objective == objective) {
			out = append(out, r)
		}
	}
	return out
}

package storage

import (
	"context"

	"coevolve/internal/model"
)

// Store persists run history: run summaries, per-generation statistics,
// best genomes and population snapshots for resuming.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunSummary) error
	GetRun(ctx context.Context, runID string) (model.RunSummary, bool, error)
	ListRuns(ctx context.Context) ([]model.RunSummary, error)
	AppendGeneration(ctx context.Context, rec model.GenerationRecord) error
	GetGenerations(ctx context.Context, runID, population string) ([]model.GenerationRecord, error)
	SaveBestGenome(ctx context.Context, rec model.BestGenomeRecord) error
	GetBestGenomes(ctx context.Context, runID, population string) ([]model.BestGenomeRecord, error)
	SaveSnapshot(ctx context.Context, snap model.PopulationSnapshot) error
	GetSnapshot(ctx context.Context, runID, population string) (model.PopulationSnapshot, bool, error)
}

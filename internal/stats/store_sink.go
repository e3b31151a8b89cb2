package stats

import (
	"context"
	"fmt"

	"coevolve/internal/model"
	"coevolve/internal/storage"
)

// StoreSink persists generation statistics and best genomes into a store.
type StoreSink struct {
	Store storage.Store
}

func (s StoreSink) RecordGeneration(ctx context.Context, rec model.GenerationRecord) error {
	if s.Store == nil {
		return fmt.Errorf("store sink has no store")
	}
	return s.Store.AppendGeneration(ctx, rec)
}

func (s StoreSink) RecordBest(ctx context.Context, rec model.BestGenomeRecord) error {
	if s.Store == nil {
		return fmt.Errorf("store sink has no store")
	}
	return s.Store.SaveBestGenome(ctx, rec)
}

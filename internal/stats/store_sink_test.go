package stats

import (
	"context"
	"testing"

	"coevolve/internal/model"
	"coevolve/internal/storage"
)

func TestStoreSinkPersistsRecords(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	sink := StoreSink{Store: store}

	if err := sink.RecordGeneration(ctx, model.GenerationRecord{RunID: "r1", Population: model.PopulationControllers, Best: 2}); err != nil {
		t.Fatalf("record generation: %v", err)
	}
	if err := sink.RecordBest(ctx, model.BestGenomeRecord{RunID: "r1", Population: model.PopulationControllers, Genes: model.Genome{1}}); err != nil {
		t.Fatalf("record best: %v", err)
	}

	gens, err := store.GetGenerations(ctx, "r1", model.PopulationControllers)
	if err != nil || len(gens) != 1 || gens[0].Best != 2 {
		t.Fatalf("unexpected generations: %+v err=%v", gens, err)
	}
	bests, err := store.GetBestGenomes(ctx, "r1", "")
	if err != nil || len(bests) != 1 {
		t.Fatalf("unexpected bests: %+v err=%v", bests, err)
	}
}

func TestStoreSinkWithoutStoreFails(t *testing.T) {
	if err := (StoreSink{}).RecordGeneration(context.Background(), model.GenerationRecord{}); err == nil {
		t.Fatal("expected error without store")
	}
}

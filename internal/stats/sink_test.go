package stats

import (
	"context"
	"errors"
	"testing"

	"coevolve/internal/model"
)

type failingSink struct{}

func (failingSink) RecordGeneration(context.Context, model.GenerationRecord) error {
	return errors.New("disk full")
}

func (failingSink) RecordBest(context.Context, model.BestGenomeRecord) error {
	return errors.New("disk full")
}

func TestMultiSinkFansOutAndJoinsErrors(t *testing.T) {
	mem := &MemorySink{}
	sink := MultiSink{mem, failingSink{}}

	err := sink.RecordGeneration(context.Background(), model.GenerationRecord{Population: "controllers", Generation: 2})
	if err == nil {
		t.Fatal("expected joined error from failing sink")
	}
	if got := len(mem.Generations()); got != 1 {
		t.Fatalf("unexpected memory records: got=%d want=1", got)
	}

	genes := model.Genome{0.1, 0.2}
	if err := (MultiSink{mem}).RecordBest(context.Background(), model.BestGenomeRecord{Genes: genes}); err != nil {
		t.Fatalf("record best: %v", err)
	}
	genes[0] = 9
	if got := mem.Bests()[0].Genes[0]; got != 0.1 {
		t.Fatalf("memory sink aliased genes: got=%v want=0.1", got)
	}
}

func TestFilterSelectsPopulationAndObjective(t *testing.T) {
	records := []model.GenerationRecord{
		{Population: "controllers", Objective: 0, Generation: 0},
		{Population: "controllers", Objective: 1, Generation: 0},
		{Population: "games", Objective: 0, Generation: 0},
		{Population: "controllers", Objective: 0, Generation: 1},
	}
	got := Filter(records, "controllers", 0)
	if len(got) != 2 || got[1].Generation != 1 {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}

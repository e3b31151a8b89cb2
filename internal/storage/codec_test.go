package storage

import (
	"errors"
	"testing"

	"coevolve/internal/model"
)

func TestEncodeStampsCurrentVersion(t *testing.T) {
	data, err := EncodeGeneration(model.GenerationRecord{RunID: "r1", Best: 1.5})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rec, err := DecodeGeneration(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.RunID != "r1" || rec.Best != 1.5 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.SchemaVersion != CurrentSchemaVersion || rec.CodecVersion != CurrentCodecVersion {
		t.Fatalf("unexpected version: %+v", rec.VersionedRecord)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	snap := model.PopulationSnapshot{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion + 1, CodecVersion: CurrentCodecVersion},
		ID:              "r1",
	}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeSnapshot(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrVersionMismatch)
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeRun([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := DecodeBestGenome([]byte(`{"genes":"x"}`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBestGenomeCodecRoundTrip(t *testing.T) {
	in := model.BestGenomeRecord{RunID: "r1", Population: model.PopulationGames, Generation: 4, Objective: 2, Index: 7, Fitness: 0.25, Genes: model.Genome{1, -1, 0.5, 0}}
	data, err := EncodeBestGenome(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeBestGenome(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Index != 7 || out.Objective != 2 || len(out.Genes) != 4 || out.Genes[1] != -1 {
		t.Fatalf("unexpected record: %+v", out)
	}
}

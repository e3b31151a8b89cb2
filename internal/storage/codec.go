package storage

import (
	"encoding/json"
	"errors"
	"sort"

	"coevolve/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is stamped on records that arrive without one.
var CurrentVersion = model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}

func stamp(v *model.VersionedRecord) {
	if v.SchemaVersion == 0 && v.CodecVersion == 0 {
		*v = CurrentVersion
	}
}

func EncodeRun(r model.RunSummary) ([]byte, error) {
	stamp(&r.VersionedRecord)
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunSummary, error) {
	var run model.RunSummary
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunSummary{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunSummary{}, err
	}
	return run, nil
}

func EncodeGeneration(r model.GenerationRecord) ([]byte, error) {
	stamp(&r.VersionedRecord)
	return json.Marshal(r)
}

func DecodeGeneration(data []byte) (model.GenerationRecord, error) {
	var rec model.GenerationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.GenerationRecord{}, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return model.GenerationRecord{}, err
	}
	return rec, nil
}

func EncodeBestGenome(r model.BestGenomeRecord) ([]byte, error) {
	stamp(&r.VersionedRecord)
	return json.Marshal(r)
}

func DecodeBestGenome(data []byte) (model.BestGenomeRecord, error) {
	var rec model.BestGenomeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.BestGenomeRecord{}, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return model.BestGenomeRecord{}, err
	}
	return rec, nil
}

func EncodeSnapshot(s model.PopulationSnapshot) ([]byte, error) {
	stamp(&s.VersionedRecord)
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (model.PopulationSnapshot, error) {
	var snap model.PopulationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.PopulationSnapshot{}, err
	}
	if err := checkVersion(snap.VersionedRecord); err != nil {
		return model.PopulationSnapshot{}, err
	}
	return snap, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

func sortGenerations(records []model.GenerationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Generation != records[j].Generation {
			return records[i].Generation < records[j].Generation
		}
		return records[i].Objective < records[j].Objective
	})
}

func sortBestGenomes(records []model.BestGenomeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Generation != records[j].Generation {
			return records[i].Generation < records[j].Generation
		}
		return records[i].Objective < records[j].Objective
	})
}

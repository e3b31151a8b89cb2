package model

import "time"

const (
	PopulationControllers = "controllers"
	PopulationGames       = "games"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version" toml:"schema_version"`
	CodecVersion  int `json:"codec_version" toml:"codec_version"`
}

// Genome is a fixed-length vector of real-valued genes. A controller genome
// holds network weights, a game genome holds objective constants.
type Genome []float64

// Clone returns a deep copy so callers never alias another slot's genes.
func (g Genome) Clone() Genome {
	if g == nil {
		return nil
	}
	out := make(Genome, len(g))
	copy(out, g)
	return out
}

// Individual is one population slot. Identity is the slot index.
type Individual struct {
	Index   int
	Genome  Genome
	Fitness []float64
}

type GenerationRecord struct {
	VersionedRecord
	RunID      string  `json:"run_id"`
	Population string  `json:"population"`
	Generation int     `json:"generation"`
	Objective  int     `json:"objective"`
	Worst      float64 `json:"worst"`
	Average    float64 `json:"average"`
	Best       float64 `json:"best"`
	BestIndex  int     `json:"best_index"`
}

type BestGenomeRecord struct {
	VersionedRecord
	RunID      string  `json:"run_id"`
	Population string  `json:"population"`
	Generation int     `json:"generation"`
	Objective  int     `json:"objective"`
	Index      int     `json:"index"`
	Fitness    float64 `json:"fitness"`
	Genes      Genome  `json:"genes"`
}

type PopulationSnapshot struct {
	VersionedRecord
	ID         string   `json:"id" toml:"id"`
	Population string   `json:"population" toml:"population"`
	Generation int      `json:"generation" toml:"generation"`
	Genomes    []Genome `json:"genomes" toml:"genomes"`
}

type RunSummary struct {
	VersionedRecord
	RunID                string    `json:"run_id"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
	Strategy             string    `json:"strategy"`
	Selection            string    `json:"selection"`
	ControllerPopulation int       `json:"controller_population"`
	GamePopulation       int       `json:"game_population"`
	Generations          int       `json:"generations"`
	GameGenerations      int       `json:"game_generations"`
	Seed                 int64     `json:"seed"`
	BestFitness          float64   `json:"best_fitness"`
}

package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"coevolve/internal/model"
)

const SchemaVersion = 1

type Kind string

const (
	KindGenome Kind = "genome"
	KindReport Kind = "fitness_report"
	KindEvolve Kind = "evolve_signal"
	KindGames  Kind = "games"
)

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnsupportedVersion = errors.New("unsupported message version")
	ErrUnexpectedKind     = errors.New("unexpected message kind")
)

// Envelope tags every payload with its kind and schema version.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// GenomeMessage asks the evaluator to run one trial of a controller under
// the currently active games.
type GenomeMessage struct {
	Individual int            `json:"individual"`
	Generation int            `json:"generation"`
	Genes      model.Genome   `json:"genes"`
	Games      []model.Genome `json:"games"`
}

// FitnessReport is one time step of a trial: the fitness contribution per
// game and whether the trial has finished.
type FitnessReport struct {
	Individual int       `json:"individual"`
	Fitness    []float64 `json:"fitness"`
	Done       bool      `json:"done"`
}

// EvolveSignal tells the game side to evolve, carrying the raw controller
// fitness gathered since the last signal as [game][controller].
type EvolveSignal struct {
	Generation int         `json:"generation"`
	Fitness    [][]float64 `json:"fitness"`
}

type GamesMessage struct {
	Generation int            `json:"generation"`
	Games      []model.Genome `json:"games"`
}

func finite(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is not finite", ErrMalformedMessage, i)
		}
	}
	return nil
}

func (m GenomeMessage) Validate() error {
	if m.Individual < 0 {
		return fmt.Errorf("%w: negative individual %d", ErrMalformedMessage, m.Individual)
	}
	if len(m.Genes) == 0 {
		return fmt.Errorf("%w: empty genome", ErrMalformedMessage)
	}
	if err := finite(m.Genes); err != nil {
		return err
	}
	for i, g := range m.Games {
		if err := finite(g); err != nil {
			return fmt.Errorf("game %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the report shape. objectives <= 0 skips the length check.
func (r FitnessReport) Validate(objectives int) error {
	if r.Individual < 0 {
		return fmt.Errorf("%w: negative individual %d", ErrMalformedMessage, r.Individual)
	}
	if objectives > 0 && len(r.Fitness) != objectives {
		return fmt.Errorf("%w: %d fitness values, want %d", ErrMalformedMessage, len(r.Fitness), objectives)
	}
	return finite(r.Fitness)
}

func (s EvolveSignal) Validate() error {
	if s.Generation < 0 {
		return fmt.Errorf("%w: negative generation %d", ErrMalformedMessage, s.Generation)
	}
	width := -1
	for i, row := range s.Fitness {
		if width >= 0 && len(row) != width {
			return fmt.Errorf("%w: ragged fitness row %d", ErrMalformedMessage, i)
		}
		width = len(row)
		if err := finite(row); err != nil {
			return err
		}
	}
	return nil
}

// ReportFromVector decodes the compact float layout used by simple robot
// controllers: per-game fitness followed by a finished flag, or the flag
// alone.
func ReportFromVector(individual int, values []float64, objectives int) (FitnessReport, error) {
	switch len(values) {
	case 1:
		return FitnessReport{Individual: individual, Fitness: make([]float64, objectives), Done: values[0] != 0}, nil
	case objectives + 1:
		fit := make([]float64, objectives)
		copy(fit, values[:objectives])
		r := FitnessReport{Individual: individual, Fitness: fit, Done: values[objectives] != 0}
		return r, r.Validate(objectives)
	default:
		return FitnessReport{}, fmt.Errorf("%w: vector of %d values for %d objectives", ErrMalformedMessage, len(values), objectives)
	}
}

// Encode wraps v in a versioned envelope.
func Encode(kind Kind, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return json.Marshal(Envelope{Kind: kind, Version: SchemaVersion, Payload: payload})
}

// Decode unwraps an envelope of the wanted kind into dst.
func Decode(data []byte, want Kind, dst any) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Version != SchemaVersion {
		return fmt.Errorf("%w: got=%d want=%d", ErrUnsupportedVersion, env.Version, SchemaVersion)
	}
	if env.Kind != want {
		return fmt.Errorf("%w: got=%s want=%s", ErrUnexpectedKind, env.Kind, want)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

package fitness

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"coevolve/internal/model"
)

// GameGenes is the length of a game genome: one constant per fitness term.
const GameGenes = 4

// IRRange is the raw span of a proximity sensor reading.
const IRRange = 4000

var ErrUnknownObjective = errors.New("unknown objective function")

// Sensors is one time step of robot state seen by a game.
type Sensors struct {
	SpeedLeft  float64
	SpeedRight float64
	// MaxIR is the strongest proximity activation in [0, IRRange].
	MaxIR float64
	// Floor is the line reward for the step, 10 when on the black line.
	Floor    float64
	Distance float64
}

// Objective scores one time step under a game's constants.
type Objective interface {
	Name() string
	Step(constants model.Genome, s Sensors) (float64, error)
}

func checkConstants(constants model.Genome) error {
	if len(constants) != GameGenes {
		return fmt.Errorf("game genome has %d constants, want %d", len(constants), GameGenes)
	}
	return nil
}

func proximity(maxIR float64) float64 {
	v, _ := Normalize(0, IRRange, maxIR)
	return v
}

// WeightedSum rewards speed, straight motion, distance from obstacles and
// staying on the line as an additive blend.
type WeightedSum struct{}

func (WeightedSum) Name() string { return "weighted_sum" }

func (WeightedSum) Step(c model.Genome, s Sensors) (float64, error) {
	if err := checkConstants(c); err != nil {
		return 0, err
	}
	mean := (s.SpeedLeft + s.SpeedRight) / 2
	turn := math.Sqrt(math.Abs(s.SpeedLeft - s.SpeedRight))
	return c[0]*mean + (c[1] - turn) + (c[2] - proximity(s.MaxIR)) + c[3]*s.Floor, nil
}

// Product couples the speed term multiplicatively with the straightness and
// obstacle terms, then rewards distance travelled.
type Product struct{}

func (Product) Name() string { return "product" }

func (Product) Step(c model.Genome, s Sensors) (float64, error) {
	if err := checkConstants(c); err != nil {
		return 0, err
	}
	mean := (s.SpeedLeft + s.SpeedRight) / 2
	turn := math.Sqrt(math.Abs(s.SpeedLeft - s.SpeedRight))
	return (c[0]*mean)*(c[1]-turn*(c[2]-proximity(s.MaxIR))) + c[3]*s.Distance, nil
}

var objectives = map[string]Objective{
	WeightedSum{}.Name(): WeightedSum{},
	Product{}.Name():     Product{},
}

// ObjectiveByName resolves a registered objective function.
func ObjectiveByName(name string) (Objective, error) {
	obj, ok := objectives[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObjective, name)
	}
	return obj, nil
}

func ObjectiveNames() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Seed games and the raw-fitness bounds observed for each of them.
var (
	AvoidObstacles = model.Genome{1, 1, 1, 0}
	FollowLine     = model.Genome{1, 0, 0, 1}
	FollowWall     = model.Genome{0, 1, -1, 0}
)

// SeedGames returns n starting games, cycling through the built-ins.
func SeedGames(n int) []model.Genome {
	seeds := []model.Genome{AvoidObstacles, FollowLine, FollowWall}
	out := make([]model.Genome, n)
	for i := range out {
		out[i] = seeds[i%len(seeds)].Clone()
	}
	return out
}

// SeedRanges returns per-objective bounds matching SeedGames order.
func SeedRanges(n int) []Range {
	seeds := []Range{AvoidObstaclesRange, FollowLineRange, FollowWallRange}
	out := make([]Range, n)
	for i := range out {
		out[i] = seeds[i%len(seeds)]
	}
	return out
}

// TrialAccumulator sums per-step scores of every active game over a trial.
type TrialAccumulator struct {
	objective Objective
	games     []model.Genome
	totals    []float64
}

func NewTrialAccumulator(objective Objective, games []model.Genome) *TrialAccumulator {
	copied := make([]model.Genome, len(games))
	for i, g := range games {
		copied[i] = g.Clone()
	}
	return &TrialAccumulator{objective: objective, games: copied, totals: make([]float64, len(games))}
}

// Step scores s under every game and returns the per-game deltas.
func (a *TrialAccumulator) Step(s Sensors) ([]float64, error) {
	deltas := make([]float64, len(a.games))
	for i, g := range a.games {
		v, err := a.objective.Step(g, s)
		if err != nil {
			return nil, fmt.Errorf("game %d: %w", i, err)
		}
		deltas[i] = v
		a.totals[i] += v
	}
	return deltas, nil
}

func (a *TrialAccumulator) Totals() []float64 {
	out := make([]float64, len(a.totals))
	copy(out, a.totals)
	return out
}

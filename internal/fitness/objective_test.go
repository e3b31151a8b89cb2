package fitness

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"coevolve/internal/model"
)

func TestWeightedSumStep(t *testing.T) {
	s := Sensors{SpeedLeft: 100, SpeedRight: 64, MaxIR: 2000, Floor: 10}
	got, err := WeightedSum{}.Step(model.Genome{1, 1, 1, 1}, s)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	want := 82.0 + (1 - 6) + (1 - 0.5) + 10
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestProductStepUsesDistance(t *testing.T) {
	s := Sensors{SpeedLeft: 4, SpeedRight: 4, MaxIR: 0, Distance: 3}
	got, err := Product{}.Step(model.Genome{0.5, 2, 1, 2}, s)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if want := 2.0*2 + 6; math.Abs(got-want) > 1e-9 {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestObjectiveRejectsWrongGameLength(t *testing.T) {
	if _, err := (WeightedSum{}).Step(model.Genome{1, 2}, Sensors{}); err == nil {
		t.Fatal("expected short game genome to fail")
	}
}

func TestObjectiveByName(t *testing.T) {
	obj, err := ObjectiveByName("product")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if obj.Name() != "product" {
		t.Fatalf("name got=%s want=product", obj.Name())
	}
	if _, err := ObjectiveByName("nope"); !errors.Is(err, ErrUnknownObjective) {
		t.Fatalf("expected ErrUnknownObjective, got %v", err)
	}
	if got, want := ObjectiveNames(), []string{"product", "weighted_sum"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("names got=%v want=%v", got, want)
	}
}

func TestTrialAccumulatorSumsPerGame(t *testing.T) {
	games := SeedGames(2)
	acc := NewTrialAccumulator(WeightedSum{}, games)
	// The accumulator holds its own copy of the games.
	games[0][0] = math.NaN()

	s := Sensors{SpeedLeft: 10, SpeedRight: 10, Floor: 10}
	for i := 0; i < 3; i++ {
		if _, err := acc.Step(s); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	totals := acc.Totals()
	if math.Abs(totals[0]-3*(10+1+1)) > 1e-9 || math.Abs(totals[1]-3*(10+0+0+10)) > 1e-9 {
		t.Fatalf("totals got=%v want=[36 60]", totals)
	}
}

package evo

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"coevolve/internal/fitness"
	"coevolve/internal/model"
)

func TestPartitionSplitsEvenly(t *testing.T) {
	groups, err := Partition([]int{5, 4, 3, 2, 1, 0}, 3)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("unexpected group count: %d", len(groups))
	}
	seen := map[int]bool{}
	for _, g := range groups {
		if len(g) != 2 {
			t.Fatalf("unexpected group size: %v", g)
		}
		for _, m := range g {
			if seen[m] {
				t.Fatalf("member %d in two groups", m)
			}
			seen[m] = true
		}
	}
	if len(seen) != 6 {
		t.Fatalf("partition lost members: %v", seen)
	}

	if _, err := Partition([]int{0, 1, 2, 3}, 3); !errors.Is(err, ErrUnevenPartition) {
		t.Fatalf("expected uneven partition error, got %v", err)
	}
}

func vegaInput(n, objectives int, rng *rand.Rand) BreedInput {
	genomes := make([]model.Genome, n)
	for i := range genomes {
		genomes[i] = RandomGenome(rng, 5, GeneBounds{Min: -1, Max: 1})
	}
	rows := make([][]float64, objectives)
	for obj := range rows {
		rows[obj] = make([]float64, n)
		for i := range rows[obj] {
			rows[obj][i] = float64((i+obj)%n) * 10
		}
	}
	return BreedInput{Genomes: genomes, Fitness: rows}
}

func TestVEGABreedWithoutVariationCopiesParents(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	in := vegaInput(9, 3, rng)
	breeder, err := NewVEGABreeder([]fitness.Range{{Min: 0, Max: 100}, {Min: 0, Max: 100}, {Min: 0, Max: 100}})
	if err != nil {
		t.Fatalf("new vega: %v", err)
	}
	params := testParams(9, 3)
	params.CrossoverProbability = 0
	params.MutationProbability = 0

	next, err := breeder.Breed(rng, params, in)
	if err != nil {
		t.Fatalf("breed: %v", err)
	}
	if len(next) != 9 {
		t.Fatalf("unexpected offspring count: %d", len(next))
	}
	for i, child := range next {
		if !containsGenome(in.Genomes, child) {
			t.Fatalf("child %d is not a copy of any parent", i)
		}
		child[0] = 42
	}
	for _, g := range in.Genomes {
		if g[0] == 42 {
			t.Fatal("child aliases parent")
		}
	}
}

func containsGenome(genomes []model.Genome, g model.Genome) bool {
	for _, candidate := range genomes {
		match := len(candidate) == len(g)
		for i := 0; match && i < len(g); i++ {
			match = candidate[i] == g[i]
		}
		if match {
			return true
		}
	}
	return false
}

func TestVEGATracksAbsoluteBestPerObjective(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	breeder, err := NewVEGABreeder([]fitness.Range{{Min: 0, Max: 100}, {Min: 0, Max: 100}})
	if err != nil {
		t.Fatalf("new vega: %v", err)
	}
	params := testParams(4, 2)

	in := vegaInput(4, 2, rng)
	in.Fitness = [][]float64{{10, 80, 20, 30}, {50, 0, 0, 0}}
	if _, err := breeder.Breed(rng, params, in); err != nil {
		t.Fatalf("breed: %v", err)
	}
	st := breeder.Stats()
	if st[0].BestIndex != 1 || st[0].Best != 0.8 || st[0].AbsoluteBest != 0.8 {
		t.Fatalf("unexpected objective 0 stats: %+v", st[0])
	}
	if st[1].BestIndex != 0 || st[1].Worst != 0 {
		t.Fatalf("unexpected objective 1 stats: %+v", st[1])
	}
	if st[0].AbsoluteBestGenome[0] != in.Genomes[1][0] {
		t.Fatal("absolute best genome not captured")
	}

	worse := vegaInput(4, 2, rng)
	worse.Generation = 1
	worse.Fitness = [][]float64{{10, 10, 10, 10}, {90, 0, 0, 0}}
	if _, err := breeder.Breed(rng, params, worse); err != nil {
		t.Fatalf("breed: %v", err)
	}
	st = breeder.Stats()
	if st[0].Best != 0.1 || st[0].AbsoluteBest != 0.8 || st[0].AbsoluteBestGeneration != 0 {
		t.Fatalf("absolute best regressed: %+v", st[0])
	}
	if st[1].AbsoluteBest != 0.9 || st[1].AbsoluteBestGeneration != 1 {
		t.Fatalf("absolute best not updated: %+v", st[1])
	}
}

func TestVEGARejectsUnevenPopulationAndBadRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	breeder, err := NewVEGABreeder([]fitness.Range{{Min: 0, Max: 1}, {Min: 0, Max: 1}, {Min: 0, Max: 1}})
	if err != nil {
		t.Fatalf("new vega: %v", err)
	}
	if _, err := breeder.Breed(rng, testParams(4, 3), vegaInput(4, 3, rng)); !errors.Is(err, ErrUnevenPartition) {
		t.Fatalf("expected uneven partition error, got %v", err)
	}

	if _, err := NewVEGABreeder([]fitness.Range{{Min: 1, Max: 1}}); err == nil {
		t.Fatal("expected invalid range error from constructor")
	}
	bad := &VEGABreeder{Ranges: []fitness.Range{{Min: 2, Max: 1}}}
	_, err = bad.Breed(rng, testParams(2, 1), vegaInput(2, 1, rng))
	var rangeErr *fitness.InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidRangeError, got %v", err)
	}
}

func TestVEGAPopulationAdvances(t *testing.T) {
	breeder, err := NewVEGABreeder(fitness.SeedRanges(3))
	if err != nil {
		t.Fatalf("new vega: %v", err)
	}
	params := DefaultControllerParams(6, 3)
	pop, err := NewPopulation(params, rand.New(rand.NewSource(5)), Options{Breeder: breeder})
	if err != nil {
		t.Fatalf("new population: %v", err)
	}
	for gen := 0; gen < 3; gen++ {
		for i := 0; i < pop.Size(); i++ {
			g, _ := pop.Genome(i)
			if err := pop.SetFitness(i, []float64{g[0] * 500, g[1] * 500, g[2] * 500}); err != nil {
				t.Fatalf("set fitness: %v", err)
			}
		}
		if _, err := pop.AdvanceGeneration(context.Background()); err != nil {
			t.Fatalf("advance %d: %v", gen, err)
		}
	}
	if pop.Generation() != 3 {
		t.Fatalf("unexpected generation: %d", pop.Generation())
	}
	if got := len(breeder.Stats()); got != 3 {
		t.Fatalf("unexpected stats length: %d", got)
	}
}

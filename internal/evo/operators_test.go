package evo

import (
	"math"
	"math/rand"
	"testing"

	"coevolve/internal/model"
)

func TestMutateGeneStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := BoxMullerMutator{Sigma: 5}
	bounds := GeneBounds{Min: -1, Max: 1}
	for i := 0; i < 5000; i++ {
		got := m.MutateGene(rng, 0.9, bounds)
		if got < bounds.Min || got > bounds.Max {
			t.Fatalf("mutated gene out of bounds: %v", got)
		}
	}
}

func TestMutateGeneIsGaussianAroundGene(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := BoxMullerMutator{Sigma: 0.2}
	bounds := GeneBounds{Min: -10, Max: 10}
	const draws = 20000
	var sum, sumSq float64
	for i := 0; i < draws; i++ {
		d := m.MutateGene(rng, 1, bounds) - 1
		sum += d
		sumSq += d * d
	}
	mean := sum / draws
	std := math.Sqrt(sumSq/draws - mean*mean)
	if math.Abs(mean) > 0.01 {
		t.Fatalf("unexpected mean offset: got=%v want~0", mean)
	}
	if math.Abs(std-0.2) > 0.01 {
		t.Fatalf("unexpected std: got=%v want~0.2", std)
	}
}

func TestMutateRespectsProbability(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := BoxMullerMutator{Sigma: 0.2}
	bounds := GeneBounds{Min: -1, Max: 1}

	genome := model.Genome{0.1, 0.2, 0.3}
	if n := m.Mutate(rng, genome, 0, bounds); n != 0 {
		t.Fatalf("unexpected mutations with zero probability: %d", n)
	}
	if genome[0] != 0.1 || genome[1] != 0.2 || genome[2] != 0.3 {
		t.Fatalf("genome changed with zero probability: %v", genome)
	}
	if n := m.Mutate(rng, genome, 1, bounds); n != len(genome) {
		t.Fatalf("unexpected mutation count: got=%d want=%d", n, len(genome))
	}
}

func TestCrossoverAtTakesPrefixFromFirstParent(t *testing.T) {
	a := model.Genome{1, 2, 3, 4}
	b := model.Genome{5, 6, 7, 8}

	child, err := CrossoverAt(a, b, 1)
	if err != nil {
		t.Fatalf("crossover: %v", err)
	}
	want := model.Genome{1, 2, 7, 8}
	for i := range want {
		if child[i] != want[i] {
			t.Fatalf("unexpected child: got=%v want=%v", child, want)
		}
	}

	last, err := CrossoverAt(a, b, len(a)-1)
	if err != nil {
		t.Fatalf("crossover: %v", err)
	}
	for i := range a {
		if last[i] != a[i] {
			t.Fatalf("cut at last index should copy first parent: got=%v", last)
		}
	}
	last[0] = 99
	if a[0] != 1 {
		t.Fatal("child aliases parent genes")
	}

	if _, err := CrossoverAt(a, model.Genome{1}, 0); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestSinglePointAlwaysKeepsFirstGeneOfFirstParent(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := model.Genome{1, 1, 1, 1, 1}
	b := model.Genome{0, 0, 0, 0, 0}
	for i := 0; i < 200; i++ {
		child, err := SinglePoint(rng, a, b)
		if err != nil {
			t.Fatalf("single point: %v", err)
		}
		if child[0] != 1 {
			t.Fatalf("first gene must come from first parent: %v", child)
		}
		seenB := false
		for _, g := range child {
			if g == 0 {
				seenB = true
			} else if seenB {
				t.Fatalf("child is not a single-point split: %v", child)
			}
		}
	}
}

func TestRandomGenomeWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g := RandomGenome(rng, 50, GeneBounds{Min: -1, Max: 1})
	if len(g) != 50 {
		t.Fatalf("unexpected genome length: %d", len(g))
	}
	for _, v := range g {
		if v < -1 || v > 1 {
			t.Fatalf("gene out of bounds: %v", v)
		}
	}
}

package evo

import "sort"

// Ranked pairs a fitness value with the individual's slot index.
type Ranked struct {
	Fitness float64
	Index   int
}

// Rank orders individuals by fitness descending. Equal fitness keeps the
// lower original index first, so ranking is deterministic.
func Rank(fitness []float64) []Ranked {
	ranked := make([]Ranked, len(fitness))
	for i, f := range fitness {
		ranked[i] = Ranked{Fitness: f, Index: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

package coevo

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"coevolve/internal/evo"
	"coevolve/internal/model"
)

// Evaluator runs one full trial of a controller and returns its total
// fitness per game.
type Evaluator func(ctx context.Context, genes model.Genome, games []model.Genome) ([]float64, error)

// BatchEvaluate scores every controller concurrently with at most workers
// trials in flight. Results are written back by slot index once all trials
// finish; on any failure the generation is abandoned.
func BatchEvaluate(ctx context.Context, pop *evo.Population, games []model.Genome, eval Evaluator, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	genomes := pop.Genomes()
	results := make([][]float64, len(genomes))

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(workers)
	for i, genes := range genomes {
		p.Go(func(ctx context.Context) error {
			scores, err := eval(ctx, genes, cloneGenomes(games))
			if err != nil {
				return fmt.Errorf("evaluate individual %d: %w", i, err)
			}
			results[i] = scores
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		pop.Abandon()
		return err
	}

	for i, scores := range results {
		if err := pop.SetFitness(i, scores); err != nil {
			pop.Abandon()
			return err
		}
	}
	return nil
}

package scape

import (
	"context"
	"errors"
	"fmt"

	"coevolve/internal/channel"
)

// Serve runs the evaluator side of a pipe: every genome received is run for
// one trial and each step is reported back. It returns nil once the pipe is
// closed or ctx is cancelled.
func Serve(ctx context.Context, s SteppedScape, robot *channel.RobotEnd) error {
	for {
		msg, err := robot.ReceiveGenome(ctx)
		if err != nil {
			if errors.Is(err, channel.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		err = s.RunTrial(ctx, msg.Genes, msg.Games, func(deltas []float64, done bool) error {
			return robot.SendReport(ctx, channel.FitnessReport{
				Individual: msg.Individual,
				Fitness:    deltas,
				Done:       done,
			})
		})
		if err != nil {
			if errors.Is(err, channel.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("trial for individual %d: %w", msg.Individual, err)
		}
	}
}

package channel

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"coevolve/internal/model"
)

func TestPipeRoundTrip(t *testing.T) {
	pipe := NewPipe(PipeOptions{Objectives: 2})
	defer pipe.Close()
	ctx := context.Background()
	engine, robot := pipe.Engine(), pipe.Robot()

	msg := GenomeMessage{Individual: 1, Genes: model.Genome{0.5}}
	if err := engine.Send(ctx, msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := robot.ReceiveGenome(ctx)
	if err != nil {
		t.Fatalf("receive genome: %v", err)
	}
	if !reflect.DeepEqual(got.Genes, msg.Genes) {
		t.Fatalf("genes got=%v want=%v", got.Genes, msg.Genes)
	}

	if err := robot.SendReport(ctx, FitnessReport{Individual: 1, Fitness: []float64{1, 2}, Done: true}); err != nil {
		t.Fatalf("send report: %v", err)
	}
	report, err := engine.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !report.Done || !reflect.DeepEqual(report.Fitness, []float64{1, 2}) {
		t.Fatalf("report got=%+v want done with [1 2]", report)
	}
}

func TestPipeDropsMalformedReports(t *testing.T) {
	var drops []error
	pipe := NewPipe(PipeOptions{Objectives: 2, OnDrop: func(err error) { drops = append(drops, err) }})
	defer pipe.Close()
	ctx := context.Background()
	engine, robot := pipe.Engine(), pipe.Robot()

	if err := robot.SendRaw(ctx, []byte("garbage")); err != nil {
		t.Fatalf("send raw: %v", err)
	}
	for _, r := range []FitnessReport{
		{Individual: 0, Fitness: []float64{1}},
		{Individual: 0, Fitness: []float64{3, 4}},
	} {
		if err := robot.SendReport(ctx, r); err != nil {
			t.Fatalf("send report: %v", err)
		}
	}

	report, err := engine.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !reflect.DeepEqual(report.Fitness, []float64{3, 4}) {
		t.Fatalf("fitness got=%v want=[3 4]", report.Fitness)
	}
	if pipe.Dropped() != 2 || len(drops) != 2 {
		t.Fatalf("dropped got=%d callbacks=%d want 2", pipe.Dropped(), len(drops))
	}
	for _, d := range drops {
		if !errors.Is(d, ErrMalformedMessage) {
			t.Fatalf("drop reason got=%v want ErrMalformedMessage", d)
		}
	}
}

func TestPipeHonoursCancellationAndClose(t *testing.T) {
	pipe := NewPipe(PipeOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pipe.Engine().Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	pipe.Close()
	pipe.Close()
	if _, err := pipe.Robot().ReceiveGenome(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := pipe.Engine().Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("engine: expected ErrClosed, got %v", err)
	}
}

func TestEngineSendRejectsInvalidGenome(t *testing.T) {
	pipe := NewPipe(PipeOptions{})
	defer pipe.Close()
	if err := pipe.Engine().Send(context.Background(), GenomeMessage{}); !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

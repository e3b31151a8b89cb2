// Package metrics exposes run progress as Prometheus collectors.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"coevolve/internal/model"
)

const namespace = "coevolve"

// Recorder is a stats sink that mirrors the latest generation statistics
// into gauges on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	best        *prometheus.GaugeVec
	average     *prometheus.GaugeVec
	worst       *prometheus.GaugeVec
	generations *prometheus.CounterVec
	bestGenomes *prometheus.CounterVec
	dropped     prometheus.Counter
}

func NewRecorder() *Recorder {
	labels := []string{"population", "objective"}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		best: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness",
			Help:      "Best raw fitness of the last finished generation.",
		}, labels),
		average: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_fitness",
			Help:      "Average raw fitness of the last finished generation.",
		}, labels),
		worst: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worst_fitness",
			Help:      "Worst raw fitness of the last finished generation.",
		}, labels),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Finished generations per population.",
		}, []string{"population"}),
		bestGenomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "best_genomes_total",
			Help:      "Best genomes recorded per population.",
		}, []string{"population"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Malformed channel messages that were dropped.",
		}),
	}
	r.registry.MustRegister(r.best, r.average, r.worst, r.generations, r.bestGenomes, r.dropped)
	return r
}

// Registry returns the registry to serve with promhttp.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) RecordGeneration(_ context.Context, rec model.GenerationRecord) error {
	obj := strconv.Itoa(rec.Objective)
	r.best.WithLabelValues(rec.Population, obj).Set(rec.Best)
	r.average.WithLabelValues(rec.Population, obj).Set(rec.Average)
	r.worst.WithLabelValues(rec.Population, obj).Set(rec.Worst)
	// One record per objective; count the generation once.
	if rec.Objective == 0 {
		r.generations.WithLabelValues(rec.Population).Inc()
	}
	return nil
}

func (r *Recorder) RecordBest(_ context.Context, rec model.BestGenomeRecord) error {
	r.bestGenomes.WithLabelValues(rec.Population).Inc()
	return nil
}

// RecordDropped counts one dropped channel message.
func (r *Recorder) RecordDropped(error) {
	r.dropped.Inc()
}

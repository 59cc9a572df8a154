// Package metrics exposes playground activity as Prometheus collectors fed by lifecycle hooks.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/svoctor/lisper-go/pkg/domain"
)

const namespace = "lisper"

// Outcome label values.
const (
	OutcomeCommitted = "committed"
	OutcomeDiscarded = "discarded"
)

// Collectors holds the playground metrics.
type Collectors struct {
	SourceUpdates      prometheus.Counter
	Evaluations        *prometheus.CounterVec
	EvaluationFailures *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	InFlight           prometheus.Gauge
	LoaderPhase        *prometheus.GaugeVec
	LoaderDuration     prometheus.Gauge
	ThemeToggles       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		SourceUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_updates_total",
			Help:      "Total number of source edits submitted for evaluation.",
		}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Completed evaluations by whether their output was committed.",
		}, []string{"outcome"}),
		EvaluationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_failures_total",
			Help:      "Evaluations that could not produce evaluator output.",
		}, []string{"kind"}),
		EvaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time from the start of an evaluation to its commit decision.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"outcome"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "evaluations_in_flight",
			Help:      "Evaluations started and not yet completed.",
		}),
		LoaderPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "evaluator_loader_phase",
			Help:      "Current phase of the evaluator loader (1 for the active phase).",
		}, []string{"provider", "phase"}),
		LoaderDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "evaluator_load_duration_seconds",
			Help:      "Time the evaluator took to load or fail.",
		}),
		ThemeToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "theme_toggles_total",
			Help:      "Theme toggles by resulting theme.",
		}, []string{"theme"}),
	}

	reg.MustRegister(
		c.SourceUpdates,
		c.Evaluations,
		c.EvaluationFailures,
		c.EvaluationDuration,
		c.InFlight,
		c.LoaderPhase,
		c.LoaderDuration,
		c.ThemeToggles,
	)
	return c
}

// Hooks returns lifecycle hooks that record into the collectors.
func (c *Collectors) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSourceUpdate: func(ctx context.Context, e *domain.EvaluationEvent) {
			c.SourceUpdates.Inc()
		},
		OnEvaluationStart: func(ctx context.Context, e *domain.EvaluationEvent) {
			c.InFlight.Inc()
		},
		OnEvaluationCommit: func(ctx context.Context, e *domain.EvaluationEvent) {
			c.complete(e, OutcomeCommitted)
		},
		OnEvaluationDiscard: func(ctx context.Context, e *domain.EvaluationEvent) {
			c.complete(e, OutcomeDiscarded)
		},
		OnLoaderTransition: func(ctx context.Context, e *domain.LoaderEvent) {
			for _, phase := range []domain.LoaderPhase{
				domain.LoaderUnloaded, domain.LoaderLoading, domain.LoaderLoaded, domain.LoaderFailed,
			} {
				v := 0.0
				if phase == e.Status.Phase {
					v = 1
				}
				c.LoaderPhase.WithLabelValues(e.Provider, string(phase)).Set(v)
			}
			if e.Status.Terminal() {
				c.LoaderDuration.Set(e.Duration.Seconds())
			}
		},
		OnThemeToggle: func(ctx context.Context, e *domain.ThemeEvent) {
			c.ThemeToggles.WithLabelValues(string(e.Theme)).Inc()
		},
	}
}

func (c *Collectors) complete(e *domain.EvaluationEvent, outcome string) {
	c.InFlight.Dec()
	c.Evaluations.WithLabelValues(outcome).Inc()
	c.EvaluationDuration.WithLabelValues(outcome).Observe(e.Duration.Seconds())
	switch {
	case e.Unavailable:
		c.EvaluationFailures.WithLabelValues("unavailable").Inc()
	case e.IsError:
		c.EvaluationFailures.WithLabelValues("error").Inc()
	}
}

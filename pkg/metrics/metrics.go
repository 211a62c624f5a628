// Package metrics counts what a batch run did: cases, repairs and Dice scores.
//
// A Collector owns its own registry so several runs in one process never
// share state. All methods are safe on a nil Collector, which records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dicomvolume"

// Case outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeUnpaired = "unpaired"
)

// Collector holds the run metrics.
type Collector struct {
	registry    *prometheus.Registry
	cases       *prometheus.CounterVec
	corrections *prometheus.CounterVec
	volumes     *prometheus.CounterVec
	dice        prometheus.Histogram
}

// New returns a collector with every metric registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cases_total",
				Help:      "Compared cases by outcome",
			},
			[]string{"outcome"},
		),
		corrections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "corrections_total",
				Help:      "Repairs applied while assembling volumes",
			},
			[]string{"kind"},
		),
		volumes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "volumes_assembled_total",
				Help:      "Volumes assembled from slice directories",
			},
			[]string{"kind"},
		),
		dice: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dice_coefficient",
			Help:      "Dice coefficient of compared label pairs",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}
	c.registry.MustRegister(c.cases, c.corrections, c.volumes, c.dice)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// CaseDone counts a finished case.
func (c *Collector) CaseDone(outcome string) {
	if c == nil {
		return
	}
	c.cases.WithLabelValues(outcome).Inc()
}

// Corrections counts each applied repair by kind.
func (c *Collector) Corrections(kinds ...string) {
	if c == nil {
		return
	}
	for _, k := range kinds {
		c.corrections.WithLabelValues(k).Inc()
	}
}

// Assembled counts an assembled volume.
func (c *Collector) Assembled(isLabel bool) {
	if c == nil {
		return
	}
	kind := "image"
	if isLabel {
		kind = "label"
	}
	c.volumes.WithLabelValues(kind).Inc()
}

// ObserveDice records a Dice coefficient.
func (c *Collector) ObserveDice(d float64) {
	if c == nil {
		return
	}
	c.dice.Observe(d)
}

// WriteTextfile writes the metrics in the text exposition format, for the
// node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

// Package metrics records statistics about a GADDAG build in Prometheus
// form. A build is a batch job, so the metrics live on their own registry
// and are written out once as a textfile for node_exporter to pick up.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Build holds the metrics of one build run.
type Build struct {
	Registry *prometheus.Registry

	// Lines read from the word list
	LinesTotal prometheus.Counter

	// Words handed to the builder, including duplicates
	WordsAccepted prometheus.Counter

	// Lines skipped, labeled by reason (too_short, invalid)
	LinesSkipped *prometheus.CounterVec

	DuplicateWords prometheus.Counter

	Nodes         prometheus.Gauge
	Edges         prometheus.Gauge
	ArtifactBytes prometheus.Gauge

	// Duration of each phase: ingest, save
	PhaseDuration *prometheus.HistogramVec
}

// NewBuild creates the metrics on a fresh registry.
func NewBuild() *Build {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Build{
		Registry: reg,
		LinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gaddag_build_lines_total",
			Help: "Total number of word list lines read",
		}),
		WordsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gaddag_build_words_accepted_total",
			Help: "Total number of words inserted, including duplicates",
		}),
		LinesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gaddag_build_lines_skipped_total",
				Help: "Total number of word list lines skipped by reason",
			},
			[]string{"reason"},
		),
		DuplicateWords: factory.NewCounter(prometheus.CounterOpts{
			Name: "gaddag_build_duplicate_words_total",
			Help: "Total number of accepted words that were already present",
		}),
		Nodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gaddag_nodes",
			Help: "Number of nodes in the finished GADDAG",
		}),
		Edges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gaddag_edges",
			Help: "Number of edges in the finished GADDAG",
		}),
		ArtifactBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gaddag_artifact_bytes",
			Help: "Size of the written GADDAG file in bytes",
		}),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gaddag_build_phase_duration_seconds",
				Help:    "Duration of build phases in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"phase"},
		),
	}
}

// WriteFile writes the current values to path in the Prometheus text
// format. The file is replaced atomically.
func (b *Build) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, b.Registry)
}

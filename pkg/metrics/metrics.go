// Package metrics defines the prometheus instruments for the pipeline
// and the backend API. Registration happens at package init via
// promauto, so importing the package is enough.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TabsProcessed counts processing attempts by outcome: processed,
	// cooldown, low_quality, stale, error.
	TabsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabsense_tabs_processed_total",
			Help: "Total number of tab processing attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// EnrichmentTotal counts enrichment results by source path.
	EnrichmentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabsense_enrichment_total",
			Help: "Total number of enrichment results by source.",
		},
		[]string{"source"},
	)

	// ForwardFailures counts failed best-effort pushes to the backend.
	ForwardFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabsense_forward_failures_total",
			Help: "Total number of failed backend sync attempts.",
		},
	)

	// HTTPRequestsTotal counts backend API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabsense_http_requests_total",
			Help: "Total number of HTTP requests served by the backend.",
		},
		[]string{"method", "path", "status"},
	)

	// GraphNodes tracks the current knowledge-graph node count.
	GraphNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabsense_graph_nodes",
			Help: "Current number of nodes in the knowledge graph.",
		},
	)
)

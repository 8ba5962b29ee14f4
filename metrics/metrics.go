// Package metrics exposes Prometheus metrics for the provisioning flow on a
// dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	flowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_gateway",
		Name:      "provisioning_flows_total",
		Help:      "Provisioning flows by terminal outcome.",
	}, []string{"outcome"})

	flowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "account_gateway",
		Name:      "provisioning_flow_duration_seconds",
		Help:      "Wall-clock duration of provisioning flows.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	serviceInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "account_gateway",
		Name:      "service_info",
		Help:      "Static service identity.",
	}, []string{"service"})
)

// RecordFlowOutcome increments the flow counter for a terminal outcome
// ("done" or the failure kind).
func RecordFlowOutcome(outcome string, duration time.Duration) {
	flowsTotal.WithLabelValues(outcome).Inc()
	flowDuration.Observe(duration.Seconds())
}

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr.
func New(service, addr string) (*MetricsServer, error) {
	serviceInfo.WithLabelValues(service).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

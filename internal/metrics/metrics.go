package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var Registry = prometheus.NewRegistry()

var (
	Dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digestledge_dispatch_total",
		Help: "Dispatched requests by route and outcome",
	}, []string{"route", "outcome"})

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "digestledge_dispatch_duration_seconds",
		Help:    "Time spent serving a dispatched request",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 600, 1200},
	}, []string{"route"})

	InstancesLaunched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "digestledge_instances_launched_total",
		Help: "Ephemeral instances launched",
	})

	InstancesTerminated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digestledge_instances_terminated_total",
		Help: "Termination requests issued, by reason",
	}, []string{"reason"})

	HealthCheckAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digestledge_healthcheck_attempts_total",
		Help: "Health probes sent to ephemeral instances, by outcome",
	}, []string{"outcome"})

	DeliveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digestledge_delivery_attempts_total",
		Help: "Work deliveries, by outcome",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(Dispatches, DispatchDuration, InstancesLaunched,
		InstancesTerminated, HealthCheckAttempts, DeliveryAttempts)
}

// Init exposes the registry on /metrics. It blocks, so it is meant to run on its own goroutine.
func Init(port int, logger *zap.Logger) {
	logger.Info("Metrics enabled.", zap.Int("port", port))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true}))
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

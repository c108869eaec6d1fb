package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the pipeline.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	stageDuration  *prometheus.HistogramVec
	solverOutcomes *prometheus.CounterVec
	jobsFinished   *prometheus.CounterVec
	conflictsOpen  prometheus.Gauge
	swapsResolved  prometheus.Counter
	defectSignals  prometheus.Counter
}

// NewMetricsService registers the engine collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	solverOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_cluster_outcomes_total",
		Help: "Cluster solve outcomes by strategy and status",
	}, []string{"strategy", "status"})

	jobsFinished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_jobs_finished_total",
		Help: "Generation jobs by terminal status",
	}, []string{"status"})

	conflictsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schedule_conflicts_open",
		Help: "Residual conflicts after the most recent repair pass",
	})

	swapsResolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "repair_swaps_resolved_total",
		Help: "Oracle-confirmed repair swaps",
	})

	defectSignals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solver_defect_signals_total",
		Help: "Instant-infeasible results on large domains",
	})

	registry.MustRegister(stageDuration, solverOutcomes, jobsFinished, conflictsOpen, swapsResolved, defectSignals)

	return &MetricsService{
		registry:       registry,
		handler:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		stageDuration:  stageDuration,
		solverOutcomes: solverOutcomes,
		jobsFinished:   jobsFinished,
		conflictsOpen:  conflictsOpen,
		swapsResolved:  swapsResolved,
		defectSignals:  defectSignals,
	}
}

// Handler exposes the scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveStage records a stage duration.
func (s *MetricsService) ObserveStage(stage string, d time.Duration) {
	if s == nil {
		return
	}
	s.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSolve tallies one cluster solve outcome.
func (s *MetricsService) RecordSolve(strategy, status string, defect bool) {
	if s == nil {
		return
	}
	s.solverOutcomes.WithLabelValues(strategy, status).Inc()
	if defect {
		s.defectSignals.Inc()
	}
}

// RecordJob tallies a terminal job status.
func (s *MetricsService) RecordJob(status string) {
	if s == nil {
		return
	}
	s.jobsFinished.WithLabelValues(status).Inc()
}

// RecordRepair publishes repair outcomes.
func (s *MetricsService) RecordRepair(resolved, openConflicts int) {
	if s == nil {
		return
	}
	s.swapsResolved.Add(float64(resolved))
	s.conflictsOpen.Set(float64(openConflicts))
}

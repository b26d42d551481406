// Package metrics provides Prometheus metrics for runtime-http-bench.
//
// Everything is registered on an injected registry so a run can be scraped
// live through Server or dumped once with WriteTextfile.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Spawn failure reasons used as the "reason" label.
const (
	ReasonStart         = "start_error"
	ReasonPrematureExit = "premature_exit"
	ReasonTimeout       = "readiness_timeout"
)

// Collector owns the harness's metrics.
type Collector struct {
	info            *prometheus.GaugeVec
	runsTotal       *prometheus.CounterVec
	spawnsTotal     *prometheus.CounterVec
	spawnFailures   *prometheus.CounterVec
	readySeconds    *prometheus.HistogramVec
	exitsTotal      *prometheus.CounterVec
	liveProcesses   prometheus.Gauge
	loadToolSeconds prometheus.Histogram
	meanSeconds     *prometheus.GaugeVec

	startTime time.Time

	mu            sync.Mutex
	runs          map[string]int64
	spawns        int64
	spawnFailedBy map[string]int64
	readyTimes    []time.Duration
}

// CollectorConfig holds static labels for the info metric.
type CollectorConfig struct {
	Version  string
	Runtimes []string
}

// NewCollector registers on the default registerer.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "runtime_bench_info",
				Help: "Information about the harness (value always 1)",
			},
			[]string{"version", "runtimes"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_bench_runs_total",
				Help: "Benchmark runs by outcome",
			},
			[]string{"outcome"},
		),
		spawnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_bench_spawns_total",
				Help: "Runtime server processes started",
			},
			[]string{"runtime"},
		),
		spawnFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_bench_spawn_failures_total",
				Help: "Runtime servers that never became ready",
			},
			[]string{"runtime", "reason"},
		),
		readySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runtime_bench_ready_seconds",
				Help:    "Time from spawn until the server accepted a connection",
				Buckets: []float64{0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10},
			},
			[]string{"runtime"},
		),
		exitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_bench_runtime_exits_total",
				Help: "Runtime process exits by category (success, error, signal)",
			},
			[]string{"runtime", "category"},
		),
		liveProcesses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "runtime_bench_live_processes",
				Help: "Runtime server processes currently tracked",
			},
		),
		loadToolSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "runtime_bench_load_tool_duration_seconds",
				Help:    "Wall time of the load tool per run",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		meanSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "runtime_bench_mean_latency_seconds",
				Help: "Mean request latency reported by the load tool",
			},
			[]string{"benchmark", "command"},
		),
		startTime:     time.Now(),
		runs:          make(map[string]int64),
		spawnFailedBy: make(map[string]int64),
	}

	registry.MustRegister(
		c.info,
		c.runsTotal,
		c.spawnsTotal,
		c.spawnFailures,
		c.readySeconds,
		c.exitsTotal,
		c.liveProcesses,
		c.loadToolSeconds,
		c.meanSeconds,
	)

	c.info.WithLabelValues(cfg.Version, strings.Join(cfg.Runtimes, ",")).Set(1)
	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// RunFinished records a run's outcome.
func (c *Collector) RunFinished(outcome string) {
	c.runsTotal.WithLabelValues(outcome).Inc()

	c.mu.Lock()
	c.runs[outcome]++
	c.mu.Unlock()
}

// RuntimeSpawned records a process that survived its grace period.
func (c *Collector) RuntimeSpawned(runtime string) {
	c.spawnsTotal.WithLabelValues(runtime).Inc()

	c.mu.Lock()
	c.spawns++
	c.mu.Unlock()
}

// SpawnFailed records a runtime that never became ready.
func (c *Collector) SpawnFailed(runtime, reason string) {
	c.spawnFailures.WithLabelValues(runtime, reason).Inc()

	c.mu.Lock()
	c.spawnFailedBy[reason]++
	c.mu.Unlock()
}

// RuntimeReady records how long runtime took to accept connections.
func (c *Collector) RuntimeReady(runtime string, d time.Duration) {
	c.readySeconds.WithLabelValues(runtime).Observe(d.Seconds())

	c.mu.Lock()
	c.readyTimes = append(c.readyTimes, d)
	c.mu.Unlock()
}

// RecordExit records a runtime process exit.
func (c *Collector) RecordExit(runtime string, exitCode int) {
	category := "error"
	if exitCode == 0 {
		category = "success"
	} else if exitCode > 128 {
		category = "signal"
	}
	c.exitsTotal.WithLabelValues(runtime, category).Inc()
}

// SetLiveProcesses updates the tracked process gauge.
func (c *Collector) SetLiveProcesses(n int) {
	c.liveProcesses.Set(float64(n))
}

// LoadToolFinished records the load tool's wall time.
func (c *Collector) LoadToolFinished(d time.Duration) {
	c.loadToolSeconds.Observe(d.Seconds())
}

// RecordMean publishes a command's mean latency for a benchmark.
func (c *Collector) RecordMean(benchmark, command string, seconds float64) {
	c.meanSeconds.WithLabelValues(benchmark, command).Set(seconds)
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for the exit summary.
type Summary struct {
	Duration      time.Duration
	Runs          map[string]int64
	Spawns        int64
	SpawnFailures map[string]int64
	ReadyP50      time.Duration
	ReadyMax      time.Duration
}

// GenerateSummary creates a summary of the session.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:      time.Since(c.startTime),
		Runs:          make(map[string]int64, len(c.runs)),
		Spawns:        c.spawns,
		SpawnFailures: make(map[string]int64, len(c.spawnFailedBy)),
	}
	for k, v := range c.runs {
		s.Runs[k] = v
	}
	for k, v := range c.spawnFailedBy {
		s.SpawnFailures[k] = v
	}

	if len(c.readyTimes) > 0 {
		sorted := make([]time.Duration, len(c.readyTimes))
		copy(sorted, c.readyTimes)
		sortDurations(sorted)
		s.ReadyP50 = percentile(sorted, 0.50)
		s.ReadyMax = sorted[len(sorted)-1]
	}
	return s
}

// sortDurations sorts in place (insertion sort; the slice is one entry per spawn).
func sortDurations(d []time.Duration) {
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && d[j] < d[j-1]; j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}

// percentile returns the p-th percentile of a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

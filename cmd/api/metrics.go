package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/novassure/graph-fraud-engine/internal/orchestrator"
	"github.com/novassure/graph-fraud-engine/internal/performance"
)

// Metric definitions for the fraud engine's control plane. These
// mirror what PerformanceMonitor and the metadata counters already
// track in memory; the poller in registerControlMetrics is what turns
// that in-process state into something a Prometheus scrape sees.

var (
	generatorRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gfe",
			Subsystem: "generator",
			Name:      "running",
			Help:      "1 if the transaction generator is running, 0 otherwise",
		},
	)

	generatorTargetTps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gfe",
			Subsystem: "generator",
			Name:      "target_tps",
			Help:      "Configured target transactions per second",
		},
	)

	generatorActualTps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gfe",
			Subsystem: "generator",
			Name:      "actual_tps",
			Help:      "Observed transactions per second over the last minute",
		},
	)

	engineQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gfe",
			Subsystem: "engine",
			Name:      "queue_size",
			Help:      "Number of rule-evaluation tasks queued but not yet picked up by a worker",
		},
	)

	transactionLatency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gfe",
			Subsystem: "transaction",
			Name:      "latency_seconds",
			Help:      "End-to-end transaction latency, by aggregate statistic",
		},
		[]string{"stat"},
	)

	transactionSuccessRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gfe",
			Subsystem: "transaction",
			Name:      "success_rate",
			Help:      "Fraction of transactions whose edge creation and fraud annotation writes succeeded",
		},
	)

	ruleLatency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gfe",
			Subsystem: "rule",
			Name:      "latency_seconds",
			Help:      "Rule evaluation latency, by rule and aggregate statistic",
		},
		[]string{"rule", "stat"},
	)

	ruleEnabled = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gfe",
			Subsystem: "rule",
			Name:      "enabled",
			Help:      "1 if the named rule is currently enabled, 0 otherwise",
		},
		[]string{"rule"},
	)

	fraudFlagged = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gfe",
			Subsystem: "account",
			Name:      "flagged_total",
			Help:      "Cumulative count of account endpoints auto-flagged as fraudulent",
		},
	)
)

const metricsPollInterval = 5 * time.Second

// registerControlMetrics starts a background poller that copies the
// orchestrator's in-memory stats into the process's Prometheus
// registry. Scrapes read whatever the last poll captured rather than
// touching the monitor or graph directly, so a slow scraper can never
// add latency to the hot path.
func registerControlMetrics(orch *orchestrator.Orchestrator) {
	go func() {
		ticker := time.NewTicker(metricsPollInterval)
		defer ticker.Stop()
		for range ticker.C {
			pollControlMetrics(orch)
		}
	}()
}

func pollControlMetrics(orch *orchestrator.Orchestrator) {
	status := orch.Status()
	if status.Running {
		generatorRunning.Set(1)
	} else {
		generatorRunning.Set(0)
	}
	generatorTargetTps.Set(float64(status.TargetTps))
	generatorActualTps.Set(status.ActualTps)
	engineQueueSize.Set(float64(status.QueueSize))

	stats := orch.Stats(1)
	setLatencyGauges(transactionLatency, nil, stats.Transaction)
	transactionSuccessRate.Set(stats.Transaction.SuccessRate)

	for _, state := range orch.ListRules() {
		enabled := 0.0
		if state.Enabled {
			enabled = 1.0
		}
		ruleEnabled.WithLabelValues(state.Name).Set(enabled)

		if rs, ok := stats.Rules[state.Name]; ok {
			labels := prometheus.Labels{"rule": state.Name}
			setLatencyGauges(ruleLatency, labels, rs)
		}
	}

	pollCtx, cancel := context.WithTimeout(context.Background(), metricsPollInterval)
	defer cancel()
	if counters, err := orch.AccountCounters(pollCtx); err == nil {
		fraudFlagged.Set(float64(counters["flagged"]))
	}
}

// setLatencyGauges fans one Stats value out across the avg/max/min
// labels of a GaugeVec, optionally with extra fixed labels (e.g. which
// rule it belongs to).
func setLatencyGauges(vec *prometheus.GaugeVec, fixed prometheus.Labels, stats performance.Stats) {
	for stat, d := range map[string]time.Duration{
		"avg": stats.Avg,
		"max": stats.Max,
		"min": stats.Min,
	} {
		labels := prometheus.Labels{"stat": stat}
		for k, v := range fixed {
			labels[k] = v
		}
		vec.With(labels).Set(d.Seconds())
	}
}

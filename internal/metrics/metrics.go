// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the collectors the cleaner exports.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	ItemsRemoved     *prometheus.CounterVec
	ItemsWarned      *prometheus.CounterVec
	ImportAttempts   *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	RemovedToday     *prometheus.GaugeVec
	SchedulerRunning prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeparr_runs_total",
			Help: "Cleaner runs by instance and terminal status.",
		}, []string{"instance", "status"}),
		ItemsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeparr_items_removed_total",
			Help: "Queue items removed, by instance and rule.",
		}, []string{"instance", "rule"}),
		ItemsWarned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeparr_items_warned_total",
			Help: "Queue items given a strike instead of removal, by instance.",
		}, []string{"instance"}),
		ImportAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeparr_import_attempts_total",
			Help: "Auto-import attempts dispatched, by instance and outcome.",
		}, []string{"instance", "outcome"}),
		DispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeparr_dispatch_failures_total",
			Help: "Failed removal/import dispatch calls, by instance.",
		}, []string{"instance"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sweeparr_run_duration_seconds",
			Help:    "Wall time of cleaner runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"instance"}),
		RemovedToday: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sweeparr_items_removed_today",
			Help: "Queue items removed since local midnight, by instance.",
		}, []string{"instance"}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sweeparr_scheduler_running",
			Help: "Whether the global scheduler is accepting automatic ticks.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal,
		m.ItemsRemoved,
		m.ItemsWarned,
		m.ImportAttempts,
		m.DispatchFailures,
		m.RunDuration,
		m.RemovedToday,
		m.SchedulerRunning,
	)

	return m
}

// ResetDailyCounters zeroes the per-day gauges. Called at local midnight.
func (m *Metrics) ResetDailyCounters() {
	m.RemovedToday.Reset()
}

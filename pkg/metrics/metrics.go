package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type AppMetrics struct {
	storageDuration    *prometheus.HistogramVec
	storageOperations  *prometheus.CounterVec
	todoOperations     *prometheus.CounterVec
	snapshotsEmitted   prometheus.Counter
	snapshotsDropped   prometheus.Counter
	activeWatchers     prometheus.Gauge
	storeNotifications *prometheus.CounterVec
	todosTotal         prometheus.Gauge
	todosRemaining     prometheus.Gauge
	memoryUsage        prometheus.Gauge
	goroutines         prometheus.Gauge
}

func NewAppMetrics(registry prometheus.Registerer) *AppMetrics {
	metrics := &AppMetrics{
		storageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_operation_duration_seconds",
				Help:    "Duration of storage backend operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		storageOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operations_total",
				Help: "Total number of storage backend operations",
			},
			[]string{"operation", "backend", "status"},
		),
		todoOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todo_operations_total",
				Help: "Total number of todo operations",
			},
			[]string{"operation"},
		),
		snapshotsEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshots_emitted_total",
				Help: "Total number of collection snapshots broadcast to watchers",
			},
		),
		snapshotsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshots_dropped_total",
				Help: "Total number of snapshots dropped on slow watcher channels",
			},
		),
		activeWatchers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "watchers_active",
				Help: "Number of active repository watchers",
			},
		),
		storeNotifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_notifications_total",
				Help: "Total number of store subscriber notifications",
			},
			[]string{"store"},
		),
		todosTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "todos_total",
				Help: "Current size of the todo collection",
			},
		),
		todosRemaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "todos_remaining",
				Help: "Current number of uncompleted todos",
			},
		),
		memoryUsage: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_usage_bytes",
				Help: "Memory usage in bytes",
			},
		),
		goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
	}

	registry.MustRegister(
		metrics.storageDuration,
		metrics.storageOperations,
		metrics.todoOperations,
		metrics.snapshotsEmitted,
		metrics.snapshotsDropped,
		metrics.activeWatchers,
		metrics.storeNotifications,
		metrics.todosTotal,
		metrics.todosRemaining,
		metrics.memoryUsage,
		metrics.goroutines,
	)

	return metrics
}

func (m *AppMetrics) RecordStorageOperation(ctx context.Context, operation, backend string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storageDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
	m.storageOperations.WithLabelValues(operation, backend, status).Inc()
}

func (m *AppMetrics) RecordTodoOperation(ctx context.Context, operation string) {
	m.todoOperations.WithLabelValues(operation).Inc()
}

func (m *AppMetrics) RecordSnapshot(ctx context.Context, total, remaining int) {
	m.snapshotsEmitted.Inc()
	m.todosTotal.Set(float64(total))
	m.todosRemaining.Set(float64(remaining))
}

func (m *AppMetrics) RecordSnapshotDropped(ctx context.Context) {
	m.snapshotsDropped.Inc()
}

func (m *AppMetrics) IncrementWatchers(ctx context.Context) {
	m.activeWatchers.Inc()
}

func (m *AppMetrics) DecrementWatchers(ctx context.Context) {
	m.activeWatchers.Dec()
}

func (m *AppMetrics) RecordStoreNotification(ctx context.Context, store string) {
	m.storeNotifications.WithLabelValues(store).Inc()
}

func (m *AppMetrics) StartSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				var memStats runtime.MemStats
				runtime.ReadMemStats(&memStats)
				m.memoryUsage.Set(float64(memStats.Alloc))

				m.goroutines.Set(float64(runtime.NumGoroutine()))

			case <-ctx.Done():
				return
			}
		}
	}()
}

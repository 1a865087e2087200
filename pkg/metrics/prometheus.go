// Package metrics provides Prometheus metrics for the promille status tracker.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Status tracking
	eventsRecorded *prometheus.CounterVec
	eventsRejected *prometheus.CounterVec
	statusCleared  prometheus.Counter
	expirations    *prometheus.CounterVec
	sweeps         prometheus.Counter
	sweepDuration  prometheus.Histogram
	trackedMembers prometheus.Gauge
	activeMembers  prometheus.Gauge

	// Platform side effects
	renames       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	publishes     *prometheus.CounterVec

	// Persistence and ledger
	saves     *prometheus.CounterVec
	rollovers *prometheus.CounterVec

	// Task queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueRejected prometheus.Counter
	duplicates    prometheus.Counter
	taskLatency   *prometheus.HistogramVec
	taskErrors    *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Process
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPauseTime    prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "promille",
		subsystem:        "status",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all metric definitions
	auto := promauto.With(m.registry)
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: m.customLabels,
		}, labels)
	}
	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: m.customLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: m.customLabels,
		})
	}

	m.eventsRecorded = counterVec("events_recorded_total", "Consumption events applied, by category", "category")
	m.eventsRejected = counterVec("events_rejected_total", "Consumption events rejected before mutation, by reason", "reason")
	m.statusCleared = counter("status_cleared_total", "Statuses cleared on request")
	m.expirations = counterVec("expirations_total", "Category counts zeroed by the sweep, by category", "category")
	m.sweeps = counter("sweeps_total", "Sweep ticks executed")
	m.sweepDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sweep_duration_milliseconds",
		Help:        "Time spent in one sweep tick in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
	m.trackedMembers = gauge("tracked_members", "Members with a status record")
	m.activeMembers = gauge("active_members", "Members with at least one positive count")

	m.renames = counterVec("renames_total", "Display name rename attempts, by result", "result")
	m.notifications = counterVec("notifications_total", "Owner fallback notifications, by result", "result")
	m.publishes = counterVec("leaderboard_publishes_total", "Leaderboard publish and refresh attempts, by result", "result")

	m.saves = counterVec("saves_total", "Store saves, by result", "result")
	m.rollovers = counterVec("rollovers_total", "Monthly ledger exports, by result", "result")

	m.queueSize = gauge("task_queue_size", "Tasks waiting in the serial queue")
	m.queueCapacity = gauge("task_queue_capacity", "Capacity of the serial task queue")
	m.queueRejected = counter("task_queue_rejected_total", "Tasks rejected because the queue was full or closed")
	m.duplicates = counter("events_duplicate_total", "Platform events dropped as redeliveries")
	m.taskLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "task_duration_milliseconds",
		Help:        "Task execution time in milliseconds, by task name",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"task"})
	m.taskErrors = counterVec("task_errors_total", "Tasks that returned an error, by task name", "task")

	m.httpRequests = counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.memoryUsage = gauge("system_memory_bytes", "Heap bytes allocated")
	m.goroutineCount = gauge("system_goroutines", "Number of goroutines")
	m.gcPauseTime = gauge("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// RecordEvent counts an applied consumption event.
func RecordEvent(category string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.eventsRecorded.WithLabelValues(category).Inc()
}

// RecordEventRejected counts a rejected consumption event.
func RecordEventRejected(reason string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordStatusCleared counts a cleared status.
func RecordStatusCleared() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.statusCleared.Inc()
}

// RecordExpiration counts a category zeroed by the sweep.
func RecordExpiration(category string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.expirations.WithLabelValues(category).Inc()
}

// RecordSweep records one sweep tick and its duration.
func RecordSweep(durationMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.sweeps.Inc()
	globalManager.sweepDuration.Observe(durationMs)
}

// UpdateMembers sets the tracked and active member gauges.
func UpdateMembers(tracked, active int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.trackedMembers.Set(float64(tracked))
	globalManager.activeMembers.Set(float64(active))
}

// RecordRename counts a rename attempt by result (ok, refused, error).
func RecordRename(result string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.renames.WithLabelValues(result).Inc()
}

// RecordNotification counts an owner notification by result.
func RecordNotification(result string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.notifications.WithLabelValues(result).Inc()
}

// RecordPublish counts a leaderboard publish or refresh by result.
func RecordPublish(result string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.publishes.WithLabelValues(result).Inc()
}

// RecordSave counts a store save by result (ok, error).
func RecordSave(result string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.saves.WithLabelValues(result).Inc()
}

// RecordRollover counts a monthly export by result (exported, failed).
func RecordRollover(result string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.rollovers.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the current task queue length.
func UpdateQueueSize(size int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the task queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a task that could not be enqueued.
func RecordQueueRejected() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueRejected.Inc()
}

// RecordDuplicate counts a dropped platform redelivery.
func RecordDuplicate() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.duplicates.Inc()
}

// RecordTask records a task's duration and whether it failed.
func RecordTask(name string, durationMs float64, failed bool) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.taskLatency.WithLabelValues(name).Observe(durationMs)
	if failed {
		globalManager.taskErrors.WithLabelValues(name).Inc()
	}
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.memoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.goroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime sets the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.gcPauseTime.Set(pauseMs)
}

// Configure applies runtime options to the global manager. Only
// WithMetricsEnabled and WithRefreshInterval matter here: metric names and
// labels are fixed once registered.
func Configure(opts ...Option) {
	for _, opt := range opts {
		opt(globalManager)
	}
}

// Enabled reports whether the package recorders are on.
func Enabled() bool {
	return globalManager.enabled.Load()
}

// RefreshInterval returns the period for gauge updaters.
func RefreshInterval() time.Duration {
	return time.Duration(globalManager.refreshInterval.Load())
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

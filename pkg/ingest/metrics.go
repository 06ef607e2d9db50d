package ingest

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig настраивает Prometheus метрики.
type MetricsConfig struct {
	// Namespace - пространство имен метрик (по умолчанию "ingest").
	Namespace string

	// ConstLabels добавляются ко всем метрикам.
	ConstLabels prometheus.Labels

	// Buckets - границы гистограммы длительности запросов.
	Buckets []float64

	// Registry - регистр, в котором создаются метрики.
	// По умолчанию prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption настраивает MetricsConfig.
type MetricsOption func(*MetricsConfig)

// WithNamespace задает пространство имен метрик.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels задает постоянные метки.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets задает границы гистограммы.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry задает регистр метрик.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics содержит метрики сервера и клиента.
// Все методы безопасны для nil получателя - метрики просто не собираются.
type Metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	activeConnections   prometheus.Gauge
	acceptErrors        prometheus.Counter
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	storeRecords        prometheus.GaugeFunc

	clientRequests   *prometheus.CounterVec
	clientReconnects *prometheus.CounterVec

	// store читается gauge функцией в момент сбора
	store atomic.Pointer[Store]
}

// NewMetrics создает и регистрирует метрики.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "ingest",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	m := &Metrics{
		connectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "connections_accepted_total",
			Help:        "Total number of accepted TCP connections",
			ConstLabels: config.ConstLabels,
		}),
		connectionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "connections_rejected_total",
			Help:        "Total number of connections closed because of the connection limit",
			ConstLabels: config.ConstLabels,
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "active_connections",
			Help:        "Number of connection handlers not yet finished",
			ConstLabels: config.ConstLabels,
		}),
		acceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "accept_errors_total",
			Help:        "Total number of failed accept calls",
			ConstLabels: config.ConstLabels,
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "requests_total",
			Help:        "Total number of handled requests by method, path and status",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   "server",
			Name:        "request_duration_seconds",
			Help:        "Request handling duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method"}),
		clientRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "client",
			Name:        "requests_total",
			Help:        "Total number of client requests by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),
		clientReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   "client",
			Name:        "reconnect_attempts_total",
			Help:        "Total number of client reconnect attempts by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),
	}

	m.storeRecords = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Subsystem:   "store",
		Name:        "records",
		Help:        "Number of records held by the store",
		ConstLabels: config.ConstLabels,
	}, func() float64 {
		if store := m.store.Load(); store != nil {
			return float64(store.Count())
		}
		return 0
	})

	return m
}

func (m *Metrics) connectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
	m.activeConnections.Inc()
}

func (m *Metrics) connectionFinished() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) connectionRejected() {
	if m == nil {
		return
	}
	m.connectionsRejected.Inc()
}

func (m *Metrics) acceptFailed() {
	if m == nil {
		return
	}
	m.acceptErrors.Inc()
}

// requestHandled учитывает обработанный запрос. path схлопывается в "other"
// для незарегистрированных путей, чтобы не раздувать кардинальность.
func (m *Metrics) requestHandled(method Method, path string, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method.String(), path, status).Inc()
	m.requestDuration.WithLabelValues(method.String()).Observe(elapsed.Seconds())
}

// trackStore привязывает gauge записей к хранилищу. Значение читается
// из Store.Count при каждом сборе, поэтому учитывает и Clear.
func (m *Metrics) trackStore(store *Store) {
	if m == nil {
		return
	}
	m.store.Store(store)
}

func (m *Metrics) clientRequest(result string) {
	if m == nil {
		return
	}
	m.clientRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) reconnectAttempt(result string) {
	if m == nil {
		return
	}
	m.clientReconnects.WithLabelValues(result).Inc()
}

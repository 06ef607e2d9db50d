package ingest

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(WithRegistry(registry), WithNamespace("test"))

	server := startTestServer(t, Config{Metrics: metrics})

	assert.Equal(t, ResponseDataCreated, roundTrip(t, server.GetAddress(), "POST /data one"))
	assert.Equal(t, ResponseStatusOK, roundTrip(t, server.GetAddress(), "GET /status"))
	assert.Equal(t, ResponseNotFound, roundTrip(t, server.GetAddress(), "GET /missing"))

	// Метрики запроса пишутся после отправки ответа
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("GET", "other", "404")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("POST", PathData, "201")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("GET", PathStatus, "200")))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.connectionsAccepted))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.storeRecords))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.activeConnections) == 0
	}, 2*time.Second, 10*time.Millisecond)

	expected := `
# HELP test_store_records Number of records held by the store
# TYPE test_store_records gauge
test_store_records 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_store_records"))
}

// TestStoreRecordsGaugeFollowsStore проверяет, что gauge записей отражает
// текущее состояние хранилища, включая очистку.
func TestStoreRecordsGaugeFollowsStore(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(WithRegistry(registry))
	server := startTestServer(t, Config{Metrics: metrics})

	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.storeRecords))

	assert.Equal(t, ResponseDataCreated, roundTrip(t, server.GetAddress(), "POST /data first"))
	assert.Equal(t, ResponseDataCreated, roundTrip(t, server.GetAddress(), "POST /data second"))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.storeRecords))

	assert.Equal(t, 2, server.Store().Clear())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.storeRecords))

	expected := `
# HELP ingest_store_records Number of records held by the store
# TYPE ingest_store_records gauge
ingest_store_records 0
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "ingest_store_records"))

	server.Store().Add("direct")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.storeRecords))
}

func TestServerMetricsRejected(t *testing.T) {
	metrics := NewMetrics(WithRegistry(prometheus.NewRegistry()))
	server := startTestServer(t, Config{Metrics: metrics, MaxConnections: 1, ReadTimeout: -1})

	idle := dialIdle(t, server.GetAddress())
	defer idle.Close()
	require.Eventually(t, func() bool {
		return server.GetConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	extra := dialIdle(t, server.GetAddress())
	defer extra.Close()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.connectionsRejected) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func dialIdle(t *testing.T, address string) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", address)
	require.NoError(t, err)
	return conn
}

func TestClientMetrics(t *testing.T) {
	metrics := NewMetrics(WithRegistry(prometheus.NewRegistry()))
	server := startTestServer(t, Config{})

	client := NewClient(server.GetAddress(), ClientConfig{
		Metrics:            metrics,
		ReconnectEnabled:   true,
		ReconnectBaseDelay: 5 * time.Millisecond,
	})
	require.NoError(t, client.Connect(context.Background()))

	_, err := client.SendRequest(context.Background(), MethodGet, PathStatus, "")
	require.NoError(t, err)
	_, err = client.SendRequest(context.Background(), MethodGet, PathStatus, "")
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.clientRequests.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.clientReconnects.WithLabelValues("ok")))

	client.SetReconnectEnabled(false)
	_, err = client.SendRequest(context.Background(), MethodGet, PathStatus, "")
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.clientRequests.WithLabelValues("error")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.connectionAccepted()
		metrics.connectionFinished()
		metrics.connectionRejected()
		metrics.acceptFailed()
		metrics.requestHandled(MethodGet, PathStatus, "200", time.Millisecond)
		metrics.trackStore(NewStore(nil, LogLevelInfo))
		metrics.clientRequest("ok")
		metrics.reconnectAttempt("ok")
	})
}

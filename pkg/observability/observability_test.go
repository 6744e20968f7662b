package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(logrus.DebugLevel, "json", &buf)

	logger.WithField("project_id", "p1").Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "p1", entry["project_id"])
}

func TestLoggerFromContext(t *testing.T) {
	assert.NotNil(t, LoggerFromContext(context.Background()))

	var buf bytes.Buffer
	scoped := NewLogger(logrus.InfoLevel, "json", &buf).WithField("request_id", "r1")
	ctx := WithLogger(context.Background(), scoped)

	LoggerFromContext(ctx).Info("scoped")
	assert.Contains(t, buf.String(), `"request_id":"r1"`)
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(logrus.InfoLevel, "json", &buf)

	func() {
		defer RecoverPanic(logger, "test")
		panic("boom")
	}()

	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "boom")
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("x"), "panic: x")
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/projects/{projectId}/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects/abc/tasks", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/projects/{projectId}/tasks", "201")))
}

func TestHealthChecker(t *testing.T) {
	t.Run("healthy with db and redis", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()

		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		status := NewHealthChecker(db, rdb, "test").Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Contains(t, status.Dependencies, "database")
		assert.Contains(t, status.Dependencies, "redis")
	})

	t.Run("database down is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		checker := NewHealthChecker(db, nil, "test")
		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("redis down is degraded", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()
		mr.Close()

		status := NewHealthChecker(nil, rdb, "test").Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
	})

	t.Run("failing extra check is degraded", func(t *testing.T) {
		status := NewHealthChecker(nil, nil, "test").
			WithCheck("object_storage", func(context.Context) error { return errors.New("no bucket") }).
			Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, "no bucket", status.Dependencies["object_storage"].Message)
	})

	t.Run("liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthChecker(nil, nil, "test").Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestShutdownManager_ReverseOrderAndErrors(t *testing.T) {
	sm := NewShutdownManager(logrus.New(), 0)

	var order []string
	sm.Register("db", func(context.Context) error {
		order = append(order, "db")
		return nil
	})
	sm.Register("server", func(context.Context) error {
		order = append(order, "server")
		return errors.New("still draining")
	})

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server: still draining")
	assert.Equal(t, []string{"server", "db"}, order)
}

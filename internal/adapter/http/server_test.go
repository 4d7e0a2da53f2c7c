package http_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/couchcryptid/wsjtx-influx-etl/internal/adapter/http"
	"github.com/couchcryptid/wsjtx-influx-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func get(t *testing.T, srv http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, slog.Default())
	assert.Equal(t, http.StatusOK, get(t, srv, "/healthz").Code)
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ready", nil, http.StatusOK},
		{"awaiting status", errors.New("no station status received yet"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httpadapter.NewServer(":0", &mockReadiness{err: tt.err}, slog.Default())
			assert.Equal(t, tt.want, get(t, srv, "/readyz").Code)
		})
	}
}

func TestReadyzFollowsPipeline(t *testing.T) {
	var p pipeline.Pipeline
	srv := httpadapter.NewServer(":0", &p, slog.Default())
	require.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/readyz").Code)

	p.MarkReady()
	assert.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, slog.Default())

	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, slog.Default())

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/status").Code)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

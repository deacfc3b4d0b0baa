package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "github.com/GriffinCanCode/api-diagnostics/internal/api/http"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/index"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/config"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/storage/logstore"
)

type fixture struct {
	writer *logstore.Store
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "api.log")

	writer, err := logstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })

	reader, err := logstore.Open(path, logstore.ReadOnly())
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })

	ix := index.New(reader)
	require.NoError(t, ix.Rebuild(context.Background()))

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	return &fixture{writer: writer, server: New(cfg, reader, ix, monitoring.NewMetrics(), nil)}
}

func (f *fixture) append(t *testing.T, recs ...logrecord.Record) {
	t.Helper()
	for _, r := range recs {
		_, err := f.writer.Append(r)
		require.NoError(t, err)
	}
}

func (f *fixture) get(t *testing.T, target string) (int, apihttp.LogsResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

	var resp apihttp.LogsResponse
	if w.Code == http.StatusOK {
		require.NoError(t, sonic.ConfigStd.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func userNotFound(at time.Time) []logrecord.Record {
	return []logrecord.Record{
		logrecord.New(logrecord.Info, "abc12345", "GET", "/api/users/7", 0).At(at),
		logrecord.New(logrecord.Error, "abc12345", "GET", "/api/users/7", 404).At(at.Add(time.Millisecond)).WithError("User not found"),
		logrecord.New(logrecord.Error, "def67890", "POST", "/api/orders", 500).At(at.Add(2 * time.Millisecond)).WithError("boom"),
	}
}

func TestCorrelationSeesRecordsAppendedAfterStart(t *testing.T) {
	f := newFixture(t)

	code, resp := f.get(t, "/v1/logs/abc12345")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Records)

	f.append(t, userNotFound(time.Now().Add(-time.Minute))...)

	code, resp = f.get(t, "/v1/logs/abc12345")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "abc12345", resp.CorrelationID)
	assert.Equal(t, 404, resp.Records[1].StatusCode)
	require.NotNil(t, resp.Records[1].ErrorMessage)
	assert.Equal(t, "User not found", *resp.Records[1].ErrorMessage)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	f.append(t, userNotFound(time.Now().Add(-time.Minute))...)

	tests := []struct {
		target string
		code   int
		count  int
	}{
		{"/v1/logs?status_low=400&status_high=499", http.StatusOK, 1},
		{"/v1/logs?status_low=400", http.StatusOK, 2},
		{"/v1/logs?status_low=500&status_high=400", http.StatusBadRequest, 0},
		{"/v1/logs?status_low=abc", http.StatusBadRequest, 0},
		{"/v1/errors/4xx", http.StatusOK, 1},
		{"/v1/errors/5xx", http.StatusOK, 1},
		{"/v1/errors/3xx", http.StatusBadRequest, 0},
		{"/v1/recent?within=1h", http.StatusOK, 3},
		{"/v1/recent?within=1s", http.StatusOK, 0},
		{"/v1/recent?within=soon", http.StatusBadRequest, 0},
		{"/v1/query?filter=" + escape("status_code >= 500"), http.StatusOK, 1},
		{"/v1/query?filter=" + escape("method == 'GET' && has_error"), http.StatusOK, 1},
		{"/v1/query?filter=" + escape("status_code +"), http.StatusBadRequest, 0},
		{"/v1/query", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			code, resp := f.get(t, tt.target)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.count, resp.Count)
		})
	}
}

func TestHealthStatsAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.append(t, userNotFound(time.Now())...)

	code, _ := f.get(t, "/v1/stats")
	assert.Equal(t, http.StatusOK, code)

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	var stats apihttp.StatsResponse
	require.NoError(t, sonic.ConfigStd.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 2, stats.Correlations)

	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "apidiag_")
}

func TestServeStopsOnCancel(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", ln.Addr()))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func escape(s string) string { return url.QueryEscape(s) }

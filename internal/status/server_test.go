package status

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/pointzerver/internal/events"
	"github.com/mattjoyce/pointzerver/internal/receiver"
	"github.com/mattjoyce/pointzerver/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	snap receiver.Snapshot
}

func (f fakeStats) Stats() receiver.Snapshot { return f.snap }

type fakeReports struct {
	reports   []storage.Report
	err       error
	lastLimit int
}

func (f *fakeReports) Recent(_ context.Context, limit int) ([]storage.Report, error) {
	f.lastLimit = limit
	return f.reports, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity() Identity {
	return Identity{
		Hostname:       "desk",
		IP:             "192.168.1.20",
		InstanceID:     "c0ffee",
		Version:        "test",
		CommandPort:    45455,
		DiscoveryPort:  45454,
		AppDownloadURL: "https://example.com/app",
		InputBackend:   "log",
	}
}

func TestHandleStatus(t *testing.T) {
	stats := fakeStats{snap: receiver.Snapshot{Received: 7, Dispatched: 6, DecodeErrors: 1}}
	srv := New(Config{}, testIdentity(), stats, nil, nil, testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "desk", body["hostname"])
	assert.Equal(t, "192.168.1.20", body["ip"])
	assert.EqualValues(t, 45454, body["discovery_port"])
	assert.EqualValues(t, 45455, body["command_port"])
	assert.Equal(t, "https://example.com/app", body["app_download_url"])

	recv, ok := body["receiver"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 7, recv["received"])
	assert.EqualValues(t, 1, recv["decode_errors"])
}

func TestHandleHealthz(t *testing.T) {
	srv := New(Config{}, testIdentity(), fakeStats{}, nil, nil, testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCORSPreflight(t *testing.T) {
	srv := New(Config{}, testIdentity(), fakeStats{}, nil, nil, testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/status", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleReports(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reports := &fakeReports{reports: []storage.Report{{ID: 1, At: at, Commands: 100, MeanUS: 250}}}
	srv := New(Config{}, testIdentity(), fakeStats{}, reports, nil, testLogger())

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantLimit int
	}{
		{name: "default limit", target: "/reports", wantCode: http.StatusOK, wantLimit: defaultReportLimit},
		{name: "explicit limit", target: "/reports?limit=5", wantCode: http.StatusOK, wantLimit: 5},
		{name: "clamped limit", target: "/reports?limit=100000", wantCode: http.StatusOK, wantLimit: maxReportLimit},
		{name: "bad limit", target: "/reports?limit=abc", wantCode: http.StatusBadRequest},
		{name: "zero limit", target: "/reports?limit=0", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports.lastLimit = 0
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantLimit, reports.lastLimit)
			var resp ReportsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Len(t, resp.Reports, 1)
			assert.EqualValues(t, 250, resp.Reports[0].MeanUS)
		})
	}
}

func TestHandleReportsStoreError(t *testing.T) {
	reports := &fakeReports{err: errors.New("disk gone")}
	srv := New(Config{}, testIdentity(), fakeStats{}, reports, nil, testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to list batch reports")
}

func TestHandleReportsWithoutStore(t *testing.T) {
	srv := New(Config{}, testIdentity(), fakeStats{}, nil, nil, testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reports":[]}`, rec.Body.String())
}

func TestEventsStreamReplaysAndFollows(t *testing.T) {
	hub := events.NewHub(10)
	hub.Publish(events.TypeCommandSlow, map[string]any{"total_us": 12000})

	srv := New(Config{}, testIdentity(), fakeStats{}, nil, hub, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readSSEFrame(t, reader)
	assert.Contains(t, first, "id: 1")
	assert.Contains(t, first, "event: command.slow")
	assert.Contains(t, first, `"total_us":12000`)

	hub.Publish(events.TypeDispatchFailed, map[string]any{"error": "boom"})
	second := readSSEFrame(t, reader)
	assert.Contains(t, second, "id: 2")
	assert.Contains(t, second, "event: command.dispatch_failed")
}

func TestEventsLastEventID(t *testing.T) {
	hub := events.NewHub(10)
	hub.Publish(events.TypeCommandSlow, nil)
	hub.Publish(events.TypeBatchReport, nil)

	srv := New(Config{}, testIdentity(), fakeStats{}, nil, hub, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	frame := readSSEFrame(t, bufio.NewReader(resp.Body))
	assert.Contains(t, frame, "id: 2")
	assert.Contains(t, frame, "event: receiver.batch")
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(Config{}, testIdentity(), fakeStats{}, nil, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartFailsWhenAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	srv := New(Config{Listen: ln.Addr().String()}, testIdentity(), fakeStats{}, nil, nil, testLogger())
	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status listener")
}

func readSSEFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			if b.Len() == 0 {
				continue
			}
			return b.String()
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		b.WriteString(line)
	}
}

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/mattjoyce/pointzerver/internal/config"
	"github.com/mattjoyce/pointzerver/internal/netutil"
	"github.com/mattjoyce/pointzerver/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

// isolateConfigDiscovery makes config discovery find nothing.
func isolateConfigDiscovery(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("POINTZERVER_CONFIG_DIR", filepath.Join(dir, "missing"))
	t.Setenv("HOME", dir)
	t.Chdir(dir)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(body), 0o644))
	return dir
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-03-04T05:06:07Z")

	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"version", "--json"}) })
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-03-04T05:06:07Z", info.BuildTime)
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"bogus"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: bogus")
}

func TestRunCLIHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"system", "help"}) })
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "start, status, watch")
}

func TestStatusURL(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{"127.0.0.1:45460", "http://127.0.0.1:45460"},
		{"0.0.0.0:9000", "http://127.0.0.1:9000"},
		{":9000", "http://127.0.0.1:9000"},
		{"[::1]:9000", "http://[::1]:9000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusURL(tt.listen), tt.listen)
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	isolateConfigDiscovery(t)

	cfg, resolved, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.Equal(t, config.DefaultCommandPort, cfg.Command.Port)
}

func TestRunSendDeliversDatagram(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	port := pc.LocalAddr().(*net.UDPAddr).Port

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"send", "--port", strconv.Itoa(port), `{"type":"move","dx":3,"dy":-4}`})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "sent move")

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"move","dx":3,"dy":-4}`, string(buf[:n]))
}

func TestRunSendRejectsInvalidCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"send", `{"type":"move","button":"left"}`})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Invalid command")
}

func TestConfigLockThenCheckDetectsTampering(t *testing.T) {
	dir := writeConfig(t, "command:\n  port: 46000\n")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "lock", "--config", dir})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, config.ChecksumFileName)

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", dir})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "command port 46000")

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte("command:\n  port: 46001\n"), 0o644))
	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", dir})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "hash mismatch")
}

func TestConfigLockRefusesInvalidConfig(t *testing.T) {
	dir := writeConfig(t, "input:\n  backend: telepathy\n")

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "lock", "--config", dir})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "input.backend")
	assert.NoFileExists(t, filepath.Join(dir, config.ChecksumFileName))
}

func TestConfigShowJSON(t *testing.T) {
	dir := writeConfig(t, "discovery:\n  port: 47000\n")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show", "--json", "--config", dir})
	})
	require.Equal(t, 0, code)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(stdout), &cfg))
	assert.Equal(t, 47000, cfg.Discovery.Port)
	assert.Equal(t, config.DefaultCommandPort, cfg.Command.Port)
}

func testServiceConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Command.Port = 0
	cfg.Discovery.Enabled = false
	cfg.Status.Listen = "127.0.0.1:0"
	cfg.State.Path = filepath.Join(t.TempDir(), "pointzerver.db")
	return cfg
}

func TestServiceServesCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := startService(ctx, testServiceConfig(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	conn, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(svc.CommandPort())))
	require.NoError(t, err)
	defer conn.Close()

	for _, payload := range []string{
		`{"type":"move","dx":1,"dy":1}`,
		`not json`,
		`{"type":"key_tap","key":"Return"}`,
	} {
		_, err := conn.Write([]byte(payload))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		s := svc.receiver.Stats()
		return s.Received == 3 && s.Dispatched == 2 && s.DecodeErrors == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NotNil(t, svc.status)
	rec := httptest.NewRecorder()
	svc.status.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st status.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, svc.CommandPort(), st.CommandPort)
	assert.Equal(t, "log", st.InputBackend)
	assert.EqualValues(t, 2, st.Receiver.Dispatched)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceBindFailureIsFatal(t *testing.T) {
	busy, err := net.ListenPacket("udp4", "0.0.0.0:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })

	cfg := testServiceConfig(t)
	cfg.Command.Port = netutil.Port(busy)

	_, err = startService(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command listener")
}

func TestServiceDiscoveryFailureIsNotFatal(t *testing.T) {
	busy, err := net.ListenPacket("udp4", "0.0.0.0:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })

	cfg := testServiceConfig(t)
	cfg.Discovery.Enabled = true
	cfg.Discovery.Port = netutil.Port(busy)
	cfg.Discovery.Interval = 0

	svc, err := startService(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	assert.Nil(t, svc.beacon)
	assert.NotZero(t, svc.CommandPort())
}

func TestServiceAnswersDiscoveryProbe(t *testing.T) {
	// Reserve a free port for the beacon, then release it.
	reserve, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	discoveryPort := netutil.Port(reserve)
	require.NoError(t, reserve.Close())

	cfg := testServiceConfig(t)
	cfg.Discovery.Enabled = true
	cfg.Discovery.Port = discoveryPort
	cfg.Discovery.Interval = 0
	cfg.Status.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, err := startService(ctx, cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	require.NotNil(t, svc.beacon)

	go func() { _ = svc.Run(ctx) }()

	anns, err := probe(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(discoveryPort)), time.Second)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, svc.CommandPort(), anns[0].CommandPort)
	assert.Equal(t, "pointzerver", anns[0].Service)
}

func TestConfigCheckStrictFailsOnWarnings(t *testing.T) {
	dir := writeConfig(t, "input:\n  backend: log\n")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", dir})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "WARN  [input] input.backend")

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--strict", "--config", dir})
	})
	assert.Equal(t, 1, code)
}

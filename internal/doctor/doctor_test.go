package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/powerctl/internal/audio"
	"github.com/rbright/powerctl/internal/config"
	"github.com/rbright/powerctl/internal/protocol"
	"github.com/rbright/powerctl/internal/server"
)

func stubProbes() probes {
	return probes{
		rfcommAvailable: func() bool { return true },
		health: func(context.Context, string) (healthpb.HealthCheckResponse_ServingStatus, error) {
			return healthpb.HealthCheckResponse_SERVING, nil
		},
		ping: func(context.Context, string, int) (protocol.Liveness, error) {
			return protocol.Liveness{Status: protocol.LivenessOK, Hostname: "DESKTOP-A"}, nil
		},
		sink: func(context.Context) (audio.Selection, error) {
			return audio.Selection{Sink: audio.Sink{ID: "alsa_output.speakers", Default: true}}, nil
		},
	}
}

func findCheck(t *testing.T, report Report, name string) Check {
	t.Helper()
	for _, check := range report.Checks {
		if check.Name == name {
			return check
		}
	}
	t.Fatalf("check %q not in report:\n%s", name, report.String())
	return Check{}
}

func hasCheck(report Report, name string) bool {
	for _, check := range report.Checks {
		if check.Name == name {
			return true
		}
	}
	return false
}

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "poweroff_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-poweroff")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-poweroff", "--now"}, "poweroff_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "poweroff_cmd command is available")
}

func TestRunDefaultConfigChecks(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Key = ""

	report := run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg}, stubProbes())

	require.Contains(t, findCheck(t, report, "config").Message, "not found")
	require.False(t, findCheck(t, report, "server.key").Pass)
	require.True(t, findCheck(t, report, "audio.sink").Pass)
	require.False(t, hasCheck(report, "rfcomm"))
	require.False(t, hasCheck(report, "server.health"))
	require.False(t, hasCheck(report, "client.host"))
	require.False(t, report.OK())
}

func TestRunSerialChecks(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Key = "abc"
	cfg.Client.Mode = config.ModeSerial
	cfg.Client.Peer = "not-a-mac"
	cfg.Indicator.SoundEnable = false

	p := stubProbes()
	p.rfcommAvailable = func() bool { return false }
	report := run(context.Background(), config.Loaded{Path: "/tmp/c.jsonc", Config: cfg, Exists: true}, p)

	require.False(t, findCheck(t, report, "rfcomm").Pass)
	require.False(t, findCheck(t, report, "client.peer").Pass)
	require.False(t, hasCheck(report, "audio.sink"))

	cfg.Client.Peer = "AA:BB:CC:DD:EE:FF/5"
	report = run(context.Background(), config.Loaded{Config: cfg, Exists: true}, stubProbes())
	peer := findCheck(t, report, "client.peer")
	require.True(t, peer.Pass)
	require.Equal(t, "AA:BB:CC:DD:EE:FF/5", peer.Message)
}

func TestRunHostAndHealthChecks(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Key = "abc"
	cfg.Server.GRPCHealth = "127.0.0.1:1"
	cfg.Client.Host = "192.168.1.50"

	p := stubProbes()
	p.health = func(context.Context, string) (healthpb.HealthCheckResponse_ServingStatus, error) {
		return healthpb.HealthCheckResponse_NOT_SERVING, nil
	}
	p.ping = func(context.Context, string, int) (protocol.Liveness, error) {
		return protocol.Liveness{}, fmt.Errorf("%w: connection refused", protocol.ErrUnreachable)
	}
	report := run(context.Background(), config.Loaded{Config: cfg, Exists: true}, p)

	health := findCheck(t, report, "server.health")
	require.False(t, health.Pass)
	require.Contains(t, health.Message, "NOT_SERVING")

	host := findCheck(t, report, "client.host")
	require.False(t, host.Pass)
	require.Contains(t, host.Message, "cannot reach host")

	report = run(context.Background(), config.Loaded{Config: cfg, Exists: true}, stubProbes())
	require.True(t, findCheck(t, report, "server.health").Pass)
	require.Contains(t, findCheck(t, report, "client.host").Message, `"DESKTOP-A"`)
}

func TestCheckAudioSinkSurfacesWarningsAndErrors(t *testing.T) {
	check := checkAudioSink(context.Background(), func(context.Context) (audio.Selection, error) {
		return audio.Selection{Sink: audio.Sink{ID: "hdmi"}, Warning: "default sink \"hdmi\" is muted"}, nil
	})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "muted")

	check = checkAudioSink(context.Background(), func(context.Context) (audio.Selection, error) {
		return audio.Selection{}, errors.New("connect pulse server: refused")
	})
	require.False(t, check.Pass)
	require.Equal(t, "audio.sink", check.Name)
}

func TestLiveHostPingAgainstTestServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ping", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","hostname":"DESKTOP-A"}`))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portText, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	check := checkHost(context.Background(), host, port, liveProbes().ping)
	require.True(t, check.Pass, check.Message)
	require.Contains(t, check.Message, "DESKTOP-A")
}

func TestLiveHealthProbeAgainstRunningEndpoint(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	health := server.NewHealth()
	go func() { _ = health.Serve(listener) }()
	t.Cleanup(health.Stop)
	health.SetServing(true)

	check := checkHealth(context.Background(), listener.Addr().String(), liveProbes().health)
	require.True(t, check.Pass, check.Message)
}

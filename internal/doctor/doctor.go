// Package doctor runs readiness diagnostics for config, power commands, transports, and cues.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/powerctl/internal/audio"
	"github.com/rbright/powerctl/internal/config"
	"github.com/rbright/powerctl/internal/protocol"
	"github.com/rbright/powerctl/internal/rfcomm"
	"github.com/rbright/powerctl/internal/server"
	"github.com/rbright/powerctl/internal/transport"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// probes are the live checks; tests replace them.
type probes struct {
	rfcommAvailable func() bool
	health          func(ctx context.Context, addr string) (healthpb.HealthCheckResponse_ServingStatus, error)
	ping            func(ctx context.Context, host string, port int) (protocol.Liveness, error)
	sink            func(ctx context.Context) (audio.Selection, error)
}

func liveProbes() probes {
	return probes{
		rfcommAvailable: rfcomm.Available,
		health: func(ctx context.Context, addr string) (healthpb.HealthCheckResponse_ServingStatus, error) {
			return server.CheckHealth(ctx, addr, probeTimeout)
		},
		ping: func(ctx context.Context, host string, port int) (protocol.Liveness, error) {
			return transport.NewHTTP(host, transport.HTTPOptions{Port: port, PingTimeout: probeTimeout}).Ping(ctx)
		},
		sink: audio.SelectSink,
	}
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	return run(ctx, cfg, liveProbes())
}

func run(ctx context.Context, loaded config.Loaded, p probes) Report {
	cfg := loaded.Config
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks,
		checkCommand(cfg.Power.Poweroff.Argv, "poweroff_cmd"),
		checkCommand(cfg.Power.Reboot.Argv, "reboot_cmd"),
		checkCommand(cfg.Power.Suspend.Argv, "suspend_cmd"),
		checkCommand(cfg.Power.Hibernate.Argv, "hibernate_cmd"),
		checkCommand(cfg.Power.Logout.Argv, "logout_cmd"),
	)

	if strings.TrimSpace(cfg.Server.Key) == "" {
		checks = append(checks, Check{Name: "server.key", Pass: false, Message: "server.key is empty; every request will be rejected"})
	} else {
		checks = append(checks, Check{Name: "server.key", Pass: true, Message: "configured"})
	}

	if cfg.Server.SerialEnable || cfg.Client.Mode == config.ModeSerial {
		checks = append(checks, checkRFCOMM(p.rfcommAvailable))
	}
	if cfg.Client.Mode == config.ModeSerial {
		checks = append(checks, checkPeer(cfg.Client.Peer))
	}

	if addr := strings.TrimSpace(cfg.Server.GRPCHealth); addr != "" {
		checks = append(checks, checkHealth(ctx, addr, p.health))
	}

	if host := strings.TrimSpace(cfg.Client.Host); host != "" && cfg.Client.Mode != config.ModeSerial {
		checks = append(checks, checkHost(ctx, host, cfg.Client.Port, p.ping))
	}

	if cfg.Indicator.SoundEnable {
		checks = append(checks, checkAudioSink(ctx, p.sink))
	}
	if cfg.Indicator.DesktopEnable {
		checks = append(checks, checkBinary("busctl", "desktop notifications use busctl"))
	}

	return Report{Checks: checks}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkRFCOMM(available func() bool) Check {
	if !available() {
		return Check{Name: "rfcomm", Pass: false, Message: "bluetooth RFCOMM sockets are unavailable"}
	}
	return Check{Name: "rfcomm", Pass: true, Message: "bluetooth RFCOMM sockets available"}
}

func checkPeer(peer string) Check {
	if strings.TrimSpace(peer) == "" {
		return Check{Name: "client.peer", Pass: false, Message: "serial mode needs client.peer"}
	}
	addr, err := rfcomm.ParseTarget(peer, rfcomm.DefaultChannel)
	if err != nil {
		return Check{Name: "client.peer", Pass: false, Message: err.Error()}
	}
	return Check{Name: "client.peer", Pass: true, Message: addr.String()}
}

// checkHealth asks the local gRPC health endpoint whether the host is serving.
func checkHealth(ctx context.Context, addr string, probe func(context.Context, string) (healthpb.HealthCheckResponse_ServingStatus, error)) Check {
	status, err := probe(ctx, addr)
	if err != nil {
		return Check{Name: "server.health", Pass: false, Message: fmt.Sprintf("%s: %v", addr, err)}
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		return Check{Name: "server.health", Pass: false, Message: fmt.Sprintf("%s reports %s", addr, status)}
	}
	return Check{Name: "server.health", Pass: true, Message: fmt.Sprintf("serving at %s", addr)}
}

func checkHost(ctx context.Context, host string, port int, ping func(context.Context, string, int) (protocol.Liveness, error)) Check {
	live, err := ping(ctx, host, port)
	if err != nil {
		return Check{Name: "client.host", Pass: false, Message: fmt.Sprintf("%s: %s", host, protocol.Describe(err))}
	}
	message := fmt.Sprintf("%s answered", host)
	if live.Hostname != "" {
		message = fmt.Sprintf("%s answered as %q", host, live.Hostname)
	}
	return Check{Name: "client.host", Pass: true, Message: message}
}

// checkAudioSink runs live sink selection to surface muted or unplugged outputs.
func checkAudioSink(ctx context.Context, selectSink func(context.Context) (audio.Selection, error)) Check {
	selection, err := selectSink(ctx)
	if err != nil {
		return Check{Name: "audio.sink", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Sink.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.sink", Pass: true, Message: message}
}

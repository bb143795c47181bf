package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported by the gRPC health endpoint.
const HealthService = "powerctl.Host"

// Health serves grpc.health.v1.Health for the host process.
type Health struct {
	server *grpc.Server
	status *health.Server
}

// NewHealth builds a health endpoint reporting NOT_SERVING until SetServing.
func NewHealth() *Health {
	status := health.NewServer()
	status.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	status.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, status)
	return &Health{server: server, status: status}
}

// SetServing flips the overall and named service status.
func (h *Health) SetServing(serving bool) {
	value := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		value = healthpb.HealthCheckResponse_SERVING
	}
	h.status.SetServingStatus(HealthService, value)
	h.status.SetServingStatus("", value)
}

// Serve blocks serving on listener until Stop.
func (h *Health) Serve(listener net.Listener) error {
	if err := h.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING to watchers and drains in-flight checks.
func (h *Health) Stop() {
	h.status.Shutdown()
	h.server.GracefulStop()
}

// CheckHealth dials addr and returns the reported serving status.
func CheckHealth(ctx context.Context, addr string, timeout time.Duration) (healthpb.HealthCheckResponse_ServingStatus, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return healthpb.HealthCheckResponse_UNKNOWN, errors.New("health address is empty")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial health %q: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("wait for health readiness: %w", err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}

// waitForReady blocks until the connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}

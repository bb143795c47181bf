// Package server hosts the power service over HTTP, serial lines, and gRPC health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rbright/powerctl/internal/auth"
	"github.com/rbright/powerctl/internal/journal"
	"github.com/rbright/powerctl/internal/protocol"
)

// Transport labels used in logs and the journal.
const (
	TransportHTTP   = "http"
	TransportSerial = "serial"
)

// Executor carries out one authenticated request.
type Executor interface {
	Execute(ctx context.Context, req protocol.Request) (protocol.Response, error)
}

// Journal persists one handled request.
type Journal interface {
	Record(ctx context.Context, entry journal.Entry) (journal.Entry, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Key      string
	Executor Executor
	// Journal is optional.
	Journal  Journal
	Hostname string
	Logger   *slog.Logger
}

// Call is one inbound request with its transport context.
type Call struct {
	Request   protocol.Request
	Transport string
	Remote    string
}

// Service authenticates, executes, and journals inbound requests.
type Service struct {
	guard    *auth.Guard
	executor Executor
	journal  Journal
	hostname string
	logger   *slog.Logger
}

// NewService builds a service. An empty hostname reads os.Hostname.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hostname := strings.TrimSpace(cfg.Hostname)
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	return &Service{
		guard:    auth.NewGuard(cfg.Key),
		executor: cfg.Executor,
		journal:  cfg.Journal,
		hostname: hostname,
		logger:   logger,
	}
}

// Hostname is the name reported by the liveness probe.
func (s *Service) Hostname() string {
	return s.hostname
}

// Handle runs one call. The returned response always carries a wire message;
// the error carries the protocol kind for status-code mapping.
func (s *Service) Handle(ctx context.Context, call Call) (protocol.Response, error) {
	requestID := uuid.NewString()
	req := call.Request
	logger := s.logger.With(
		"request_id", requestID,
		"action", string(req.Action),
		"transport", call.Transport,
		"remote", call.Remote,
	)

	if err := req.Validate(); err != nil {
		if !errors.Is(err, protocol.ErrUnsupportedAction) {
			err = fmt.Errorf("%w: %v", protocol.ErrMalformedCommand, err)
		}
		logger.Warn("request rejected", "error", err.Error())
		return failureResponse(req.Action, err), err
	}

	if err := s.guard.Authenticate(req.Key); err != nil {
		logger.Warn("authentication failed", "error", err.Error())
		resp := protocol.Response{Success: false, Message: auth.Message(err)}
		s.record(ctx, logger, requestID, call, journal.OutcomeRejected, resp.Message)
		return resp, err
	}

	resp, err := s.executor.Execute(ctx, req)
	if err != nil {
		logger.Error("action failed", "error", err.Error())
		resp = failureResponse(req.Action, err)
		s.record(ctx, logger, requestID, call, journal.OutcomeFailed, err.Error())
		return resp, err
	}

	logger.Info("action executed", "message", resp.Message)
	if req.Action != protocol.ActionStatus {
		s.record(ctx, logger, requestID, call, journal.OutcomeSuccess, resp.Message)
	}
	return resp.Normalize(), nil
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, id string, call Call, outcome journal.Outcome, message string) {
	if s.journal == nil {
		return
	}
	_, err := s.journal.Record(context.WithoutCancel(ctx), journal.Entry{
		ID:        id,
		Action:    string(call.Request.Action),
		Transport: call.Transport,
		Remote:    call.Remote,
		Outcome:   outcome,
		Message:   message,
	})
	if err != nil {
		logger.Warn("journal record failed", "error", err.Error())
	}
}

// failureResponse maps an error to a fixed wire message. Causes stay in the
// host log and journal.
func failureResponse(action protocol.Action, err error) protocol.Response {
	var message string
	switch {
	case errors.Is(err, protocol.ErrUnsupportedAction):
		message = "Unknown action"
	case errors.Is(err, protocol.ErrMalformedCommand):
		message = "Invalid command format"
	case action == "":
		message = "Action failed"
	default:
		name := string(action)
		message = strings.ToUpper(name[:1]) + name[1:] + " failed"
	}
	return protocol.Response{Success: false, Message: message}
}

// Package executor carries out authenticated actions against the power surface.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/powerctl/internal/power"
	"github.com/rbright/powerctl/internal/protocol"
)

// Executor maps one action to exactly one power surface call. It never retries.
type Executor struct {
	surface power.Surface
	host    power.Introspector
	logger  *slog.Logger
	now     func() time.Time
}

// New builds an executor. A nil introspector reads the running system.
func New(surface power.Surface, host power.Introspector, logger *slog.Logger) *Executor {
	if host == nil {
		host = power.SystemIntrospector{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{surface: surface, host: host, logger: logger, now: time.Now}
}

// Execute runs req. Failures wrap protocol.ErrExecutorFailure.
func (e *Executor) Execute(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	switch req.Action {
	case protocol.ActionShutdown:
		return e.powerCycle(ctx, "Shutdown", req.Options, e.surface.Shutdown)
	case protocol.ActionRestart:
		return e.powerCycle(ctx, "Restart", req.Options, e.surface.Restart)
	case protocol.ActionSleep:
		if err := e.surface.Suspend(ctx, power.SuspendSleep); err != nil {
			return protocol.Response{}, failure("sleep", err)
		}
		return protocol.Response{Success: true, Message: "Sleep initiated"}, nil
	case protocol.ActionHibernate:
		if err := e.surface.Suspend(ctx, power.SuspendHibernate); err != nil {
			return protocol.Response{}, failure("hibernate", err)
		}
		return protocol.Response{Success: true, Message: "Hibernate initiated"}, nil
	case protocol.ActionLogout:
		if err := e.surface.Logout(ctx); err != nil {
			return protocol.Response{}, failure("logout", err)
		}
		return protocol.Response{Success: true, Message: "Logout initiated"}, nil
	case protocol.ActionCancel:
		if err := e.surface.Cancel(ctx); err != nil {
			e.logger.Info("cancel found nothing to stop", "error", err.Error())
		}
		return protocol.Response{Success: true, Message: protocol.MsgCancelled}, nil
	case protocol.ActionStatus:
		return e.status(ctx)
	default:
		return protocol.Response{}, fmt.Errorf("%w: %q", protocol.ErrUnsupportedAction, req.Action)
	}
}

type powerFunc func(ctx context.Context, delay time.Duration, force bool) error

func (e *Executor) powerCycle(ctx context.Context, verb string, opts protocol.Options, call powerFunc) (protocol.Response, error) {
	delay := time.Duration(opts.Delay) * time.Second
	if err := call(ctx, delay, opts.Force); err != nil {
		return protocol.Response{}, failure(verb, err)
	}
	if opts.Delay <= 0 {
		return protocol.Response{Success: true, Message: verb + " initiated immediately"}, nil
	}

	at := e.now().Add(delay)
	return protocol.Response{
		Success:       true,
		Message:       fmt.Sprintf("%s scheduled in %d seconds", verb, opts.Delay),
		ScheduledTime: &at,
	}, nil
}

func (e *Executor) status(ctx context.Context) (protocol.Response, error) {
	host, err := e.host.Inspect(ctx)
	if err != nil {
		return protocol.Response{}, failure("status", err)
	}
	uptime := host.Uptime.Seconds()
	return protocol.Response{
		Success: true,
		Status: &protocol.Status{
			Hostname:        host.Hostname,
			Platform:        host.Platform,
			Uptime:          uptime,
			UptimeFormatted: protocol.FormatUptime(uptime),
			TotalMemory:     host.TotalMemory,
			FreeMemory:      host.FreeMemory,
			CPUs:            host.CPUs,
			LocalIP:         host.LocalIP,
			Timestamp:       e.now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func failure(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", protocol.ErrExecutorFailure, what, err)
}

// Package power exposes the host power-control surface and host introspection.
package power

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// SuspendMode selects the suspend flavour.
type SuspendMode string

const (
	SuspendSleep     SuspendMode = "sleep"
	SuspendHibernate SuspendMode = "hibernate"
)

// ErrNothingScheduled is returned by Cancel when no delayed action is pending.
var ErrNothingScheduled = errors.New("no shutdown or restart is scheduled")

const commandTimeout = 10 * time.Second

// Surface is the OS-level capability that changes host power state.
type Surface interface {
	Shutdown(ctx context.Context, delay time.Duration, force bool) error
	Restart(ctx context.Context, delay time.Duration, force bool) error
	Suspend(ctx context.Context, mode SuspendMode) error
	Logout(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// Commands holds the argv used for each operation.
type Commands struct {
	Poweroff  []string
	Reboot    []string
	Suspend   []string
	Hibernate []string
	Logout    []string
	ForceArgs []string
}

// RunFunc executes one argv.
type RunFunc func(ctx context.Context, argv []string) error

// CommandSurface runs configured commands; delayed actions are held in-process
// until they fire or are cancelled.
type CommandSurface struct {
	cmds   Commands
	logger *slog.Logger
	run    RunFunc

	mu      sync.Mutex
	pending *time.Timer
	label   string
}

// NewCommandSurface builds a surface. A nil run uses os/exec.
func NewCommandSurface(cmds Commands, logger *slog.Logger, run RunFunc) *CommandSurface {
	if run == nil {
		run = runCommand
	}
	return &CommandSurface{cmds: cmds, logger: logger, run: run}
}

// Shutdown powers the host off now or after delay.
func (s *CommandSurface) Shutdown(ctx context.Context, delay time.Duration, force bool) error {
	return s.powerCycle(ctx, "shutdown", s.cmds.Poweroff, delay, force)
}

// Restart reboots the host now or after delay.
func (s *CommandSurface) Restart(ctx context.Context, delay time.Duration, force bool) error {
	return s.powerCycle(ctx, "restart", s.cmds.Reboot, delay, force)
}

// Suspend sleeps or hibernates the host.
func (s *CommandSurface) Suspend(ctx context.Context, mode SuspendMode) error {
	switch mode {
	case SuspendSleep:
		return s.runNow(ctx, "sleep", s.cmds.Suspend)
	case SuspendHibernate:
		return s.runNow(ctx, "hibernate", s.cmds.Hibernate)
	default:
		return fmt.Errorf("unknown suspend mode %q", mode)
	}
}

// Logout ends the current user session.
func (s *CommandSurface) Logout(ctx context.Context) error {
	return s.runNow(ctx, "logout", s.cmds.Logout)
}

// Cancel drops the pending delayed shutdown or restart.
func (s *CommandSurface) Cancel(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return ErrNothingScheduled
	}
	s.pending.Stop()
	s.pending = nil
	s.logInfo("scheduled action cancelled", "action", s.label)
	s.label = ""
	return nil
}

// Pending reports the label of the scheduled action, if any.
func (s *CommandSurface) Pending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label, s.pending != nil
}

func (s *CommandSurface) powerCycle(ctx context.Context, label string, base []string, delay time.Duration, force bool) error {
	argv := append([]string{}, base...)
	if force {
		argv = append(argv, s.cmds.ForceArgs...)
	}
	if delay <= 0 {
		return s.runNow(ctx, label, argv)
	}
	if len(argv) == 0 {
		return fmt.Errorf("%s command is not configured", label)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.pending != timer {
			s.mu.Unlock()
			return
		}
		s.pending = nil
		s.label = ""
		s.mu.Unlock()

		if err := s.runNow(context.Background(), label, argv); err != nil {
			s.logError("scheduled action failed", "action", label, "error", err.Error())
		}
	})
	s.pending = timer
	s.label = label
	s.logInfo("action scheduled", "action", label, "delay_s", int(delay.Seconds()))
	return nil
}

func (s *CommandSurface) runNow(ctx context.Context, label string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("%s command is not configured", label)
	}
	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	expanded := make([]string, len(argv))
	for i, arg := range argv {
		expanded[i] = os.ExpandEnv(arg)
	}
	s.logInfo("running power command", "action", label, "argv", expanded)
	return s.run(runCtx, expanded)
}

func (s *CommandSurface) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *CommandSurface) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// runCommand executes argv and folds stderr into the returned error.
func runCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("run %s: %w: %s", argv[0], err, detail)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}

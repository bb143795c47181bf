package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/powerctl/internal/cli"
	"github.com/rbright/powerctl/internal/config"
	"github.com/rbright/powerctl/internal/discovery"
	"github.com/rbright/powerctl/internal/executor"
	"github.com/rbright/powerctl/internal/journal"
	"github.com/rbright/powerctl/internal/logging"
	"github.com/rbright/powerctl/internal/output"
	"github.com/rbright/powerctl/internal/power"
	"github.com/rbright/powerctl/internal/rfcomm"
	"github.com/rbright/powerctl/internal/server"
)

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	surface := power.NewCommandSurface(power.Commands{
		Poweroff:  cfg.Power.Poweroff.Argv,
		Reboot:    cfg.Power.Reboot.Argv,
		Suspend:   cfg.Power.Suspend.Argv,
		Hibernate: cfg.Power.Hibernate.Argv,
		Logout:    cfg.Power.Logout.Argv,
		ForceArgs: cfg.Power.ForceArgs.Argv,
	}, logger, nil)

	svcCfg := server.ServiceConfig{
		Key:      cfg.Server.Key,
		Executor: executor.New(surface, power.SystemIntrospector{}, logger),
		Logger:   logger,
	}

	if cfg.Server.Journal {
		store, path, err := openJournal()
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() { _ = store.Close() }()
		store.SetRetention(time.Duration(cfg.Server.RetentionDays) * 24 * time.Hour)
		svcCfg.Journal = store
		logger.Info("journal open", "path", path)
	}
	svc := server.NewService(svcCfg)

	httpLn, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Listen, strconv.Itoa(cfg.Server.Port)))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: listen http: %v\n", err)
		return 1
	}
	runCfg := server.RunConfig{Service: svc, HTTP: httpLn, Logger: logger}

	if cfg.Server.SerialEnable {
		ln, err := rfcomm.Listen(uint8(cfg.Server.SerialChannel))
		if err != nil {
			fmt.Fprintf(r.Stderr, "warning: serial disabled: %v\n", err)
			logger.Warn("serial listener unavailable", "channel", cfg.Server.SerialChannel, "error", err.Error())
		} else {
			runCfg.Serial = ln
		}
	}

	if addr := strings.TrimSpace(cfg.Server.GRPCHealth); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			_ = httpLn.Close()
			if runCfg.Serial != nil {
				_ = runCfg.Serial.Close()
			}
			fmt.Fprintf(r.Stderr, "error: listen grpc health: %v\n", err)
			return 1
		}
		runCfg.Health = ln
	}

	if cfg.Server.MDNS {
		port := httpLn.Addr().(*net.TCPAddr).Port
		ad, err := discovery.Advertise(discovery.MDNSConfig{Hostname: svc.Hostname(), Port: port})
		if err != nil {
			logger.Warn("mdns advertise failed", "error", err.Error())
		} else {
			defer ad.Stop()
		}
	}

	fmt.Fprintf(r.Stdout, "serving %s on %s\n", svc.Hostname(), httpLn.Addr())
	if err := server.Run(ctx, runCfg); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (r Runner) commandHistory(ctx context.Context, parsed cli.Parsed) int {
	store, _, err := openJournal()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	limit := parsed.Limit
	if limit <= 0 {
		limit = journal.DefaultLimit
	}
	entries, err := store.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if err := output.History(r.Stdout, parsed.Output, entries); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func openJournal() (*journal.Store, string, error) {
	dir, err := logging.StateDir()
	if err != nil {
		return nil, "", fmt.Errorf("resolve state dir: %w", err)
	}
	return journal.Open(dir)
}

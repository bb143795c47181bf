package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/rbright/powerctl/internal/cli"
	"github.com/rbright/powerctl/internal/config"
	"github.com/rbright/powerctl/internal/discovery"
	"github.com/rbright/powerctl/internal/dispatch"
	"github.com/rbright/powerctl/internal/indicator"
	"github.com/rbright/powerctl/internal/output"
	"github.com/rbright/powerctl/internal/protocol"
	"github.com/rbright/powerctl/internal/rfcomm"
	"github.com/rbright/powerctl/internal/transport"
)

// countdownPrinter echoes countdown progress on stderr before handing events
// to the cue observer.
type countdownPrinter struct {
	w    io.Writer
	next dispatch.Observer
}

func (p countdownPrinter) OnTick(action protocol.Action, remaining int) {
	fmt.Fprintf(p.w, "%s in %ds (Ctrl-C to cancel)\n", action, remaining)
	p.next.OnTick(action, remaining)
}

func (p countdownPrinter) OnExecute(action protocol.Action) {
	p.next.OnExecute(action)
}

func (p countdownPrinter) OnCancel(action protocol.Action) {
	fmt.Fprintf(p.w, "%s countdown cancelled\n", action)
	p.next.OnCancel(action)
}

func (p countdownPrinter) OnResult(action protocol.Action, resp protocol.Response, err error) {
	p.next.OnResult(action, resp, err)
}

func (r Runner) commandAction(ctx context.Context, cfg config.Config, parsed cli.Parsed, action protocol.Action, logger *slog.Logger) int {
	key := cfg.Client.Key
	if parsed.Key != "" {
		key = parsed.Key
	}
	mode, host, peer := cfg.Client.Mode, cfg.Client.Host, cfg.Client.Peer
	switch {
	case parsed.Peer != "":
		mode, peer = config.ModeSerial, parsed.Peer
	case parsed.Host != "":
		mode, host = config.ModeNetwork, parsed.Host
	}

	cues := indicator.New(cfg.Indicator, logger)
	defer cues.Wait()

	commandTimeout := millis(cfg.Client.CommandTimeoutMS)
	dcfg := dispatch.Config{
		Key:            key,
		CommandTimeout: commandTimeout,
		SerialTimeout:  millis(cfg.Client.SerialTimeoutMS),
		NewNetwork: func(address string) transport.Transport {
			return transport.NewHTTP(address, transport.HTTPOptions{Port: cfg.Client.Port, CommandTimeout: commandTimeout})
		},
		Observer: countdownPrinter{w: r.Stderr, next: cues},
		Logger:   logger,
	}
	if mode == config.ModeSerial {
		dcfg.Serial = transport.NewSerial(rfcomm.Dialer{Channel: rfcomm.DefaultChannel}, transport.SerialOptions{
			Timeout: dcfg.SerialTimeout,
			Logger:  logger,
		})
	}

	d := dispatch.New(dcfg)
	defer func() { _ = d.Close() }()

	if mode == config.ModeSerial {
		if err := d.UseSerial(ctx, peer); err != nil {
			fmt.Fprintf(r.Stderr, "error: %s\n", protocol.Describe(err))
			logger.Error("serial connect failed", "peer", peer, "error", err.Error())
			return 1
		}
	} else {
		if strings.TrimSpace(host) == "" {
			fmt.Fprintln(r.Stderr, "error: no host selected; set client.host, pass --host, or run scan")
			return 1
		}
		d.UseNetwork(host)
	}

	result, err := d.Invoke(ctx, action, parsed.Options)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %s\n", protocol.Describe(err))
		logger.Error("action failed", "action", string(action), "error", err.Error())
		return 1
	}
	if result.Cancelled {
		return 1
	}

	if err := output.Result(r.Stdout, parsed.Output, action, result.Response); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !result.Response.Success {
		return 1
	}
	return 0
}

func (r Runner) commandScan(ctx context.Context, cfg config.Config, parsed cli.Parsed, logger *slog.Logger) int {
	scanCfg := discovery.Config{Port: cfg.Client.Port, Logger: logger}
	if cfg.Discovery.MDNS {
		browseTimeout := millis(cfg.Discovery.BrowseTimeoutMS)
		scanCfg.Browse = func(ctx context.Context) ([]discovery.Candidate, error) {
			return discovery.Browse(ctx, discovery.MDNSConfig{Port: cfg.Client.Port, Timeout: browseTimeout})
		}
	}
	scanner := discovery.NewScanner(scanCfg)

	rawRanges := parsed.Ranges
	if len(rawRanges) == 0 {
		rawRanges = cfg.Discovery.Ranges
	}
	ranges, err := parsePrefixes(rawRanges)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	progress := func(p discovery.Progress) {
		prefix := ""
		if p.Policy != "" {
			prefix = p.Policy + ": "
		}
		fmt.Fprintf(r.Stderr, "%sscanned %d/%d, %d found\n", prefix, p.Probed, p.Total, len(p.Found))
	}

	var devices []discovery.Device
	if len(ranges) > 0 {
		fast := discovery.FastPolicy(nil)
		devices, err = scanner.Scan(ctx, ranges, fast.Timeout, fast.BatchSize, progress)
	} else {
		devices, err = scanner.Discover(ctx, progress)
	}
	if err != nil && !errors.Is(err, protocol.ErrScanExhausted) {
		fmt.Fprintf(r.Stderr, "error: %s\n", protocol.Describe(err))
		logger.Error("scan failed", "error", err.Error())
		return 1
	}

	logger.Info("scan complete", "found", len(devices))
	if err := output.Devices(r.Stdout, parsed.Output, devices); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		return 1
	}
	return 0
}

func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, r := range raw {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("invalid scan range %q: %w", r, err)
		}
		out = append(out, prefix)
	}
	return out, nil
}

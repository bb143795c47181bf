// Package output renders command results as text, JSON, or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rbright/powerctl/internal/discovery"
	"github.com/rbright/powerctl/internal/journal"
	"github.com/rbright/powerctl/internal/protocol"
)

// Formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type statusView struct {
	Hostname        string  `json:"hostname" yaml:"hostname"`
	Platform        string  `json:"platform" yaml:"platform"`
	Uptime          float64 `json:"uptime" yaml:"uptime"`
	UptimeFormatted string  `json:"uptimeFormatted" yaml:"uptime_formatted"`
	TotalMemory     uint64  `json:"totalMemory" yaml:"total_memory"`
	FreeMemory      uint64  `json:"freeMemory" yaml:"free_memory"`
	CPUs            int     `json:"cpus" yaml:"cpus"`
	LocalIP         string  `json:"localIP" yaml:"local_ip"`
	Timestamp       string  `json:"timestamp" yaml:"timestamp"`
}

type resultView struct {
	Action        string      `json:"action" yaml:"action"`
	Success       bool        `json:"success" yaml:"success"`
	Message       string      `json:"message,omitempty" yaml:"message,omitempty"`
	ScheduledTime *time.Time  `json:"scheduledTime,omitempty" yaml:"scheduled_time,omitempty"`
	Status        *statusView `json:"status,omitempty" yaml:"status,omitempty"`
}

type deviceView struct {
	IP         string `json:"ip" yaml:"ip"`
	Port       int    `json:"port" yaml:"port"`
	Hostname   string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	LatencyMS  int64  `json:"latencyMs" yaml:"latency_ms"`
	HasService bool   `json:"hasService" yaml:"has_service"`
}

// Result renders the reply to one action.
func Result(w io.Writer, format string, action protocol.Action, resp protocol.Response) error {
	view := resultView{
		Action:        string(action),
		Success:       resp.Success,
		Message:       resp.Message,
		ScheduledTime: resp.ScheduledTime,
	}
	if resp.Status != nil {
		s := *resp.Status
		view.Status = &statusView{
			Hostname:        s.Hostname,
			Platform:        s.Platform,
			Uptime:          s.Uptime,
			UptimeFormatted: s.UptimeFormatted,
			TotalMemory:     s.TotalMemory,
			FreeMemory:      s.FreeMemory,
			CPUs:            s.CPUs,
			LocalIP:         s.LocalIP,
			Timestamp:       s.Timestamp,
		}
	}

	return encode(w, format, view, func(w io.Writer) error {
		if view.Status == nil {
			msg := view.Message
			if msg == "" {
				msg = "ok"
			}
			if view.ScheduledTime != nil {
				msg += " (at " + view.ScheduledTime.Local().Format(time.TimeOnly) + ")"
			}
			_, err := fmt.Fprintf(w, "%s: %s\n", view.Action, msg)
			return err
		}

		s := view.Status
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "hostname\t%s\n", s.Hostname)
		fmt.Fprintf(tw, "platform\t%s\n", s.Platform)
		fmt.Fprintf(tw, "uptime\t%s\n", s.UptimeFormatted)
		fmt.Fprintf(tw, "memory\t%s free of %s\n", formatBytes(s.FreeMemory), formatBytes(s.TotalMemory))
		fmt.Fprintf(tw, "cpus\t%d\n", s.CPUs)
		fmt.Fprintf(tw, "address\t%s\n", s.LocalIP)
		return tw.Flush()
	})
}

// Devices renders scan results in latency order.
func Devices(w io.Writer, format string, devices []discovery.Device) error {
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{
			IP:         d.IP.String(),
			Port:       d.Port,
			Hostname:   d.Hostname,
			LatencyMS:  d.Latency.Milliseconds(),
			HasService: d.HasService,
		})
	}

	return encode(w, format, views, func(w io.Writer) error {
		if len(views) == 0 {
			_, err := fmt.Fprintln(w, "no hosts found")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ADDRESS\tHOSTNAME\tLATENCY")
		for i, v := range views {
			hostname := v.Hostname
			if hostname == "" {
				hostname = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%dms\n", devices[i].Address(), hostname, v.LatencyMS)
		}
		return tw.Flush()
	})
}

// History renders journal entries newest first.
func History(w io.Writer, format string, entries []journal.Entry) error {
	if entries == nil {
		entries = []journal.Entry{}
	}
	return encode(w, format, entries, func(w io.Writer) error {
		if len(entries) == 0 {
			_, err := fmt.Fprintln(w, "no journaled actions")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tACTION\tTRANSPORT\tOUTCOME\tREMOTE\tMESSAGE")
		for _, e := range entries {
			remote := e.Remote
			if remote == "" {
				remote = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.DateTime), e.Action, e.Transport, e.Outcome, remote, e.Message)
		}
		return tw.Flush()
	})
}

func encode(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return text(w)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

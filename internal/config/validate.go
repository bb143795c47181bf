package config

import (
	"fmt"
	"net/netip"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := validPort("server.port", cfg.Server.Port); err != nil {
		return nil, err
	}
	if err := validPort("client.port", cfg.Client.Port); err != nil {
		return nil, err
	}
	if cfg.Server.SerialChannel < 1 || cfg.Server.SerialChannel > 30 {
		return nil, fmt.Errorf("server.serial_channel must be between 1 and 30")
	}
	if cfg.Server.RetentionDays < 0 {
		return nil, fmt.Errorf("server.journal_retention_days must be >= 0")
	}
	if cfg.Client.Mode != ModeNetwork && cfg.Client.Mode != ModeSerial {
		return nil, fmt.Errorf("client.mode must be one of: network, serial")
	}
	if cfg.Client.CommandTimeoutMS <= 0 {
		return nil, fmt.Errorf("client.command_timeout_ms must be > 0")
	}
	if cfg.Client.SerialTimeoutMS <= 0 {
		return nil, fmt.Errorf("client.serial_timeout_ms must be > 0")
	}
	if cfg.Discovery.BrowseTimeoutMS < 0 {
		return nil, fmt.Errorf("discovery.browse_timeout_ms must be >= 0")
	}
	for _, raw := range cfg.Discovery.Ranges {
		if _, err := netip.ParsePrefix(strings.TrimSpace(raw)); err != nil {
			return nil, fmt.Errorf("discovery.ranges contains invalid CIDR %q", raw)
		}
	}
	if cfg.Indicator.TimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.timeout_ms must be >= 0")
	}
	if cfg.Indicator.DesktopEnable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.desktop_enable=true")
	}

	if cfg.Server.Key == "" {
		warnings = append(warnings, Warning{Message: "server.key is empty; the host will reject every action"})
	}
	if cfg.Client.Mode == ModeSerial && cfg.Client.Peer == "" {
		warnings = append(warnings, Warning{Message: "client.mode=serial but client.peer is empty; pass --peer"})
	}

	commands := []struct {
		name string
		cmd  CommandConfig
	}{
		{name: "power.poweroff_cmd", cmd: cfg.Power.Poweroff},
		{name: "power.reboot_cmd", cmd: cfg.Power.Reboot},
		{name: "power.suspend_cmd", cmd: cfg.Power.Suspend},
		{name: "power.hibernate_cmd", cmd: cfg.Power.Hibernate},
		{name: "power.logout_cmd", cmd: cfg.Power.Logout},
	}
	for _, c := range commands {
		if len(c.cmd.Argv) == 0 {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("%s is empty; that action will fail on this host", c.name)})
		}
	}

	return warnings, nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", name)
	}
	return nil
}

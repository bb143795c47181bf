package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "server port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "client port", mutate: func(c *Config) { c.Client.Port = 70000 }, wantErr: "client.port"},
		{name: "serial channel", mutate: func(c *Config) { c.Server.SerialChannel = 31 }, wantErr: "server.serial_channel"},
		{name: "retention", mutate: func(c *Config) { c.Server.RetentionDays = -1 }, wantErr: "journal_retention_days"},
		{name: "mode", mutate: func(c *Config) { c.Client.Mode = "carrier-pigeon" }, wantErr: "client.mode"},
		{name: "command timeout", mutate: func(c *Config) { c.Client.CommandTimeoutMS = 0 }, wantErr: "command_timeout_ms"},
		{name: "serial timeout", mutate: func(c *Config) { c.Client.SerialTimeoutMS = -5 }, wantErr: "serial_timeout_ms"},
		{name: "browse timeout", mutate: func(c *Config) { c.Discovery.BrowseTimeoutMS = -1 }, wantErr: "browse_timeout_ms"},
		{name: "range", mutate: func(c *Config) { c.Discovery.Ranges = []string{"10.0.0.0/33"} }, wantErr: "invalid CIDR"},
		{name: "indicator timeout", mutate: func(c *Config) { c.Indicator.TimeoutMS = -1 }, wantErr: "indicator.timeout_ms"},
		{name: "desktop app name", mutate: func(c *Config) {
			c.Indicator.DesktopEnable = true
			c.Indicator.DesktopAppName = " "
		}, wantErr: "desktop_app_name"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.Key = "abc"
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Client.Mode = ModeSerial
	cfg.Power.Hibernate = CommandConfig{}

	warnings, err := Validate(cfg)
	require.NoError(t, err)

	var messages []string
	for _, w := range warnings {
		messages = append(messages, w.Message)
	}
	require.Len(t, messages, 3)
	require.Contains(t, messages[0], "server.key is empty")
	require.Contains(t, messages[1], "client.peer is empty")
	require.Contains(t, messages[2], "power.hibernate_cmd is empty")
}

func TestValidateDefaultsWithKeyIsClean(t *testing.T) {
	cfg := Default()
	cfg.Server.Key = "abc"
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Empty(t, warnings)
}

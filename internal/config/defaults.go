package config

// Client modes.
const (
	ModeNetwork = "network"
	ModeSerial  = "serial"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:          8765,
			SerialChannel: 3,
			MDNS:          true,
			Journal:       true,
			RetentionDays: 90,
		},
		Power: PowerConfig{
			Poweroff:  command("systemctl poweroff"),
			Reboot:    command("systemctl reboot"),
			Suspend:   command("systemctl suspend"),
			Hibernate: command("systemctl hibernate"),
			Logout:    command("loginctl terminate-user $USER"),
			ForceArgs: command("-i"),
		},
		Client: ClientConfig{
			Port:             8765,
			Mode:             ModeNetwork,
			CommandTimeoutMS: 10000,
			SerialTimeoutMS:  5000,
		},
		Discovery: DiscoveryConfig{
			MDNS:            true,
			BrowseTimeoutMS: 2000,
		},
		Indicator: IndicatorConfig{
			SoundEnable:    true,
			DesktopAppName: "powerctl",
			TimeoutMS:      1500,
		},
	}
}

func command(raw string) CommandConfig {
	return CommandConfig{Raw: raw, Argv: mustParseArgv(raw)}
}

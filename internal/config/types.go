// Package config resolves, parses, validates, and defaults powerctl configuration.
package config

// Config is the fully materialized runtime configuration used by powerctl.
type Config struct {
	Server    ServerConfig
	Power     PowerConfig
	Client    ClientConfig
	Discovery DiscoveryConfig
	Indicator IndicatorConfig
	Debug     DebugConfig
}

// ServerConfig controls the host side of powerctl.
type ServerConfig struct {
	Listen        string
	Port          int
	Key           string
	SerialEnable  bool
	SerialChannel int
	MDNS          bool
	GRPCHealth    string
	Journal       bool
	RetentionDays int
}

// PowerConfig holds the OS commands behind each action.
type PowerConfig struct {
	Poweroff  CommandConfig
	Reboot    CommandConfig
	Suspend   CommandConfig
	Hibernate CommandConfig
	Logout    CommandConfig
	ForceArgs CommandConfig
}

// ClientConfig controls the controller side.
type ClientConfig struct {
	Host             string
	Port             int
	Key              string
	Mode             string
	Peer             string
	CommandTimeoutMS int
	SerialTimeoutMS  int
}

// DiscoveryConfig controls LAN host discovery.
type DiscoveryConfig struct {
	MDNS            bool
	BrowseTimeoutMS int
	Ranges          []string
}

// IndicatorConfig controls countdown audio cues and desktop notifications.
type IndicatorConfig struct {
	SoundEnable    bool
	DesktopEnable  bool
	DesktopAppName string
	TimeoutMS      int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls verbose runtime logging.
type DebugConfig struct {
	Verbose bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

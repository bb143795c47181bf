package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Server    *jsoncServer    `json:"server"`
	Power     *jsoncPower     `json:"power"`
	Client    *jsoncClient    `json:"client"`
	Discovery *jsoncDiscovery `json:"discovery"`
	Indicator *jsoncIndicator `json:"indicator"`
	Debug     *jsoncDebug     `json:"debug"`
}

type jsoncServer struct {
	Listen        *string `json:"listen"`
	Port          *int    `json:"port"`
	Key           *string `json:"key"`
	SerialEnable  *bool   `json:"serial_enable"`
	SerialChannel *int    `json:"serial_channel"`
	MDNS          *bool   `json:"mdns"`
	GRPCHealth    *string `json:"grpc_health"`
	Journal       *bool   `json:"journal"`
	RetentionDays *int    `json:"journal_retention_days"`
}

type jsoncPower struct {
	PoweroffCmd  *string `json:"poweroff_cmd"`
	RebootCmd    *string `json:"reboot_cmd"`
	SuspendCmd   *string `json:"suspend_cmd"`
	HibernateCmd *string `json:"hibernate_cmd"`
	LogoutCmd    *string `json:"logout_cmd"`
	ForceArgs    *string `json:"force_args"`
}

type jsoncClient struct {
	Host             *string `json:"host"`
	Port             *int    `json:"port"`
	Key              *string `json:"key"`
	Mode             *string `json:"mode"`
	Peer             *string `json:"peer"`
	CommandTimeoutMS *int    `json:"command_timeout_ms"`
	SerialTimeoutMS  *int    `json:"serial_timeout_ms"`
}

type jsoncDiscovery struct {
	MDNS            *bool            `json:"mdns"`
	BrowseTimeoutMS *int             `json:"browse_timeout_ms"`
	Ranges          *jsoncList `json:"ranges"`
}

type jsoncIndicator struct {
	SoundEnable    *bool   `json:"sound_enable"`
	DesktopEnable  *bool   `json:"desktop_enable"`
	DesktopAppName *string `json:"desktop_app_name"`
	TimeoutMS      *int    `json:"timeout_ms"`
}

type jsoncDebug struct {
	Verbose *bool `json:"verbose"`
}

// jsoncList accepts either a JSON array or one comma-separated string.
type jsoncList []string

func (l *jsoncList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return errors.New("expected string array or comma-delimited string")
	}
	out := []string{}
	for part := range strings.SplitSeq(joined, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*l = out
	return nil
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	plain, err := stripJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	dec := json.NewDecoder(strings.NewReader(plain))
	dec.DisallowUnknownFields()

	var payload jsoncConfig
	if err := dec.Decode(&payload); err != nil {
		return Config{}, nil, locate(plain, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Config{}, nil, errors.New("unexpected content after the top-level config object")
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if s := payload.Server; s != nil {
		setTrimmed(&cfg.Server.Listen, s.Listen)
		set(&cfg.Server.Port, s.Port)
		setTrimmed(&cfg.Server.Key, s.Key)
		set(&cfg.Server.SerialEnable, s.SerialEnable)
		set(&cfg.Server.SerialChannel, s.SerialChannel)
		set(&cfg.Server.MDNS, s.MDNS)
		setTrimmed(&cfg.Server.GRPCHealth, s.GRPCHealth)
		set(&cfg.Server.Journal, s.Journal)
		set(&cfg.Server.RetentionDays, s.RetentionDays)
	}

	if p := payload.Power; p != nil {
		commands := []struct {
			name string
			raw  *string
			dst  *CommandConfig
		}{
			{name: "power.poweroff_cmd", raw: p.PoweroffCmd, dst: &cfg.Power.Poweroff},
			{name: "power.reboot_cmd", raw: p.RebootCmd, dst: &cfg.Power.Reboot},
			{name: "power.suspend_cmd", raw: p.SuspendCmd, dst: &cfg.Power.Suspend},
			{name: "power.hibernate_cmd", raw: p.HibernateCmd, dst: &cfg.Power.Hibernate},
			{name: "power.logout_cmd", raw: p.LogoutCmd, dst: &cfg.Power.Logout},
			{name: "power.force_args", raw: p.ForceArgs, dst: &cfg.Power.ForceArgs},
		}
		for _, c := range commands {
			if c.raw == nil {
				continue
			}
			argv, err := parseArgv(*c.raw)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", c.name, err)
			}
			*c.dst = CommandConfig{Raw: *c.raw, Argv: argv}
		}
	}

	if c := payload.Client; c != nil {
		setTrimmed(&cfg.Client.Host, c.Host)
		set(&cfg.Client.Port, c.Port)
		setTrimmed(&cfg.Client.Key, c.Key)
		if c.Mode != nil {
			cfg.Client.Mode = strings.ToLower(strings.TrimSpace(*c.Mode))
		}
		setTrimmed(&cfg.Client.Peer, c.Peer)
		set(&cfg.Client.CommandTimeoutMS, c.CommandTimeoutMS)
		set(&cfg.Client.SerialTimeoutMS, c.SerialTimeoutMS)
	}

	if d := payload.Discovery; d != nil {
		set(&cfg.Discovery.MDNS, d.MDNS)
		set(&cfg.Discovery.BrowseTimeoutMS, d.BrowseTimeoutMS)
		if d.Ranges != nil {
			cfg.Discovery.Ranges = append([]string(nil), (*d.Ranges)...)
		}
	}

	if i := payload.Indicator; i != nil {
		set(&cfg.Indicator.SoundEnable, i.SoundEnable)
		set(&cfg.Indicator.DesktopEnable, i.DesktopEnable)
		setTrimmed(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		set(&cfg.Indicator.TimeoutMS, i.TimeoutMS)
	}

	if payload.Debug != nil {
		set(&cfg.Debug.Verbose, payload.Debug.Verbose)
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setTrimmed(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

type jsoncState int

const (
	inCode jsoncState = iota
	inString
	inStringEscape
	inLineComment
	inBlockComment
)

// stripJSONC blanks comments and trailing commas with spaces. Newlines are
// kept and nothing is removed, so decoder offsets still point into the
// original file.
func stripJSONC(content string) (string, error) {
	out := []byte(content)
	state := inCode
	pendingComma := -1

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch state {
		case inString:
			switch ch {
			case '\\':
				state = inStringEscape
			case '"':
				state = inCode
			}
		case inStringEscape:
			state = inString
		case inLineComment:
			if ch == '\n' || ch == '\r' {
				state = inCode
				continue
			}
			out[i] = ' '
		case inBlockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = inCode
				continue
			}
			if ch != '\n' && ch != '\r' && ch != '\t' {
				out[i] = ' '
			}
		case inCode:
			switch {
			case ch == '/' && i+1 < len(out) && out[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				i++
				state = inLineComment
			case ch == '/' && i+1 < len(out) && out[i+1] == '*':
				out[i], out[i+1] = ' ', ' '
				i++
				state = inBlockComment
			case ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t':
			case ch == ',':
				pendingComma = i
			case ch == '}' || ch == ']':
				if pendingComma >= 0 {
					out[pendingComma] = ' '
				}
				pendingComma = -1
			default:
				if ch == '"' {
					state = inString
				}
				pendingComma = -1
			}
		}
	}

	if state == inBlockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}
	return string(out), nil
}

// locate prefixes decode errors with the line and column they occurred at.
func locate(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := lineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func lineCol(content string, offset int64) (int, int) {
	end := max(min(int(offset), len(content))-1, 0)
	prefix := content[:end]
	return strings.Count(prefix, "\n") + 1, len(prefix) - strings.LastIndexByte(prefix, '\n')
}

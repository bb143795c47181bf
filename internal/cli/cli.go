package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rbright/powerctl/internal/protocol"
)

type Command string

const (
	CommandServe     Command = "serve"
	CommandScan      Command = "scan"
	CommandShutdown  Command = "shutdown"
	CommandRestart   Command = "restart"
	CommandSleep     Command = "sleep"
	CommandHibernate Command = "hibernate"
	CommandLogout    Command = "logout"
	CommandCancel    Command = "cancel"
	CommandStatus    Command = "status"
	CommandHistory   Command = "history"
	CommandDoctor    Command = "doctor"
	CommandVersion   Command = "version"
	CommandHelp      Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:     {},
	CommandScan:      {},
	CommandShutdown:  {},
	CommandRestart:   {},
	CommandSleep:     {},
	CommandHibernate: {},
	CommandLogout:    {},
	CommandCancel:    {},
	CommandStatus:    {},
	CommandHistory:   {},
	CommandDoctor:    {},
	CommandVersion:   {},
	CommandHelp:      {},
}

// Action maps power commands to their protocol action.
func (c Command) Action() (protocol.Action, bool) {
	switch c {
	case CommandShutdown, CommandRestart, CommandSleep, CommandHibernate,
		CommandLogout, CommandCancel, CommandStatus:
		return protocol.Action(c), true
	default:
		return "", false
	}
}

// Output formats accepted by --output.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	Host    string
	Peer    string
	Key     string
	Options protocol.Options
	Output  string
	Ranges  []string
	Limit   int
	Verbose bool

	delaySet bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true, Output: OutputText}
	seenCommand := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		name, inline, hasInline := strings.Cut(arg, "=")
		if !strings.HasPrefix(arg, "--") {
			name, inline, hasInline = arg, "", false
		}
		value := func() (string, error) {
			if hasInline {
				return inline, nil
			}
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires a value", name)
			}
			return args[i], nil
		}

		switch name {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
			seenCommand = true
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
			seenCommand = true
		case "--config":
			v, err := value()
			if err != nil {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = v
		case "--host":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			parsed.Host = strings.TrimSpace(v)
		case "--peer":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			parsed.Peer = strings.TrimSpace(v)
		case "--key":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			parsed.Key = v
		case "--delay":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			delay, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || delay < 0 {
				return Parsed{}, fmt.Errorf("--delay must be a non-negative integer, got %q", v)
			}
			parsed.Options.Delay = delay
			parsed.delaySet = true
		case "--force":
			parsed.Options.Force = true
		case "--output", "-o":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			format := strings.ToLower(strings.TrimSpace(v))
			switch format {
			case OutputText, OutputJSON, OutputYAML:
				parsed.Output = format
			default:
				return Parsed{}, fmt.Errorf("--output must be text, json, or yaml, got %q", v)
			}
		case "--range":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			parsed.Ranges = append(parsed.Ranges, strings.TrimSpace(v))
		case "--limit":
			v, err := value()
			if err != nil {
				return Parsed{}, err
			}
			limit, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || limit <= 0 {
				return Parsed{}, fmt.Errorf("--limit must be a positive integer, got %q", v)
			}
			parsed.Limit = limit
		case "-v", "--verbose":
			parsed.Verbose = true
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			if seenCommand {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", parsed.Command)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			seenCommand = true
		}
	}

	if err := parsed.checkFlags(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

// checkFlags rejects flags the selected command cannot use.
func (p Parsed) checkFlags() error {
	if p.ShowHelp {
		return nil
	}
	action, isAction := p.Command.Action()
	if (p.delaySet || p.Options.Force) && !(isAction && action.AcceptsOptions()) {
		return errors.New("--delay and --force only apply to shutdown and restart")
	}
	if len(p.Ranges) > 0 && p.Command != CommandScan {
		return errors.New("--range only applies to scan")
	}
	if p.Limit > 0 && p.Command != CommandHistory {
		return errors.New("--limit only applies to history")
	}
	if p.Host != "" && p.Peer != "" {
		return errors.New("--host and --peer are mutually exclusive")
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command>

Host:
  serve      Run the host service (HTTP, optional serial and gRPC health)
  history    Print recent actions from the host journal

Controller:
  scan       Discover hosts on the local network
  shutdown   Power off the host
  restart    Reboot the host
  sleep      Suspend the host
  hibernate  Hibernate the host
  logout     End the host user session
  cancel     Abort a countdown and any scheduled shutdown/restart
  status     Print host status

Other:
  doctor     Run configuration and environment checks
  version    Print version information
  help       Show this help

Flags:
  --config PATH      Config file path (default: $XDG_CONFIG_HOME/powerctl/config.jsonc)
  --host ADDR        Host address, overrides client.host
  --peer MAC         Bluetooth peer, selects the serial transport
  --key KEY          Credential, overrides client.key
  --delay N          Countdown seconds before shutdown/restart
  --force            Force shutdown/restart
  --output FORMAT    text, json, or yaml (status, scan, history)
  --range CIDR       Scan only this IPv4 range; repeatable
  --limit N          Number of history entries (default: 20)
  -v, --verbose      Debug logging
  -h, --help         Show help
  --version          Show version
`, binaryName)
}

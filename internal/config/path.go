package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// EnvPath names the environment variable that overrides the config location.
const EnvPath = "POWERCTL_CONFIG"

// systemPath is consulted only when the user has not pinned a location and
// their own file is missing. Hosts usually keep the server key here.
var systemPath = "/etc/powerctl/config.jsonc"

// ResolvePath picks the user config location: --config, then $POWERCTL_CONFIG,
// then $XDG_CONFIG_HOME, then ~/.config.
func ResolvePath(explicit string) (string, error) {
	if pinned := pinnedPath(explicit); pinned != "" {
		return expandHome(pinned)
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "powerctl", "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "powerctl", "config.jsonc"), nil
}

func pinnedPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(EnvPath))
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for ~ in config path")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

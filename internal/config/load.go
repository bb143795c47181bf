package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Loaded is the outcome of Load. Path is the file that was read, or the
// user location that was expected when Exists is false.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load reads the first config file that exists and overlays it on Default.
// A missing file is not an error; defaults are validated and returned.
func Load(explicitPath string) (Loaded, error) {
	userPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	search := []string{userPath}
	if pinnedPath(explicitPath) == "" && systemPath != "" {
		search = append(search, systemPath)
	}

	for _, path := range search {
		loaded, err := loadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Loaded{}, err
		}
		return loaded, nil
	}

	cfg := Default()
	warnings, err := Validate(cfg)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate defaults: %w", err)
	}
	missing := Warning{Message: fmt.Sprintf("config file %q not found; using defaults", userPath)}
	return Loaded{
		Path:     userPath,
		Config:   cfg,
		Warnings: append([]Warning{missing}, warnings...),
	}, nil
}

func loadFile(path string) (Loaded, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Loaded{}, err
		}
		return Loaded{}, fmt.Errorf("stat config %q: %w", path, err)
	}
	if info.IsDir() {
		return Loaded{}, fmt.Errorf("config %q is a directory", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, warnings, err := Parse(string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if w, ok := exposedKeyWarning(path, info.Mode().Perm(), cfg); ok {
		warnings = append(warnings, w)
	}

	return Loaded{Path: path, Config: cfg, Warnings: warnings, Exists: true}, nil
}

// exposedKeyWarning flags a key stored in a file other local users can read.
func exposedKeyWarning(path string, perm fs.FileMode, cfg Config) (Warning, bool) {
	if perm&0o077 == 0 {
		return Warning{}, false
	}
	if cfg.Server.Key == "" && cfg.Client.Key == "" {
		return Warning{}, false
	}
	return Warning{Message: fmt.Sprintf(
		"config %q holds a key but has mode %04o; run chmod 600 on it", path, perm,
	)}, true
}

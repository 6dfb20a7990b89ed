// Package config reads the small TOML configuration file pykuang keeps
// in its base directory. It mirrors pykuang's original config.py: a
// default document is written on first run, callers read the parsed
// Config, and Write saves a whole Config back. Worker-count keys are overridden by CLI flags at the
// call site (main.go), never inside this package.
package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// GeneratorConfig holds the [Generator] section.
type GeneratorConfig struct {
	Active   bool `toml:"Active"`
	Parallel int  `toml:"Parallel"`
}

// XFRConfig holds the [XFR] section.
type XFRConfig struct {
	Active   bool `toml:"Active"`
	Parallel int  `toml:"Parallel"`
}

// ScannerConfig holds the [Scanner] section.
type ScannerConfig struct {
	Active   bool `toml:"Active"`
	Parallel int  `toml:"Parallel"`
}

// WebConfig holds the [Web] section controlling the optional read-only
// inspector.
type WebConfig struct {
	Active bool   `toml:"Active"`
	Addr   string `toml:"Addr"`
	Port   int    `toml:"Port"`
}

// Config is the parsed contents of pykuang.toml. Unknown keys in the
// file are ignored by go-toml's default decode behavior, matching §6's
// "unknown keys are ignored" contract.
type Config struct {
	Generator GeneratorConfig `toml:"Generator"`
	XFR       XFRConfig       `toml:"XFR"`
	Scanner   ScannerConfig   `toml:"Scanner"`
	Web       WebConfig       `toml:"Web"`
}

// Default returns the configuration written to a fresh base directory.
func Default() Config {
	return Config{
		Generator: GeneratorConfig{Active: true, Parallel: 4},
		XFR:       XFRConfig{Active: true, Parallel: 2},
		Scanner:   ScannerConfig{Active: true, Parallel: 4},
		Web:       WebConfig{Active: false, Addr: "127.0.0.1", Port: 9191},
	}
}

// Load reads the config file at path, creating it with default contents
// if it does not yet exist.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if werr := Write(path, cfg); werr != nil {
			return Config{}, werr
		}
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Write serializes cfg as TOML to path.
func Write(path string, cfg Config) error {
	raw, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

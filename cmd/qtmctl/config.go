package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ctlConfig carries the resolved defaults for a qtmctl invocation.
// Command-line flags override whatever the defaults file provides.
type ctlConfig struct {
	Addr            string
	ProtocolVersion string
	CommandTimeout  time.Duration
}

func defaultCtlConfig() ctlConfig {
	return ctlConfig{
		Addr:            "localhost:22223",
		ProtocolVersion: "1.23",
		CommandTimeout:  2 * time.Second,
	}
}

// fileConfig is the TOML shape of the defaults file. Durations are
// strings so the file can say "500ms" instead of nanosecond counts.
type fileConfig struct {
	Addr            string `toml:"addr"`
	ProtocolVersion string `toml:"protocol_version"`
	CommandTimeout  string `toml:"command_timeout"`
}

// loadCtlConfig reads the defaults file at path, falling back to the
// built-in defaults for anything the file leaves out. An empty path
// means no file, pure defaults.
func loadCtlConfig(path string) (ctlConfig, error) {
	cfg := defaultCtlConfig()
	if path == "" {
		return cfg, nil
	}

	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return cfg, fmt.Errorf("defaults file %s: %w", path, err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(fc.Addr)
	}
	if meta.IsDefined("protocol_version") {
		cfg.ProtocolVersion = strings.TrimSpace(fc.ProtocolVersion)
	}
	if meta.IsDefined("command_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(fc.CommandTimeout))
		if err != nil {
			return cfg, fmt.Errorf("defaults file %s: command_timeout: %w", path, err)
		}
		cfg.CommandTimeout = d
	}
	return cfg, nil
}

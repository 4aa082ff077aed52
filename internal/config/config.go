package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type BridgeConfig struct {
	Name            string   `toml:"name"`
	QTMAddr         string   `toml:"qtm_addr"`
	ProtocolVersion string   `toml:"protocol_version"`
	StreamArgs      []string `toml:"stream_args"`
	Units           string   `toml:"units"`
	HTTPAddr        string   `toml:"http_addr"`
	CORSOrigins     []string `toml:"cors_origins"`
	CommandTimeout  string   `toml:"command_timeout"`
}

func LoadBridgeConfig(path string) (BridgeConfig, error) {
	var cfg BridgeConfig
	if err := loadToml(path, &cfg); err != nil {
		return BridgeConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "qtm-bridge"
	}
	if cfg.QTMAddr == "" {
		cfg.QTMAddr = "localhost:22223"
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = "1.23"
	}
	if len(cfg.StreamArgs) == 0 {
		cfg.StreamArgs = []string{"AllFrames", "6D"}
	}
	if cfg.Units == "" {
		cfg.Units = "m"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":9200"
	}
	if err := ValidateBridgeConfig(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

type CtlConfig struct {
	Addr            string `toml:"addr"`
	ProtocolVersion string `toml:"protocol_version"`
	CommandTimeout  string `toml:"command_timeout"`
}

func LoadCtlConfig(path string) (CtlConfig, error) {
	var cfg CtlConfig
	if err := loadToml(path, &cfg); err != nil {
		return CtlConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:22223"
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = "1.23"
	}
	if err := ValidateCtlConfig(cfg); err != nil {
		return CtlConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateBridgeConfig(cfg BridgeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("bridge config missing name")
	}
	if strings.TrimSpace(cfg.QTMAddr) == "" {
		return fmt.Errorf("bridge config missing qtm_addr")
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		return fmt.Errorf("bridge config missing http_addr")
	}
	if strings.TrimSpace(cfg.ProtocolVersion) == "" {
		return fmt.Errorf("bridge config missing protocol_version")
	}
	switch cfg.Units {
	case "m", "mm":
	default:
		return fmt.Errorf("bridge config units must be \"m\" or \"mm\", got %q", cfg.Units)
	}
	if cfg.CommandTimeout != "" {
		if _, err := time.ParseDuration(cfg.CommandTimeout); err != nil {
			return fmt.Errorf("bridge config command_timeout invalid: %w", err)
		}
	}
	return nil
}

func ValidateCtlConfig(cfg CtlConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("ctl config missing addr")
	}
	if cfg.CommandTimeout != "" {
		if _, err := time.ParseDuration(cfg.CommandTimeout); err != nil {
			return fmt.Errorf("ctl config command_timeout invalid: %w", err)
		}
	}
	return nil
}

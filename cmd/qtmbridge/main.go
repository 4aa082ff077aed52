package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danmuck/qtmctl/internal/bridge"
	"github.com/danmuck/qtmctl/internal/config"
	"github.com/danmuck/qtmctl/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to bridge TOML config")
	flag.Parse()

	cfg := bridge.DefaultServiceConfig()
	if *configPath != "" {
		fileCfg, err := config.LoadBridgeConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "qtmbridge: %v\n", err)
			os.Exit(1)
		}
		cfg, err = serviceConfigFrom(fileCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "qtmbridge: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.Logger = observability.InitLogger(cfg.Name)

	svc := bridge.NewService(cfg)
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "qtmbridge: %v\n", err)
		os.Exit(1)
	}
}

func serviceConfigFrom(file config.BridgeConfig) (bridge.ServiceConfig, error) {
	cfg := bridge.DefaultServiceConfig()
	cfg.Name = file.Name
	cfg.QTMAddr = file.QTMAddr
	cfg.ProtocolVersion = file.ProtocolVersion
	cfg.StreamArgs = file.StreamArgs
	cfg.Units = file.Units
	cfg.HTTPAddr = file.HTTPAddr
	cfg.CORSOrigins = file.CORSOrigins
	if file.CommandTimeout != "" {
		d, err := time.ParseDuration(file.CommandTimeout)
		if err != nil {
			return bridge.ServiceConfig{}, fmt.Errorf("parse command_timeout: %w", err)
		}
		cfg.CommandTimeout = d
	}
	return cfg, nil
}

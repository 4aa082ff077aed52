package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadBridgeConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadBridgeConfig(writeConfig(t, `name = "lab-a"`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "lab-a" {
		t.Fatalf("name = %q", cfg.Name)
	}
	if cfg.QTMAddr != "localhost:22223" {
		t.Fatalf("qtm_addr default = %q", cfg.QTMAddr)
	}
	if cfg.ProtocolVersion != "1.23" {
		t.Fatalf("protocol_version default = %q", cfg.ProtocolVersion)
	}
	if !reflect.DeepEqual(cfg.StreamArgs, []string{"AllFrames", "6D"}) {
		t.Fatalf("stream_args default = %q", cfg.StreamArgs)
	}
	if cfg.Units != "m" {
		t.Fatalf("units default = %q", cfg.Units)
	}
	if cfg.HTTPAddr != ":9200" {
		t.Fatalf("http_addr default = %q", cfg.HTTPAddr)
	}
}

func TestLoadBridgeConfigOverrides(t *testing.T) {
	cfg, err := LoadBridgeConfig(writeConfig(t, `
name = "lab-b"
qtm_addr = "mocap.lab:22223"
protocol_version = "1.25"
stream_args = ["Frequency:50", "6DEuler"]
units = "mm"
http_addr = ":8080"
cors_origins = ["http://localhost:3000"]
command_timeout = "500ms"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QTMAddr != "mocap.lab:22223" || cfg.Units != "mm" {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.StreamArgs, []string{"Frequency:50", "6DEuler"}) {
		t.Fatalf("stream_args = %q", cfg.StreamArgs)
	}
}

func TestLoadBridgeConfigRejectsBadUnits(t *testing.T) {
	_, err := LoadBridgeConfig(writeConfig(t, `units = "feet"`))
	if err == nil || !strings.Contains(err.Error(), "units") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadBridgeConfigRejectsBadTimeout(t *testing.T) {
	_, err := LoadBridgeConfig(writeConfig(t, `command_timeout = "soon"`))
	if err == nil || !strings.Contains(err.Error(), "command_timeout") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadBridgeConfigMissingFile(t *testing.T) {
	if _, err := LoadBridgeConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadCtlConfig(t *testing.T) {
	cfg, err := LoadCtlConfig(writeConfig(t, `command_timeout = "3s"`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "localhost:22223" || cfg.ProtocolVersion != "1.23" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.CommandTimeout != "3s" {
		t.Fatalf("command_timeout = %q", cfg.CommandTimeout)
	}

	if _, err := LoadCtlConfig(writeConfig(t, `command_timeout = "never"`)); err == nil {
		t.Fatal("expected invalid timeout error")
	}
}

func TestTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.toml")
	if err := WriteTemplate(path, "bridge", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if _, err := LoadBridgeConfig(path); err != nil {
		t.Fatalf("template does not load cleanly: %v", err)
	}
	if err := WriteTemplate(path, "bridge", false); err == nil {
		t.Fatal("expected overwrite refusal")
	}
	if err := WriteTemplate(path, "bridge", true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
	ctlPath := filepath.Join(t.TempDir(), "ctl.toml")
	if err := WriteTemplate(ctlPath, "ctl", false); err != nil {
		t.Fatalf("write ctl template: %v", err)
	}
	if _, err := LoadCtlConfig(ctlPath); err != nil {
		t.Fatalf("ctl template does not load cleanly: %v", err)
	}
	if _, err := Template("mocap"); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

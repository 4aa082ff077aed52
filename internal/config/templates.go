package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "bridge":
		return bridgeTemplate, nil
	case "ctl":
		return ctlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const bridgeTemplate = `name = "qtm-bridge"
qtm_addr = "localhost:22223"
protocol_version = "1.23"
stream_args = ["AllFrames", "6D"]
units = "m"
http_addr = ":9200"
cors_origins = ["http://localhost:3000"]
command_timeout = "1s"
`

const ctlTemplate = `addr = "localhost:22223"
protocol_version = "1.23"
command_timeout = "2s"
`

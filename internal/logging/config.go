package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "QTMCTL_LOG_LEVEL"
	EnvLogNoColor = "QTMCTL_LOG_NOCOLOR"
	EnvLogFormat  = "QTMCTL_LOG_FORMAT"
)

// Log output encodings.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure sets the global zerolog level once per process. The first
// caller wins; later profiles are ignored.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		lvl := defaultLevel(profile)
		if env, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			lvl = env
		}
		zerolog.SetGlobalLevel(lvl)
	})
}

func defaultLevel(profile Profile) zerolog.Level {
	if profile == ProfileTest {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// NoColor reports whether console output should skip ANSI color.
func NoColor() bool {
	v, ok := parseBool(os.Getenv(EnvLogNoColor))
	return ok && v
}

// OutputFormat reports the configured log encoding. Anything but an
// explicit json request means console.
func OutputFormat() string {
	if strings.EqualFold(strings.TrimSpace(os.Getenv(EnvLogFormat)), FormatJSON) {
		return FormatJSON
	}
	return FormatConsole
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

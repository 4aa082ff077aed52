package qtm

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/qtmctl/internal/protocol"
)

// Config defines session reply deadlines and logging.
type Config struct {
	// CommandTimeout bounds the wait for each command reply.
	CommandTimeout time.Duration
	// BannerTimeout bounds the wait for the connection greeting.
	BannerTimeout time.Duration
	// Logger receives stream diagnostics. The zero value discards them.
	Logger zerolog.Logger
	// OnEvent, when set, observes every event the session consumes while
	// waiting for replies or streaming. Called from the receiving
	// goroutine; keep it fast.
	OnEvent func(protocol.Event)
}

// DefaultConfig returns the protocol defaults: one second per reply wait.
func DefaultConfig() Config {
	return Config{
		CommandTimeout: time.Second,
		BannerTimeout:  time.Second,
		Logger:         zerolog.Nop(),
	}
}

// WithDefaults fills unset durations from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = def.CommandTimeout
	}
	if c.BannerTimeout <= 0 {
		c.BannerTimeout = def.BannerTimeout
	}
	return c
}

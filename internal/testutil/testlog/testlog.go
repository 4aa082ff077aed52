package testlog

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/qtmctl/internal/logging"
)

// Start applies the test logging profile and returns a logger whose output
// lands in the test log, so failures show the component's view of events.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	logger.Info().Str("test", t.Name()).Msg("start")
	return logger
}

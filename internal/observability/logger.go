package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qtmctl/internal/logging"
)

// InitLogger builds the process logger and installs it as the zerolog
// global. Interactive use gets the console writer; daemon deployments
// switch to plain JSON with QTMCTL_LOG_FORMAT=json.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := zerolog.New(logWriter()).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

func logWriter() io.Writer {
	if logging.OutputFormat() == logging.FormatJSON {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    logging.NoColor(),
	}
}

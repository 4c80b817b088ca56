package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func SetupLogger() {
	SetupLoggerWithOutput(os.Stderr)
}

// SetupLoggerWithOutput installs the console logger writing to out. Color stays
// off so log lines interleave cleanly with progress output.
func SetupLoggerWithOutput(out io.Writer) {
	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("[ %s ]", i)
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func GetLogger() zerolog.Logger {
	return log.Logger
}

package store

import (
	"os"

	"github.com/rs/zerolog"
)

// newLogger builds a component-tagged zerolog.Logger: console-pretty output,
// a "component" field identifying the subsystem, nothing fancier. Logging
// here is diagnostic only (open/close, busy timeout, corruption, failed
// auto-checkpoint) and never substitutes for a returned Status.
func newLogger(component string) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(out).With().Timestamp().Str("component", component).Logger()
}

// Package logging defines the structured-logging contract shared by every
// pipeline stage.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the minimal structured-logging contract every stage depends on.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything; useful in tests.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// Zerolog adapts a zerolog.Logger to the Logger contract, pairing each
// key/value pair passed as args into structured fields.
type Zerolog struct {
	log zerolog.Logger
}

// NewZerolog builds a logger that writes JSON lines to stderr at the given level
// ("debug", "info", "warn", "error"; unrecognized values fall back to info).
func NewZerolog(level string) *Zerolog {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &Zerolog{
		log: zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger(),
	}
}

func (z *Zerolog) Debug(msg string, args ...interface{}) { z.event(z.log.Debug(), msg, args) }
func (z *Zerolog) Info(msg string, args ...interface{})  { z.event(z.log.Info(), msg, args) }
func (z *Zerolog) Warn(msg string, args ...interface{})  { z.event(z.log.Warn(), msg, args) }
func (z *Zerolog) Error(msg string, args ...interface{}) { z.event(z.log.Error(), msg, args) }

func (z *Zerolog) event(e *zerolog.Event, msg string, args []interface{}) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	e.Msg(msg)
}

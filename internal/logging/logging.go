// Package logging builds the process logger on logrus and adapts it to the
// key/value Logger interface used by the service layer.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	Level  string // debug, info, warn or error; default info
	Format string // json or text; default json
	Output io.Writer
}

// New returns a configured logrus logger.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if opts.Output != nil {
		log.SetOutput(opts.Output)
	}
	level := logrus.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	log.SetLevel(level)
	switch strings.ToLower(opts.Format) {
	case "", "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return log, nil
}

// Adapter implements core.Logger on a logrus entry.
type Adapter struct {
	entry *logrus.Entry
}

// NewAdapter wraps log. Component, when set, is attached to every line.
func NewAdapter(log *logrus.Logger, component string) *Adapter {
	entry := logrus.NewEntry(log)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return &Adapter{entry: entry}
}

// Entry exposes the underlying entry for callers that log with fields.
func (a *Adapter) Entry() *logrus.Entry { return a.entry }

// With returns an adapter carrying the extra key/value pairs.
func (a *Adapter) With(args ...any) *Adapter {
	return &Adapter{entry: a.entry.WithFields(Fields(args...))}
}

func (a *Adapter) Debug(msg string, args ...any) { a.entry.WithFields(Fields(args...)).Debug(msg) }
func (a *Adapter) Info(msg string, args ...any)  { a.entry.WithFields(Fields(args...)).Info(msg) }
func (a *Adapter) Warn(msg string, args ...any)  { a.entry.WithFields(Fields(args...)).Warn(msg) }
func (a *Adapter) Error(msg string, args ...any) { a.entry.WithFields(Fields(args...)).Error(msg) }

// Fields converts alternating key/value pairs to logrus fields. Non-string
// keys are formatted; a trailing key without value is kept under "!BADKEY".
func Fields(args ...any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		v := args[i+1]
		if err, isErr := v.(error); isErr && err != nil {
			v = err.Error()
		}
		fields[key] = v
	}
	return fields
}

// Package logging builds the zerolog logger used across synctogit.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure Setup.
type Options struct {
	// Level is a zerolog level name. Defaults to info.
	Level string

	// File enables a rotating JSON log file in addition to the console.
	File string

	// Quiet buffers console output and prints it only when Flush is called,
	// which the CLI does on failure.
	Quiet bool

	// JSON writes JSON to the console instead of the human format.
	JSON bool

	// Out is the console writer. Defaults to os.Stderr.
	Out io.Writer
}

// Sink owns the outputs of a logger built by Setup.
type Sink struct {
	mu     sync.Mutex
	buf    *bytes.Buffer
	out    io.Writer
	closer io.Closer
}

// Setup returns a logger configured by opts and the sink behind it.
func Setup(opts Options) (zerolog.Logger, *Sink, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	sink := &Sink{out: out}

	var console io.Writer = out
	if opts.Quiet {
		sink.buf = &bytes.Buffer{}
		console = &lockedWriter{mu: &sink.mu, w: sink.buf}
	}
	if !opts.JSON {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.DateTime, NoColor: opts.Quiet}
	}

	writers := []io.Writer{console}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		sink.closer = lj
		writers = append(writers, lj)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return logger, sink, nil
}

// Flush writes buffered quiet-mode output to the console.
func (s *Sink) Flush() {
	if s == nil || s.buf == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.out.Write(s.buf.Bytes())
	s.buf.Reset()
}

// Close releases the log file.
func (s *Sink) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

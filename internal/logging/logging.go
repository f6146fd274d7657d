package logging

import (
	"io"
	"log"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultUIBuffer = 256

type Options struct {
	// File is the rotating log file. Empty logs to the UI only.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	UIBuffer   int
}

// Logging owns the application logger and the line feed for the log pane.
type Logging struct {
	Logger  *log.Logger
	UILines <-chan string
	file    *lumberjack.Logger
}

func New(opts Options) *Logging {
	if opts.UIBuffer <= 0 {
		opts.UIBuffer = DefaultUIBuffer
	}
	lines := make(chan string, opts.UIBuffer)
	writers := []io.Writer{&ChannelWriter{ch: lines}}

	l := &Logging{UILines: lines}
	if opts.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, l.file)
	}
	l.Logger = log.New(io.MultiWriter(writers...), "", log.LstdFlags|log.Lmicroseconds)
	return l
}

func (l *Logging) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ChannelWriter turns log output into lines on a channel. Lines are
// dropped when the reader falls behind; logging never blocks.
type ChannelWriter struct {
	ch chan<- string
}

func NewChannelWriter(ch chan<- string) *ChannelWriter {
	return &ChannelWriter{ch: ch}
}

func (w *ChannelWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		select {
		case w.ch <- line:
		default:
		}
	}
	return len(p), nil
}

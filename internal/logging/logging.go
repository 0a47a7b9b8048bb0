// Package logging builds the process slog handler: a text handler on
// stderr, plus optional JSON-file and systemd-journal sinks, fanned out
// with slog-multi.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options selects sinks.
type Options struct {
	Level   slog.Leveler
	Stderr  io.Writer // text sink; nil means os.Stderr
	File    string    // JSON sink path; empty disables it
	Journal bool      // systemd journal sink
}

// New returns a logger and a close function for any file it opened.
// A journal that cannot be reached is reported on the text sink and
// skipped rather than failing startup.
func New(opts Options) (*slog.Logger, func() error, error) {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	closer := func() error { return nil }

	text := slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: opts.Level})
	handlers := []slog.Handler{text}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: opts.Level}))
		closer = f.Close
	}

	if opts.Journal {
		jh, err := slogjournal.NewHandler(&slogjournal.Options{
			Level:        opts.Level,
			ReplaceGroup: toJournalKey,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			slog.New(text).Warn("systemd journal unavailable", "error", err)
		} else {
			handlers = append(handlers, jh)
		}
	}

	if len(handlers) == 1 {
		return slog.New(text), closer, nil
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// toJournalKey maps attribute keys to journal field names, which must be
// upper-case letters, digits and underscores.
func toJournalKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(key))
}

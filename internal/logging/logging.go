// Package logging provides the timestamped console log used by the pipeline:
//
//	[2025-10-16 09:30:00] OK    [ANEXO_4] 2025/OCTUBRE/CUSCO/ficha.xlsx procesado
//
// It is a slog.Handler with an extra OK level between INFO and WARN.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LevelOK successful completion of a unit of work
const LevelOK = slog.Level(2)

// TagKey attribute rendered as the bracketed prefix instead of key=value
const TagKey = "anexo"

const timeLayout = "2006-01-02 15:04:05"

// ParseLevel parses debug, info, ok, warn or error
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "ok":
		return LevelOK, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LevelName fixed-width label of a level
func LevelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < LevelOK:
		return "INFO"
	case l < slog.LevelWarn:
		return "OK"
	case l < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Handler writes one plain text line per record
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	tag    string
	prefix string // preformatted attrs from WithAttrs
	group  string
	now    func() time.Time
}

// NewHandler creates a handler writing to w at the given minimum level
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{mu: &sync.Mutex{}, w: w, level: level, now: time.Now}
}

// New returns a logger backed by a Handler
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewHandler(w, level))
}

// Enabled implements slog.Handler
func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle implements slog.Handler
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = h.now()
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(ts.Format(timeLayout))
	b.WriteString("] ")
	fmt.Fprintf(&b, "%-5s ", LevelName(r.Level))

	tag := h.tag
	var attrs strings.Builder
	attrs.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == TagKey && h.group == "" {
			tag = a.Value.String()
			return true
		}
		appendAttr(&attrs, h.group, a)
		return true
	})

	if tag != "" {
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("] ")
	}
	b.WriteString(r.Message)
	b.WriteString(attrs.String())
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs implements slog.Handler
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		if a.Key == TagKey && h.group == "" {
			h2.tag = a.Value.String()
			continue
		}
		appendAttr(&b, h.group, a)
	}
	h2.prefix = b.String()
	return &h2
}

// WithGroup implements slog.Handler
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	if h.group != "" {
		h2.group = h.group + "." + name
	} else {
		h2.group = name
	}
	return &h2
}

func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			appendAttr(b, key, ga)
		}
		return
	}

	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(quoteIfNeeded(a.Value.String()))
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// OK logs at LevelOK
func OK(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelOK, msg, args...)
}

// Discard logger that drops everything, for tests and library defaults
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

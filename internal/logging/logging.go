// Package logging wraps log/slog the way the rest of the assembler pack
// does: a small handler with a mutex-guarded writer and a verbose/debug
// toggle, instead of a bespoke fmt.Println scheme.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler formats records as "time level message attr1 attr2 ..." and
// always forwards warnings and above to stderr regardless of verbosity.
type Handler struct {
	out   io.Writer
	h     slog.Handler
	mu    *sync.Mutex
	debug bool
	attrs []slog.Attr
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &Handler{out: h.out, h: h.h.WithAttrs(attrs), mu: h.mu, debug: h.debug, attrs: merged}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithGroup(name), mu: h.mu, debug: h.debug, attrs: h.attrs}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	fields := []string{r.Time.Format("15:04:05"), r.Level.String() + ":", r.Message}
	for _, a := range h.attrs {
		fields = append(fields, a.Key+"="+a.Value.String())
	}

	if r.NumAttrs() != 0 {
		r.Attrs(func(a slog.Attr) bool {
			fields = append(fields, a.Key+"="+a.Value.String())
			return true
		})
	}
	line := strings.Join(fields, " ") + "\n"
	b := []byte(line)

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write(b)
	}
	if h.debug || r.Level >= slog.LevelWarn {
		_, err = os.Stderr.Write(b)
	}
	return err
}

// New builds a slog.Logger writing to out, with debug controlling
// whether info/debug records also echo to stderr (warnings/errors
// always do).
func New(out io.Writer, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if debug {
		opts.Level = slog.LevelDebug
	}
	h := &Handler{
		out:   out,
		h:     slog.NewTextHandler(out, opts),
		mu:    &sync.Mutex{},
		debug: debug,
	}
	return slog.New(h)
}

// WithKind attaches a diag.Kind-shaped "kind" attribute so structured
// output carries the §7 error taxonomy alongside the human banner.
func WithKind(l *slog.Logger, kind string) *slog.Logger {
	return l.With(slog.String("kind", kind))
}

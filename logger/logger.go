// This file is part of dwarfcore.
//
// dwarfcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// dwarfcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with dwarfcore.  If not, see <https://www.gnu.org/licenses/>.

// Package logger is a small, process-wide log of tagged one-line entries,
// kept in a bounded ring buffer so a CLI or a long-running caller can dump
// recent activity without itself tracking a history. NewLogger additionally
// exposes the same entries through the standard log/slog interface, fanned
// out to an io.Writer alongside the ring buffer via slog-multi.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// capacity bounds the ring buffer; the oldest entry is discarded once a
// newer one would exceed it.
const capacity = 1000

type entry struct {
	tag    string
	detail string
}

var (
	mu  sync.Mutex
	buf []entry
)

// Log appends one entry to the log, formatting detail like fmt.Sprint of
// its single argument.
func Log(tag string, detail string) {
	push(tag, detail)
}

// Logf appends one entry, formatting detail like fmt.Sprintf.
func Logf(tag string, format string, args ...any) {
	push(tag, fmt.Sprintf(format, args...))
}

func push(tag, detail string) {
	mu.Lock()
	defer mu.Unlock()
	buf = append(buf, entry{tag: tag, detail: detail})
	if len(buf) > capacity {
		buf = buf[len(buf)-capacity:]
	}
}

// Clear empties the log.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	buf = nil
}

// Write writes every entry currently in the log to w, one "tag: detail" per
// line, oldest first.
func Write(w io.Writer) error {
	mu.Lock()
	entries := append([]entry(nil), buf...)
	mu.Unlock()
	return writeEntries(w, entries)
}

// Tail writes the most recent n entries to w, oldest first. Asking for more
// entries than the log holds is not an error; every entry is written.
func Tail(w io.Writer, n int) error {
	mu.Lock()
	start := 0
	if n < len(buf) {
		start = len(buf) - n
	}
	entries := append([]entry(nil), buf[start:]...)
	mu.Unlock()
	return writeEntries(w, entries)
}

func writeEntries(w io.Writer, entries []entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s: %s\n", e.tag, e.detail); err != nil {
			return err
		}
	}
	return nil
}

// ringHandler is an slog.Handler that appends every record to the package's
// ring buffer, using the value of its "component" attribute (if any, else
// its level) as the tag.
type ringHandler struct {
	attrs []slog.Attr
}

func (h *ringHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *ringHandler) Handle(_ context.Context, r slog.Record) error {
	tag := r.Level.String()
	for _, a := range h.attrs {
		if a.Key == "component" {
			tag = a.Value.String()
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			tag = a.Value.String()
		}
		return true
	})
	push(tag, r.Message)
	return nil
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringHandler{attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *ringHandler) WithGroup(_ string) slog.Handler { return h }

// NewLogger returns an slog.Logger that writes structured log lines to out
// and, in parallel, appends a one-line summary of each record to the
// package's ring buffer (retrievable later via Tail or Write), fanned out
// with slog-multi.
func NewLogger(out io.Writer) *slog.Logger {
	fanout := slogmulti.Fanout(
		slog.NewTextHandler(out, nil),
		&ringHandler{},
	)
	return slog.New(fanout)
}

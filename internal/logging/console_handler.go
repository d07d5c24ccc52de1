package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one logcat style line per record:
//
//	01-02 15:04:05.000 I installer(installing): image verified section=SYSTEM written_bytes="12.0 MiB"
//
// The component and state attributes move into the tag. Keys listed in
// debugOnlyKeys are dropped unless the handler runs at debug level.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	attrs     []kv
	groups    []string
	addSource bool
}

type kv struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]kv(nil), h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendAttr(fields, h.groups, attr)
		return true
	})
	fields = lastWins(fields)

	verbose := h.level.Level() <= slog.LevelDebug
	component, state := "update-engine", ""
	var line bytes.Buffer
	line.Grow(96 + 24*len(fields))
	var tail bytes.Buffer
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = attrString(f.value)
			continue
		case FieldState:
			state = attrString(f.value)
			continue
		}
		if _, hidden := debugOnlyKeys[f.key]; hidden && !verbose {
			continue
		}
		tail.WriteByte(' ')
		tail.WriteString(f.key)
		tail.WriteByte('=')
		tail.WriteString(formatValueForKey(f.key, f.value))
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line.WriteString(formatTimestamp(ts))
	line.WriteByte(' ')
	line.WriteByte(levelLetter(record.Level))
	line.WriteByte(' ')
	line.WriteString(component)
	if state != "" {
		line.WriteString("(" + state + ")")
	}
	line.WriteString(": ")
	line.WriteString(strings.TrimSpace(record.Message))
	line.Write(tail.Bytes())
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			line.WriteString(" (" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + ")")
		}
	}
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(line.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]kv(nil), h.attrs...)
	for _, attr := range attrs {
		next.attrs = appendAttr(next.attrs, h.groups, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

// appendAttr flattens attr into dst, joining group names with dots.
func appendAttr(dst []kv, groups []string, attr slog.Attr) []kv {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := groups
		if attr.Key != "" {
			inner = append(append([]string(nil), groups...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			dst = appendAttr(dst, inner, member)
		}
		return dst
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(dst, kv{key: key, value: attr.Value})
}

// lastWins keeps the first position of every key with its last value.
func lastWins(fields []kv) []kv {
	index := make(map[string]int, len(fields))
	out := fields[:0:0]
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func levelLetter(level slog.Level) byte {
	switch {
	case level >= slog.LevelError:
		return 'E'
	case level >= slog.LevelWarn:
		return 'W'
	case level >= slog.LevelInfo:
		return 'I'
	default:
		return 'D'
	}
}

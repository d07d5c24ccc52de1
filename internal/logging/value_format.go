package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// consoleTimeLayout follows logcat: the device clock is often unset at boot,
// so the year carries no information.
const consoleTimeLayout = "01-02 15:04:05.000"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(consoleTimeLayout)
}

// attrString renders a value without quoting, for the console tag.
func attrString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.String()
}

// formatValueForKey renders a console value. Byte counts use binary units and
// progress percentages are rounded.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	if key == "bytes" || strings.HasSuffix(key, "_bytes") {
		switch v.Kind() {
		case slog.KindInt64:
			return quoteIfNeeded(FormatBytes(v.Int64()))
		case slog.KindUint64:
			return quoteIfNeeded(FormatBytes(int64(v.Uint64())))
		}
	}
	if key == FieldProgressPercent && v.Kind() == slog.KindFloat64 {
		return strconv.FormatFloat(v.Float64(), 'f', 0, 64) + "%"
	}
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quoteIfNeeded(err.Error())
		}
		return quoteIfNeeded(fmt.Sprint(v.Any()))
	default:
		return quoteIfNeeded(v.String())
	}
}

// FormatBytes renders a byte count using binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// quoteIfNeeded keeps key=value pairs splittable on spaces.
func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '"' || r == '=' }) {
		return strconv.Quote(s)
	}
	return s
}

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestTeeWithoutFileIsConsole(t *testing.T) {
	console := slog.NewTextHandler(&bytes.Buffer{}, nil)
	if h := newTeeHandler(console, nil); h != console {
		t.Fatal("expected the console handler when no log file is configured")
	}
}

func TestTeeFileReceivesDebug(t *testing.T) {
	var console, file bytes.Buffer
	consoleLevel := new(slog.LevelVar)
	fileLevel := new(slog.LevelVar)
	fileLevel.Set(slog.LevelDebug)

	h := newTeeHandler(slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: consoleLevel}),
		newJSONHandler(&file, fileLevel, false))
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("tee must accept debug when the file handler does")
	}

	logger := slog.New(h)
	logger.Debug("decoder chain started")
	if console.Len() != 0 {
		t.Fatalf("console received a debug record: %s", console.String())
	}
	if !strings.Contains(file.String(), `"level":"debug"`) {
		t.Fatalf("file copy missing lower-case level: %s", file.String())
	}

	console.Reset()
	file.Reset()
	logger.With(FieldAttemptID, "a1").WithGroup("slot").Info("target resolved", slog.String("target", "b"))
	for name, buf := range map[string]*bytes.Buffer{"console": &console, "file": &file} {
		if !strings.Contains(buf.String(), `"attempt_id":"a1"`) || !strings.Contains(buf.String(), `"slot":{"target":"b"}`) {
			t.Fatalf("%s output lost attributes: %s", name, buf.String())
		}
	}
}

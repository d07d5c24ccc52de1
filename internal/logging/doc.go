// Package logging assembles the structured slog loggers used by the update
// engine.
//
// It owns the console and JSON handlers, the level and output plumbing, and
// helpers that tag every line of one update attempt with the same attempt id
// so a device log can be read back per attempt. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging

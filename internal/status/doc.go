// Package status owns the status directory an external monitor polls while
// an update runs.
//
// Five scalar files describe an attempt: expected-download-size,
// expected-size, progress, error and done. Each is overwritten in place on
// every write. The directory is cleared at the start of an attempt (and by
// the no-argument invocation) and otherwise left alone, so a finished
// attempt stays inspectable until the next run.
//
// Fail is the only way an error reaches the error file. The command line
// driver calls it exactly once with the terminal error and exits with the
// code it returns.
package status

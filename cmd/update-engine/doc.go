// Command update-engine installs an over-the-air update package into the
// inactive slot.
//
// Without arguments it clears the status directory. Given a URL it streams the
// package, writes the target slot, and switches the active slot on success.
// The process exit code is the failure code of the attempt, and the error
// text is left in the status directory for the robot's UI.
//
// The status and check subcommands are diagnostics for a developer shell.
package main

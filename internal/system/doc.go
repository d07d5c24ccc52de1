// Package system wraps the external device tools the update engine relies
// on: the slot selector (bootctl), sync, mount/umount and the property
// reader (getprop).
//
// Every tool is invoked through a Runner so tests can substitute a recorder
// for real processes. The default runner captures stdout and stderr and
// reports the exit status rather than treating a non-zero exit as a Go error;
// the tool wrappers decide what a non-zero exit means.
package system

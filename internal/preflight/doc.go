// Package preflight provides readiness checks for the external tools, slot
// devices and filesystem paths the update engine depends on.
//
// The checks back the "update-engine check" command. They never modify the
// device: directories are inspected, not created, and the slot devices are
// only stat'ed. The decoder tools are required only for the process backend.
package preflight

package preflight

import (
	"fmt"

	"updateengine/internal/slot"
)

// SlotProbe reports the slot pair resolved from the kernel command line.
type SlotProbe struct {
	Pair slot.Pair
	Err  error
}

// ProbeSlots resolves the slot pair from the command line at path. A missing
// command line falls back to the factory pair and records the error.
func ProbeSlots(path string) SlotProbe {
	pair, err := slot.ResolveFromFile(path)
	return SlotProbe{Pair: pair, Err: err}
}

// Factory reports whether the device is running from the recovery slot.
func (p SlotProbe) Factory() bool {
	return p.Pair.Current == slot.Factory
}

// Detail renders a display-friendly summary for status UIs.
func (p SlotProbe) Detail() string {
	if p.Err != nil {
		return fmt.Sprintf("cannot read command line: %v", p.Err)
	}
	if p.Factory() {
		return fmt.Sprintf("running from recovery, updates go to slot %s", p.Pair.Target)
	}
	return fmt.Sprintf("running from slot %s, updates go to slot %s", p.Pair.Current, p.Pair.Target)
}

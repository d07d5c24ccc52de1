package slot

import (
	"fmt"
	"os"
	"strings"
)

// Slot labels.
const (
	A       = "a"
	B       = "b"
	Factory = "f"
)

const suffixKey = "androidboot.slot_suffix"

// Pair is the running slot and the slot an update is written to.
type Pair struct {
	Current string
	Target  string
}

func (p Pair) String() string {
	return p.Current + "->" + p.Target
}

// ParseCmdline splits a kernel command line into key/value pairs. Bare flags
// map to the empty string.
func ParseCmdline(cmdline string) map[string]string {
	args := make(map[string]string)
	for _, field := range strings.Fields(cmdline) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			args[field] = ""
			continue
		}
		args[key] = value
	}
	return args
}

// Resolve maps the slot suffix to the current/target pair. Unknown or missing
// suffixes resolve to the factory slot updating into slot a.
func Resolve(args map[string]string) Pair {
	switch args[suffixKey] {
	case "_a":
		return Pair{Current: A, Target: B}
	case "_b":
		return Pair{Current: B, Target: A}
	default:
		return Pair{Current: Factory, Target: A}
	}
}

// ReadCmdline reads and parses the kernel command line at path.
func ReadCmdline(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kernel command line: %w", err)
	}
	return ParseCmdline(string(data)), nil
}

// ResolveFromFile reads the command line at path and resolves the slot pair.
// An unreadable command line resolves like a missing suffix.
func ResolveFromFile(path string) (Pair, error) {
	args, err := ReadCmdline(path)
	if err != nil {
		return Resolve(nil), err
	}
	return Resolve(args), nil
}

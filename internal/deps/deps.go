// Package deps reports whether the external programs and files the update
// engine relies on are present.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// Requirement defines an external dependency of the update engine.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := newStatus(req)
		if status.Command == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(status.Command); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckReadableFiles evaluates requirements whose Command is a file path
// that must exist and be readable, such as signing keys.
func CheckReadableFiles(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := newStatus(req)
		switch info, err := os.Stat(status.Command); {
		case status.Command == "":
			status.Detail = "path not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("%s (error: %v)", status.Command, err)
		case info.IsDir():
			status.Detail = fmt.Sprintf("%s (error: is a directory)", status.Command)
		default:
			if err := unix.Access(status.Command, unix.R_OK); err != nil {
				status.Detail = fmt.Sprintf("%s (error: not readable: %v)", status.Command, err)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

func newStatus(req Requirement) Status {
	return Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
}

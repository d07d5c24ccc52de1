package preflight

import (
	"context"
	"fmt"

	"updateengine/internal/config"
	"updateengine/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Status directory", cfg.Paths.StatusDir))
	if cfg.Paths.StagingDir != cfg.Paths.StatusDir {
		results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	}
	results = append(results, CheckDirectoryAccess("Mount point", cfg.Paths.MountPoint))

	probe := ProbeSlots(cfg.Paths.Cmdline)
	results = append(results, Result{Name: "Slots", Passed: probe.Err == nil, Detail: probe.Detail()})
	results = append(results, CheckDevices(cfg.Paths.BootDeviceDir, probe.Pair.Current, probe.Pair.Target)...)

	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, fromStatus(status))
	}
	return results
}

// Failed reports whether any non-optional check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

func fromStatus(status deps.Status) Result {
	if status.Available {
		return Result{Name: status.Name, Passed: true, Detail: status.Command}
	}
	detail := status.Detail
	if status.Description != "" {
		detail = fmt.Sprintf("%s (%s)", detail, status.Description)
	}
	// Optional dependencies are reported but never fail the run.
	return Result{Name: status.Name, Passed: status.Optional, Detail: detail}
}

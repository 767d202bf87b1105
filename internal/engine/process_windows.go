// Copyright 2025 James Ross
//go:build windows

package engine

import "os/exec"

// setDetached is a no-op on Windows: there is no process-group signal
// equivalent to POSIX negative-PID kill, so the engine is tracked and
// killed by its direct PID instead (spec.md 9 Open Question).
func setDetached(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

// Copyright 2025 James Ross
//go:build !windows

package engine

import (
	"os/exec"
	"syscall"
)

// setDetached puts the spawned engine in its own process group so a
// single signal can reach every child it forks.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup signals the whole process group. A negative PID
// targets the group rather than the single process (spec.md 9 Open
// Question: POSIX-only, see process_windows.go for the other branch).
func killProcessGroup(cmd *exec.Cmd) error {
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Kill()
	}
	return syscall.Kill(-pgid, syscall.SIGTERM)
}

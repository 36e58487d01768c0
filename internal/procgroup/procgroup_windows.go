// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Set leaves the command in the caller's job; Windows has no process groups
// reachable through signals.
func Set(*exec.Cmd) {}

// Kill maps SIGKILL to Process.Kill. SIGTERM cannot be delivered on Windows,
// so an encoder only stops gracefully there when its stdin is closed; the
// escalation in Terminate then forces it down after the grace period.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if sig != syscall.SIGKILL {
		return nil
	}
	return cmd.Process.Kill()
}

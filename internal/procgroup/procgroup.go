// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package procgroup contains the process-group plumbing for spawned player
// binaries. Players like vlc fork helpers; killing only the root pid leaks
// them, so engines start their command in a fresh group and tear the whole
// group down.
package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	xglog "github.com/ManuGH/playbackd/internal/log"
)

// Terminate stops a process group gracefully: SIGTERM, wait up to grace for
// the process to exit via waitCh, then SIGKILL and drain. The command MUST
// have been spawned after Set(cmd). Safe on nil commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = Kill(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	lg := xglog.WithComponent("procgroup")
	lg.Warn().
		Int("pid", cmd.Process.Pid).
		Msg("grace period exceeded, sending SIGKILL to process group")
	_ = Kill(cmd, syscall.SIGKILL)

	// waitCh must always be drained so the child is reaped.
	return <-waitCh
}

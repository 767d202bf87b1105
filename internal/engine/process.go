// Copyright 2025 James Ross
package engine

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/obs"
	"go.uber.org/zap"
)

// process tracks the single engine subprocess this worker owns. Only the
// dispatcher calls Restart, and only after a pipeline returns (spec.md 5
// "Shared resources"); pipelines never restart the engine mid-job.
type process struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	name      string
	port      int
	execPath  string
	log       *zap.Logger
}

// Attach wires the process manager for restart support. execPath is the
// engine binary to spawn; name is used only for log correlation since the
// manager tracks its own PID rather than searching by process name
// (spec.md 9 "Ad-hoc subprocess management").
func (c *Client) Attach(execPath, name string, port int, log *zap.Logger) {
	c.proc = &process{execPath: execPath, name: name, port: port, log: log}
}

// RestartGodot kills the currently tracked engine process (if any), waits,
// respawns it detached, and polls IsReady up to 60s (spec.md 4.5).
func (c *Client) RestartGodot(ctx context.Context) error {
	if c.proc == nil {
		return fmt.Errorf("engine process not attached")
	}
	c.proc.mu.Lock()
	defer c.proc.mu.Unlock()

	if c.proc.cmd != nil && c.proc.cmd.Process != nil {
		if err := killProcessGroup(c.proc.cmd); err != nil {
			c.proc.log.Warn("engine kill failed", obs.Err(err))
		}
		time.Sleep(2 * time.Second)
	}

	args := []string{"--headless", "--asset-server", "--asset-server-port", fmt.Sprintf("%d", c.proc.port)}
	cmd := exec.Command(c.proc.execPath, args...)
	setDetached(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn engine: %w", err)
	}
	c.proc.cmd = cmd

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if c.IsReady(ctx) {
			obs.EngineRestartsTotal.Inc()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("engine did not become ready within 60s of restart")
}

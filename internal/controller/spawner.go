package controller

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Spawner launches the broker and service processes as subprocesses of the
// controller. Each service binary lives next to the controller
// binary and is configured entirely through the inherited environment.
type Spawner struct {
	logger zerolog.Logger
	binDir string
	procs  []*exec.Cmd
}

// NewSpawner resolves the directory holding the service binaries from the
// running executable's location.
func NewSpawner(logger zerolog.Logger) (*Spawner, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving executable: %w", err)
	}
	return &Spawner{logger: logger, binDir: filepath.Dir(self)}, nil
}

// Spawn starts count instances of the named service binary. extraEnv
// entries are appended to the inherited environment ("KEY=value" form).
func (s *Spawner) Spawn(ctx context.Context, binary string, count int, extraEnv...string) error {
	for i := 0; i < count; i++ {
		cmd := exec.CommandContext(ctx, filepath.Join(s.binDir, binary))
		cmd.Env = append(os.Environ(), extraEnv...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("%w: spawning %s: %v", ErrLifecycle, binary, err)
		}
		s.logger.Debug().Str("binary", binary).Int("pid", cmd.Process.Pid).Msg("service spawned")
		s.procs = append(s.procs, cmd)
	}
	return nil
}

// SpawnFleet launches the broker first, then every service of the run.
func (s *Spawner) SpawnFleet(ctx context.Context, numWorkers, numRecordProcessors int, telemetryEnabled bool) error {
	if err := s.Spawn(ctx, "aiperf-broker", 1); err != nil {
		return err
	}
	// Give the broker a moment to bind before services dial in; clients
	// reconnect automatically, so this only shortens startup noise.
	time.Sleep(200 * time.Millisecond)

	if err := s.Spawn(ctx, "aiperf-dataset-manager", 1); err != nil {
		return err
	}
	if err := s.Spawn(ctx, "aiperf-records-manager", 1); err != nil {
		return err
	}
	if err := s.Spawn(ctx, "aiperf-record-processor", numRecordProcessors); err != nil {
		return err
	}
	if err := s.Spawn(ctx, "aiperf-worker", numWorkers); err != nil {
		return err
	}
	if err := s.Spawn(ctx, "aiperf-timing-manager", 1); err != nil {
		return err
	}
	if telemetryEnabled {
		if err := s.Spawn(ctx, "aiperf-telemetry-collector", 1); err != nil {
			return err
		}
	}
	return nil
}

// Terminate kills every spawned process that is still running, broker last
func (s *Spawner) Terminate() {
	for i := len(s.procs) - 1; i >= 0; i-- {
		cmd := s.procs[i]
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err != nil {
			s.logger.Debug().Err(err).Int("pid", cmd.Process.Pid).Msg("process kill failed")
		}
		cmd.Wait()
	}
	s.procs = nil
}

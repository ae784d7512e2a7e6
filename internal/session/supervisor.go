// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session orchestrates a graphical session launch: runtime
// preparation, driver linking, then the bus daemon, display server,
// and desktop session in order. Children are spawned detached and the
// launcher never waits on them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tombee/ignite/internal/config"
	"github.com/tombee/ignite/internal/driver"
	"github.com/tombee/ignite/internal/envprep"
	"github.com/tombee/ignite/internal/lifecycle"
	"github.com/tombee/ignite/internal/log"
)

// Spawner launches child processes for one launch step.
type Spawner interface {
	SpawnDetached(binary string, args []string, logPath string) (int, error)
	SpawnDetachedTruncate(binary string, args []string, logPath string) (int, error)
	RunCapture(ctx context.Context, binary string, args []string, logPath string) ([]byte, error)
}

// SpawnerFactory builds a Spawner with the given child environment.
type SpawnerFactory func(env []string) Spawner

func defaultSpawnerFactory(env []string) Spawner {
	return lifecycle.NewSpawner().WithEnv(env)
}

// Recorder persists launch outcomes. Implementations must tolerate
// being called after a partial launch.
type Recorder interface {
	RecordLaunch(ctx context.Context, outcome string, steps []StepResult) error
}

// StepResult describes one launched step.
type StepResult struct {
	Name    string
	PID     int
	LogPath string
}

// Result is the outcome of a completed launch.
type Result struct {
	// Display is the display identifier the session was given, e.g. ":0".
	Display string

	// Identity is the machine identity read back after preparation.
	Identity string

	// DriverTarget is the directory the driver alias points at.
	DriverTarget string

	// BusEnv holds the environment assignments reported by the bus launcher.
	BusEnv map[string]string

	Steps []StepResult
}

// StepStatus is the liveness of one recorded step.
type StepStatus struct {
	Name    string
	PID     int
	Running bool
	Command string
}

// Launch outcomes recorded to history.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Supervisor drives the launch sequence described by the configuration.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	newSpawner SpawnerFactory
	events     *lifecycle.EventLogger
	recorder   Recorder

	waitDriver   bool
	waitReady    bool
	readyTimeout time.Duration
	stopTimeout  time.Duration
}

// NewSupervisor creates a supervisor for the given configuration.
func NewSupervisor(cfg *config.Config, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:          cfg,
		logger:       log.WithComponent(logger, "session"),
		newSpawner:   defaultSpawnerFactory,
		events:       lifecycle.NewEventLogger(cfg.LifecycleLog),
		readyTimeout: 10 * time.Second,
		stopTimeout:  10 * time.Second,
	}
}

// WithSpawnerFactory overrides how child processes are spawned.
func (s *Supervisor) WithSpawnerFactory(f SpawnerFactory) *Supervisor {
	s.newSpawner = f
	return s
}

// WithRecorder sets the launch history recorder.
func (s *Supervisor) WithRecorder(r Recorder) *Supervisor {
	s.recorder = r
	return s
}

// WithEvents overrides the lifecycle event logger.
func (s *Supervisor) WithEvents(e *lifecycle.EventLogger) *Supervisor {
	s.events = e
	return s
}

// WithWaitDriver makes Launch wait for a driver directory to appear
// instead of failing immediately when none matches.
func (s *Supervisor) WithWaitDriver(wait bool) *Supervisor {
	s.waitDriver = wait
	return s
}

// WithWaitReady makes Launch poll each step's readiness socket before
// launching the next step.
func (s *Supervisor) WithWaitReady(wait bool) *Supervisor {
	s.waitReady = wait
	return s
}

// WithReadyTimeout sets the per-step readiness timeout.
func (s *Supervisor) WithReadyTimeout(d time.Duration) *Supervisor {
	s.readyTimeout = d
	return s
}

// Launch runs the full sequence: prepare the runtime environment, link
// the driver alias, then start the bus daemon, display server, and
// desktop session. Children are left running when Launch returns.
//
// A missing driver directory is fatal and returns an error wrapping
// driver.ErrNoDriverDir.
func (s *Supervisor) Launch(ctx context.Context) (*Result, error) {
	result, err := s.launch(ctx)
	if err != nil {
		s.record(ctx, OutcomeFailure, nil)
		return nil, err
	}
	s.record(ctx, OutcomeSuccess, result.Steps)
	return result, nil
}

func (s *Supervisor) launch(ctx context.Context) (*Result, error) {
	cfg := s.cfg

	// Runtime directories and machine identity.
	prep := envprep.NewPreparer(cfg.Runtime.Dir, cfg.Runtime.ExtraDirs, cfg.Runtime.IdentityFile, s.logger)
	if err := prep.Prepare(); err != nil {
		return nil, fmt.Errorf("environment preparation failed: %w", err)
	}
	identity, err := prep.Identity()
	if err != nil {
		return nil, fmt.Errorf("failed to read machine identity: %w", err)
	}

	// Driver alias.
	linker := driver.NewLinker(cfg.Driver.ParentDir, cfg.Driver.Pattern, cfg.Driver.Alias, s.logger)
	if s.waitDriver && cfg.Driver.WaitTimeout > 0 {
		if err := linker.WaitForMatch(ctx, cfg.Driver.WaitTimeout); err != nil {
			s.events.LogFatal("driver", err)
			return nil, err
		}
	}
	target, err := linker.Link()
	if err != nil {
		s.events.LogFatal("driver", err)
		return nil, err
	}

	plan := BuildPlan(cfg)
	result := &Result{
		Display:      plan.DisplayName,
		Identity:     identity,
		DriverTarget: target,
	}

	baseEnv := NewEnvironment(os.Environ())

	// Bus daemon. The launcher binary prints environment assignments on
	// stdout and forks the daemon itself, so it is run to completion
	// rather than spawned detached.
	busVars, busPID, err := s.launchBus(ctx, plan.Bus, baseEnv)
	if err != nil {
		return nil, err
	}
	result.BusEnv = busVars
	result.Steps = append(result.Steps, StepResult{Name: StepBus, PID: busPID, LogPath: plan.Bus.LogPath})

	// Display server. Every step after the bus sees its environment
	// assignments.
	displayEnv := NewEnvironment(os.Environ())
	displayEnv.Merge(busVars)
	displayPID, err := s.launchStep(ctx, plan.Display, displayEnv)
	if err != nil {
		return nil, err
	}
	result.Steps = append(result.Steps, StepResult{Name: StepDisplay, PID: displayPID, LogPath: plan.Display.LogPath})

	// Desktop session, with the display identifier added. Only the
	// session sees DISPLAY.
	sessionEnv := NewEnvironment(os.Environ())
	sessionEnv.Merge(busVars)
	sessionEnv.Set(DisplayVar, plan.DisplayName)

	sessionPID, err := s.launchStep(ctx, plan.Session, sessionEnv)
	if err != nil {
		return nil, err
	}
	result.Steps = append(result.Steps, StepResult{Name: StepSession, PID: sessionPID, LogPath: plan.Session.LogPath})

	s.logger.Info("session launched",
		slog.String("display", plan.DisplayName),
		slog.Int("session_pid", sessionPID))
	return result, nil
}

// launchBus runs the bus launcher to completion and parses the
// environment assignments it reports.
func (s *Supervisor) launchBus(ctx context.Context, step Step, env *Environment) (map[string]string, int, error) {
	spawner := s.newSpawner(env.Slice())

	out, err := spawner.RunCapture(ctx, step.Binary, step.Args, step.LogPath)
	if err != nil {
		s.events.LogStepFailure(step.Name, err)
		return nil, 0, fmt.Errorf("bus launcher failed: %w", err)
	}

	vars, err := ParseShellEnv(out)
	if err != nil {
		s.events.LogStepFailure(step.Name, err)
		return nil, 0, fmt.Errorf("bus launcher output: %w", err)
	}

	pid, err := BusPID(vars)
	if err != nil {
		s.events.LogStepFailure(step.Name, err)
		return nil, 0, err
	}

	if err := s.recordPID(step.Name, pid); err != nil {
		return nil, 0, err
	}
	s.events.LogStepLaunched(step.Name, pid, step.LogPath)
	s.logger.Info("step launched", slog.String(log.StepKey, step.Name), slog.Int(log.PIDKey, pid))

	if err := s.awaitReady(ctx, step); err != nil {
		return nil, 0, err
	}
	return vars, pid, nil
}

// launchStep spawns one detached step, records its PID, and optionally
// waits for its readiness socket.
func (s *Supervisor) launchStep(ctx context.Context, step Step, env *Environment) (int, error) {
	spawner := s.newSpawner(env.Slice())

	var pid int
	var err error
	if step.TruncateLog {
		pid, err = spawner.SpawnDetachedTruncate(step.Binary, step.Args, step.LogPath)
	} else {
		pid, err = spawner.SpawnDetached(step.Binary, step.Args, step.LogPath)
	}
	if err != nil {
		s.events.LogStepFailure(step.Name, err)
		return 0, fmt.Errorf("failed to launch %s: %w", step.Name, err)
	}

	if err := s.recordPID(step.Name, pid); err != nil {
		return 0, err
	}
	s.events.LogStepLaunched(step.Name, pid, step.LogPath)
	s.logger.Info("step launched", slog.String(log.StepKey, step.Name), slog.Int(log.PIDKey, pid))

	if err := s.awaitReady(ctx, step); err != nil {
		return 0, err
	}
	return pid, nil
}

func (s *Supervisor) awaitReady(ctx context.Context, step Step) error {
	if !s.waitReady || step.ReadySocket == "" {
		return nil
	}
	probe := &lifecycle.SocketProbe{Path: step.ReadySocket}
	if err := lifecycle.WaitReady(ctx, probe, s.readyTimeout); err != nil {
		s.events.LogStepFailure(step.Name, err)
		return fmt.Errorf("%s not ready: %w", step.Name, err)
	}
	s.logger.Debug("step ready", slog.String(log.StepKey, step.Name))
	return nil
}

// recordPID supersedes any previous PID file for the step. A new
// launch always replaces what an earlier invocation recorded.
func (s *Supervisor) recordPID(step string, pid int) error {
	pidFile := lifecycle.NewPIDFile(lifecycle.StepPIDPath(s.cfg.Runtime.Dir, step))
	if err := pidFile.Replace(pid); err != nil {
		return fmt.Errorf("failed to record %s PID: %w", step, err)
	}
	return nil
}

func (s *Supervisor) record(ctx context.Context, outcome string, steps []StepResult) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordLaunch(ctx, outcome, steps); err != nil {
		s.logger.Warn("failed to record launch history", log.Error(err))
	}
}

// Stop shuts down recorded steps in reverse launch order. Steps whose
// PID files are missing or stale are cleaned up and skipped.
func (s *Supervisor) Stop(ctx context.Context, force bool) error {
	var errs []error

	for _, step := range []string{StepSession, StepDisplay, StepBus} {
		if err := s.stopStep(step, force); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step, err))
		}
	}

	return errors.Join(errs...)
}

func (s *Supervisor) stopStep(step string, force bool) error {
	pidFile := lifecycle.NewPIDFile(lifecycle.StepPIDPath(s.cfg.Runtime.Dir, step))

	pid, err := pidFile.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if errors.Is(err, lifecycle.ErrInvalidPID) {
			s.events.LogStalePID(step, 0, "unreadable PID file")
			return pidFile.Remove()
		}
		return err
	}

	if !lifecycle.IsProcessRunning(pid) {
		s.events.LogStalePID(step, pid, "process not running")
		s.logger.Debug("removing stale PID file", slog.String(log.StepKey, step), slog.Int(log.PIDKey, pid))
		return pidFile.Remove()
	}

	binary := s.stepBinary(step)
	if binary != "" && !lifecycle.CommandMatches(pid, binary) {
		s.events.LogStalePID(step, pid, "PID recycled by unrelated process")
		s.logger.Warn("PID belongs to an unrelated process, not signaling",
			slog.String(log.StepKey, step), slog.Int(log.PIDKey, pid))
		return pidFile.Remove()
	}

	s.events.LogStop(step, pid, force)
	start := time.Now()
	if err := lifecycle.GracefulShutdown(pid, s.stopTimeout, force); err != nil {
		s.events.LogStopFailure(step, pid, err)
		return err
	}
	s.events.LogStopSuccess(step, pid, time.Since(start))
	s.logger.Info("step stopped", slog.String(log.StepKey, step), slog.Int(log.PIDKey, pid))

	return pidFile.Remove()
}

// Status reports liveness for every step with a recorded PID.
func (s *Supervisor) Status() ([]StepStatus, error) {
	var statuses []StepStatus

	for _, step := range []string{StepBus, StepDisplay, StepSession} {
		pidFile := lifecycle.NewPIDFile(lifecycle.StepPIDPath(s.cfg.Runtime.Dir, step))

		pid, err := pidFile.Read()
		if err != nil {
			if os.IsNotExist(err) || errors.Is(err, lifecycle.ErrInvalidPID) {
				continue
			}
			return nil, err
		}

		info, err := lifecycle.GetProcessInfo(pid)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, StepStatus{
			Name:    step,
			PID:     pid,
			Running: info.Running,
			Command: info.Command,
		})
	}

	return statuses, nil
}

func (s *Supervisor) stepBinary(step string) string {
	switch step {
	case StepBus:
		// dbus-launch forks dbus-daemon; match the daemon, not the launcher.
		return "dbus"
	case StepDisplay:
		return s.cfg.Display.Binary
	case StepSession:
		return s.cfg.Session.Binary
	}
	return ""
}

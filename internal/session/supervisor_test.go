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

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tombee/ignite/internal/config"
	"github.com/tombee/ignite/internal/driver"
	"github.com/tombee/ignite/internal/lifecycle"
)

const busOutput = "DBUS_SESSION_BUS_ADDRESS='unix:abstract=/tmp/dbus-test,guid=deadbeef';\n" +
	"export DBUS_SESSION_BUS_ADDRESS;\n" +
	"DBUS_SESSION_BUS_PID=4242;\n" +
	"export DBUS_SESSION_BUS_PID;\n"

type spawnCall struct {
	binary   string
	args     []string
	logPath  string
	truncate bool
	captured bool
	env      []string
}

// launchLog records every spawn across all fake spawners in a launch.
type launchLog struct {
	calls []spawnCall
}

type fakeSpawner struct {
	env       []string
	log       *launchLog
	busOutput string
	failOn    string
	nextPID   *int
}

func (f *fakeSpawner) record(call spawnCall) {
	call.env = f.env
	f.log.calls = append(f.log.calls, call)
}

func (f *fakeSpawner) spawn(binary string, args []string, logPath string, truncate bool) (int, error) {
	f.record(spawnCall{binary: binary, args: args, logPath: logPath, truncate: truncate})
	if binary == f.failOn {
		return 0, errors.New("spawn failed")
	}
	*f.nextPID++
	return *f.nextPID, nil
}

func (f *fakeSpawner) SpawnDetached(binary string, args []string, logPath string) (int, error) {
	return f.spawn(binary, args, logPath, false)
}

func (f *fakeSpawner) SpawnDetachedTruncate(binary string, args []string, logPath string) (int, error) {
	return f.spawn(binary, args, logPath, true)
}

func (f *fakeSpawner) RunCapture(ctx context.Context, binary string, args []string, logPath string) ([]byte, error) {
	f.record(spawnCall{binary: binary, args: args, logPath: logPath, captured: true})
	if binary == f.failOn {
		return nil, errors.New("launcher failed")
	}
	return []byte(f.busOutput), nil
}

type fakeRecorder struct {
	outcome string
	steps   []StepResult
	calls   int
}

func (r *fakeRecorder) RecordLaunch(ctx context.Context, outcome string, steps []StepResult) error {
	r.calls++
	r.outcome = outcome
	r.steps = steps
	return nil
}

// newTestSetup builds a config rooted in a temp dir with one matching
// driver directory, plus a supervisor wired to fake spawners.
func newTestSetup(t *testing.T) (*config.Config, *Supervisor, *launchLog) {
	t.Helper()
	tmpDir := t.TempDir()

	driverParent := filepath.Join(tmpDir, "drivers")
	if err := os.MkdirAll(filepath.Join(driverParent, "nvidia-graphics-drivers"), 0755); err != nil {
		t.Fatalf("Failed to create driver dir: %v", err)
	}

	cfg := &config.Config{
		Runtime: config.RuntimeConfig{
			Dir:          filepath.Join(tmpDir, "runtime"),
			IdentityFile: filepath.Join(tmpDir, "runtime", "machine-id"),
		},
		Driver: config.DriverConfig{
			ParentDir: driverParent,
			Pattern:   "*-graphics-drivers",
			Alias:     filepath.Join(driverParent, "current"),
		},
		Bus: config.BusConfig{
			Binary:  "dbus-launch",
			EnvFlag: "--sh-syntax",
			LogFile: filepath.Join(tmpDir, "logs", "bus.log"),
		},
		Display: config.DisplayConfig{
			Binary:     "X",
			Number:     1,
			ModulePath: filepath.Join(driverParent, "current"),
			XKBDir:     "/usr/share/X11/xkb",
			LogFile:    filepath.Join(tmpDir, "logs", "display.log"),
		},
		Session: config.SessionConfig{
			Binary:  "startkde",
			LogFile: filepath.Join(tmpDir, "logs", "session.log"),
		},
		LifecycleLog: filepath.Join(tmpDir, "logs", "lifecycle.log"),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	spawnLog := &launchLog{}
	nextPID := 100

	sup := NewSupervisor(cfg, logger).WithSpawnerFactory(func(env []string) Spawner {
		return &fakeSpawner{env: env, log: spawnLog, busOutput: busOutput, nextPID: &nextPID}
	})

	return cfg, sup, spawnLog
}

func hasEnv(env []string, entry string) bool {
	for _, e := range env {
		if e == entry {
			return true
		}
	}
	return false
}

func TestSupervisor_Launch(t *testing.T) {
	t.Run("launches steps in order", func(t *testing.T) {
		_, sup, spawnLog := newTestSetup(t)

		result, err := sup.Launch(context.Background())
		if err != nil {
			t.Fatalf("Launch() error = %v", err)
		}

		if len(spawnLog.calls) != 3 {
			t.Fatalf("got %d spawn calls, want 3", len(spawnLog.calls))
		}
		if spawnLog.calls[0].binary != "dbus-launch" || !spawnLog.calls[0].captured {
			t.Errorf("first call = %+v, want captured dbus-launch", spawnLog.calls[0])
		}
		if spawnLog.calls[1].binary != "X" || spawnLog.calls[1].truncate {
			t.Errorf("second call = %+v, want detached X", spawnLog.calls[1])
		}
		if spawnLog.calls[2].binary != "startkde" {
			t.Errorf("third call = %+v, want startkde", spawnLog.calls[2])
		}

		if result.Display != ":1" {
			t.Errorf("result.Display = %s, want :1", result.Display)
		}
		if result.Identity == "" {
			t.Error("result.Identity is empty")
		}
		if len(result.Steps) != 3 {
			t.Errorf("result.Steps has %d entries, want 3", len(result.Steps))
		}
	})

	t.Run("bus PID comes from launcher output", func(t *testing.T) {
		cfg, sup, _ := newTestSetup(t)

		if _, err := sup.Launch(context.Background()); err != nil {
			t.Fatalf("Launch() error = %v", err)
		}

		pidFile := lifecycle.NewPIDFile(lifecycle.StepPIDPath(cfg.Runtime.Dir, StepBus))
		pid, err := pidFile.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if pid != 4242 {
			t.Errorf("bus PID = %d, want 4242", pid)
		}
	})

	t.Run("records PID files for every step", func(t *testing.T) {
		cfg, sup, _ := newTestSetup(t)

		if _, err := sup.Launch(context.Background()); err != nil {
			t.Fatalf("Launch() error = %v", err)
		}

		for _, step := range []string{StepBus, StepDisplay, StepSession} {
			pidFile := lifecycle.NewPIDFile(lifecycle.StepPIDPath(cfg.Runtime.Dir, step))
			if !pidFile.Exists() {
				t.Errorf("no PID file for %s", step)
			}
		}
	})

	t.Run("only session log is truncated", func(t *testing.T) {
		_, sup, spawnLog := newTestSetup(t)

		if _, err := sup.Launch(context.Background()); err != nil {
			t.Fatalf("Launch() error = %v", err)
		}

		for _, call := range spawnLog.calls {
			wantTruncate := call.binary == "startkde"
			if call.truncate != wantTruncate {
				t.Errorf("%s truncate = %v, want %v", call.binary, call.truncate, wantTruncate)
			}
		}
	})

	t.Run("bus variables reach later steps, DISPLAY only the session", func(t *testing.T) {
		_, sup, spawnLog := newTestSetup(t)

		if _, err := sup.Launch(context.Background()); err != nil {
			t.Fatalf("Launch() error = %v", err)
		}

		displayEnv := spawnLog.calls[1].env
		sessionEnv := spawnLog.calls[2].env

		busAddr := "DBUS_SESSION_BUS_ADDRESS=unix:abstract=/tmp/dbus-test,guid=deadbeef"
		if !hasEnv(displayEnv, busAddr) {
			t.Error("display server environment missing bus address")
		}
		if hasEnv(displayEnv, "DISPLAY=:1") {
			t.Error("display server environment contains DISPLAY")
		}
		if !hasEnv(sessionEnv, "DISPLAY=:1") {
			t.Error("session environment missing DISPLAY=:1")
		}
		if !hasEnv(sessionEnv, busAddr) {
			t.Error("session environment missing bus address")
		}
	})

	t.Run("missing driver directory is fatal", func(t *testing.T) {
		cfg, sup, spawnLog := newTestSetup(t)

		// Remove the only matching driver directory
		if err := os.RemoveAll(filepath.Join(cfg.Driver.ParentDir, "nvidia-graphics-drivers")); err != nil {
			t.Fatalf("Failed to remove driver dir: %v", err)
		}

		_, err := sup.Launch(context.Background())
		if !errors.Is(err, driver.ErrNoDriverDir) {
			t.Fatalf("Launch() error = %v, want ErrNoDriverDir", err)
		}

		if len(spawnLog.calls) != 0 {
			t.Errorf("got %d spawn calls after driver failure, want 0", len(spawnLog.calls))
		}
	})

	t.Run("display spawn failure aborts before session", func(t *testing.T) {
		_, sup, spawnLog := newTestSetup(t)
		nextPID := 100
		sup.WithSpawnerFactory(func(env []string) Spawner {
			return &fakeSpawner{env: env, log: spawnLog, busOutput: busOutput, failOn: "X", nextPID: &nextPID}
		})

		_, err := sup.Launch(context.Background())
		if err == nil {
			t.Fatal("Launch() succeeded, want error")
		}

		for _, call := range spawnLog.calls {
			if call.binary == "startkde" {
				t.Error("session launched despite display failure")
			}
		}
	})

	t.Run("malformed bus output aborts launch", func(t *testing.T) {
		_, sup, spawnLog := newTestSetup(t)
		nextPID := 100
		sup.WithSpawnerFactory(func(env []string) Spawner {
			return &fakeSpawner{env: env, log: spawnLog, busOutput: "garbage\n", nextPID: &nextPID}
		})

		if _, err := sup.Launch(context.Background()); err == nil {
			t.Fatal("Launch() succeeded, want error")
		}
	})

	t.Run("records launch outcomes", func(t *testing.T) {
		_, sup, _ := newTestSetup(t)
		rec := &fakeRecorder{}
		sup.WithRecorder(rec)

		if _, err := sup.Launch(context.Background()); err != nil {
			t.Fatalf("Launch() error = %v", err)
		}

		if rec.calls != 1 || rec.outcome != OutcomeSuccess {
			t.Errorf("recorder got outcome %q after %d calls, want success once", rec.outcome, rec.calls)
		}
		if len(rec.steps) != 3 {
			t.Errorf("recorder got %d steps, want 3", len(rec.steps))
		}
	})

	t.Run("records failure outcome", func(t *testing.T) {
		_, sup, spawnLog := newTestSetup(t)
		rec := &fakeRecorder{}
		nextPID := 100
		sup.WithRecorder(rec).WithSpawnerFactory(func(env []string) Spawner {
			return &fakeSpawner{env: env, log: spawnLog, busOutput: busOutput, failOn: "startkde", nextPID: &nextPID}
		})

		if _, err := sup.Launch(context.Background()); err == nil {
			t.Fatal("Launch() succeeded, want error")
		}

		if rec.outcome != OutcomeFailure {
			t.Errorf("recorder outcome = %q, want failure", rec.outcome)
		}
	})

	t.Run("relaunch supersedes existing PID files", func(t *testing.T) {
		cfg, sup, _ := newTestSetup(t)

		if _, err := sup.Launch(context.Background()); err != nil {
			t.Fatalf("first Launch() error = %v", err)
		}
		if _, err := sup.Launch(context.Background()); err != nil {
			t.Fatalf("second Launch() error = %v", err)
		}

		pidFile := lifecycle.NewPIDFile(lifecycle.StepPIDPath(cfg.Runtime.Dir, StepDisplay))
		if _, err := pidFile.Read(); err != nil {
			t.Errorf("Read() after relaunch error = %v", err)
		}
	})
}

func TestSupervisor_Status(t *testing.T) {
	t.Run("empty when nothing recorded", func(t *testing.T) {
		_, sup, _ := newTestSetup(t)

		statuses, err := sup.Status()
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if len(statuses) != 0 {
			t.Errorf("Status() = %v, want empty", statuses)
		}
	})

	t.Run("reports dead PIDs as not running", func(t *testing.T) {
		cfg, sup, _ := newTestSetup(t)

		// Record a PID that cannot exist
		pidFile := lifecycle.NewPIDFile(lifecycle.StepPIDPath(cfg.Runtime.Dir, StepDisplay))
		if err := pidFile.Write(999999); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		statuses, err := sup.Status()
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if len(statuses) != 1 {
			t.Fatalf("Status() has %d entries, want 1", len(statuses))
		}
		if statuses[0].Name != StepDisplay || statuses[0].Running {
			t.Errorf("Status()[0] = %+v, want dead display entry", statuses[0])
		}
	})
}

func TestSupervisor_Stop(t *testing.T) {
	t.Run("cleans up stale PID files", func(t *testing.T) {
		cfg, sup, _ := newTestSetup(t)

		pidFile := lifecycle.NewPIDFile(lifecycle.StepPIDPath(cfg.Runtime.Dir, StepSession))
		if err := pidFile.Write(999999); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		if err := sup.Stop(context.Background(), false); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}

		if pidFile.Exists() {
			t.Error("stale PID file survived Stop()")
		}
	})

	t.Run("no-op with nothing recorded", func(t *testing.T) {
		_, sup, _ := newTestSetup(t)
		if err := sup.Stop(context.Background(), false); err != nil {
			t.Errorf("Stop() error = %v, want nil", err)
		}
	})
}

func ExampleBuildPlan() {
	cfg := &config.Config{
		Bus:     config.BusConfig{Binary: "dbus-launch", EnvFlag: "--sh-syntax"},
		Display: config.DisplayConfig{Binary: "X", Number: 0},
		Session: config.SessionConfig{Binary: "startkde"},
	}
	plan := BuildPlan(cfg)
	fmt.Println(plan.DisplayName, plan.Bus.Args[0])
	// Output: :0 --sh-syntax
}

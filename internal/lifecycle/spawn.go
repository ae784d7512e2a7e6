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

package lifecycle

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// Spawner launches detached child processes for the session launcher.
type Spawner struct {
	// Env is the environment passed to spawned processes.
	Env []string
}

// NewSpawner creates a new process spawner inheriting the current
// environment.
func NewSpawner() *Spawner {
	return &Spawner{
		Env: os.Environ(),
	}
}

// WithEnv sets the environment for spawned processes.
func (s *Spawner) WithEnv(env []string) *Spawner {
	s.Env = env
	return s
}

// SpawnDetached spawns a detached background process.
// The process:
//   - Runs in its own session and process group (survives parent exit,
//     ignores terminal-originated signals)
//   - Has stdin closed, stdout/stderr appended to logPath
//
// Returns the PID of the spawned process. The caller never waits on
// it; launches are fire-and-forget.
func (s *Spawner) SpawnDetached(binary string, args []string, logPath string) (int, error) {
	logFile, err := openLog(logPath, os.O_APPEND)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	return s.start(binary, args, logFile)
}

// SpawnDetachedTruncate is like SpawnDetached but truncates the log
// file and restricts it to owner-only permissions before the child's
// first write, then reopens it for append. The truncation happens at
// most once per call; the child itself only ever appends.
func (s *Spawner) SpawnDetachedTruncate(binary string, args []string, logPath string) (int, error) {
	fresh, err := openLog(logPath, os.O_TRUNC)
	if err != nil {
		return 0, err
	}
	if err := fresh.Chmod(0600); err != nil {
		fresh.Close()
		return 0, fmt.Errorf("failed to restrict log file permissions: %w", err)
	}
	fresh.Close()

	return s.SpawnDetached(binary, args, logPath)
}

// RunCapture runs a command to completion with stdout captured and
// stderr appended to logPath, and returns the captured output. This is
// how the bus launcher is invoked: it prints environment assignments
// on stdout and forks the daemon itself.
func (s *Spawner) RunCapture(ctx context.Context, binary string, args []string, logPath string) ([]byte, error) {
	logFile, err := openLog(logPath, os.O_APPEND)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = s.Env
	cmd.Stdout = &stdout
	cmd.Stderr = logFile
	cmd.Stdin = nil

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", binary, err)
	}
	return stdout.Bytes(), nil
}

// start configures detachment and launches the child.
func (s *Spawner) start(binary string, args []string, logFile *os.File) (int, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = s.Env
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil

	cmd.SysProcAttr = &syscall.SysProcAttr{
		// New session: the child becomes a session leader in its own
		// process group, fully detached from the launcher's terminal.
		// Setpgid must stay off: setpgid(2) fails with EPERM for a
		// session leader.
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	pid := cmd.Process.Pid

	// Release the process: the launcher never waits on its children.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("%s started but failed to release: %w", binary, err)
	}

	return pid, nil
}

// openLog opens a log sink with 0600 permissions, creating the parent
// directory if needed. mode is os.O_APPEND or os.O_TRUNC.
func openLog(logPath string, mode int) (*os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|mode, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

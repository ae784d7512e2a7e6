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
	"strconv"

	"github.com/tombee/ignite/internal/config"
)

// Step names, in launch order.
const (
	StepBus     = "bus"
	StepDisplay = "display"
	StepSession = "session"
)

// Step describes one process in the launch sequence.
type Step struct {
	Name   string
	Binary string
	Args   []string

	// LogPath receives the child's stdout and stderr.
	LogPath string

	// TruncateLog resets the log to empty with 0600 permissions before
	// launch instead of appending.
	TruncateLog bool

	// ReadySocket, when set, is a unix socket that signals the step is
	// ready to serve clients.
	ReadySocket string
}

// Plan is the fully resolved launch sequence for one session.
type Plan struct {
	Bus     Step
	Display Step
	Session Step

	// DisplayName is the display identifier exported to the desktop
	// session, e.g. ":0".
	DisplayName string
}

// BuildPlan resolves the configuration into concrete launch steps.
func BuildPlan(cfg *config.Config) Plan {
	return Plan{
		Bus: Step{
			Name:        StepBus,
			Binary:      cfg.Bus.Binary,
			Args:        []string{cfg.Bus.EnvFlag},
			LogPath:     cfg.Bus.LogFile,
			ReadySocket: cfg.Bus.ReadySocket,
		},
		Display: Step{
			Name:        StepDisplay,
			Binary:      cfg.Display.Binary,
			Args:        displayArgs(cfg),
			LogPath:     cfg.Display.LogFile,
			ReadySocket: cfg.Display.ReadySocket,
		},
		Session: Step{
			Name:        StepSession,
			Binary:      cfg.Session.Binary,
			LogPath:     cfg.Session.LogFile,
			TruncateLog: true,
		},
		DisplayName: cfg.DisplayName(),
	}
}

// displayArgs assembles the display server command line. The module
// path points at the driver alias so the server loads whichever driver
// build the linker selected.
func displayArgs(cfg *config.Config) []string {
	args := []string{cfg.DisplayName()}

	if cfg.Display.ModulePath != "" {
		args = append(args, "-modulepath", cfg.Display.ModulePath)
	}
	if cfg.Display.XKBDir != "" {
		args = append(args, "-xkbdir", cfg.Display.XKBDir)
	}
	if cfg.Display.LogFile != "" {
		args = append(args, "-logfile", cfg.Display.LogFile)
	}
	if cfg.Display.Keyboard != "" {
		args = append(args, "-keyboard", cfg.Display.Keyboard)
	}
	if cfg.Display.Mouse != "" {
		args = append(args, "-mouse", cfg.Display.Mouse)
	}
	if cfg.Display.Verbosity > 0 {
		args = append(args, "-logverbose", strconv.Itoa(cfg.Display.Verbosity))
	}
	args = append(args, cfg.Display.VTFlags...)

	return args
}

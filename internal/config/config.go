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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete ignite configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Driver  DriverConfig  `yaml:"driver"`
	Bus     BusConfig     `yaml:"bus"`
	Display DisplayConfig `yaml:"display"`
	Session SessionConfig `yaml:"session"`

	// HistoryDB is the path to the sqlite launch-history database.
	// Default: <data dir>/ignite.db
	HistoryDB string `yaml:"history_db,omitempty"`

	// LifecycleLog is the path to the JSONL lifecycle event log.
	// Default: <data dir>/lifecycle.log
	LifecycleLog string `yaml:"lifecycle_log,omitempty"`
}

// LogConfig configures the CLI's own structured logging.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty"`
}

// RuntimeConfig configures the runtime filesystem the launcher prepares.
type RuntimeConfig struct {
	// Dir is the owner-only runtime directory. PID files live here.
	// Default: $XDG_RUNTIME_DIR/ignite, falling back to <tmp>/ignite-<uid>.
	Dir string `yaml:"dir,omitempty"`

	// ExtraDirs are additional directories created if missing,
	// e.g. the parent directory of the log files.
	ExtraDirs []string `yaml:"extra_dirs,omitempty"`

	// IdentityFile is the machine identity file consumed by the bus
	// daemon. Generated once; never regenerated if present.
	// Default: <runtime dir>/machine-id
	IdentityFile string `yaml:"identity_file,omitempty"`
}

// DriverConfig configures discovery of the versioned graphics driver
// directory and the stable alias symlink published for consumers.
type DriverConfig struct {
	// ParentDir is the directory searched for driver directories.
	ParentDir string `yaml:"parent_dir"`

	// Pattern matches driver directory names (glob). The first match
	// in lexical order wins.
	// Default: *-graphics-drivers
	Pattern string `yaml:"pattern,omitempty"`

	// Alias is the stable symlink path pointing at the chosen
	// driver directory.
	Alias string `yaml:"alias"`

	// WaitTimeout, when non-zero, makes the launcher wait for a
	// matching directory to appear instead of failing immediately.
	WaitTimeout time.Duration `yaml:"wait_timeout,omitempty"`
}

// BusConfig configures the message bus launch step.
type BusConfig struct {
	// Binary is the bus launcher executable.
	// Default: dbus-launch
	Binary string `yaml:"binary,omitempty"`

	// EnvFlag asks the launcher to print shell-syntax environment
	// assignments on stdout. The output is captured and parsed; the
	// resulting variables are threaded to later steps explicitly.
	// Default: --sh-syntax
	EnvFlag string `yaml:"env_flag,omitempty"`

	// LogFile receives the launcher's stderr (append mode).
	// Default: <data dir>/bus.log
	LogFile string `yaml:"log_file,omitempty"`

	// ReadySocket, when set, is a unix socket polled after launch
	// before proceeding. Only used with --wait-ready.
	ReadySocket string `yaml:"ready_socket,omitempty"`
}

// DisplayConfig configures the display server launch step.
type DisplayConfig struct {
	// Binary is the display server executable.
	// Default: X
	Binary string `yaml:"binary,omitempty"`

	// Number is the display number; the server receives ":<number>"
	// as its positional argument and the desktop session receives
	// DISPLAY=":<number>".
	Number int `yaml:"number"`

	// ModulePath is the driver module path passed to the server.
	// Default: the driver alias.
	ModulePath string `yaml:"module_path,omitempty"`

	// XKBDir is the keyboard layout data directory.
	// Default: /usr/share/X11/xkb
	XKBDir string `yaml:"xkb_dir,omitempty"`

	// Keyboard and Mouse are input device names passed to the server.
	Keyboard string `yaml:"keyboard,omitempty"`
	Mouse    string `yaml:"mouse,omitempty"`

	// Verbosity is the server's log verbosity level.
	Verbosity int `yaml:"verbosity,omitempty"`

	// VTFlags are terminal-handling flags, e.g. -novtswitch.
	VTFlags []string `yaml:"vt_flags,omitempty"`

	// LogFile receives the server's output (append mode).
	// Default: <data dir>/display.log
	LogFile string `yaml:"log_file,omitempty"`

	// ReadySocket, when set, is a path polled for existence after
	// launch (typically /tmp/.X11-unix/X<number>). Only used with
	// --wait-ready.
	ReadySocket string `yaml:"ready_socket,omitempty"`
}

// SessionConfig configures the desktop session launch step.
type SessionConfig struct {
	// Binary is the desktop session executable. It is invoked with no
	// arguments; DISPLAY is set in its environment.
	Binary string `yaml:"binary"`

	// LogFile receives the session's output. Unlike the other log
	// sinks this file is truncated and restricted to owner-only
	// permissions before first write, then opened for append.
	// Default: <data dir>/session.log
	LogFile string `yaml:"log_file,omitempty"`
}

// Load reads the configuration from path. An empty path means the
// default location; a missing file at the default location yields the
// defaults. Defaults are applied before validation.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file: run with defaults.
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in unset fields.
func (c *Config) applyDefaults() {
	dataDir := defaultDataDir()

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Runtime.Dir == "" {
		c.Runtime.Dir = defaultRuntimeDir()
	}
	if c.Runtime.IdentityFile == "" {
		c.Runtime.IdentityFile = filepath.Join(c.Runtime.Dir, "machine-id")
	}

	if c.Driver.Pattern == "" {
		c.Driver.Pattern = "*-graphics-drivers"
	}

	if c.Bus.Binary == "" {
		c.Bus.Binary = "dbus-launch"
	}
	if c.Bus.EnvFlag == "" {
		c.Bus.EnvFlag = "--sh-syntax"
	}
	if c.Bus.LogFile == "" {
		c.Bus.LogFile = filepath.Join(dataDir, "bus.log")
	}

	if c.Display.Binary == "" {
		c.Display.Binary = "X"
	}
	if c.Display.ModulePath == "" {
		c.Display.ModulePath = c.Driver.Alias
	}
	if c.Display.XKBDir == "" {
		c.Display.XKBDir = "/usr/share/X11/xkb"
	}
	if c.Display.LogFile == "" {
		c.Display.LogFile = filepath.Join(dataDir, "display.log")
	}

	if c.Session.LogFile == "" {
		c.Session.LogFile = filepath.Join(dataDir, "session.log")
	}

	if c.HistoryDB == "" {
		c.HistoryDB = filepath.Join(dataDir, "ignite.db")
	}
	if c.LifecycleLog == "" {
		c.LifecycleLog = filepath.Join(dataDir, "lifecycle.log")
	}
}

// DisplayName returns the display identifier, e.g. ":0".
func (c *Config) DisplayName() string {
	return fmt.Sprintf(":%d", c.Display.Number)
}

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
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDir returns the XDG config directory for ignite
// (~/.config/ignite unless XDG_CONFIG_HOME is set).
func ConfigDir() (string, error) {
	var base string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}

	return filepath.Join(base, "ignite"), nil
}

// DefaultPath returns the full path to the default config file.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// defaultDataDir returns the XDG data directory for ignite
// (~/.local/share/ignite unless XDG_DATA_HOME is set). Log files and
// the launch-history database live here by default.
func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ignite")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ignite")
	}
	return filepath.Join(home, ".local", "share", "ignite")
}

// defaultRuntimeDir returns the runtime directory for PID files and
// the machine identity file. Prefers XDG_RUNTIME_DIR; falls back to a
// per-user directory under the system temp dir.
func defaultRuntimeDir() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "ignite")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("ignite-%d", os.Getuid()))
}

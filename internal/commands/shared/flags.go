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

package shared

// globalFlags holds the persistent flag values shared by every ignite
// subcommand. The root command binds its flags to these fields.
var globalFlags struct {
	verbose    bool
	quiet      bool
	json       bool
	configPath string
}

// Build-time version information, injected via ldflags in cmd/ignite.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns the pointers the root command binds its
// persistent --verbose, --quiet, --json and --config flags to.
func RegisterFlagPointers() (verbose, quiet, json *bool, configPath *string) {
	return &globalFlags.verbose, &globalFlags.quiet, &globalFlags.json, &globalFlags.configPath
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose reports whether --verbose was set.
func GetVerbose() bool {
	return globalFlags.verbose
}

// GetQuiet reports whether --quiet was set.
func GetQuiet() bool {
	return globalFlags.quiet
}

// GetJSON reports whether --json output was requested.
func GetJSON() bool {
	return globalFlags.json
}

// GetConfigPath returns the --config override, or empty when the
// default XDG location should be used.
func GetConfigPath() string {
	return globalFlags.configPath
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetConfigPathForTest sets the config path for testing purposes
func SetConfigPathForTest(path string) {
	globalFlags.configPath = path
}

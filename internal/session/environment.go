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
	"fmt"
	"strconv"
	"strings"
)

// BusAddressVar and BusPIDVar are the variables the bus launcher
// reports on stdout when invoked with its shell-syntax flag.
const (
	BusAddressVar = "DBUS_SESSION_BUS_ADDRESS"
	BusPIDVar     = "DBUS_SESSION_BUS_PID"

	// DisplayVar names the display for session clients.
	DisplayVar = "DISPLAY"
)

// Environment is an ordered set of environment variables built up for
// a child process. Variables are threaded explicitly rather than
// mutating the launcher's own environment.
type Environment struct {
	keys []string
	vars map[string]string
}

// NewEnvironment creates an environment seeded from a KEY=VALUE slice,
// typically os.Environ().
func NewEnvironment(base []string) *Environment {
	e := &Environment{vars: make(map[string]string, len(base))}
	for _, entry := range base {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		e.Set(key, value)
	}
	return e
}

// Set adds or replaces a variable, preserving first-seen ordering.
func (e *Environment) Set(key, value string) {
	if _, ok := e.vars[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.vars[key] = value
}

// Lookup returns the value of a variable.
func (e *Environment) Lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Merge copies every assignment from vars into the environment.
func (e *Environment) Merge(vars map[string]string) {
	for key, value := range vars {
		e.Set(key, value)
	}
}

// Slice renders the environment as a KEY=VALUE slice for exec.
func (e *Environment) Slice() []string {
	out := make([]string, 0, len(e.keys))
	for _, key := range e.keys {
		out = append(out, key+"="+e.vars[key])
	}
	return out
}

// ParseShellEnv parses shell-syntax environment output of the form
//
//	DBUS_SESSION_BUS_ADDRESS='unix:abstract=...';
//	export DBUS_SESSION_BUS_ADDRESS;
//	DBUS_SESSION_BUS_PID=1234;
//
// into a map of assignments. export lines and blank lines are skipped.
func ParseShellEnv(output []byte) (map[string]string, error) {
	vars := make(map[string]string)

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "export ") || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimSuffix(line, ";")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("malformed environment line: %q", line)
		}
		if key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("malformed variable name in line: %q", line)
		}

		vars[key] = unquoteShell(value)
	}

	if len(vars) == 0 {
		return nil, fmt.Errorf("no variable assignments in bus launcher output")
	}
	return vars, nil
}

// BusPID extracts the forked daemon's PID from parsed bus launcher output.
func BusPID(vars map[string]string) (int, error) {
	raw, ok := vars[BusPIDVar]
	if !ok {
		return 0, fmt.Errorf("bus launcher output missing %s", BusPIDVar)
	}
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid %s value %q", BusPIDVar, raw)
	}
	return pid, nil
}

// unquoteShell strips single-quote shell quoting from a value.
// The bus launcher emits values as 'like this' with embedded quotes
// escaped as '\''.
func unquoteShell(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'") {
		inner := value[1 : len(value)-1]
		return strings.ReplaceAll(inner, `'\''`, "'")
	}
	return value
}

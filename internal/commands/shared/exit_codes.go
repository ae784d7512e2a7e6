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

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for the ignite CLI
const (
	ExitSuccess       = 0
	ExitLaunchFailed  = 1 // Also covers a missing driver directory
	ExitInvalidConfig = 2
	ExitStopFailed    = 3
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewLaunchError creates an error for session launch failures
func NewLaunchError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitLaunchFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidConfigError creates an error for configuration problems
func NewInvalidConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidConfig,
		Message: msg,
		Cause:   cause,
	}
}

// NewStopError creates an error for session shutdown failures
func NewStopError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitStopFailed,
		Message: msg,
		Cause:   cause,
	}
}

// HandleExitError checks if an error is an ExitError and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		msg := exitErr.Error()
		if len(msg) > 0 {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}
		os.Exit(exitErr.Code)
	}

	// Default to launch failed
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(ExitLaunchFailed)
}

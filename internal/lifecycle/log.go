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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event represents a session lifecycle event (launch, stop, etc.).
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"` // "launched", "launch_failure", "stop", etc.
	Step      string    `json:"step,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	LogPath   string    `json:"log_path,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventLogger logs session lifecycle events to a JSONL audit file.
type EventLogger struct {
	logPath string
}

// NewEventLogger creates a new lifecycle event logger.
func NewEventLogger(logPath string) *EventLogger {
	return &EventLogger{
		logPath: logPath,
	}
}

// LogStepLaunched logs a successfully launched session step with its PID.
func (l *EventLogger) LogStepLaunched(step string, pid int, logPath string) error {
	event := Event{
		Timestamp: time.Now(),
		Event:     "launched",
		Step:      step,
		PID:       pid,
		Success:   true,
		Message:   fmt.Sprintf("%s launched", step),
		LogPath:   logPath,
	}
	return l.writeEvent(event)
}

// LogStepFailure logs a session step that failed to launch.
func (l *EventLogger) LogStepFailure(step string, err error) error {
	event := Event{
		Timestamp: time.Now(),
		Event:     "launch_failure",
		Step:      step,
		Success:   false,
		Message:   fmt.Sprintf("%s failed to launch", step),
		Error:     err.Error(),
	}
	return l.writeEvent(event)
}

// LogStop logs a session stop request.
func (l *EventLogger) LogStop(step string, pid int, force bool) error {
	message := fmt.Sprintf("%s stop initiated", step)
	if force {
		message = fmt.Sprintf("%s force stop initiated", step)
	}

	event := Event{
		Timestamp: time.Now(),
		Event:     "stop",
		Step:      step,
		PID:       pid,
		Success:   true,
		Message:   message,
	}
	return l.writeEvent(event)
}

// LogStopSuccess logs a successful step shutdown.
func (l *EventLogger) LogStopSuccess(step string, pid int, duration time.Duration) error {
	event := Event{
		Timestamp: time.Now(),
		Event:     "stop_success",
		Step:      step,
		PID:       pid,
		Success:   true,
		Message:   fmt.Sprintf("%s stopped (duration: %v)", step, duration),
	}
	return l.writeEvent(event)
}

// LogStopFailure logs a failed step shutdown.
func (l *EventLogger) LogStopFailure(step string, pid int, err error) error {
	event := Event{
		Timestamp: time.Now(),
		Event:     "stop_failure",
		Step:      step,
		PID:       pid,
		Success:   false,
		Message:   fmt.Sprintf("failed to stop %s", step),
		Error:     err.Error(),
	}
	return l.writeEvent(event)
}

// LogStalePID logs detection and removal of a stale PID file.
func (l *EventLogger) LogStalePID(step string, pid int, reason string) error {
	event := Event{
		Timestamp: time.Now(),
		Event:     "stale_pid_detected",
		Step:      step,
		PID:       pid,
		Success:   true,
		Message:   fmt.Sprintf("stale PID file detected and removed: %s", reason),
	}
	return l.writeEvent(event)
}

// LogFatal logs an error that aborts the whole launch sequence.
func (l *EventLogger) LogFatal(step string, err error) error {
	event := Event{
		Timestamp: time.Now(),
		Event:     "fatal",
		Step:      step,
		Success:   false,
		Message:   "launch sequence aborted",
		Error:     err.Error(),
	}
	return l.writeEvent(event)
}

// writeEvent appends a lifecycle event to the log file.
func (l *EventLogger) writeEvent(event Event) error {
	// Ensure log directory exists
	logDir := filepath.Dir(l.logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file in append mode
	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lifecycle log: %w", err)
	}
	defer f.Close()

	// Write as JSON
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

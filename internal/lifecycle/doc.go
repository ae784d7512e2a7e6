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

/*
Package lifecycle manages the processes a session launch creates.

This package provides detached process spawning with log redirection,
secure PID file management, process validation and signalling,
readiness probing, and lifecycle event logging.

# Process Spawning

Children are started in their own session with stdin closed and output
redirected to a log file, then released; the launcher never joins
them:

	spawner := lifecycle.NewSpawner()
	pid, err := spawner.SpawnDetached("X", args, logPath)

SpawnDetachedTruncate additionally truncates the log file and
restricts it to owner-only permissions before the child's first write.

# PID Files

PID files control which process later receives shutdown signals, so
they are security-sensitive. Creation uses O_EXCL plus an exclusive
flock to rule out races and symlink attacks:

	pf := lifecycle.NewPIDFile("/run/ignite/display.pid")
	if err := pf.Write(pid); err != nil {
	    // Handle error
	}

# Process Operations

Signals are sent only after validating the PID still belongs to the
expected binary, preventing stale PID files from killing unrelated
processes:

	if !lifecycle.CommandMatches(pid, "X") {
	    // PID file is stale
	}
	err := lifecycle.GracefulShutdown(pid, timeout, force)

# Readiness Probing

Probes poll a unix socket or filesystem path with exponential backoff,
for callers that opt into waiting on child readiness:

	probe := lifecycle.SocketProbe{Path: busSocket}
	err := lifecycle.WaitReady(ctx, probe, 10*time.Second)

# Lifecycle Logging

All launch and shutdown events are appended to a JSONL audit log:

	logger := lifecycle.NewEventLogger("/path/to/lifecycle.log")
	logger.LogStepLaunched("bus", pid, logPath)
*/
package lifecycle

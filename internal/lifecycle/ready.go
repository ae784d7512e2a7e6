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
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

var (
	// ErrReadyTimeout is returned when readiness checks exceed the timeout.
	ErrReadyTimeout = errors.New("readiness check timeout")
)

// ReadyProbe is a single readiness check against a launched process.
type ReadyProbe interface {
	// Check returns nil when the probe target is ready.
	Check(ctx context.Context) error
}

// SocketProbe reports ready when a unix domain socket accepts connections.
// The display server and the session bus both expose such a socket once
// they are able to serve clients.
type SocketProbe struct {
	Path string
}

// Check dials the socket and closes the connection immediately.
func (p *SocketProbe) Check(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", p.Path)
	if err != nil {
		return fmt.Errorf("socket not ready: %w", err)
	}
	conn.Close()
	return nil
}

// PathProbe reports ready when a filesystem path exists.
type PathProbe struct {
	Path string
}

// Check stats the path.
func (p *PathProbe) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(p.Path); err != nil {
		return fmt.Errorf("path not ready: %w", err)
	}
	return nil
}

// WaitReady polls the probe until it succeeds or the timeout is reached.
// Uses exponential backoff: 50ms initial, 2x multiplier, 1s max interval.
func WaitReady(ctx context.Context, probe ReadyProbe, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := 50 * time.Millisecond
	maxInterval := 1 * time.Second
	attempts := 0

	for {
		attempts++
		err := probe.Check(ctx)
		if err == nil {
			return nil
		}

		// Check if we've exceeded timeout
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %d attempts: %v", ErrReadyTimeout, attempts, err)
		default:
		}

		// Wait before next attempt with exponential backoff
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w after %d attempts: %v", ErrReadyTimeout, attempts, err)
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

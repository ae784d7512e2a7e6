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

package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitForMatch blocks until a matching driver directory exists under
// the parent directory or the timeout elapses. It watches the parent
// with fsnotify and re-checks on every create/rename event, with an
// initial check before waiting so an already-present driver returns
// immediately.
func (l *Linker) WaitForMatch(ctx context.Context, timeout time.Duration) error {
	if _, err := l.Discover(); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.ParentDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.ParentDir, err)
	}

	// Re-check after Add: the directory may have appeared between the
	// initial check and the watch starting.
	if _, err := l.Discover(); err == nil {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: none appeared within %v", ErrNoDriverDir, timeout)
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed while waiting for driver directory")
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if _, err := l.Discover(); err == nil {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed while waiting for driver directory")
			}
			l.logger.Warn("watch error while waiting for driver directory", "error", err)
		}
	}
}

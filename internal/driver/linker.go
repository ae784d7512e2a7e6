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

// Package driver discovers the active versioned graphics driver
// directory and publishes it at a stable, version-independent alias
// path as a symbolic link.
//
// A missing driver directory is the one unrecoverable precondition of
// a session launch; callers map ErrNoDriverDir to a fatal exit.
package driver

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrNoDriverDir is returned when no directory in the search
	// parent matches the configured pattern.
	ErrNoDriverDir = errors.New("driver: no driver directory found")

	// ErrBadPattern is returned when the configured glob pattern is
	// malformed.
	ErrBadPattern = errors.New("driver: invalid pattern")
)

// Linker finds the versioned driver directory and maintains the alias
// symlink.
type Linker struct {
	// ParentDir is the directory searched for matching entries.
	ParentDir string

	// Pattern is the glob matched against entry names, e.g.
	// "*-graphics-drivers".
	Pattern string

	// Alias is the stable symlink path published for consumers.
	Alias string

	logger *slog.Logger
}

// NewLinker creates a Linker. A nil logger falls back to the process
// default.
func NewLinker(parentDir, pattern, alias string, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		ParentDir: parentDir,
		Pattern:   pattern,
		Alias:     alias,
		logger:    logger,
	}
}

// Discover returns all directory entries matching the pattern, sorted
// lexically. A missing or empty parent directory yields ErrNoDriverDir,
// the same as a populated parent with no matches.
func (l *Linker) Discover() ([]string, error) {
	entries, err := os.ReadDir(l.ParentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: parent directory %s does not exist", ErrNoDriverDir, l.ParentDir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", l.ParentDir, err)
	}

	var matches []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ok, err := doublestar.Match(l.Pattern, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrBadPattern, l.Pattern, err)
		}
		if ok {
			matches = append(matches, entry.Name())
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no entry in %s matches %q", ErrNoDriverDir, l.ParentDir, l.Pattern)
	}

	sort.Strings(matches)
	return matches, nil
}

// Link discovers the driver directory and points the alias symlink at
// it, replacing any previous alias. When more than one entry matches,
// the lexically first wins and the ignored candidates are logged as a
// warning. Returns the target the alias resolves to.
func (l *Linker) Link() (string, error) {
	matches, err := l.Discover()
	if err != nil {
		return "", err
	}

	chosen := matches[0]
	if len(matches) > 1 {
		l.logger.Warn("multiple driver directories match, using first in lexical order",
			"chosen", chosen, "ignored", matches[1:])
	}

	target := filepath.Join(l.ParentDir, chosen)
	if err := replaceSymlink(target, l.Alias); err != nil {
		return "", err
	}

	l.logger.Info("driver alias published", "alias", l.Alias, "target", target)
	return target, nil
}

// replaceSymlink atomically points alias at target: the new link is
// created under a temporary name in the same directory and renamed
// over the old one, so consumers never observe a missing alias.
func replaceSymlink(target, alias string) error {
	dir := filepath.Dir(alias)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create alias directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(alias)+".tmp")
	os.Remove(tmp)

	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("failed to create alias symlink: %w", err)
	}
	if err := os.Rename(tmp, alias); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace alias symlink: %w", err)
	}
	return nil
}

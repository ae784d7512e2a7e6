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

// Package envprep prepares the runtime filesystem a graphical session
// depends on: the owner-only runtime directory tree and the machine
// identity file consumed by the message bus.
//
// Both operations are idempotent. Directories already present are left
// untouched, and an existing identity file is never regenerated.
package envprep

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Preparer creates the runtime directories and identity file for a
// session launch.
type Preparer struct {
	// RuntimeDir is created with owner-only permissions (0700).
	RuntimeDir string

	// ExtraDirs are created with default directory permissions.
	ExtraDirs []string

	// IdentityFile receives a generated unique identifier, written
	// only if the file does not already exist.
	IdentityFile string

	logger *slog.Logger
}

// NewPreparer creates a Preparer. A nil logger falls back to the
// process default.
func NewPreparer(runtimeDir string, extraDirs []string, identityFile string, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{
		RuntimeDir:   runtimeDir,
		ExtraDirs:    extraDirs,
		IdentityFile: identityFile,
		logger:       logger,
	}
}

// Prepare ensures all runtime directories and the identity file exist.
// Any creation failure is returned as an error: later launch steps
// assume the filesystem is in place, so failure here is fatal to the
// launch.
func (p *Preparer) Prepare() error {
	if err := p.ensureDirs(); err != nil {
		return err
	}
	return p.ensureIdentity()
}

// ensureDirs creates the runtime directory (0700) and extra
// directories (0755) if missing.
func (p *Preparer) ensureDirs() error {
	if p.RuntimeDir != "" {
		if err := os.MkdirAll(p.RuntimeDir, 0700); err != nil {
			return fmt.Errorf("failed to create runtime directory %s: %w", p.RuntimeDir, err)
		}
	}
	for _, dir := range p.ExtraDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ensureIdentity generates the machine identity file if absent.
// O_EXCL makes the presence check and creation a single atomic step,
// so a concurrent launch can never produce two identities.
func (p *Preparer) ensureIdentity() error {
	if p.IdentityFile == "" {
		return nil
	}

	if dir := filepath.Dir(p.IdentityFile); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create identity file directory: %w", err)
		}
	}

	f, err := os.OpenFile(p.IdentityFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			p.logger.Debug("identity file already present", "path", p.IdentityFile)
			return nil
		}
		return fmt.Errorf("failed to create identity file: %w", err)
	}

	id := uuid.NewString()
	if _, err := f.WriteString(id + "\n"); err != nil {
		f.Close()
		os.Remove(p.IdentityFile)
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close identity file: %w", err)
	}

	p.logger.Info("generated machine identity", "path", p.IdentityFile)
	return nil
}

// Identity reads the machine identity, if one has been generated.
func (p *Preparer) Identity() (string, error) {
	data, err := os.ReadFile(p.IdentityFile)
	if err != nil {
		return "", fmt.Errorf("failed to read identity file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

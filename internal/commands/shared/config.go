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
	"log/slog"

	"github.com/tombee/ignite/internal/config"
	"github.com/tombee/ignite/internal/log"
)

// LoadConfig loads the configuration honoring the global --config flag.
// Validation errors map to the invalid-config exit code.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			return nil, NewInvalidConfigError("invalid configuration", err)
		}
		return nil, NewInvalidConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// NewLogger builds the CLI logger. Config file settings override the
// environment defaults; the global --verbose flag overrides both.
func NewLogger(cfg *config.Config) *slog.Logger {
	lc := log.FromEnv()
	if cfg != nil {
		if cfg.Log.Level != "" {
			lc.Level = cfg.Log.Level
		}
		if cfg.Log.Format != "" {
			lc.Format = log.Format(cfg.Log.Format)
		}
	}
	if GetVerbose() {
		lc.Level = "debug"
	}
	return log.New(lc)
}

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

package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks the configuration for errors that would make a
// launch impossible. Validation runs before any side effect so a bad
// config never leaves partial state behind.
func (c *Config) Validate() error {
	var problems []string

	if c.Driver.ParentDir == "" {
		problems = append(problems, "driver.parent_dir is required")
	} else if !filepath.IsAbs(c.Driver.ParentDir) {
		problems = append(problems, "driver.parent_dir must be an absolute path")
	}

	if c.Driver.Alias == "" {
		problems = append(problems, "driver.alias is required")
	} else if !filepath.IsAbs(c.Driver.Alias) {
		problems = append(problems, "driver.alias must be an absolute path")
	}

	if c.Driver.Pattern != "" && !strings.Contains(c.Driver.Pattern, "*") {
		problems = append(problems, "driver.pattern must contain a wildcard")
	}

	if c.Session.Binary == "" {
		problems = append(problems, "session.binary is required")
	}

	if c.Display.Number < 0 {
		problems = append(problems, "display.number must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of json, text", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

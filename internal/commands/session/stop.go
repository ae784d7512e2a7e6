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
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tombee/ignite/internal/commands/shared"
	sessionpkg "github.com/tombee/ignite/internal/session"
)

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running session",
		Long: `Stop the desktop session, display server, and bus daemon in reverse
launch order, using the PID files recorded at launch.

Each process receives SIGTERM and is given time to exit. With --force,
processes that do not exit in time receive SIGKILL. Stale PID files are
cleaned up along the way.`,
		Example: `  # Stop the running session
  ignite stop

  # Force kill anything that won't exit
  ignite stop --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "SIGKILL processes that ignore SIGTERM")

	return cmd
}

func runStop(ctx context.Context, force bool) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	sup := sessionpkg.NewSupervisor(cfg, logger)
	if err := sup.Stop(ctx, force); err != nil {
		return shared.NewStopError("failed to stop session", err)
	}

	if !shared.GetQuiet() {
		fmt.Println(shared.RenderOK("Session stopped"))
	}
	return nil
}

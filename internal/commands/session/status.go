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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tombee/ignite/internal/commands/shared"
	sessionpkg "github.com/tombee/ignite/internal/session"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session process status",
		Long: `Display the liveness of every session process with a recorded PID:
the bus daemon, display server, and desktop session.`,
		Example: `  # Check session status
  ignite status

  # Status as JSON
  ignite status --json

  # Extract the display server PID
  ignite status --json | jq -r '.[] | select(.name == "display") | .pid'`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	statuses, err := sessionpkg.NewSupervisor(cfg, logger).Status()
	if err != nil {
		return fmt.Errorf("failed to read session status: %w", err)
	}

	if shared.GetJSON() {
		output := make([]map[string]any, 0, len(statuses))
		for _, st := range statuses {
			output = append(output, map[string]any{
				"name":    st.Name,
				"pid":     st.PID,
				"running": st.Running,
				"command": st.Command,
			})
		}
		return json.NewEncoder(os.Stdout).Encode(output)
	}

	if len(statuses) == 0 {
		fmt.Println(shared.Muted.Render("No session processes recorded"))
		return nil
	}

	fmt.Println(shared.Header.Render("Session Status"))
	fmt.Println()
	for _, st := range statuses {
		label := shared.RenderStatus(st.Running, stateLabel(st.Running))
		fmt.Printf("%s %-8s %s", label, st.Name, shared.Bold.Render(fmt.Sprintf("PID %d", st.PID)))
		if st.Command != "" {
			fmt.Printf(" %s", shared.Muted.Render(st.Command))
		}
		fmt.Println()
	}
	return nil
}

func stateLabel(running bool) string {
	if running {
		return "UP"
	}
	return "DOWN"
}

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

// Package history implements the launch history CLI command.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/ignite/internal/commands/shared"
	"github.com/tombee/ignite/internal/history"
)

// NewCommand creates the history command.
func NewCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past session launches",
		Long:  `List recorded session launches, newest first, with their outcome and launched processes.`,
		Example: `  # Show the last 10 launches
  ignite history

  # Show everything
  ignite history --limit 0

  # Launches as JSON
  ignite history --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum launches to show (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open launch history: %w", err)
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list launches: %w", err)
	}

	if shared.GetJSON() {
		output := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			steps := make([]map[string]any, 0, len(rec.Steps))
			for _, step := range rec.Steps {
				steps = append(steps, map[string]any{
					"name":     step.Name,
					"pid":      step.PID,
					"log_path": step.LogPath,
				})
			}
			output = append(output, map[string]any{
				"id":         rec.ID,
				"started_at": rec.StartedAt.Format(time.RFC3339),
				"outcome":    rec.Outcome,
				"steps":      steps,
			})
		}
		return json.NewEncoder(os.Stdout).Encode(output)
	}

	if len(records) == 0 {
		fmt.Println(shared.Muted.Render("No launches recorded"))
		return nil
	}

	fmt.Println(shared.Header.Render("Launch History"))
	fmt.Println()
	for _, rec := range records {
		ok := rec.Outcome == "success"
		fmt.Printf("%s %s %s\n",
			shared.RenderStatus(ok, outcomeLabel(ok)),
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			shared.Muted.Render(rec.ID))
		for _, step := range rec.Steps {
			fmt.Printf("    %s %-8s PID %d\n", shared.Muted.Render(shared.SymbolInfo), step.Name, step.PID)
		}
	}
	return nil
}

func outcomeLabel(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAIL"
}

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

// Package session implements the CLI commands that launch, stop, and
// inspect graphical sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/ignite/internal/commands/shared"
	"github.com/tombee/ignite/internal/driver"
	"github.com/tombee/ignite/internal/history"
	sessionpkg "github.com/tombee/ignite/internal/session"
)

// NewStartCommand creates the start command.
func NewStartCommand() *cobra.Command {
	var (
		dryRun       bool
		waitReady    bool
		waitDriver   bool
		readyTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch a graphical session",
		Long: `Prepare the runtime environment, link the graphics driver alias, and
launch the session bus, display server, and desktop session in order.

The launched processes are fully detached: ignite exits once the
sequence completes and the session keeps running. Exit code 1 means the
launch failed; a missing graphics driver directory is always fatal.`,
		Example: `  # Launch a session
  ignite start

  # Show what would be launched without launching
  ignite start --dry-run

  # Wait for each step's readiness socket before the next step
  ignite start --wait-ready

  # Wait up to the configured timeout for a driver directory to appear
  ignite start --wait-driver`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), startOptions{
				dryRun:       dryRun,
				waitReady:    waitReady,
				waitDriver:   waitDriver,
				readyTimeout: readyTimeout,
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the launch plan without launching anything")
	cmd.Flags().BoolVar(&waitReady, "wait-ready", false, "Wait for each step's readiness socket")
	cmd.Flags().BoolVar(&waitDriver, "wait-driver", false, "Wait for a driver directory to appear")
	cmd.Flags().DurationVar(&readyTimeout, "ready-timeout", 10*time.Second, "Per-step readiness timeout")

	return cmd
}

type startOptions struct {
	dryRun       bool
	waitReady    bool
	waitDriver   bool
	readyTimeout time.Duration
}

func runStart(ctx context.Context, opts startOptions) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	logger := shared.NewLogger(cfg)

	if opts.dryRun {
		printPlan(sessionpkg.BuildPlan(cfg))
		return nil
	}

	sup := sessionpkg.NewSupervisor(cfg, logger).
		WithWaitReady(opts.waitReady).
		WithWaitDriver(opts.waitDriver).
		WithReadyTimeout(opts.readyTimeout)

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		// History is best effort; a broken database must not block a launch
		fmt.Fprintf(os.Stderr, "Warning: launch history unavailable: %v\n", err)
	} else {
		defer store.Close()
		sup.WithRecorder(&storeRecorder{store: store})
	}

	result, err := sup.Launch(ctx)
	if err != nil {
		if errors.Is(err, driver.ErrNoDriverDir) {
			return shared.NewLaunchError("no graphics driver directory found", err)
		}
		return shared.NewLaunchError("session launch failed", err)
	}

	if shared.GetQuiet() {
		return nil
	}

	fmt.Println(shared.RenderOK(fmt.Sprintf("Session launched on display %s", result.Display)))
	for _, step := range result.Steps {
		fmt.Printf("  %s %-8s %s %s\n",
			shared.Muted.Render(shared.SymbolInfo),
			step.Name,
			shared.Bold.Render(fmt.Sprintf("PID %d", step.PID)),
			shared.Muted.Render(step.LogPath))
	}
	return nil
}

func printPlan(plan sessionpkg.Plan) {
	fmt.Println(shared.Header.Render("Launch plan"))
	fmt.Println()
	for _, step := range []sessionpkg.Step{plan.Bus, plan.Display, plan.Session} {
		mode := "append"
		if step.TruncateLog {
			mode = "truncate"
		}
		fmt.Printf("%s %s %s\n", shared.Bold.Render(step.Name+":"), step.Binary, strings.Join(step.Args, " "))
		fmt.Printf("  %s %s (%s)\n", shared.Muted.Render("log:"), step.LogPath, mode)
	}
	fmt.Println()
	fmt.Printf("%s %s\n", shared.Muted.Render("display:"), plan.DisplayName)
}

// storeRecorder adapts the history store to the supervisor's recorder.
type storeRecorder struct {
	store *history.Store
}

func (r *storeRecorder) RecordLaunch(ctx context.Context, outcome string, steps []sessionpkg.StepResult) error {
	rec := &history.Record{Outcome: outcome}
	for _, step := range steps {
		rec.Steps = append(rec.Steps, history.StepRecord{
			Name:    step.Name,
			PID:     step.PID,
			LogPath: step.LogPath,
		})
	}
	return r.store.Add(ctx, rec)
}

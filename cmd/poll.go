// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"hpc-ci-bridge/pkg/buildkite"
	"hpc-ci-bridge/pkg/lockfile"
	"hpc-ci-bridge/pkg/logging"
	"hpc-ci-bridge/pkg/metrics"
	"hpc-ci-bridge/pkg/orchestrator"
	"hpc-ci-bridge/pkg/poller"
	"hpc-ci-bridge/pkg/resources"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pollCmd)
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Runs one reconciliation cycle between Buildkite and the batch scheduler.",
	Long: `The 'poll' command lists the batch jobs the bridge already submitted,
submits every scheduled Buildkite job on the configured queue that has no batch
job yet, and cancels in one call the batch jobs of every canceled Buildkite job.

Errors on individual jobs are logged and the job is retried on the next run.
The command exits zero unless the configuration is invalid.`,
	Run:          runPollCmd,
	SilenceUsage: true,
}

func runPollCmd(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if cfg.LockFile != "" {
		lock, err := lockfile.TryLock(cfg.LockFile)
		if errors.Is(err, lockfile.ErrLocked) {
			logging.Info("Another poller holds %s, skipping this run", cfg.LockFile)
			return
		}
		if err != nil {
			logging.Fatal("Failed to take lock: %v", err)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logging.Warn("%v", err)
			}
		}()
	}
	if cfg.DryRun {
		logging.Info("Dry run: no jobs will be submitted or canceled")
	}

	backend, err := newOrchestrator(cfg)
	if err != nil {
		logging.Fatal("Failed to set up scheduler: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := buildkite.NewClient(ctx, cfg.Organization, cfg.Token)
	translator := resources.NewTranslator(orchestrator.Dialect(backend.Name()), cfg.Defaults())
	p := poller.New(client, backend, translator, poller.Options{
		Queue:        cfg.Queue,
		Root:         cfg.Path,
		Org:          cfg.Organization,
		ActiveWindow: cfg.ActiveWindow,
		CancelWindow: cfg.CancelWindow,
		DryRun:       cfg.DryRun,
		Fs:           afero.NewOsFs(),
	})

	report, err := runCycle(ctx, p)
	if err != nil {
		logging.Error("Caught error during poll: %v", err)
		return
	}
	if errs := report.Errors(); errs != nil {
		logging.Warn("Cycle finished with %d errors: %v", report.ErrorCount(), errs)
	}
	logging.Info("Cycle finished in %s: %d submitted, %d canceled", report.Duration.Round(time.Millisecond), len(report.Submitted), len(report.Canceled))

	if cfg.MetricsFile != "" {
		rec := metrics.NewRecorder()
		rec.Observe(report.Summary(time.Now()))
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			logging.Error("%v", err)
		}
	}
}

type cycler interface {
	Cycle(ctx context.Context) (*poller.Report, error)
}

// runCycle runs one cycle and turns a panic into an error, so a poll always
// ends with a log line and a clean exit.
func runCycle(ctx context.Context, c cycler) (report *poller.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Debug("%s", debug.Stack())
			report, err = nil, fmt.Errorf("poll cycle panicked: %v", r)
		}
	}()
	return c.Cycle(ctx)
}

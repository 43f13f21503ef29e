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

// Package cmd defines the bridge command line.
package cmd

import (
	"os"

	"hpc-ci-bridge/pkg/config"
	"hpc-ci-bridge/pkg/correlation"
	"hpc-ci-bridge/pkg/logging"
	"hpc-ci-bridge/pkg/orchestrator"
	"hpc-ci-bridge/pkg/orchestrator/pbs"
	"hpc-ci-bridge/pkg/orchestrator/slurm"
	"hpc-ci-bridge/pkg/shell"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var loader = config.NewLoader(afero.NewOsFs())

var rootCmd = &cobra.Command{
	Use:   "hpc-ci-bridge",
	Short: "Runs Buildkite jobs on a Slurm or PBS cluster.",
	Long: `hpc-ci-bridge polls Buildkite for scheduled jobs on one queue and submits
each of them as a batch job, and cancels batch jobs whose Buildkite job was
canceled. It is meant to be run from cron.

Settings come from flags, environment variables (BUILDKITE_QUEUE,
BUILDKITE_PATH, BUILDKITE_API_TOKEN, BUILDKITE_EXCLUDE_NODES, JOB_SYSTEM,
DEBUG_SLURM_BUILDKITE, BRIDGE_<FLAG>) and <path>/poller.yaml.`,
	SilenceUsage: true,
}

func init() {
	loader.RegisterFlags(rootCmd.PersistentFlags())
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration and sets up logging. Configuration
// errors are fatal.
func loadConfig() *config.Config {
	cfg, err := loader.Load()
	if err != nil {
		logging.Fatal("Invalid configuration: %v", err)
	}
	if err := logging.Configure(cfg.Log); err != nil {
		logging.Fatal("Invalid configuration: %v", err)
	}
	return cfg
}

// newOrchestrator returns the backend for the configured or detected
// scheduler.
func newOrchestrator(cfg *config.Config) (orchestrator.Orchestrator, error) {
	name, err := orchestrator.Detect(cfg.Scheduler, orchestrator.HostProbe())
	if err != nil {
		return nil, err
	}
	runner := shell.ExecRunner{Timeout: cfg.CommandTimeout}
	switch name {
	case orchestrator.PBS:
		store := correlation.NewSQLiteStore(cfg.DatabasePath())
		return pbs.NewPBSOrchestrator(runner, cfg.Scripts(), store, cfg.PBSServer()), nil
	default:
		return slurm.NewSlurmOrchestrator(runner, cfg.Scripts()), nil
	}
}

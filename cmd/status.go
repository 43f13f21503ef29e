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
	"fmt"
	"io"
	"sort"
	"strings"

	"hpc-ci-bridge/pkg/correlation"
	"hpc-ci-bridge/pkg/logging"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Lists the batch jobs the bridge knows about, by Buildkite job.",
	Long: `The 'status' command queries the batch scheduler the same way a poll does
and prints every Buildkite job that has live batch jobs. Buildkite jobs with
more than one batch job were submitted twice and are highlighted.`,
	Run:          runStatusCmd,
	SilenceUsage: true,
}

func runStatusCmd(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	backend, err := newOrchestrator(cfg)
	if err != nil {
		logging.Fatal("Failed to set up scheduler: %v", err)
	}
	jobs, err := backend.CurrentJobs(context.Background())
	if err != nil {
		logging.Fatal("Failed to list %s jobs: %v", backend.Name(), err)
	}
	printStatus(cmd.OutOrStdout(), backend.Name(), jobs)
}

func printStatus(w io.Writer, scheduler string, jobs correlation.Records) {
	header := color.New(color.Bold)
	dup := color.New(color.FgYellow)

	keys := make([]string, 0, len(jobs))
	for k := range jobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	header.Fprintf(w, "%d Buildkite jobs with %s jobs\n", len(keys), scheduler)
	for _, k := range keys {
		ids := strings.Join(jobs[k], ",")
		if len(jobs[k]) > 1 {
			dup.Fprintf(w, "%s\t%s (duplicate)\n", k, ids)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", k, ids)
	}
}

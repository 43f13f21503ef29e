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
	"fmt"

	"hpc-ci-bridge/pkg/logging"
	"hpc-ci-bridge/pkg/orchestrator"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(detectCmd)
}

var detectCmd = &cobra.Command{
	Use:          "detect",
	Short:        "Prints the batch scheduler the bridge would drive.",
	Run:          runDetectCmd,
	SilenceUsage: true,
}

func runDetectCmd(cmd *cobra.Command, args []string) {
	name, err := orchestrator.Detect(loader.Scheduler(), orchestrator.HostProbe())
	if err != nil {
		logging.Fatal("%v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), name)
}

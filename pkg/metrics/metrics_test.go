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

package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Observe(Summary{
		Scheduler:   "slurm",
		CurrentJobs: 3,
		Submitted:   2,
		Canceled:    1,
		Duration:    1500 * time.Millisecond,
		Finished:    time.Unix(1760000000, 0),
	})

	path := filepath.Join(t.TempDir(), "bridge.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		`hpc_ci_bridge_poll_current_jobs{scheduler="slurm"} 3`,
		`hpc_ci_bridge_poll_submitted_jobs{scheduler="slurm"} 2`,
		`hpc_ci_bridge_poll_canceled_jobs{scheduler="slurm"} 1`,
		`hpc_ci_bridge_poll_duration_seconds{scheduler="slurm"} 1.5`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
}

func TestWriteTextfileBadPath(t *testing.T) {
	r := NewRecorder()
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "bridge.prom")); err == nil {
		t.Error("WriteTextfile into a missing directory succeeded")
	}
}

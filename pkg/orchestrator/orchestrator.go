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

package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"hpc-ci-bridge/pkg/correlation"
	"hpc-ci-bridge/pkg/logging"
	"hpc-ci-bridge/pkg/resources"
)

// JobName is the scheduler job name given to every job the bridge submits.
// Queries and cancellations filter on it so other users' jobs are never
// touched.
const JobName = "buildkite"

// JobDefinition holds everything a backend needs to submit one CI job.
type JobDefinition struct {
	// JobID is the CI job ID handed to the launcher script.
	JobID string
	// WebURL identifies the CI job; it is stored with the scheduler job so
	// CurrentJobs can recover it.
	WebURL string
	// LogDir receives the scheduler job's output.
	LogDir    string
	Resources resources.ResourceRequest
}

// Key returns the correlation key of the job.
func (j JobDefinition) Key() string {
	return j.WebURL
}

// Orchestrator submits, cancels and lists CI jobs on a batch scheduler.
type Orchestrator interface {
	// Name identifies the scheduler, e.g. "slurm".
	Name() string
	// SubmitJob submits the job and returns the scheduler job ID.
	SubmitJob(ctx context.Context, job JobDefinition) (string, error)
	// CancelJobs cancels all the given scheduler jobs in one call.
	CancelJobs(ctx context.Context, ids []string) error
	// CurrentJobs returns the live scheduler jobs keyed by CI job key.
	CurrentJobs(ctx context.Context) (correlation.Records, error)
}

// Scripts locates the launcher scripts run inside scheduler jobs.
type Scripts struct {
	// Job runs a CI job, e.g. <root>/bin/schedule_job.sh.
	Job string
	// Error reports a failed submission back to CI, e.g.
	// <root>/bin/report_error.sh. Empty disables error reporting.
	Error string
}

// DefaultScripts returns the launcher locations under the bridge root.
func DefaultScripts(root string) Scripts {
	return Scripts{
		Job:   filepath.Join(root, "bin", "schedule_job.sh"),
		Error: filepath.Join(root, "bin", "report_error.sh"),
	}
}

// SubmissionError reports a failed submit command.
type SubmissionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job submission failed (exit code %d): %v: %s", e.ExitCode, e.Err, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("job submission failed (exit code %d): %s", e.ExitCode, strings.TrimSpace(e.Stderr))
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// CancellationError reports a failed batch cancel command. It covers the
// whole batch; which of the jobs were actually canceled is unknown.
type CancellationError struct {
	IDs      []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CancellationError) Error() string {
	msg := fmt.Sprintf("canceling %d jobs failed (exit code %d): %s", len(e.IDs), e.ExitCode, strings.TrimSpace(e.Stderr))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CancellationError) Unwrap() error {
	return e.Err
}

var jobIDPattern = regexp.MustCompile(`(?m)^(\d+)`)

// ParseJobID extracts the job ID printed by a submit command: the first run
// of digits at the start of a line.
func ParseJobID(stdout string) (string, error) {
	m := jobIDPattern.FindStringSubmatch(stdout)
	if m == nil {
		return "", fmt.Errorf("no job ID in submit output %q", stdout)
	}
	return m[1], nil
}

// WarnDuplicates logs every CI job that maps to more than one scheduler job.
func WarnDuplicates(scheduler string, jobs correlation.Records) {
	for _, key := range jobs.Duplicates() {
		logging.WithFields(map[string]interface{}{
			"scheduler": scheduler,
			"ci_job":    key,
			"jobs":      jobs[key],
		}).Warn("CI job has multiple scheduler jobs")
	}
}

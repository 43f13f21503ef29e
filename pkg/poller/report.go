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

package poller

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"hpc-ci-bridge/pkg/buildkite"
	"hpc-ci-bridge/pkg/metrics"
)

// Report is the outcome of one cycle.
type Report struct {
	Scheduler string
	// Current is the number of CI jobs with live scheduler jobs at the start.
	Current int
	// Submitted maps CI job keys to new scheduler job IDs. IDs are empty in
	// dry runs.
	Submitted map[string]string
	// Canceled holds the scheduler jobs passed to the batch cancel.
	Canceled       []string
	SubmitFailures int
	// Skipped counts jobs ignored for missing routing information.
	Skipped  int
	Duration time.Duration

	errs *multierror.Error
}

func newReport(scheduler string) *Report {
	return &Report{Scheduler: scheduler, Submitted: map[string]string{}}
}

// JobError ties an error to the CI job it happened on.
type JobError struct {
	URL string
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func (r *Report) addError(err error) {
	r.errs = multierror.Append(r.errs, err)
}

func (r *Report) addJobError(job buildkite.Job, err error) {
	r.addError(&JobError{URL: job.WebURL, Err: err})
}

// Errors returns every error of the cycle, or nil.
func (r *Report) Errors() error {
	return r.errs.ErrorOrNil()
}

// ErrorCount returns how many errors were recorded.
func (r *Report) ErrorCount() int {
	if r.errs == nil {
		return 0
	}
	return len(r.errs.Errors)
}

// Summary converts the report for metrics export.
func (r *Report) Summary(finished time.Time) metrics.Summary {
	return metrics.Summary{
		Scheduler:      r.Scheduler,
		CurrentJobs:    r.Current,
		Submitted:      len(r.Submitted),
		SubmitFailures: r.SubmitFailures,
		Canceled:       len(r.Canceled),
		Errors:         r.ErrorCount(),
		Duration:       r.Duration,
		Finished:       finished,
	}
}

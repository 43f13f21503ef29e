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

// Package slurm drives Slurm through sbatch, scancel and squeue. Slurm keeps
// the CI job URL in each job's comment, so the live job list is the only
// state the backend needs.
package slurm

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"hpc-ci-bridge/pkg/correlation"
	"hpc-ci-bridge/pkg/logging"
	"hpc-ci-bridge/pkg/orchestrator"
	"hpc-ci-bridge/pkg/shell"
)

const (
	errorJobName  = "bk_error"
	errorJobTime  = "00:01:00"
	squeueFormat  = "%k,%A"
	outputPattern = "slurm-%j.log"
)

// SlurmOrchestrator implements orchestrator.Orchestrator for Slurm.
type SlurmOrchestrator struct {
	runner  shell.Runner
	scripts orchestrator.Scripts
}

// NewSlurmOrchestrator returns a backend running commands through runner.
func NewSlurmOrchestrator(runner shell.Runner, scripts orchestrator.Scripts) *SlurmOrchestrator {
	return &SlurmOrchestrator{runner: runner, scripts: scripts}
}

// Name implements orchestrator.Orchestrator.
func (s *SlurmOrchestrator) Name() string {
	return orchestrator.Slurm
}

// SubmitArgs returns the sbatch arguments for job.
func (s *SlurmOrchestrator) SubmitArgs(job orchestrator.JobDefinition) []string {
	r := job.Resources
	args := []string{
		"--parsable",
		"--job-name=" + orchestrator.JobName,
		"--comment=" + job.WebURL,
		"--output=" + filepath.Join(job.LogDir, outputPattern),
	}
	args = append(args, r.Flags...)
	if r.Partition != "" {
		args = append(args, "--partition="+r.Partition)
	}
	if r.Reservation != "" {
		args = append(args, "--reservation="+r.Reservation)
	}
	if r.ExcludeHosts != "" {
		args = append(args, "--exclude="+r.ExcludeHosts)
	}
	if r.TimeLimit != "" {
		args = append(args, "--time="+r.TimeLimit)
	}
	args = append(args, s.scripts.Job, job.JobID)
	if r.Modules != "" {
		args = append(args, r.Modules)
	}
	return args
}

// SubmitJob implements orchestrator.Orchestrator. When sbatch fails and an
// error script is configured, a short bk_error job is submitted so that the
// failure shows up on the CI job.
func (s *SlurmOrchestrator) SubmitJob(ctx context.Context, job orchestrator.JobDefinition) (string, error) {
	res := s.runner.Run(ctx, "sbatch", s.SubmitArgs(job)...)
	if !res.Success() {
		serr := &orchestrator.SubmissionError{ExitCode: res.ExitCode, Stderr: res.Stderr, Err: res.Err}
		s.reportError(ctx, job, serr)
		return "", serr
	}

	id, err := orchestrator.ParseJobID(res.Stdout)
	if err != nil {
		return "", &orchestrator.SubmissionError{Stderr: res.Stderr, Err: err}
	}
	logging.Info("Slurm job submitted, ID: %s, log: %s", id, filepath.Join(job.LogDir, "slurm-"+id+".log"))
	return id, nil
}

func (s *SlurmOrchestrator) reportError(ctx context.Context, job orchestrator.JobDefinition, serr *orchestrator.SubmissionError) {
	if s.scripts.Error == "" {
		return
	}
	msg := serr.Stderr
	if strings.TrimSpace(msg) == "" {
		msg = serr.Error()
	}
	res := s.runner.Run(ctx, "sbatch",
		"--parsable",
		"--job-name="+errorJobName,
		"--time="+errorJobTime,
		"--ntasks=1",
		"--comment="+job.WebURL,
		"--output="+filepath.Join(job.LogDir, outputPattern),
		s.scripts.Error,
		job.JobID,
		msg,
	)
	if !res.Success() {
		logging.Error("Failed to submit error job to Slurm for %s (exit code %d): %s", job.WebURL, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
}

// CancelJobs implements orchestrator.Orchestrator. Only jobs named after the
// bridge are canceled, whatever IDs are passed.
func (s *SlurmOrchestrator) CancelJobs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	logging.Info("Canceling %d Slurm jobs", len(ids))
	args := append([]string{"--name=" + orchestrator.JobName}, ids...)
	res := s.runner.Run(ctx, "scancel", args...)
	if !res.Success() {
		return &orchestrator.CancellationError{IDs: ids, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: res.Err}
	}
	return nil
}

// CurrentJobs implements orchestrator.Orchestrator. A failed query is an
// error: without it the caller cannot tell which jobs are already submitted.
func (s *SlurmOrchestrator) CurrentJobs(ctx context.Context) (correlation.Records, error) {
	res := s.runner.Run(ctx, "squeue",
		"--name="+orchestrator.JobName,
		"--noheader",
		"--format="+squeueFormat,
	)
	if !res.Success() {
		if res.Err != nil {
			return nil, fmt.Errorf("failed to query Slurm jobs: %w", res.Err)
		}
		return nil, fmt.Errorf("failed to query Slurm jobs (exit code %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	store := correlation.NewQueryStore()
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		i := strings.LastIndex(line, ",")
		if i <= 0 || i == len(line)-1 {
			logging.Warn("Skipping unexpected squeue line %q", line)
			continue
		}
		if err := store.Record(ctx, line[:i], line[i+1:]); err != nil {
			return nil, err
		}
	}

	jobs := store.All(ctx)
	orchestrator.WarnDuplicates(s.Name(), jobs)
	return jobs, nil
}

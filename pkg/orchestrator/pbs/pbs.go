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

// Package pbs drives PBS through qsub, qdel and qstat. PBS cannot carry the CI
// job URL on a job, so the backend remembers it in a correlation store.
package pbs

import (
	"context"
	"path/filepath"
	"strings"

	"hpc-ci-bridge/pkg/correlation"
	"hpc-ci-bridge/pkg/logging"
	"hpc-ci-bridge/pkg/orchestrator"
	"hpc-ci-bridge/pkg/shell"
)

// DefaultServers maps CI queues to the PBS server queried for live jobs.
var DefaultServers = map[string]string{"derecho": "desched1"}

// PBSOrchestrator implements orchestrator.Orchestrator for PBS.
type PBSOrchestrator struct {
	runner  shell.Runner
	scripts orchestrator.Scripts
	store   correlation.Store
	server  string
}

// NewPBSOrchestrator returns a backend that records submissions in store and
// queries server for live jobs. An empty server queries the default one.
func NewPBSOrchestrator(runner shell.Runner, scripts orchestrator.Scripts, store correlation.Store, server string) *PBSOrchestrator {
	return &PBSOrchestrator{runner: runner, scripts: scripts, store: store, server: server}
}

// Name implements orchestrator.Orchestrator.
func (p *PBSOrchestrator) Name() string {
	return orchestrator.PBS
}

// SubmitArgs returns the qsub arguments for job. PBS has no host exclusion
// option, so ExcludeHosts is not used.
func (p *PBSOrchestrator) SubmitArgs(job orchestrator.JobDefinition) []string {
	r := job.Resources
	args := []string{
		"-V",
		"-m", "n",
		"-j", "oe",
		"-N", orchestrator.JobName,
		"-o", p.logFile(job),
	}
	args = append(args, r.Flags...)
	if r.Reservation != "" {
		args = append(args, "-A", r.Reservation)
	}
	if r.Partition != "" {
		args = append(args, "-q", r.Partition)
	}
	if r.TimeLimit != "" {
		args = append(args, "-l", "walltime="+r.TimeLimit)
	}
	args = append(args, "--", p.scripts.Job, job.JobID)
	if r.Modules != "" {
		args = append(args, r.Modules)
	}
	return args
}

func (p *PBSOrchestrator) logFile(job orchestrator.JobDefinition) string {
	return filepath.Join(job.LogDir, job.JobID+".log")
}

// SubmitJob implements orchestrator.Orchestrator. The job is submitted even
// if the store cannot record it; the failure is logged.
func (p *PBSOrchestrator) SubmitJob(ctx context.Context, job orchestrator.JobDefinition) (string, error) {
	res := p.runner.Run(ctx, "qsub", p.SubmitArgs(job)...)
	if !res.Success() {
		return "", &orchestrator.SubmissionError{ExitCode: res.ExitCode, Stderr: res.Stderr, Err: res.Err}
	}
	id, err := orchestrator.ParseJobID(res.Stdout)
	if err != nil {
		return "", &orchestrator.SubmissionError{Stderr: res.Stderr, Err: err}
	}
	logging.Info("Submitted PBS job %s, log %s", id, p.logFile(job))

	if err := p.store.Record(ctx, job.Key(), id); err != nil {
		logging.Error("Failed to add job %s to the correlation store: %v", id, err)
	}
	return id, nil
}

// CancelJobs implements orchestrator.Orchestrator. After a successful qdel,
// store entries whose jobs were all canceled are removed.
func (p *PBSOrchestrator) CancelJobs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	logging.Info("Canceling %d PBS jobs", len(ids))
	res := p.runner.Run(ctx, "qdel", ids...)
	if !res.Success() {
		return &orchestrator.CancellationError{IDs: ids, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: res.Err}
	}

	canceled := correlation.NewLiveSet(ids...)
	for key, jobIDs := range p.store.All(ctx) {
		if !allIn(jobIDs, canceled) {
			continue
		}
		if err := p.store.Remove(ctx, key); err != nil {
			logging.Error("Failed to remove %s from the correlation store: %v", key, err)
			continue
		}
		logging.Debug("Removed canceled job %s from the correlation store", key)
	}
	return nil
}

func allIn(ids []string, set *correlation.LiveSet) bool {
	for _, id := range ids {
		if !set.Contains(id) {
			return false
		}
	}
	return true
}

// CurrentJobs implements orchestrator.Orchestrator. Store entries whose jobs
// have left qstat are dropped. If qstat fails the store is returned as is.
func (p *PBSOrchestrator) CurrentJobs(ctx context.Context) (correlation.Records, error) {
	snapshot := p.store.All(ctx)

	var args []string
	if p.server != "" {
		args = append(args, "@"+p.server)
	}
	res := p.runner.Run(ctx, "qstat", args...)
	if !res.Success() {
		logging.Error("Failed to retrieve PBS job status (exit code %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		orchestrator.WarnDuplicates(p.Name(), snapshot)
		return snapshot, nil
	}

	live := ParseQstat(res.Stdout)
	logging.Debug("Active PBS jobs: %d", live.Len())
	if err := p.store.Reconcile(ctx, live); err != nil {
		logging.Error("Failed to remove completed jobs from the correlation store: %v", err)
		orchestrator.WarnDuplicates(p.Name(), snapshot)
		return snapshot, nil
	}

	jobs := p.store.All(ctx)
	orchestrator.WarnDuplicates(p.Name(), jobs)
	return jobs, nil
}

// ParseQstat returns the IDs of the bridge's jobs in default qstat output.
// Header and separator lines are skipped; any other row that does not have
// the six expected columns makes the set ambiguous.
//
//	Job id            Name             User              Time Use S Queue
//	----------------  ---------------- ----------------  -------- - -----
//	1234.desched1     buildkite        ci                00:00:01 R main
func ParseQstat(out string) *correlation.LiveSet {
	live := correlation.NewLiveSet()
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "Job id") || strings.HasPrefix(trimmed, "---") {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) != 6 {
			logging.Warn("Unexpected qstat line %q", line)
			live.MarkAmbiguous()
			continue
		}
		if fields[1] != orchestrator.JobName {
			continue
		}
		id, _, _ := strings.Cut(fields[0], ".")
		live.Add(id)
	}
	return live
}

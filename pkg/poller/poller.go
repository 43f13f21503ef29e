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

// Package poller runs the reconciliation cycle between CI and the batch
// scheduler: submit what CI has scheduled, cancel what CI has canceled.
package poller

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"hpc-ci-bridge/pkg/buildkite"
	"hpc-ci-bridge/pkg/correlation"
	"hpc-ci-bridge/pkg/logging"
	"hpc-ci-bridge/pkg/orchestrator"
	"hpc-ci-bridge/pkg/resources"
)

// Default look-back windows.
const (
	DefaultActiveWindow = 96 * time.Hour
	DefaultCancelWindow = 24 * time.Hour
)

// JobSource lists CI jobs.
type JobSource interface {
	ActiveJobs(ctx context.Context, since time.Time) iter.Seq2[buildkite.Job, error]
	CanceledJobs(ctx context.Context, since time.Time) iter.Seq2[buildkite.Job, error]
}

// Options configures a Poller.
type Options struct {
	// Queue is the CI queue this poller serves.
	Queue string
	// Root holds the logs directory.
	Root string
	// Org is the CI organization, used for build links.
	Org          string
	ActiveWindow time.Duration
	CancelWindow time.Duration
	// DryRun logs submissions and cancellations instead of running them.
	DryRun bool

	Fs  afero.Fs
	Now func() time.Time
}

// Poller runs reconciliation cycles.
type Poller struct {
	source     JobSource
	backend    orchestrator.Orchestrator
	translator *resources.Translator
	opts       Options
}

// New returns a Poller. Zero options take their defaults.
func New(source JobSource, backend orchestrator.Orchestrator, translator *resources.Translator, opts Options) *Poller {
	if opts.ActiveWindow == 0 {
		opts.ActiveWindow = DefaultActiveWindow
	}
	if opts.CancelWindow == 0 {
		opts.CancelWindow = DefaultCancelWindow
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{source: source, backend: backend, translator: translator, opts: opts}
}

// argsDescriber is implemented by backends that can show their submit
// command line; dry runs log it.
type argsDescriber interface {
	SubmitArgs(orchestrator.JobDefinition) []string
}

// Cycle runs one reconciliation pass. The returned error is set only when
// the cycle could not start; everything that went wrong per job is collected
// in the report.
func (p *Poller) Cycle(ctx context.Context) (*Report, error) {
	start := p.opts.Now()
	report := newReport(p.backend.Name())

	current, err := p.backend.CurrentJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list current %s jobs: %w", p.backend.Name(), err)
	}
	report.Current = len(current)
	logging.Info("Current %s jobs (submitted or started): %d", p.backend.Name(), len(current))

	batch := newCancelBatch(current)

	for job, err := range p.source.ActiveJobs(ctx, start.Add(-p.opts.ActiveWindow)) {
		if err != nil {
			report.addError(fmt.Errorf("failed to list active jobs: %w", err))
			break
		}
		if !job.IsScript() {
			continue
		}
		switch job.State {
		case buildkite.StateCanceled:
			if !batch.add(job.WebURL) {
				logging.Debug("Canceled job %s not found in current jobs", job.WebURL)
			}
		case buildkite.StateScheduled:
			if _, ok := current[job.WebURL]; ok {
				continue
			}
			if _, ok := report.Submitted[job.WebURL]; ok {
				continue
			}
			p.submit(ctx, start, job, report)
		}
	}

	for job, err := range p.source.CanceledJobs(ctx, start.Add(-p.opts.CancelWindow)) {
		if err != nil {
			report.addError(fmt.Errorf("failed to list canceled jobs: %w", err))
			break
		}
		if job.IsScript() {
			batch.add(job.WebURL)
		}
	}

	if ids := batch.ids; len(ids) > 0 {
		switch {
		case p.opts.DryRun:
			logging.Info("Dry run: would cancel %d %s jobs: %s", len(ids), p.backend.Name(), strings.Join(ids, " "))
			report.Canceled = ids
		default:
			if err := p.backend.CancelJobs(ctx, ids); err != nil {
				report.addError(err)
			} else {
				report.Canceled = ids
			}
		}
	}

	report.Duration = p.opts.Now().Sub(start)
	return report, nil
}

func (p *Poller) submit(ctx context.Context, now time.Time, job buildkite.Job, report *Report) {
	log := logging.WithFields(map[string]interface{}{
		"job":      job.ID,
		"pipeline": job.Build.Pipeline.Name,
		"url":      job.WebURL,
	})

	queue, ok := resources.QueueTag(job.AgentQueryRules)
	if !ok {
		log.Errorf("New job missing queue")
		report.Skipped++
		return
	}
	if queue != p.opts.Queue {
		return
	}
	tags, err := resources.ParseTags(job.AgentQueryRules)
	if err != nil {
		log.Errorf("Skipping job: %v", err)
		report.addJobError(job, err)
		return
	}

	logDir, err := p.buildLogDir(now, job)
	if err != nil {
		log.Errorf("Skipping job: %v", err)
		report.addJobError(job, err)
		return
	}
	logging.Info("New job on `%s`. Pipeline: %s, %s", queue, job.Build.Pipeline.Name, job.WebURL)

	req, err := p.translator.Translate(tags, queue)
	if err != nil {
		log.Errorf("Skipping job: %v", err)
		report.addJobError(job, err)
		return
	}
	def := orchestrator.JobDefinition{
		JobID:     job.ID,
		WebURL:    job.WebURL,
		LogDir:    logDir,
		Resources: req,
	}

	if p.opts.DryRun {
		if d, ok := p.backend.(argsDescriber); ok {
			logging.Info("Dry run: %s command: %s", p.backend.Name(), strings.Join(d.SubmitArgs(def), " "))
		}
		report.Submitted[def.Key()] = ""
		return
	}

	id, err := p.backend.SubmitJob(ctx, def)
	if err != nil {
		log.Errorf("Submission failed: %v", err)
		report.addJobError(job, err)
		report.SubmitFailures++
		return
	}
	report.Submitted[def.Key()] = id
}

// buildLogDir returns <root>/logs/<date>/build_<id>, creating it the first
// time a job of the build is seen.
func (p *Poller) buildLogDir(now time.Time, job buildkite.Job) (string, error) {
	dir := filepath.Join(p.opts.Root, "logs", now.Format("2006-01-02"), "build_"+job.Build.ID)
	exists, err := afero.DirExists(p.opts.Fs, dir)
	if err != nil {
		return "", fmt.Errorf("failed to check log directory %s: %w", dir, err)
	}
	if exists {
		return dir, nil
	}

	pipeline := job.Build.Pipeline.Name
	logging.Info("New build: %s - %s", pipeline, buildkite.BuildLink(p.opts.Org, pipeline, job.Build.Number))
	if p.opts.DryRun {
		return dir, nil
	}
	if err := p.opts.Fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return dir, nil
}

// cancelBatch collects the scheduler jobs of canceled CI jobs, each ID once,
// in the order they were first seen.
type cancelBatch struct {
	current correlation.Records
	seen    map[string]bool
	ids     []string
}

func newCancelBatch(current correlation.Records) *cancelBatch {
	return &cancelBatch{current: current, seen: map[string]bool{}}
}

// add queues every scheduler job of key. It reports whether key is current.
func (b *cancelBatch) add(key string) bool {
	ids, ok := b.current[key]
	if !ok {
		return false
	}
	for _, id := range ids {
		if !b.seen[id] {
			b.seen[id] = true
			b.ids = append(b.ids, id)
		}
	}
	return true
}

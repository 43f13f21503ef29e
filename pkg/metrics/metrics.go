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

// Package metrics exports the outcome of a poll cycle in the Prometheus text
// format, for the node exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "hpc_ci_bridge"
	promSubsystem = "poll"
)

// Summary is what one cycle did.
type Summary struct {
	Scheduler      string
	CurrentJobs    int
	Submitted      int
	SubmitFailures int
	Canceled       int
	Errors         int
	Duration       time.Duration
	Finished       time.Time
}

// Recorder holds the gauges of a single poll run. Each run is a separate
// process, so every value describes the last cycle only.
type Recorder struct {
	registry *prom.Registry

	current        *prom.GaugeVec
	submitted      *prom.GaugeVec
	submitFailures *prom.GaugeVec
	canceled       *prom.GaugeVec
	errors         *prom.GaugeVec
	duration       *prom.GaugeVec
	lastRun        *prom.GaugeVec
}

func gauge(name, help string) *prom.GaugeVec {
	return prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      name,
		Help:      help,
	}, []string{"scheduler"})
}

// NewRecorder returns a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry:       prom.NewRegistry(),
		current:        gauge("current_jobs", "scheduler jobs known to belong to CI jobs"),
		submitted:      gauge("submitted_jobs", "jobs submitted in the last cycle"),
		submitFailures: gauge("submit_failures", "jobs whose submission failed in the last cycle"),
		canceled:       gauge("canceled_jobs", "scheduler jobs canceled in the last cycle"),
		errors:         gauge("errors", "errors recorded in the last cycle"),
		duration:       gauge("duration_seconds", "duration of the last cycle"),
		lastRun:        gauge("last_run_timestamp_seconds", "end time of the last cycle"),
	}
	r.registry.MustRegister(r.current, r.submitted, r.submitFailures, r.canceled, r.errors, r.duration, r.lastRun)
	return r
}

// Observe sets every gauge from s.
func (r *Recorder) Observe(s Summary) {
	r.current.WithLabelValues(s.Scheduler).Set(float64(s.CurrentJobs))
	r.submitted.WithLabelValues(s.Scheduler).Set(float64(s.Submitted))
	r.submitFailures.WithLabelValues(s.Scheduler).Set(float64(s.SubmitFailures))
	r.canceled.WithLabelValues(s.Scheduler).Set(float64(s.Canceled))
	r.errors.WithLabelValues(s.Scheduler).Set(float64(s.Errors))
	r.duration.WithLabelValues(s.Scheduler).Set(s.Duration.Seconds())
	r.lastRun.WithLabelValues(s.Scheduler).Set(float64(s.Finished.Unix()))
}

// Registry returns the registry holding the gauges.
func (r *Recorder) Registry() *prom.Registry {
	return r.registry
}

// WriteTextfile atomically replaces path with the current values.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

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

package buildkite

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Job states as reported by the builds API.
const (
	StateScheduled = "scheduled"
	StateRunning   = "running"
	StatePassed    = "passed"
	StateFailed    = "failed"
	StateFailing   = "failing"
	StateBlocked   = "blocked"
	StateCanceled  = "canceled"
	StateCanceling = "canceling"
	StateSkipped   = "skipped"
	StateNotRun    = "not_run"
	StateFinished  = "finished"
)

// JobTypeScript is the only job type that runs on an agent.
const JobTypeScript = "script"

// Build states queried for each window.
var (
	ActiveStates   = []string{StateScheduled, StateRunning, StateFailing}
	CanceledStates = []string{StateCanceling, StateCanceled}
)

// Pipeline is the part of a pipeline embedded in a build.
type Pipeline struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Build is a CI build with its jobs.
type Build struct {
	ID        string     `json:"id"`
	Number    int        `json:"number"`
	State     string     `json:"state"`
	WebURL    string     `json:"web_url"`
	CreatedAt *time.Time `json:"created_at"`
	Pipeline  Pipeline   `json:"pipeline"`
	Jobs      []Job      `json:"jobs"`
}

// Ref returns the reference copied into each of the build's jobs.
func (b Build) Ref() BuildRef {
	return BuildRef{ID: b.ID, Number: b.Number, Pipeline: b.Pipeline}
}

// BuildRef points from a job back to its build.
type BuildRef struct {
	ID       string
	Number   int
	Pipeline Pipeline
}

// Job is one step of a build.
type Job struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Name            string     `json:"name"`
	State           string     `json:"state"`
	WebURL          string     `json:"web_url"`
	AgentQueryRules []string   `json:"agent_query_rules"`
	FinishedAt      *time.Time `json:"finished_at"`

	Build BuildRef `json:"-"`
}

// IsScript reports whether the job runs a command on an agent.
func (j Job) IsScript() bool {
	return j.Type == JobTypeScript
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizePipelineName turns a pipeline name into its URL form: lower case,
// every run of other characters replaced by one dash.
func SanitizePipelineName(name string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// BuildLink returns the web link of a build.
func BuildLink(org, pipelineName string, number int) string {
	return fmt.Sprintf("https://buildkite.com/%s/%s/builds/%d", org, SanitizePipelineName(pipelineName), number)
}

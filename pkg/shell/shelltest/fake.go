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

// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"strings"
	"sync"

	"hpc-ci-bridge/pkg/shell"
)

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
}

// String returns the command line.
func (c Call) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// FakeRunner records every call and answers from a queue of canned results
// per command name. When a command's queue is empty the last result is
// repeated; a command with no results at all succeeds with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	results map[string][]shell.CommandResult
	Calls   []Call
}

// NewFakeRunner returns a runner with no canned results.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{results: map[string][]shell.CommandResult{}}
}

// On queues results for the named command.
func (f *FakeRunner) On(name string, results ...shell.CommandResult) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[name] = append(f.results[name], results...)
	return f
}

// Run implements shell.Runner.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) shell.CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Name: name, Args: append([]string(nil), args...)})
	queue := f.results[name]
	switch len(queue) {
	case 0:
		return shell.CommandResult{}
	case 1:
		return queue[0]
	}
	f.results[name] = queue[1:]
	return queue[0]
}

// CallsTo returns the recorded calls of the named command.
func (f *FakeRunner) CallsTo(name string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets the recorded calls but keeps the canned results.
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
}

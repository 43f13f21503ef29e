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

package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"hpc-ci-bridge/pkg/logging"
)

// DefaultTimeout bounds every command unless the caller sets another one.
const DefaultTimeout = 5 * time.Minute

// CommandResult holds the outcome of a finished command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// TimedOut is set when the command was killed because its deadline passed.
	TimedOut bool
	// Err is set when the command could not be started or did not exit cleanly.
	Err error
}

// Success reports whether the command ran and exited with status 0.
func (r CommandResult) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Command is a single external process invocation.
type Command struct {
	name    string
	args    []string
	input   string
	timeout time.Duration
}

// NewCommand prepares a command without running it.
func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args, timeout: DefaultTimeout}
}

// SetInput sets the text written to the command's stdin.
func (c *Command) SetInput(input string) {
	c.input = input
}

// SetTimeout overrides the default timeout. Zero disables it.
func (c *Command) SetTimeout(d time.Duration) {
	c.timeout = d
}

// String returns the command line, for logging.
func (c *Command) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

// Execute runs the command with a background context.
func (c *Command) Execute() CommandResult {
	return c.ExecuteContext(context.Background())
}

// ExecuteContext runs the command, killing it when ctx is done or the timeout
// passes, whichever comes first.
func (c *Command) ExecuteContext(ctx context.Context) CommandResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.name, c.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.input != "" {
		cmd.Stdin = strings.NewReader(c.input)
	}

	logging.Debug("Executing: %s", c.String())
	err := cmd.Run()
	res := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return res
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		res.Err = ctx.Err()
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	res.ExitCode = -1
	res.Err = err
	return res
}

// ExecuteCommand runs name with args and the default timeout.
func ExecuteCommand(name string, args ...string) CommandResult {
	return NewCommand(name, args...).Execute()
}

// Runner runs external commands. Backends take a Runner so that tests can
// substitute canned scheduler output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) CommandResult
}

// ExecRunner runs commands as real processes.
type ExecRunner struct {
	Timeout time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) CommandResult {
	cmd := NewCommand(name, args...)
	if r.Timeout > 0 {
		cmd.SetTimeout(r.Timeout)
	}
	return cmd.ExecuteContext(ctx)
}

// Which reports whether an executable is on PATH.
func Which(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

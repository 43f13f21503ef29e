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

// Package config loads the poller configuration from flags, environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"hpc-ci-bridge/pkg/logging"
	"hpc-ci-bridge/pkg/orchestrator"
	"hpc-ci-bridge/pkg/orchestrator/pbs"
	"hpc-ci-bridge/pkg/resources"
	"hpc-ci-bridge/pkg/shell"
)

// File names looked up under the bridge root.
const (
	DefaultConfigFile = "poller.yaml"
	DefaultDatabase   = "jobs.db"
	TokenFile         = ".buildkite_token"
	ExcludeNodesFile  = ".exclude_nodes"
)

// DefaultOrganization is the CI organization polled when none is set.
const DefaultOrganization = "clima"

// Config is the complete poller configuration.
type Config struct {
	// ConfigFile is the YAML file that was merged, if any.
	ConfigFile string

	Queue        string
	Path         string
	Token        string
	Organization string
	// Scheduler is "slurm", "pbs" or empty for auto-detection.
	Scheduler    string
	DryRun       bool
	ExcludeNodes string

	ActiveWindow   time.Duration
	CancelWindow   time.Duration
	CommandTimeout time.Duration
	TimeLimit      string

	// Database is the correlation store file used with PBS.
	Database    string
	LockFile    string
	MetricsFile string

	Log logging.Config

	Partitions    map[string]string
	GPUPartitions map[string]string
	Reservations  map[string]string
	PBSServers    map[string]string
}

// Default returns the built-in configuration.
func Default() *Config {
	tables := resources.DefaultTables()
	servers := make(map[string]string, len(pbs.DefaultServers))
	for k, v := range pbs.DefaultServers {
		servers[k] = v
	}
	return &Config{
		Organization:   DefaultOrganization,
		ActiveWindow:   96 * time.Hour,
		CancelWindow:   24 * time.Hour,
		CommandTimeout: shell.DefaultTimeout,
		TimeLimit:      resources.DefaultTimeLimit,
		Log:            logging.DefaultConfig(),
		Partitions:     tables.Partitions,
		GPUPartitions:  tables.GPUPartitions,
		Reservations:   tables.Reservations,
		PBSServers:     servers,
	}
}

// Validate checks everything that must hold before the first side effect.
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"queue", c.Queue},
		{"path", c.Path},
		{"token", c.Token},
		{"organization", c.Organization},
	}
	for _, r := range required {
		if r.value == "" {
			return &resources.ConfigurationError{Setting: r.name, Reason: "must be set"}
		}
	}
	if c.ActiveWindow <= 0 {
		return &resources.ConfigurationError{Setting: "active-window", Reason: fmt.Sprintf("must be positive, got %s", c.ActiveWindow)}
	}
	if c.CancelWindow <= 0 {
		return &resources.ConfigurationError{Setting: "cancel-window", Reason: fmt.Sprintf("must be positive, got %s", c.CancelWindow)}
	}
	if c.CommandTimeout <= 0 {
		return &resources.ConfigurationError{Setting: "command-timeout", Reason: fmt.Sprintf("must be positive, got %s", c.CommandTimeout)}
	}
	switch c.Scheduler {
	case "", orchestrator.Slurm, orchestrator.PBS:
	default:
		return &resources.ConfigurationError{Setting: "scheduler", Reason: fmt.Sprintf("unsupported scheduler %q", c.Scheduler)}
	}
	if err := c.Log.Validate(); err != nil {
		return &resources.ConfigurationError{Setting: "log-level", Reason: err.Error()}
	}
	return c.Defaults().CheckQueue(c.Queue)
}

// Defaults returns the translator tables.
func (c *Config) Defaults() resources.Defaults {
	return resources.Defaults{
		Partitions:    c.Partitions,
		GPUPartitions: c.GPUPartitions,
		Reservations:  c.Reservations,
		TimeLimit:     c.TimeLimit,
		ExcludeNodes:  c.ExcludeNodes,
	}
}

// DatabasePath returns the correlation store location.
func (c *Config) DatabasePath() string {
	if c.Database == "" {
		return filepath.Join(c.Path, DefaultDatabase)
	}
	if filepath.IsAbs(c.Database) {
		return c.Database
	}
	return filepath.Join(c.Path, c.Database)
}

// PBSServer returns the PBS server queried for the configured queue, or
// empty for the client's default.
func (c *Config) PBSServer() string {
	return c.PBSServers[c.Queue]
}

// Scripts returns the launcher scripts under the bridge root.
func (c *Config) Scripts() orchestrator.Scripts {
	return orchestrator.DefaultScripts(c.Path)
}

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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"hpc-ci-bridge/pkg/logging"
)

// Keys with environment variables of their own; every other key is read
// from BRIDGE_<KEY>.
var legacyEnv = map[string]string{
	"queue":         "BUILDKITE_QUEUE",
	"path":          "BUILDKITE_PATH",
	"token":         "BUILDKITE_API_TOKEN",
	"exclude-nodes": "BUILDKITE_EXCLUDE_NODES",
	"scheduler":     "JOB_SYSTEM",
}

// DryRunEnv enables dry runs when present, whatever its value.
const DryRunEnv = "DEBUG_SLURM_BUILDKITE"

func envName(key string) string {
	if name, ok := legacyEnv[key]; ok {
		return name
	}
	return "BRIDGE_" + strings.ReplaceAll(strings.ToUpper(key), "-", "_")
}

// Loader merges flags, environment and the YAML config file.
type Loader struct {
	v  *viper.Viper
	fs afero.Fs

	tables queueTables
}

// queueTables are the per-queue tables of the config file. They are decoded
// apart from viper, which lowercases map keys, so queue names keep their case.
type queueTables struct {
	Partitions    map[string]string `yaml:"partitions"`
	GPUPartitions map[string]string `yaml:"gpu-partitions"`
	Reservations  map[string]string `yaml:"reservations"`
	PBSServers    map[string]string `yaml:"pbs-servers"`
}

// NewLoader returns a loader reading files from fs.
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{v: viper.New(), fs: fs}
}

func (l *Loader) registerString(flags *pflag.FlagSet, key, value, usage string) {
	flags.String(key, value, usage)
	l.bind(flags, key, value)
}

func (l *Loader) registerBool(flags *pflag.FlagSet, key string, value bool, usage string) {
	flags.Bool(key, value, usage)
	l.bind(flags, key, value)
}

func (l *Loader) registerDuration(flags *pflag.FlagSet, key string, value time.Duration, usage string) {
	flags.Duration(key, value, usage)
	l.bind(flags, key, value)
}

func (l *Loader) bind(flags *pflag.FlagSet, key string, value interface{}) {
	_ = l.v.BindEnv(key, envName(key))
	_ = l.v.BindPFlag(key, flags.Lookup(key))
	l.v.SetDefault(key, value)
}

// RegisterFlags adds every setting to flags.
func (l *Loader) RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	l.registerString(flags, "config", "", "YAML config file (default <path>/"+DefaultConfigFile+" if present)")
	l.registerString(flags, "queue", "", "CI queue to serve")
	l.registerString(flags, "path", "", "bridge root holding bin/, logs/ and the token file")
	l.registerString(flags, "token", "", "Buildkite API token (default read from <path>/"+TokenFile+")")
	l.registerString(flags, "organization", d.Organization, "Buildkite organization")
	l.registerString(flags, "scheduler", "", "batch scheduler, slurm or pbs (default detected)")
	l.registerBool(flags, "dry-run", false, "log submissions and cancellations without running them")
	l.registerString(flags, "exclude-nodes", "", "hosts to keep jobs off (default read from <path>/"+ExcludeNodesFile+")")
	l.registerDuration(flags, "active-window", d.ActiveWindow, "how far back to look for active builds")
	l.registerDuration(flags, "cancel-window", d.CancelWindow, "how far back to look for canceled builds")
	l.registerDuration(flags, "command-timeout", d.CommandTimeout, "timeout of each scheduler command")
	l.registerString(flags, "time-limit", d.TimeLimit, "wall-clock limit of jobs that do not set one")
	l.registerString(flags, "database", "", "correlation store file (default <path>/"+DefaultDatabase+")")
	l.registerString(flags, "lock-file", "", "skip the run if another poller holds this lock")
	l.registerString(flags, "metrics-file", "", "write cycle metrics to this Prometheus textfile")
	l.registerString(flags, "log-level", d.Log.Level, "log level")
	l.registerBool(flags, "log-color", d.Log.Color, "colorize log output")
}

// Load returns the validated configuration.
func (l *Loader) Load() (*Config, error) {
	configFile, err := l.readConfigFile(l.v.GetString("config"), l.v.GetString("path"))
	if err != nil {
		return nil, err
	}

	c := Default()
	c.ConfigFile = configFile
	c.Queue = l.v.GetString("queue")
	c.Path = l.v.GetString("path")
	c.Token = l.v.GetString("token")
	c.Organization = l.v.GetString("organization")
	c.Scheduler = strings.ToLower(l.v.GetString("scheduler"))
	c.DryRun = l.v.GetBool("dry-run")
	if _, ok := os.LookupEnv(DryRunEnv); ok {
		c.DryRun = true
	}
	c.ExcludeNodes = l.v.GetString("exclude-nodes")
	c.ActiveWindow = l.v.GetDuration("active-window")
	c.CancelWindow = l.v.GetDuration("cancel-window")
	c.CommandTimeout = l.v.GetDuration("command-timeout")
	c.TimeLimit = l.v.GetString("time-limit")
	c.Database = l.v.GetString("database")
	c.LockFile = l.v.GetString("lock-file")
	c.MetricsFile = l.v.GetString("metrics-file")
	c.Log.Level = l.v.GetString("log-level")
	c.Log.Color = l.v.GetBool("log-color")

	for src, dst := range map[*map[string]string]*map[string]string{
		&l.tables.Partitions:    &c.Partitions,
		&l.tables.GPUPartitions: &c.GPUPartitions,
		&l.tables.Reservations:  &c.Reservations,
		&l.tables.PBSServers:    &c.PBSServers,
	} {
		if *src != nil {
			*dst = *src
		}
	}

	if c.Path != "" {
		if c.Token == "" {
			if c.Token, err = l.readSecret(filepath.Join(c.Path, TokenFile)); err != nil {
				return nil, err
			}
		}
		if c.ExcludeNodes == "" {
			if c.ExcludeNodes, err = l.readSecret(filepath.Join(c.Path, ExcludeNodesFile)); err != nil {
				return nil, err
			}
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// readConfigFile merges the YAML file into viper and returns its path. An
// explicit file must exist; the default one is optional.
func (l *Loader) readConfigFile(configPath, root string) (string, error) {
	isDefault := configPath == ""
	if isDefault {
		if root == "" {
			return "", nil
		}
		configPath = filepath.Join(root, DefaultConfigFile)
	}

	if _, err := l.fs.Stat(configPath); err != nil {
		if isDefault && os.IsNotExist(err) {
			logging.Debug("No configuration file at %s, skipping", configPath)
			return "", nil
		}
		return "", errors.Wrap(err, "error finding configuration file")
	}
	bs, err := afero.ReadFile(l.fs, configPath)
	if err != nil {
		return "", errors.Wrap(err, "error reading configuration file")
	}
	if err := l.mergeConfigBytes(bs); err != nil {
		return "", err
	}
	return configPath, nil
}

func (l *Loader) mergeConfigBytes(bs []byte) error {
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return errors.Wrap(err, "error unmarshal yaml configuration file")
	}
	if err := l.v.MergeConfigMap(configMap); err != nil {
		return errors.Wrap(err, "error merge configuration to viper")
	}
	if err := yaml.Unmarshal(bs, &l.tables); err != nil {
		return errors.Wrap(err, "error unmarshal queue tables")
	}
	return nil
}

// readSecret returns the trimmed content of path. A missing file reads as
// empty.
func (l *Loader) readSecret(path string) (string, error) {
	bs, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(err, "error reading %s", path)
	}
	return strings.TrimRight(string(bs), " \t\r\n"), nil
}

// Scheduler returns the configured scheduler without loading or validating
// anything else.
func (l *Loader) Scheduler() string {
	return l.v.GetString("scheduler")
}

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

package orchestrator

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"hpc-ci-bridge/pkg/resources"
	"hpc-ci-bridge/pkg/shell"
)

// Supported schedulers.
const (
	Slurm = "slurm"
	PBS   = "pbs"
)

// SlurmConf is checked when no Slurm client is on PATH.
const SlurmConf = "/etc/slurm/slurm.conf"

// Probe inspects the host for scheduler clients.
type Probe struct {
	Fs    afero.Fs
	Which func(string) bool
}

// HostProbe looks at the real filesystem and PATH.
func HostProbe() Probe {
	return Probe{Fs: afero.NewOsFs(), Which: shell.Which}
}

// Detect returns the scheduler to drive. A non-empty name wins; otherwise the
// host is probed, preferring Slurm.
func Detect(name string, p Probe) (string, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case Slurm, PBS:
		return n, nil
	case "":
	default:
		return "", &resources.ConfigurationError{
			Setting: "scheduler",
			Reason:  fmt.Sprintf("unsupported scheduler %q (want %q or %q)", name, Slurm, PBS),
		}
	}

	if p.any("sinfo", "srun", "sbatch") {
		return Slurm, nil
	}
	if ok, _ := afero.Exists(p.Fs, SlurmConf); ok {
		return Slurm, nil
	}
	if p.any("qstat", "pbsnodes", "qsub") {
		return PBS, nil
	}
	return "", &resources.ConfigurationError{Setting: "scheduler", Reason: "could not detect a job scheduler"}
}

func (p Probe) any(names ...string) bool {
	if p.Which == nil {
		return false
	}
	for _, n := range names {
		if p.Which(n) {
			return true
		}
	}
	return false
}

// Dialect returns the tag dialect of the named scheduler.
func Dialect(name string) resources.Dialect {
	if name == PBS {
		return resources.PBS
	}
	return resources.Slurm
}

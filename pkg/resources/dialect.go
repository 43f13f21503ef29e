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

package resources

import (
	"fmt"
	"strings"
)

// Dialect describes how one batch scheduler spells resource requests in tags
// and on its submit command line.
type Dialect struct {
	Name string
	// Prefix marks the tags passed through to the scheduler.
	Prefix string
	// ReservationKey, when present, suppresses the default reservation.
	ReservationKey string
	// TimeKey, when present, suppresses the default wall-clock limit.
	TimeKey string
	// QueueKey, when present, suppresses the default partition; the
	// passthrough flag already selects one.
	QueueKey string

	format func(name, value string) []string
}

// FormatFlag renders a namespaced tag as scheduler-native arguments.
func (d Dialect) FormatFlag(key, value string) []string {
	return d.format(strings.TrimPrefix(key, d.Prefix), value)
}

// Slurm renders tags as sbatch long options.
var Slurm = Dialect{
	Name:           "slurm",
	Prefix:         "slurm_",
	ReservationKey: "slurm_reservation",
	TimeKey:        "slurm_time",
	QueueKey:       "slurm_partition",
	format: func(name, value string) []string {
		name = strings.ReplaceAll(name, "_", "-")
		if strings.EqualFold(value, "true") {
			return []string{"--" + name}
		}
		return []string{fmt.Sprintf("--%s=%s", name, value)}
	},
}

// PBS renders tags as qsub options. Tags of the form pbs_l_<resource> become
// "-l <resource>=<value>".
var PBS = Dialect{
	Name:           "pbs",
	Prefix:         "pbs_",
	ReservationKey: "pbs_A",
	TimeKey:        "pbs_l_walltime",
	QueueKey:       "pbs_q",
	format: func(name, value string) []string {
		switch {
		case strings.HasPrefix(name, "l_"):
			return []string{"-l", fmt.Sprintf("%s=%s", name[2:], value)}
		case strings.EqualFold(value, "true"):
			return []string{"--" + name}
		default:
			return []string{"-" + name, value}
		}
	},
}

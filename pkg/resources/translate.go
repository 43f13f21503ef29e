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

// Package resources turns the agent query rules of a CI job into a
// scheduler-agnostic ResourceRequest.
package resources

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultTimeLimit is the wall-clock limit used when a job does not set one.
const DefaultTimeLimit = "1:05:00"

// Tags that are never passed through to the scheduler.
const (
	TagQueue       = "queue"
	TagPartition   = "partition"
	TagReservation = "reservation"
	TagExclude     = "exclude"
	TagModules     = "modules"
	TagConfig      = "config"
)

// ResourceRequest is what a CI job asks of the batch scheduler.
type ResourceRequest struct {
	// Queue is the CI queue the job was routed to.
	Queue string
	// Flags are the passthrough tags, already in scheduler-native form.
	Flags       []string
	Partition   string
	Reservation string
	GPU         bool
	TimeLimit   string
	// ExcludeHosts is a comma separated host list.
	ExcludeHosts string
	// Modules is handed to the job launcher as a trailing argument.
	Modules string
}

// Defaults holds the per-queue tables used when a job leaves a setting out.
// Partitions and GPUPartitions must cover every queue the poller watches.
type Defaults struct {
	Partitions    map[string]string `mapstructure:"partitions"`
	GPUPartitions map[string]string `mapstructure:"gpu-partitions"`
	Reservations  map[string]string `mapstructure:"reservations"`
	TimeLimit     string            `mapstructure:"time-limit"`
	ExcludeNodes  string            `mapstructure:"-"`
}

// DefaultTables returns the queue tables the bridge ships with.
func DefaultTables() Defaults {
	return Defaults{
		Partitions: map[string]string{
			"derecho":     "preempt@desched1",
			"test":        "batch",
			"clima":       "batch",
			"new-central": "expansion",
		},
		GPUPartitions: map[string]string{
			"derecho":     "preempt@desched1",
			"test":        "batch",
			"clima":       "batch",
			"new-central": "gpu",
		},
		Reservations: map[string]string{
			"new-central": "clima",
			"derecho":     "UCIT0011",
		},
		TimeLimit: DefaultTimeLimit,
	}
}

// CheckQueue returns a ConfigurationError unless both partition tables know
// the queue.
func (d Defaults) CheckQueue(queue string) error {
	if _, ok := d.Partitions[queue]; !ok {
		return &ConfigurationError{Setting: "partitions", Reason: fmt.Sprintf("no default partition for queue %q", queue)}
	}
	if _, ok := d.GPUPartitions[queue]; !ok {
		return &ConfigurationError{Setting: "gpu-partitions", Reason: fmt.Sprintf("no default GPU partition for queue %q", queue)}
	}
	return nil
}

// Translator maps tag sets to resource requests for one scheduler dialect.
type Translator struct {
	Dialect  Dialect
	Defaults Defaults
}

// NewTranslator returns a Translator for the given dialect and tables.
func NewTranslator(d Dialect, defaults Defaults) *Translator {
	if defaults.TimeLimit == "" {
		defaults.TimeLimit = DefaultTimeLimit
	}
	return &Translator{Dialect: d, Defaults: defaults}
}

// ParseTags splits agent query rules into a map. A rule without "=" fails the
// whole set. Values may themselves contain "=".
func ParseTags(rules []string) (map[string]string, error) {
	tags := make(map[string]string, len(rules))
	for _, rule := range rules {
		key, value, ok := strings.Cut(rule, "=")
		if !ok || key == "" {
			return nil, &TagParseError{Tag: rule}
		}
		tags[key] = value
	}
	return tags, nil
}

// QueueTag returns the value of the queue rule without parsing the others.
// As with ParseTags, the last queue rule wins.
func QueueTag(rules []string) (string, bool) {
	var queue string
	var found bool
	for _, rule := range rules {
		if key, value, ok := strings.Cut(rule, "="); ok && key == TagQueue {
			queue, found = value, true
		}
	}
	return queue, found
}

// GPURequested reports whether any of the given keys, or their values,
// mention "gpu". This is deliberately loose: it looks for the substring, not
// for a parsed GRES or select specification.
func GPURequested(keys []string, tags map[string]string) bool {
	for _, k := range keys {
		if strings.Contains(k, "gpu") || strings.Contains(tags[k], "gpu") {
			return true
		}
	}
	return false
}

// Translate builds the resource request for a job on the given CI queue.
func (t *Translator) Translate(tags map[string]string, queue string) (ResourceRequest, error) {
	d := t.Dialect
	namespaced := t.namespacedKeys(tags)
	req := ResourceRequest{
		Queue: queue,
		GPU:   GPURequested(namespaced, tags),
	}

	table, tableName := t.Defaults.Partitions, "partitions"
	if req.GPU {
		table, tableName = t.Defaults.GPUPartitions, "gpu-partitions"
	}
	defaultPartition, ok := table[queue]
	if !ok {
		return ResourceRequest{}, &ConfigurationError{
			Setting: tableName,
			Reason:  fmt.Sprintf("no default partition for queue %q", queue),
		}
	}

	_, hasQueueKey := tags[d.QueueKey]
	switch p := tags[TagPartition]; {
	case p != "":
		req.Partition = p
	case d.QueueKey != "" && hasQueueKey:
		// The passthrough flag picks the partition.
	default:
		req.Partition = defaultPartition
	}

	// A dialect reservation flag is passed through and beats the reservation tag.
	if _, ok := tags[d.ReservationKey]; !ok {
		req.Reservation = tags[TagReservation]
		if req.Reservation == "" {
			req.Reservation = t.Defaults.Reservations[queue]
		}
	}

	if exclude, ok := tags[TagExclude]; !ok || strings.EqualFold(exclude, "true") {
		req.ExcludeHosts = t.Defaults.ExcludeNodes
	}

	if _, ok := tags[d.TimeKey]; !ok {
		req.TimeLimit = t.Defaults.TimeLimit
	}

	req.Modules = tags[TagModules]

	for _, k := range namespaced {
		req.Flags = append(req.Flags, d.FormatFlag(k, tags[k])...)
	}
	return req, nil
}

func (t *Translator) namespacedKeys(tags map[string]string) []string {
	var keys []string
	for k := range tags {
		if strings.HasPrefix(k, t.Dialect.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

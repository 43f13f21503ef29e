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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testDefaults() Defaults {
	d := DefaultTables()
	d.ExcludeNodes = "hpc-90,hpc-91"
	return d
}

func TestParseTags(t *testing.T) {
	tags, err := ParseTags([]string{"queue=clima", "slurm_ntasks=4", "slurm_constraint=a=b"})
	if err != nil {
		t.Fatalf("ParseTags: %v", err)
	}
	want := map[string]string{"queue": "clima", "slurm_ntasks": "4", "slurm_constraint": "a=b"}
	if diff := cmp.Diff(want, tags); diff != "" {
		t.Errorf("ParseTags mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"badtag", "=novalue"} {
		_, err := ParseTags([]string{"queue=clima", bad})
		var tpe *TagParseError
		if !errors.As(err, &tpe) {
			t.Errorf("ParseTags(%q) error = %v, want TagParseError", bad, err)
			continue
		}
		if tpe.Tag != bad {
			t.Errorf("TagParseError.Tag = %q, want %q", tpe.Tag, bad)
		}
	}
}

func TestQueueTag(t *testing.T) {
	tests := []struct {
		rules []string
		queue string
		found bool
	}{
		{[]string{"queue=clima", "badtag"}, "clima", true},
		{[]string{"slurm_ntasks=4", "queue=a", "queue=b"}, "b", true},
		{[]string{"slurm_ntasks=4", "queues=clima"}, "", false},
		{nil, "", false},
	}
	for _, tc := range tests {
		queue, found := QueueTag(tc.rules)
		if queue != tc.queue || found != tc.found {
			t.Errorf("QueueTag(%q) = %q, %v, want %q, %v", tc.rules, queue, found, tc.queue, tc.found)
		}
	}
}

// The GPU check is a substring match on keys and values; it is known to
// flag anything that merely mentions "gpu".
func TestGPURequested(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{"gres value", map[string]string{"slurm_gres": "gpu:1"}, true},
		{"partition value", map[string]string{"slurm_partition": "gpu-queue"}, true},
		{"gpus key", map[string]string{"slurm_gpus_per_task": "1"}, true},
		{"plain ntasks", map[string]string{"slurm_ntasks": "4"}, false},
		{"non-namespaced tag ignored", map[string]string{"queue": "gpu", "slurm_ntasks": "4"}, false},
	}
	tr := NewTranslator(Slurm, testDefaults())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GPURequested(tr.namespacedKeys(tt.tags), tt.tags)
			if got != tt.want {
				t.Errorf("GPURequested(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestTranslateSlurm(t *testing.T) {
	tests := []struct {
		name  string
		tags  map[string]string
		queue string
		want  ResourceRequest
	}{
		{
			name:  "defaults for clima",
			tags:  map[string]string{"queue": "clima", "slurm_ntasks": "4"},
			queue: "clima",
			want: ResourceRequest{
				Queue:        "clima",
				Flags:        []string{"--ntasks=4"},
				Partition:    "batch",
				TimeLimit:    DefaultTimeLimit,
				ExcludeHosts: "hpc-90,hpc-91",
			},
		},
		{
			name:  "gpu partition and default reservation",
			tags:  map[string]string{"queue": "new-central", "slurm_gres": "gpu:1", "slurm_exclusive": "True"},
			queue: "new-central",
			want: ResourceRequest{
				Queue:        "new-central",
				Flags:        []string{"--exclusive", "--gres=gpu:1"},
				Partition:    "gpu",
				Reservation:  "clima",
				GPU:          true,
				TimeLimit:    DefaultTimeLimit,
				ExcludeHosts: "hpc-90,hpc-91",
			},
		},
		{
			name: "explicit scheduler keys suppress defaults",
			tags: map[string]string{
				"queue":             "new-central",
				"slurm_reservation": "special",
				"slurm_time":        "4:00:00",
				"slurm_mem_per_cpu": "8G",
				"exclude":           "false",
				"modules":           "climacommon/2024",
			},
			queue: "new-central",
			want: ResourceRequest{
				Queue:     "new-central",
				Flags:     []string{"--mem-per-cpu=8G", "--reservation=special", "--time=4:00:00"},
				Partition: "expansion",
				Modules:   "climacommon/2024",
			},
		},
		{
			name:  "slurm_partition passes through instead of default",
			tags:  map[string]string{"queue": "clima", "slurm_partition": "gpu-queue"},
			queue: "clima",
			want: ResourceRequest{
				Queue:        "clima",
				Flags:        []string{"--partition=gpu-queue"},
				GPU:          true,
				TimeLimit:    DefaultTimeLimit,
				ExcludeHosts: "hpc-90,hpc-91",
			},
		},
		{
			name:  "reserved tags are not passed through",
			tags:  map[string]string{"queue": "clima", "config": "cpu", "reservation": "r1", "exclude": "TRUE"},
			queue: "clima",
			want: ResourceRequest{
				Queue:        "clima",
				Partition:    "batch",
				Reservation:  "r1",
				TimeLimit:    DefaultTimeLimit,
				ExcludeHosts: "hpc-90,hpc-91",
			},
		},
		{
			name:  "slurm_reservation beats the reservation tag",
			tags:  map[string]string{"queue": "clima", "reservation": "r1", "slurm_reservation": "special"},
			queue: "clima",
			want: ResourceRequest{
				Queue:        "clima",
				Flags:        []string{"--reservation=special"},
				Partition:    "batch",
				TimeLimit:    DefaultTimeLimit,
				ExcludeHosts: "hpc-90,hpc-91",
			},
		},
	}

	tr := NewTranslator(Slurm, testDefaults())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Translate(tt.tags, tt.queue)
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Translate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTranslatePartitionPrecedence(t *testing.T) {
	defaults := testDefaults()
	tr := NewTranslator(Slurm, defaults)
	for queue := range defaults.Partitions {
		for _, gpuTags := range []map[string]string{
			{},
			{"slurm_gres": "gpu:4"},
		} {
			tags := map[string]string{"queue": queue, "partition": "foo"}
			for k, v := range gpuTags {
				tags[k] = v
			}
			req, err := tr.Translate(tags, queue)
			if err != nil {
				t.Fatalf("Translate(%v): %v", tags, err)
			}
			if req.Partition != "foo" {
				t.Errorf("queue %s gpu=%v: Partition = %q, want foo", queue, req.GPU, req.Partition)
			}
		}
	}
}

func TestTranslateUnknownQueue(t *testing.T) {
	tr := NewTranslator(Slurm, testDefaults())
	_, err := tr.Translate(map[string]string{"queue": "nowhere", "partition": "foo"}, "nowhere")
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("Translate error = %v, want ConfigurationError", err)
	}
}

func TestTranslatePBS(t *testing.T) {
	tr := NewTranslator(PBS, testDefaults())

	got, err := tr.Translate(map[string]string{
		"queue":        "derecho",
		"pbs_l_select": "1:ncpus=4:ngpus=1",
		"pbs_r":        "true",
		"pbs_W":        "depend=afterok:1",
	}, "derecho")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	want := ResourceRequest{
		Queue:        "derecho",
		Flags:        []string{"-W", "depend=afterok:1", "-l", "select=1:ncpus=4:ngpus=1", "--r"},
		Partition:    "preempt@desched1",
		Reservation:  "UCIT0011",
		GPU:          true,
		TimeLimit:    DefaultTimeLimit,
		ExcludeHosts: "hpc-90,hpc-91",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Translate mismatch (-want +got):\n%s", diff)
	}

	got, err = tr.Translate(map[string]string{
		"queue":          "derecho",
		"pbs_q":          "develop",
		"pbs_A":          "ACCT",
		"pbs_l_walltime": "00:30:00",
	}, "derecho")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got.Partition != "" || got.Reservation != "" || got.TimeLimit != "" {
		t.Errorf("explicit pbs keys should suppress defaults, got %+v", got)
	}

	got, err = tr.Translate(map[string]string{
		"queue":       "derecho",
		"reservation": "R1",
		"pbs_A":       "ACCT",
	}, "derecho")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got.Reservation != "" {
		t.Errorf("pbs_A should beat the reservation tag, got Reservation %q", got.Reservation)
	}
}

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

// Package correlation keeps track of which scheduler jobs were submitted on
// behalf of which CI job.
package correlation

import (
	"context"
	"fmt"
	"sort"
)

// Records maps a CI job key to the scheduler job IDs submitted for it. More
// than one ID for a key means the job was submitted twice.
type Records map[string][]string

// Duplicates returns the keys that map to more than one scheduler job, sorted.
func (r Records) Duplicates() []string {
	var keys []string
	for k, ids := range r {
		if len(ids) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (r Records) Clone() Records {
	out := make(Records, len(r))
	for k, ids := range r {
		out[k] = append([]string(nil), ids...)
	}
	return out
}

// Store is a mapping from CI job key to scheduler job IDs.
type Store interface {
	// Lookup returns the scheduler jobs recorded for key.
	Lookup(ctx context.Context, key string) ([]string, bool)
	// Record appends a scheduler job to key; it never overwrites.
	Record(ctx context.Context, key, schedulerID string) error
	// Reconcile forgets every scheduler job that is not in live.
	Reconcile(ctx context.Context, live *LiveSet) error
	// Remove forgets key entirely.
	Remove(ctx context.Context, key string) error
	// All returns a snapshot of every record.
	All(ctx context.Context) Records
}

// LiveSet is the set of scheduler job IDs reported by a live query. A set is
// ambiguous when some rows of the query output could not be parsed; nothing
// is ever forgotten on the strength of an ambiguous set.
type LiveSet struct {
	ids       map[string]bool
	ambiguous bool
}

// NewLiveSet returns a set holding ids.
func NewLiveSet(ids ...string) *LiveSet {
	s := &LiveSet{ids: make(map[string]bool, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add marks id as live.
func (s *LiveSet) Add(id string) {
	s.ids[id] = true
}

// MarkAmbiguous records that the query output was not fully understood.
func (s *LiveSet) MarkAmbiguous() {
	s.ambiguous = true
}

// Ambiguous reports whether MarkAmbiguous was called.
func (s *LiveSet) Ambiguous() bool {
	return s.ambiguous
}

// Contains reports whether id is live.
func (s *LiveSet) Contains(id string) bool {
	return s.ids[id]
}

// Len returns the number of live IDs.
func (s *LiveSet) Len() int {
	return len(s.ids)
}

// StoreError reports that the durable store could not be read or written.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("correlation store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

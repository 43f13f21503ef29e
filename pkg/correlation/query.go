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

package correlation

import "context"

// QueryStore is a Store rebuilt from the scheduler's live query every cycle.
// It holds no durable state, so it can never go stale and Reconcile does
// nothing.
type QueryStore struct {
	records Records
}

// NewQueryStore returns an empty QueryStore.
func NewQueryStore() *QueryStore {
	return &QueryStore{records: Records{}}
}

// Lookup implements Store.
func (s *QueryStore) Lookup(_ context.Context, key string) ([]string, bool) {
	ids, ok := s.records[key]
	return ids, ok
}

// Record implements Store.
func (s *QueryStore) Record(_ context.Context, key, schedulerID string) error {
	s.records[key] = append(s.records[key], schedulerID)
	return nil
}

// Reconcile implements Store.
func (s *QueryStore) Reconcile(context.Context, *LiveSet) error {
	return nil
}

// Remove implements Store.
func (s *QueryStore) Remove(_ context.Context, key string) error {
	delete(s.records, key)
	return nil
}

// All implements Store.
func (s *QueryStore) All(context.Context) Records {
	return s.records.Clone()
}

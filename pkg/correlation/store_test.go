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

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	urlJ1 = "https://buildkite.com/clima/pipe/builds/1#J1"
	urlJ2 = "https://buildkite.com/clima/pipe/builds/1#J2"
)

func newTestStores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"query":  NewQueryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db")),
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok := s.Lookup(ctx, urlJ1); ok {
				t.Fatalf("Lookup on empty store returned ok")
			}
			if err := s.Record(ctx, urlJ1, "551"); err != nil {
				t.Fatalf("Record: %v", err)
			}
			ids, ok := s.Lookup(ctx, urlJ1)
			if !ok {
				t.Fatalf("Lookup(%q) not found after Record", urlJ1)
			}
			if diff := cmp.Diff([]string{"551"}, ids); diff != "" {
				t.Errorf("Lookup mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecordAppends(t *testing.T) {
	ctx := context.Background()
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"551", "552"} {
				if err := s.Record(ctx, urlJ1, id); err != nil {
					t.Fatalf("Record: %v", err)
				}
			}
			if err := s.Record(ctx, urlJ2, "600"); err != nil {
				t.Fatalf("Record: %v", err)
			}
			all := s.All(ctx)
			want := Records{urlJ1: {"551", "552"}, urlJ2: {"600"}}
			if diff := cmp.Diff(want, all); diff != "" {
				t.Errorf("All mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{urlJ1}, all.Duplicates()); diff != "" {
				t.Errorf("Duplicates mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Record(ctx, urlJ1, "551")
			_ = s.Record(ctx, urlJ2, "600")
			if err := s.Remove(ctx, urlJ1); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if _, ok := s.Lookup(ctx, urlJ1); ok {
				t.Errorf("Lookup(%q) found after Remove", urlJ1)
			}
			if _, ok := s.Lookup(ctx, urlJ2); !ok {
				t.Errorf("Remove dropped an unrelated key")
			}
		})
	}
}

func TestSQLiteReconcile(t *testing.T) {
	ctx := context.Background()
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	_ = s.Record(ctx, urlJ1, "551")
	_ = s.Record(ctx, urlJ1, "552")
	_ = s.Record(ctx, urlJ2, "600")

	if err := s.Reconcile(ctx, NewLiveSet("552", "999")); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := Records{urlJ1: {"552"}}
	if diff := cmp.Diff(want, s.All(ctx)); diff != "" {
		t.Errorf("All after Reconcile mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteReconcileAmbiguousKeepsEverything(t *testing.T) {
	ctx := context.Background()
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	_ = s.Record(ctx, urlJ1, "551")

	live := NewLiveSet()
	live.MarkAmbiguous()
	if err := s.Reconcile(ctx, live); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, ok := s.Lookup(ctx, urlJ1); !ok {
		t.Errorf("ambiguous Reconcile removed an entry")
	}
}

func TestQueryStoreReconcileIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewQueryStore()
	_ = s.Record(ctx, urlJ1, "551")
	if err := s.Reconcile(ctx, NewLiveSet()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, ok := s.Lookup(ctx, urlJ1); !ok {
		t.Errorf("QueryStore.Reconcile removed an entry")
	}
}

func TestSQLiteCorruptFileDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")
	if err := os.WriteFile(path, []byte("this is not a sqlite database, not even close......................................................"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewSQLiteStore(path)

	if got := s.All(ctx); len(got) != 0 {
		t.Errorf("All on corrupt store = %v, want empty", got)
	}
	if _, ok := s.Lookup(ctx, urlJ1); ok {
		t.Errorf("Lookup on corrupt store returned ok")
	}
	err := s.Record(ctx, urlJ1, "551")
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("Record on corrupt store error = %v, want StoreError", err)
	}
	if se.Path != path {
		t.Errorf("StoreError.Path = %q, want %q", se.Path, path)
	}
}

func TestSQLitePathWithURICharacters(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ci?queue=a#b%20c")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "jobs.db")
	s := NewSQLiteStore(path)

	if err := s.Record(ctx, urlJ1, "551"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database not created at %s: %v", path, err)
	}
	if diff := cmp.Diff(Records{urlJ1: {"551"}}, s.All(ctx)); diff != "" {
		t.Errorf("All mismatch (-want +got):\n%s", diff)
	}
}

func TestLiveSet(t *testing.T) {
	s := NewLiveSet("1", "2")
	s.Add("3")
	if s.Len() != 3 || !s.Contains("3") || s.Contains("4") {
		t.Errorf("unexpected LiveSet contents")
	}
	if s.Ambiguous() {
		t.Errorf("new LiveSet is ambiguous")
	}
}

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

package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hpc-ci-bridge/pkg/poller"
)

type cyclerFunc func(ctx context.Context) (*poller.Report, error)

func (f cyclerFunc) Cycle(ctx context.Context) (*poller.Report, error) {
	return f(ctx)
}

func TestRunCycleRecoversPanic(t *testing.T) {
	report, err := runCycle(context.Background(), cyclerFunc(func(context.Context) (*poller.Report, error) {
		panic("nil backend")
	}))
	if err == nil {
		t.Fatal("runCycle returned no error for a panicking cycle")
	}
	if !strings.Contains(err.Error(), "nil backend") {
		t.Errorf("runCycle error = %q, want it to carry the panic value", err)
	}
	if report != nil {
		t.Errorf("runCycle report = %+v, want nil", report)
	}
}

func TestRunCyclePassesThrough(t *testing.T) {
	want := &poller.Report{Scheduler: "slurm"}
	got, err := runCycle(context.Background(), cyclerFunc(func(context.Context) (*poller.Report, error) {
		return want, nil
	}))
	if err != nil || got != want {
		t.Errorf("runCycle = %v, %v, want %v, nil", got, err, want)
	}

	boom := errors.New("squeue failed")
	if _, err := runCycle(context.Background(), cyclerFunc(func(context.Context) (*poller.Report, error) {
		return nil, boom
	})); !errors.Is(err, boom) {
		t.Errorf("runCycle error = %v, want %v", err, boom)
	}
}

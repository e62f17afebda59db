// Copyright 2025 The peering-session-controller Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jobs_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
	"github.com/stretchr/testify/assert"
)

type subject string

func (s subject) String() string { return string(s) }

func TestResult_MarkErrored(t *testing.T) {
	r := jobs.NewResult("poll")
	r.SetRunning()
	r.MarkErrored("Router is not enabled.", subject("edge-1"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, jobs.StatusErrored, r.Status())
	entries := r.Entries()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "edge-1", entries[0].Subject)
		assert.Equal(t, "Router is not enabled.", entries[0].Message)
	}

	// an errored job stays errored.
	r.MarkCompleted()
	assert.Equal(t, jobs.StatusErrored, r.Status())
}

func TestResult_MarkCompleted(t *testing.T) {
	r := jobs.NewResult("import")
	assert.Equal(t, jobs.StatusPending, r.Status())

	r.MarkCompleted()
	assert.Equal(t, jobs.StatusCompleted, r.Status())
	assert.Empty(t, r.Entries())
}

func TestResult_MarkErroredWithoutLoggerOrSubject(t *testing.T) {
	r := jobs.NewResult("poll")
	r.MarkErrored("failure", nil, nil)

	entries := r.Entries()
	if assert.Len(t, entries, 1) {
		assert.Empty(t, entries[0].Subject)
	}
}

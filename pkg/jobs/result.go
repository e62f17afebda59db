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

package jobs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Status is the status of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

// Sink receives the failures that are surfaced without being returned as errors.
type Sink interface {
	// MarkErrored marks the job as errored with the given message about the subject.
	MarkErrored(message string, subject fmt.Stringer, logger *slog.Logger)
}

// Entry is a message recorded on a job result.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Subject string    `json:"subject,omitempty"`
	Message string    `json:"message"`
}

// Result tracks the outcome of a background job.
// the zero value is not usable, use NewResult.
type Result struct {
	m sync.RWMutex

	name      string
	status    Status
	created   time.Time
	completed *time.Time
	entries   []Entry
}

var _ Sink = &Result{}

// NewResult returns a pending job result.
func NewResult(name string) *Result {
	return &Result{
		name:    name,
		status:  StatusPending,
		created: time.Now(),
		entries: make([]Entry, 0),
	}
}

// Name returns the name of the job.
func (r *Result) Name() string {
	return r.name
}

// Status returns the current status of the job.
func (r *Result) Status() Status {
	r.m.RLock()
	defer r.m.RUnlock()

	return r.status
}

// Entries returns a copy of the recorded entries.
func (r *Result) Entries() []Entry {
	r.m.RLock()
	defer r.m.RUnlock()

	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// SetRunning marks the job as running.
func (r *Result) SetRunning() {
	r.m.Lock()
	defer r.m.Unlock()

	r.status = StatusRunning
}

// MarkCompleted marks the job as completed unless it already errored.
func (r *Result) MarkCompleted() {
	r.m.Lock()
	defer r.m.Unlock()

	if r.status != StatusErrored {
		r.status = StatusCompleted
	}
	now := time.Now()
	r.completed = &now
}

// MarkErrored implements Sink
func (r *Result) MarkErrored(message string, subject fmt.Stringer, logger *slog.Logger) {
	entry := Entry{
		Time:    time.Now(),
		Level:   "failure",
		Message: message,
	}
	if subject != nil {
		entry.Subject = subject.String()
	}

	if logger != nil {
		logger.Error(message, "job", r.name, "subject", entry.Subject)
	}

	r.m.Lock()
	defer r.m.Unlock()

	r.status = StatusErrored
	r.entries = append(r.entries, entry)
	now := time.Now()
	r.completed = &now
}

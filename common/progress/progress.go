// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKeyType string

var spanKeyName = spanKeyType(uuid.New().String())

type Status string

const (
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

// Tracer records the root spans of a process.
type Tracer struct {
	name  string
	spans sync.Map
}

func NewTracer(name string) *Tracer {
	return &Tracer{name: name}
}

// Start creates a root span.
func (t *Tracer) Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	span := newSpan(name, total)
	t.spans.Store(name, span)
	return context.WithValue(ctx, spanKeyName, span), span
}

// List returns the progress of every root span and its descendants, parents first.
func (t *Tracer) List() []Progress {
	var progress []Progress
	t.spans.Range(func(_, value interface{}) bool {
		progress = append(progress, value.(*Span).list(t.name)...)
		return true
	})
	return progress
}

type Span struct {
	mu       sync.Mutex
	name     string
	status   Status
	total    int
	count    int
	err      string
	start    time.Time
	finish   time.Time
	children sync.Map
}

func newSpan(name string, total int) *Span {
	return &Span{
		name:   name,
		status: StatusRunning,
		total:  total,
		start:  time.Now(),
	}
}

func (s *Span) Add(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count += n
}

func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		s.status = StatusComplete
		s.count = s.total
	}
	s.finish = time.Now()
}

func (s *Span) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
	s.err = err.Error()
	s.finish = time.Now()
}

func (s *Span) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Span) list(tracer string) []Progress {
	s.mu.Lock()
	progress := []Progress{{
		Tracer:     tracer,
		Name:       s.name,
		Status:     s.status,
		Error:      s.err,
		Count:      s.count,
		Total:      s.total,
		StartTime:  s.start,
		FinishTime: s.finish,
	}}
	s.mu.Unlock()
	var children []*Span
	s.children.Range(func(_, value interface{}) bool {
		children = append(children, value.(*Span))
		return true
	})
	sort.Slice(children, func(i, j int) bool {
		return children[i].start.Before(children[j].start)
	})
	for _, child := range children {
		progress = append(progress, child.list(tracer)...)
	}
	return progress
}

// Start creates a child span under the span carried by ctx. Without a parent span the returned
// span is detached and the returned context is ctx itself.
func Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	childSpan := newSpan(name, total)
	if ctx == nil {
		return nil, childSpan
	}
	span, ok := ctx.Value(spanKeyName).(*Span)
	if !ok {
		return ctx, childSpan
	}
	span.children.Store(name, childSpan)
	return context.WithValue(ctx, spanKeyName, childSpan), childSpan
}

type Progress struct {
	Tracer     string
	Name       string
	Status     Status
	Error      string
	Count      int
	Total      int
	StartTime  time.Time
	FinishTime time.Time
}

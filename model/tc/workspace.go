// Copyright 2026 gorse Project Authors
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

package tc

import (
	"github.com/bits-and-blooms/bitset"
	"go.uber.org/atomic"
)

// Buffers is the scratch space of one worker for row updates.
type Buffers struct {
	Hada  []float64
	Accum []float64
	Neqs  []float64
}

func NewBuffers(rank int) *Buffers {
	return &Buffers{
		Hada:  make([]float64, rank),
		Accum: make([]float64, rank),
		Neqs:  make([]float64, rank*rank),
	}
}

// Workspace owns one Buffers per worker for the lifetime of a fit.
type Workspace struct {
	buffers []*Buffers
}

func NewWorkspace(jobs, rank int) *Workspace {
	ws := &Workspace{buffers: make([]*Buffers, jobs)}
	for i := range ws.buffers {
		ws.buffers[i] = NewBuffers(rank)
	}
	return ws
}

func (ws *Workspace) Buffers(workerId int) *Buffers {
	return ws.buffers[workerId]
}

func (ws *Workspace) Len() int {
	return len(ws.buffers)
}

// SolveStatus tracks rows whose last solve failed. Failures counts every failed solve since
// the status was created.
type SolveStatus struct {
	degraded []*bitset.BitSet
	failures *atomic.Int64
}

func NewSolveStatus(dims []int) *SolveStatus {
	status := &SolveStatus{
		degraded: make([]*bitset.BitSet, len(dims)),
		failures: atomic.NewInt64(0),
	}
	for m, dim := range dims {
		status.degraded[m] = bitset.New(uint(dim))
	}
	return status
}

// inc counts a failure. Safe for concurrent use.
func (status *SolveStatus) inc() {
	status.failures.Inc()
}

// update replaces the degraded rows of a mode. Not safe for concurrent use.
func (status *SolveStatus) update(mode int, rows [][]int) {
	status.degraded[mode].ClearAll()
	for _, workerRows := range rows {
		for _, row := range workerRows {
			status.degraded[mode].Set(uint(row))
		}
	}
}

// Degraded reports whether the last solve of a row failed.
func (status *SolveStatus) Degraded(mode, row int) bool {
	return status.degraded[mode].Test(uint(row))
}

// DegradedRows lists the rows of a mode whose last solve failed.
func (status *SolveStatus) DegradedRows(mode int) []int {
	var rows []int
	for i, ok := status.degraded[mode].NextSet(0); ok; i, ok = status.degraded[mode].NextSet(i + 1) {
		rows = append(rows, int(i))
	}
	return rows
}

// NumDegraded counts degraded rows over all modes.
func (status *SolveStatus) NumDegraded() int {
	var n uint
	for _, b := range status.degraded {
		n += b.Count()
	}
	return int(n)
}

func (status *SolveStatus) Failures() int {
	return int(status.failures.Load())
}

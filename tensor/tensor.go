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

package tensor

import (
	"cmp"
	"slices"

	"github.com/juju/errors"
)

// Tensor is a sparse tensor in coordinate form. Inds[m][x] is the index of nonzero x along
// mode m and Vals[x] is its value.
type Tensor struct {
	Dims []int
	Inds [][]int
	Vals []float64
}

// New creates an empty tensor with the given dimensions.
func New(dims []int) *Tensor {
	t := &Tensor{
		Dims: slices.Clone(dims),
		Inds: make([][]int, len(dims)),
	}
	for m := range t.Inds {
		t.Inds[m] = make([]int, 0)
	}
	return t
}

// NModes returns the order of the tensor.
func (t *Tensor) NModes() int {
	return len(t.Dims)
}

// NNZ returns the number of nonzeros.
func (t *Tensor) NNZ() int {
	if t == nil {
		return 0
	}
	return len(t.Vals)
}

// Append adds a nonzero. It does not check bounds; see Validate.
func (t *Tensor) Append(inds []int, val float64) {
	for m := range t.Inds {
		t.Inds[m] = append(t.Inds[m], inds[m])
	}
	t.Vals = append(t.Vals, val)
}

// Index returns the coordinate of nonzero x.
func (t *Tensor) Index(x int) []int {
	inds := make([]int, t.NModes())
	for m := range inds {
		inds[m] = t.Inds[m][x]
	}
	return inds
}

// ExpandDims grows every dimension to at least dims[m].
func (t *Tensor) ExpandDims(dims []int) {
	for m := range t.Dims {
		if m < len(dims) && dims[m] > t.Dims[m] {
			t.Dims[m] = dims[m]
		}
	}
}

// Validate checks the structure of the tensor: one index array per mode, every index array
// as long as the value array and every index inside its dimension.
func (t *Tensor) Validate() error {
	if t.NModes() == 0 {
		return errors.NotValidf("tensor without modes")
	}
	if len(t.Inds) != t.NModes() {
		return errors.NotValidf("%d index arrays for %d modes", len(t.Inds), t.NModes())
	}
	for m, inds := range t.Inds {
		if t.Dims[m] <= 0 {
			return errors.NotValidf("dimension %d of mode %d", t.Dims[m], m)
		}
		if len(inds) != len(t.Vals) {
			return errors.NotValidf("%d indices in mode %d for %d nonzeros", len(inds), m, len(t.Vals))
		}
		for x, i := range inds {
			if i < 0 || i >= t.Dims[m] {
				return errors.NotValidf("index %d of nonzero %d in mode %d with dimension %d", i, x, m, t.Dims[m])
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{
		Dims: slices.Clone(t.Dims),
		Inds: make([][]int, len(t.Inds)),
		Vals: slices.Clone(t.Vals),
	}
	for m := range t.Inds {
		c.Inds[m] = slices.Clone(t.Inds[m])
	}
	return c
}

// Order returns the nonzero ids in lexicographic order of (ind[perm[0]], ind[perm[1]], ...).
// Ties keep their original order. The tensor is not modified.
func (t *Tensor) Order(perm []int) []int {
	order := make([]int, t.NNZ())
	for x := range order {
		order[x] = x
	}
	slices.SortStableFunc(order, func(a, b int) int {
		for _, m := range perm {
			if c := cmp.Compare(t.Inds[m][a], t.Inds[m][b]); c != 0 {
				return c
			}
		}
		return 0
	})
	return order
}

// Sort reorders the nonzeros in place so that they follow Order(perm). Every index array and
// the value array are rewritten; ids obtained before the call are invalidated.
func (t *Tensor) Sort(perm []int) {
	order := t.Order(perm)
	for m := range t.Inds {
		t.Inds[m] = gather(t.Inds[m], order)
	}
	t.Vals = gather(t.Vals, order)
}

func gather[T any](a []T, order []int) []T {
	b := make([]T, len(order))
	for i, x := range order {
		b[i] = a[x]
	}
	return b
}

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

package fiber

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/gorse-io/tensorfact/tensor"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTensor() *tensor.Tensor {
	t := tensor.New([]int{3, 3, 3})
	t.Append([]int{2, 0, 1}, 1)
	t.Append([]int{0, 2, 2}, 2)
	t.Append([]int{0, 1, 0}, 3)
	t.Append([]int{1, 1, 1}, 4)
	t.Append([]int{0, 1, 2}, 5)
	return t
}

// newGappedTensor has nonzeros only in slices 1 and 3 of mode 0.
func newGappedTensor() *tensor.Tensor {
	t := tensor.New([]int{5, 2, 2})
	t.Append([]int{1, 0, 0}, 1)
	t.Append([]int{3, 1, 1}, 2)
	t.Append([]int{3, 1, 0}, 3)
	return t
}

func TestModeOrder(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, ModeOrder([]int{3, 5, 4}, 0, ShortestModeLast))
	assert.Equal(t, []int{0, 2, 1}, ModeOrder([]int{3, 5, 4}, 0, LongestModeLast))
	// ties go to the first mode after the target
	assert.Equal(t, []int{1, 0, 2}, ModeOrder([]int{4, 4, 4}, 1, ShortestModeLast))
	assert.Equal(t, []int{2, 1, 0}, ModeOrder([]int{4, 4, 4}, 2, LongestModeLast))
	assert.Equal(t, []int{0, 2, 3, 1}, ModeOrder([]int{10, 2, 2, 3}, 0, ShortestModeLast))
	assert.Equal(t, []int{1, 0}, ModeOrder([]int{7, 9}, 1, ShortestModeLast))
}

func TestParseFiberOrder(t *testing.T) {
	order, err := ParseFiberOrder("longest")
	assert.NoError(t, err)
	assert.Equal(t, LongestModeLast, order)
	order, err = ParseFiberOrder("Shortest")
	assert.NoError(t, err)
	assert.Equal(t, ShortestModeLast, order)
	assert.Equal(t, "shortest", order.String())
	_, err = ParseFiberOrder("middle")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestBuild(t *testing.T) {
	tt := newTestTensor()
	ft, err := Build(tt, 0, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, ft.Perm)
	assert.Equal(t, []int{0, 1, 3, 4, 5}, ft.Fptr)
	assert.Equal(t, []int{0, 2, 1, 1}, ft.Fids)
	assert.Equal(t, []int{1, 1, 2, 1, 0}, ft.Inds)
	assert.Equal(t, []float64{3, 5, 2, 4, 1}, ft.Vals)
	assert.Equal(t, []int{0, 2, 3, 4}, ft.Sptr)
	assert.Equal(t, 4, ft.NFibers())
	assert.Equal(t, 3, ft.NSlices())

	ft, err = Build(tt, 1, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, ft.Perm)
	assert.Equal(t, []int{0, 1, 3, 4, 5}, ft.Fptr)
	assert.Equal(t, []int{2, 0, 1, 0}, ft.Fids)
	assert.Equal(t, []int{1, 0, 2, 1, 2}, ft.Inds)
	assert.Equal(t, []float64{1, 3, 5, 4, 2}, ft.Vals)
	assert.Equal(t, []int{0, 1, 3, 4}, ft.Sptr)

	// the coordinate tensor is not reordered
	assert.Equal(t, newTestTensor(), tt)
}

func TestBuild_EmptySlices(t *testing.T) {
	ft, err := Build(newGappedTensor(), 0, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, ft.Perm)
	assert.Equal(t, []int{0, 1, 2, 3}, ft.Fptr)
	assert.Equal(t, []int{0, 0, 1}, ft.Fids)
	assert.Equal(t, []int{0, 1, 1}, ft.Inds)
	assert.Equal(t, []int{0, 0, 1, 1, 3, 3}, ft.Sptr)
	for _, s := range []int{0, 2, 4} {
		begin, end := ft.SliceFibers(s)
		assert.Equal(t, begin, end, "slice %d", s)
	}
	begin, end := ft.SliceFibers(3)
	assert.Equal(t, 1, begin)
	assert.Equal(t, 3, end)
}

func TestBuild_Tiled(t *testing.T) {
	ft, err := Build(newGappedTensor(), 0, Options{Tile: true, TileDims: []int{2, 2, 2}})
	require.NoError(t, err)
	assert.True(t, ft.Tiled)
	assert.Equal(t, []int{1, 3}, ft.Sids)
	assert.Equal(t, []int{0, 1, 3}, ft.Sptr)
	assert.Equal(t, 2, ft.NSlabs)
	assert.Equal(t, []int{0, 1, 2}, ft.Slabptr)
	assert.Equal(t, 2, ft.NSlices())
	assert.Equal(t, 3, ft.SliceID(1))

	// leading and middle slabs are empty
	ft, err = Build(newGappedTensor(), 0, Options{Tile: true, TileDims: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, 4, ft.NSlabs)
	assert.Equal(t, []int{0, 0, 1, 1, 2}, ft.Slabptr)
	begin, end := ft.SlabSlices(0)
	assert.Equal(t, begin, end)
	begin, end = ft.SlabSlices(3)
	assert.Equal(t, 1, begin)
	assert.Equal(t, 2, end)

	// default tile dimensions
	ft, err = Build(newGappedTensor(), 0, Options{Tile: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultTileDims[0], ft.SlabSize)
	assert.Equal(t, 1, ft.NSlabs)

	_, err = Build(newGappedTensor(), 0, Options{Tile: true, TileDims: []int{0}})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestBuild_SingleNonzero(t *testing.T) {
	tt := tensor.New([]int{1, 1, 1})
	tt.Append([]int{0, 0, 0}, 7)
	for mode := 0; mode < 3; mode++ {
		ft, err := Build(tt, mode, Options{})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, ft.Fptr)
		assert.Equal(t, []int{0}, ft.Fids)
		assert.Equal(t, []int{0, 1}, ft.Sptr)
		assert.Equal(t, []float64{7}, ft.Vals)
	}
}

func TestBuild_Empty(t *testing.T) {
	tt := tensor.New([]int{3, 3, 3})
	ft, err := Build(tt, 2, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ft.Fptr)
	assert.Zero(t, ft.NFibers())
	assert.Equal(t, []int{0, 0, 0, 0}, ft.Sptr)

	ft, err = Build(tt, 2, Options{Tile: true})
	require.NoError(t, err)
	assert.Zero(t, ft.NSlabs)
	assert.Zero(t, ft.NSlices())
	assert.Equal(t, []int{0}, ft.Slabptr)
}

func TestBuild_Invalid(t *testing.T) {
	_, err := Build(tensor.New([]int{4}), 0, Options{})
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = Build(newTestTensor(), 3, Options{})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestBuild_AllInOneSlice(t *testing.T) {
	tt := tensor.New([]int{4, 3, 3})
	tt.Append([]int{2, 0, 0}, 1)
	tt.Append([]int{2, 1, 2}, 2)
	tt.Append([]int{2, 2, 1}, 3)
	ft, err := Build(tt, 0, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 3, 3}, ft.Sptr)
	assert.Equal(t, 3, ft.NFibers())
}

func TestCSR(t *testing.T) {
	ft, err := Build(newTestTensor(), 0, Options{})
	require.NoError(t, err)
	m := ft.CSR()
	assert.Equal(t, 4, m.Rows)
	assert.Equal(t, 3, m.Cols)
	assert.Equal(t, 5, m.NNZ())
	cols, vals := m.Row(1)
	assert.Equal(t, []int{1, 2}, cols)
	assert.Equal(t, []float64{5, 2}, vals)
	// the matrix does not alias the fiber tensor
	m.Vals[0] = 100
	assert.Equal(t, 3.0, ft.Vals[0])
}

func TestBuildAll(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	dims := []int{7, 11, 5}
	tt := tensor.New(dims)
	expected := make(map[string]float64)
	for len(expected) < 60 {
		inds := []int{rng.Intn(dims[0]), rng.Intn(dims[1]), rng.Intn(dims[2])}
		key := fmt.Sprint(inds)
		if _, exist := expected[key]; exist {
			continue
		}
		val := rng.Float64()
		expected[key] = val
		tt.Append(inds, val)
	}

	for _, opts := range []Options{{}, {Order: LongestModeLast}, {Tile: true, TileDims: []int{2, 2, 2}}} {
		fts, err := BuildAll(context.Background(), tt, opts, 2)
		require.NoError(t, err)
		require.Len(t, fts, 3)
		for mode, ft := range fts {
			assert.Equal(t, mode, ft.Mode)
			assert.Equal(t, tt.NNZ(), ft.Fptr[ft.NFibers()])
			assert.Equal(t, ft.NFibers(), ft.Sptr[ft.NSlices()])
			assert.IsNonDecreasing(t, ft.Fptr)
			assert.IsNonDecreasing(t, ft.Sptr)
			assert.Positive(t, ft.StorageBytes())
			// every nonzero is reachable through slice, fiber and innermost index
			found := make(map[string]float64)
			for s := 0; s < ft.NSlices(); s++ {
				begin, end := ft.SliceFibers(s)
				for f := begin; f < end; f++ {
					for j := ft.Fptr[f]; j < ft.Fptr[f+1]; j++ {
						inds := make([]int, 3)
						inds[ft.Perm[0]] = ft.SliceID(s)
						inds[ft.Perm[1]] = ft.Fids[f]
						inds[ft.Perm[2]] = ft.Inds[j]
						found[fmt.Sprint(inds)] = ft.Vals[j]
					}
				}
			}
			assert.Equal(t, expected, found)
		}
	}
}

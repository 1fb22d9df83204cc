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
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gorse-io/tensorfact/common/log"
	"github.com/gorse-io/tensorfact/common/parallel"
	"github.com/gorse-io/tensorfact/tensor"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// DefaultTileDims are the tile extents per permuted mode. Only the first one (slab height) is
// used by the builder.
var DefaultTileDims = []int{1024, 1024, 2048}

type Options struct {
	Order    FiberOrder
	Tile     bool
	TileDims []int
}

// Tensor is a sparse tensor compressed for a single mode. Nonzeros are grouped into fibers
// (all permuted indices equal except the innermost) and fibers into slices of the outermost
// mode. When tiled, slices are compacted and grouped into slabs of TileDims[0] consecutive ids.
type Tensor struct {
	Mode int
	Dims []int
	Perm []int

	// Inds holds the innermost index of each nonzero.
	Inds []int
	Vals []float64

	Fptr []int
	Fids []int
	Sptr []int

	Tiled    bool
	Sids     []int
	Slabptr  []int
	NSlabs   int
	SlabSize int
}

// Build compresses t for mode. t is left untouched.
func Build(t *tensor.Tensor, mode int, opts Options) (*Tensor, error) {
	nModes := t.NModes()
	if nModes < 2 {
		return nil, errors.NotValidf("tensor with %d modes", nModes)
	}
	if mode < 0 || mode >= nModes {
		return nil, errors.NotValidf("mode %d of %d-mode tensor", mode, nModes)
	}
	ft := &Tensor{
		Mode: mode,
		Dims: append([]int(nil), t.Dims...),
		Perm: ModeOrder(t.Dims, mode, opts.Order),
	}
	if opts.Tile {
		tileDims := opts.TileDims
		if len(tileDims) == 0 {
			tileDims = DefaultTileDims
		}
		if tileDims[0] <= 0 {
			return nil, errors.NotValidf("slab size %d", tileDims[0])
		}
		ft.Tiled = true
		ft.SlabSize = tileDims[0]
	}

	// gather permuted index columns in fiber order
	order := t.Order(ft.Perm)
	nnz := len(order)
	cols := make([][]int, nModes)
	for k, m := range ft.Perm {
		cols[k] = make([]int, nnz)
		for n, x := range order {
			cols[k][n] = t.Inds[m][x]
		}
	}
	ft.Inds = cols[nModes-1]
	ft.Vals = make([]float64, nnz)
	for n, x := range order {
		ft.Vals[n] = t.Vals[x]
	}

	ft.buildFibers(cols)
	outer := make([]int, len(ft.Fids))
	for f := range outer {
		outer[f] = cols[0][ft.Fptr[f]]
	}
	if ft.Tiled {
		ft.buildSlabs(outer)
	} else {
		ft.buildSlices(outer)
	}
	return ft, nil
}

// buildFibers starts a new fiber wherever any of the non-innermost permuted indices changes.
func (ft *Tensor) buildFibers(cols [][]int) {
	nnz := len(ft.Vals)
	outerModes := len(cols) - 1
	ft.Fptr = []int{0}
	ft.Fids = nil
	if nnz == 0 {
		return
	}
	for n := 0; n < nnz; n++ {
		if n > 0 {
			newFiber := false
			for k := 0; k < outerModes; k++ {
				if cols[k][n] != cols[k][n-1] {
					newFiber = true
					break
				}
			}
			if !newFiber {
				continue
			}
			ft.Fptr = append(ft.Fptr, n)
		}
		ft.Fids = append(ft.Fids, cols[1][n])
	}
	ft.Fptr = append(ft.Fptr, nnz)
}

// buildSlices sets Sptr[s] to the first fiber whose slice is at least s, so empty slices get
// empty ranges.
func (ft *Tensor) buildSlices(outer []int) {
	nSlices := ft.Dims[ft.Mode]
	nFibers := len(outer)
	ft.Sptr = make([]int, nSlices+1)
	s := 0
	for f := 0; f < nFibers; f++ {
		for s <= outer[f] {
			ft.Sptr[s] = f
			s++
		}
	}
	for ; s <= nSlices; s++ {
		ft.Sptr[s] = nFibers
	}
}

// buildSlabs compacts non-empty slices into Sids/Sptr and points each slab at its first slice.
// Slabs after the last non-empty slice are not counted.
func (ft *Tensor) buildSlabs(outer []int) {
	nFibers := len(outer)
	ft.Sptr = []int{0}
	ft.Sids = nil
	ft.Slabptr = []int{0}
	ft.NSlabs = 0
	if nFibers == 0 {
		return
	}
	for f := 0; f < nFibers; f++ {
		if f > 0 && outer[f] != outer[f-1] {
			ft.Sptr = append(ft.Sptr, f)
		}
		if f == 0 || outer[f] != outer[f-1] {
			ft.Sids = append(ft.Sids, outer[f])
		}
	}
	ft.Sptr = append(ft.Sptr, nFibers)

	ft.NSlabs = ft.Sids[len(ft.Sids)-1]/ft.SlabSize + 1
	ft.Slabptr = make([]int, ft.NSlabs+1)
	s := 0
	for b := 0; b < ft.NSlabs; b++ {
		ft.Slabptr[b] = s
		for s < len(ft.Sids) && ft.Sids[s]/ft.SlabSize == b {
			s++
		}
	}
	ft.Slabptr[ft.NSlabs] = len(ft.Sids)
}

// BuildAll builds one fiber tensor per mode, modes in parallel.
func BuildAll(ctx context.Context, t *tensor.Tensor, opts Options, jobs int) ([]*Tensor, error) {
	nModes := t.NModes()
	fts := make([]*Tensor, nModes)
	if opts.Tile {
		tileDims := opts.TileDims
		if len(tileDims) == 0 {
			tileDims = DefaultTileDims
		}
		dims := make([]string, len(tileDims))
		for i, d := range tileDims {
			dims[i] = strconv.Itoa(d)
		}
		log.Logger().Info("tiling fiber tensors", zap.String("tile_dims", strings.Join(dims, "x")))
	}
	err := parallel.Parallel(ctx, nModes, jobs, func(_, mode int) (err error) {
		fts[mode], err = Build(t, mode, opts)
		return errors.Trace(err)
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	var total uint64
	for _, ft := range fts {
		total += ft.StorageBytes()
	}
	log.Logger().Info("build fiber tensors",
		zap.Int("n_modes", nModes),
		zap.Int("nnz", t.NNZ()),
		zap.String("storage", humanize.Bytes(total)))
	return fts, nil
}

func (ft *Tensor) NNZ() int {
	return len(ft.Vals)
}

func (ft *Tensor) NFibers() int {
	return len(ft.Fids)
}

// NSlices returns the number of stored slices: all of them when untiled, only the non-empty
// ones when tiled.
func (ft *Tensor) NSlices() int {
	if ft.Tiled {
		return len(ft.Sids)
	}
	return ft.Dims[ft.Mode]
}

// SliceID maps a stored slice to its index along Mode.
func (ft *Tensor) SliceID(s int) int {
	if ft.Tiled {
		return ft.Sids[s]
	}
	return s
}

// SliceFibers returns the fiber range [begin, end) of stored slice s.
func (ft *Tensor) SliceFibers(s int) (begin, end int) {
	return ft.Sptr[s], ft.Sptr[s+1]
}

// SlabSlices returns the stored slice range [begin, end) of slab b.
func (ft *Tensor) SlabSlices(b int) (begin, end int) {
	return ft.Slabptr[b], ft.Slabptr[b+1]
}

// StorageBytes estimates the memory held by indices, values and pointers.
func (ft *Tensor) StorageBytes() uint64 {
	const intSize = strconv.IntSize / 8
	const floatSize = 8
	n := len(ft.Inds)*intSize + len(ft.Vals)*floatSize
	n += (len(ft.Fptr) + len(ft.Fids) + len(ft.Sptr)) * intSize
	n += (len(ft.Sids) + len(ft.Slabptr)) * intSize
	return uint64(n)
}

func (ft *Tensor) String() string {
	return fmt.Sprintf("fiber.Tensor(mode=%d, perm=%v, nnz=%d, fibers=%d, slices=%d)",
		ft.Mode, ft.Perm, ft.NNZ(), ft.NFibers(), ft.NSlices())
}

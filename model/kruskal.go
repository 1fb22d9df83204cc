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

package model

import (
	"io"

	"github.com/gorse-io/tensorfact/base"
	"github.com/gorse-io/tensorfact/common/encoding"
	"github.com/gorse-io/tensorfact/tensor"
	"github.com/juju/errors"
)

// Kruskal is a rank-R CP decomposition: one dims[m]×Rank row-major factor matrix per mode
// plus a weight per rank-one component.
type Kruskal struct {
	Dims    []int
	Rank    int
	Factors [][]float64
	Lambda  []float64
}

// NewKruskal creates a model with zero factors and unit weights.
func NewKruskal(dims []int, rank int) *Kruskal {
	k := &Kruskal{
		Dims:    append([]int(nil), dims...),
		Rank:    rank,
		Factors: make([][]float64, len(dims)),
		Lambda:  make([]float64, rank),
	}
	for m, dim := range dims {
		k.Factors[m] = make([]float64, dim*rank)
	}
	for f := range k.Lambda {
		k.Lambda[f] = 1
	}
	return k
}

func (k *Kruskal) NModes() int {
	return len(k.Dims)
}

// Init fills every factor with normal random values.
func (k *Kruskal) Init(rng base.RandomGenerator, mean, stdDev float64) {
	for _, factor := range k.Factors {
		rng.FillNormal(factor, mean, stdDev)
	}
}

// Row returns row i of factor m. The slice aliases the factor.
func (k *Kruskal) Row(m, i int) []float64 {
	return k.Factors[m][i*k.Rank : (i+1)*k.Rank]
}

// Predict estimates the value at a coordinate.
func (k *Kruskal) Predict(inds []int) float64 {
	var sum float64
	for f := 0; f < k.Rank; f++ {
		v := k.Lambda[f]
		for m := range k.Factors {
			v *= k.Factors[m][inds[m]*k.Rank+f]
		}
		sum += v
	}
	return sum
}

// PredictAt estimates nonzero x of t. buffer must hold Rank values.
func (k *Kruskal) PredictAt(t *tensor.Tensor, x int, buffer []float64) float64 {
	copy(buffer, k.Lambda)
	for m := range k.Factors {
		row := k.Row(m, t.Inds[m][x])
		for f := range buffer {
			buffer[f] *= row[f]
		}
	}
	var sum float64
	for _, v := range buffer {
		sum += v
	}
	return sum
}

func (k *Kruskal) Clone() *Kruskal {
	c := &Kruskal{
		Dims:    append([]int(nil), k.Dims...),
		Rank:    k.Rank,
		Factors: make([][]float64, len(k.Factors)),
		Lambda:  append([]float64(nil), k.Lambda...),
	}
	for m, factor := range k.Factors {
		c.Factors[m] = append([]float64(nil), factor...)
	}
	return c
}

// Marshal writes the model as dims, rank, lambda and factors.
func (k *Kruskal) Marshal(w io.Writer) error {
	if err := encoding.WriteInts(w, k.Dims); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteInts(w, []int{k.Rank}); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteFloats(w, k.Lambda); err != nil {
		return errors.Trace(err)
	}
	for _, factor := range k.Factors {
		if err := encoding.WriteFloats(w, factor); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal replaces the model with one written by Marshal.
func (k *Kruskal) Unmarshal(r io.Reader) error {
	dims, err := encoding.ReadInts(r)
	if err != nil {
		return errors.Trace(err)
	}
	rank, err := encoding.ReadInts(r)
	if err != nil {
		return errors.Trace(err)
	}
	if len(rank) != 1 || rank[0] < 0 {
		return errors.NotValidf("rank %v", rank)
	}
	for _, dim := range dims {
		if dim < 0 {
			return errors.NotValidf("dimension %d", dim)
		}
	}
	loaded := NewKruskal(dims, rank[0])
	if err = encoding.ReadFloats(r, loaded.Lambda); err != nil {
		return errors.Trace(err)
	}
	for _, factor := range loaded.Factors {
		if err = encoding.ReadFloats(r, factor); err != nil {
			return errors.Trace(err)
		}
	}
	*k = *loaded
	return nil
}

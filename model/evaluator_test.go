// Copyright 2020 gorse Project Authors
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
	"math"
	"testing"

	"github.com/gorse-io/tensorfact/base"
	"github.com/gorse-io/tensorfact/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLossSq(t *testing.T) {
	k := newTestKruskal()
	tt := tensor.New([]int{2, 3})
	tt.Append([]int{1, 2}, 8)
	tt.Append([]int{0, 1}, 0)
	for _, jobs := range []int{1, 3} {
		loss, err := LossSq(tt, k, jobs)
		assert.NoError(t, err)
		assert.Equal(t, 5.0, loss)
	}
	rmse, err := RMSE(tt, k, 2)
	assert.NoError(t, err)
	assert.Equal(t, math.Sqrt(2.5), rmse)
}

func TestLossSq_Empty(t *testing.T) {
	k := newTestKruskal()
	loss, err := LossSq(tensor.New([]int{2, 3}), k, 4)
	assert.NoError(t, err)
	assert.Zero(t, loss)
	rmse, err := RMSE(tensor.New([]int{2, 3}), k, 4)
	assert.NoError(t, err)
	assert.Zero(t, rmse)
	rmse, err = RMSE(nil, k, 4)
	assert.NoError(t, err)
	assert.Zero(t, rmse)
}

func TestLossSq_Jobs(t *testing.T) {
	dims := []int{50, 50, 50}
	rng := base.NewRandomGenerator(0)
	k := NewKruskal(dims, 4)
	k.Init(rng, 0, 1)
	tt := tensor.New(dims)
	for i := 0; i < 5*lossChunkSize+17; i++ {
		tt.Append([]int{rng.Intn(50), rng.Intn(50), rng.Intn(50)}, rng.NormFloat64()*100)
	}
	expected, err := LossSq(tt, k, 1)
	require.NoError(t, err)
	var sequential float64
	buffer := make([]float64, k.Rank)
	for x := range tt.Vals {
		e := tt.Vals[x] - k.PredictAt(tt, x, buffer)
		sequential += e * e
	}
	assert.InDelta(t, sequential, expected, 1e-9*sequential)
	for _, jobs := range []int{2, 3, 7, 16} {
		loss, err := LossSq(tt, k, jobs)
		assert.NoError(t, err)
		assert.Equal(t, expected, loss, "jobs: %d", jobs)
	}
}

func TestLossSq_OutOfRange(t *testing.T) {
	k := newTestKruskal()
	tt := tensor.New([]int{3, 3})
	tt.Append([]int{0, 0}, 1)
	tt.Append([]int{2, 0}, 1)
	for _, jobs := range []int{1, 2} {
		_, err := LossSq(tt, k, jobs)
		assert.Error(t, err, "jobs: %d", jobs)
		_, err = RMSE(tt, k, jobs)
		assert.Error(t, err, "jobs: %d", jobs)
	}
}

func TestFrobeniusSq(t *testing.T) {
	k := newTestKruskal()
	assert.Equal(t, 34.0, FrobeniusSq(k, nil))
	assert.Equal(t, 23.0, FrobeniusSq(k, []float64{0.5, 2}))
}

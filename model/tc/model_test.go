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
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/gorse-io/tensorfact/fiber"
	"github.com/gorse-io/tensorfact/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitConfig(t *testing.T) {
	config := NewFitConfig()
	assert.Equal(t, 1, config.Jobs)
	assert.Equal(t, 1e-8, config.Tolerance)
	assert.False(t, config.Tile)
	config.SetJobs(0).SetTile(4, 4).SetFiberOrder(fiber.LongestModeLast).SetVerbose(1)
	assert.Equal(t, 1, config.jobs())
	assert.True(t, config.Tile)
	assert.Equal(t, []int{4, 4}, config.TileDims)
	assert.Equal(t, fiber.LongestModeLast, config.FiberOrder)
}

func TestALS_Marshal(t *testing.T) {
	train, _ := newLowRankTensor([]int{4, 3, 5}, 20, 0, 5)
	params := model.Params{
		model.NFactors: 3,
		model.NEpochs:  2,
		model.ModeRegs: []float64{0.1, 0.2, 0.3},
	}
	als := NewALS(params)
	_, err := als.Fit(context.Background(), train, nil, nil)
	require.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	require.NoError(t, als.Marshal(buf))
	loaded := NewALS(nil)
	require.NoError(t, loaded.Unmarshal(buf))
	assert.Equal(t, params, loaded.GetParams())
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, loaded.regs)
	assert.Equal(t, 3, loaded.nFactors)
	for x := 0; x < train.NNZ(); x++ {
		inds := train.Index(x)
		assert.Equal(t, als.Predict(inds), loaded.Predict(inds))
	}
}

func TestSGD_Marshal(t *testing.T) {
	train, _ := newLowRankTensor([]int{4, 3, 5}, 20, 0, 6)
	sgd := NewSGD(model.Params{model.NEpochs: 1, model.Lr: 0.01})
	_, err := sgd.Fit(context.Background(), train, nil, nil)
	require.NoError(t, err)
	buf := bytes.NewBuffer(nil)
	require.NoError(t, sgd.Marshal(buf))
	loaded := NewSGD(nil)
	require.NoError(t, loaded.Unmarshal(buf))
	assert.Equal(t, 0.01, loaded.lr)
	assert.Equal(t, sgd.GetKruskal(), loaded.GetKruskal())
}

func TestMarshal_Unfitted(t *testing.T) {
	err := NewALS(nil).Marshal(bytes.NewBuffer(nil))
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Zero(t, NewALS(nil).Predict([]int{0, 0, 0}))
}

func TestWorkspace(t *testing.T) {
	ws := NewWorkspace(3, 4)
	assert.Equal(t, 3, ws.Len())
	buf := ws.Buffers(2)
	assert.Len(t, buf.Hada, 4)
	assert.Len(t, buf.Accum, 4)
	assert.Len(t, buf.Neqs, 16)
	assert.NotSame(t, ws.Buffers(0), ws.Buffers(1))
}

func TestSolveStatus(t *testing.T) {
	status := NewSolveStatus([]int{10, 5})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Go(status.inc)
	}
	wg.Wait()
	assert.Equal(t, 8, status.Failures())

	status.update(0, [][]int{{1, 7}, nil, {3}})
	assert.Equal(t, []int{1, 3, 7}, status.DegradedRows(0))
	assert.True(t, status.Degraded(0, 3))
	assert.False(t, status.Degraded(1, 3))
	assert.Equal(t, 3, status.NumDegraded())
	// a later pass replaces the previous one
	status.update(0, [][]int{{2}})
	assert.Equal(t, []int{2}, status.DegradedRows(0))
	assert.Equal(t, 8, status.Failures())
}

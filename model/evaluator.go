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
	"context"
	"math"

	"github.com/gorse-io/tensorfact/common/parallel"
	"github.com/gorse-io/tensorfact/tensor"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
)

// lossChunkSize is the number of nonzeros summed per partial sum. Chunks do not depend on the
// number of workers, so the loss is the same for any jobs.
const lossChunkSize = 1024

// LossSq returns the sum of squared errors of k over the nonzeros of t. Partial sums over
// fixed chunks are added in chunk order.
func LossSq(t *tensor.Tensor, k *Kruskal, jobs int) (float64, error) {
	nnz := t.NNZ()
	if nnz == 0 {
		return 0, nil
	}
	partials := make([]float64, (nnz+lossChunkSize-1)/lossChunkSize)
	buffers := make([][]float64, max(jobs, 1))
	for i := range buffers {
		buffers[i] = make([]float64, k.Rank)
	}
	err := parallel.Parallel(context.Background(), len(partials), jobs, func(workerId, jobId int) error {
		buffer := buffers[workerId]
		var sum float64
		for x := jobId * lossChunkSize; x < min((jobId+1)*lossChunkSize, nnz); x++ {
			err := t.Vals[x] - k.PredictAt(t, x, buffer)
			sum += err * err
		}
		partials[jobId] = sum
		return nil
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return floats.Sum(partials), nil
}

// FrobeniusSq returns Σ regs[m]·‖A_m‖². A nil regs weights every mode by one.
func FrobeniusSq(k *Kruskal, regs []float64) float64 {
	var sum float64
	for m, factor := range k.Factors {
		norm := floats.Dot(factor, factor)
		if regs != nil {
			norm *= regs[m]
		}
		sum += norm
	}
	return sum
}

// RMSE returns the root mean squared error of k over t, or zero if t has no nonzeros.
func RMSE(t *tensor.Tensor, k *Kruskal, jobs int) (float64, error) {
	nnz := t.NNZ()
	if nnz == 0 {
		return 0, nil
	}
	loss, err := LossSq(t, k, jobs)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return math.Sqrt(loss / float64(nnz)), nil
}

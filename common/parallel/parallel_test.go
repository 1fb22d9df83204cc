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

package parallel

import (
	"context"
	"fmt"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestParallel(t *testing.T) {
	a := lo.Range(10000)
	b := make([]int, len(a))
	workerIds := make([]int, len(a))
	// multiple threads
	err := Parallel(context.Background(), len(a), 4, func(workerId, jobId int) error {
		b[jobId] = a[jobId]
		workerIds[jobId] = workerId
		return nil
	})
	assert.NoError(t, err)
	workersSet := mapset.NewSet(workerIds...)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, 4, workersSet.Cardinality())
	// single thread
	err = Parallel(context.Background(), len(a), 1, func(workerId, jobId int) error {
		b[jobId] = a[jobId]
		workerIds[jobId] = workerId
		return nil
	})
	assert.NoError(t, err)
	workersSet = mapset.NewSet(workerIds...)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, workersSet.Cardinality())
}

func TestParallelFail(t *testing.T) {
	// multiple threads
	err := Parallel(context.Background(), 10000, 4, func(workerId, jobId int) error {
		if jobId%2 == 1 {
			return fmt.Errorf("error from %d", workerId)
		}
		return nil
	})
	assert.Error(t, err)
	// single thread
	err = Parallel(context.Background(), 10000, 1, func(workerId, jobId int) error {
		if jobId%2 == 1 {
			return fmt.Errorf("error from %d", workerId)
		}
		return nil
	})
	assert.Error(t, err)
}

func TestParallelCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	count := 0
	err := Parallel(ctx, 100, 1, func(workerId, jobId int) error {
		count++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count)
}

func TestPartition(t *testing.T) {
	for _, tc := range []struct {
		n, workers int
	}{
		{0, 1}, {0, 4}, {1, 1}, {1, 4}, {7, 3}, {10, 4}, {100, 7}, {3, 8}, {5, 0},
	} {
		t.Run(fmt.Sprintf("%d/%d", tc.n, tc.workers), func(t *testing.T) {
			bounds := Partition(tc.n, tc.workers)
			workers := max(tc.workers, 1)
			assert.Len(t, bounds, workers+1)
			assert.Equal(t, 0, bounds[0])
			assert.Equal(t, tc.n, bounds[workers])
			// every index covered exactly once
			covered := make([]int, tc.n)
			for i := 0; i < workers; i++ {
				assert.LessOrEqual(t, bounds[i], bounds[i+1])
				assert.LessOrEqual(t, bounds[i+1]-bounds[i], tc.n/workers+1)
				for j := bounds[i]; j < bounds[i+1]; j++ {
					covered[j]++
				}
			}
			for _, c := range covered {
				assert.Equal(t, 1, c)
			}
		})
	}
}

func TestRanges(t *testing.T) {
	bounds := Partition(1000, 4)
	owner := make([]int, 1000)
	err := Ranges(context.Background(), bounds, func(workerId, begin, end int) error {
		for i := begin; i < end; i++ {
			owner[i] = workerId + 1
		}
		return nil
	})
	assert.NoError(t, err)
	for i, o := range owner {
		assert.Equal(t, 1+i/250, o)
	}
	// errors are reported after all workers finish
	done := make([]bool, 4)
	err = Ranges(context.Background(), bounds, func(workerId, begin, end int) error {
		done[workerId] = true
		if workerId == 2 {
			return errors.New("failed")
		}
		return nil
	})
	assert.EqualError(t, err, "failed")
	assert.Equal(t, []bool{true, true, true, true}, done)
	// panics become errors
	err = Ranges(context.Background(), bounds, func(workerId, begin, end int) error {
		if workerId == 1 {
			panic("boom")
		}
		return nil
	})
	assert.ErrorContains(t, err, "boom")
}

func TestPanicToError(t *testing.T) {
	boom := func() error { panic("boom") }
	for _, nWorkers := range []int{1, 4} {
		err := Parallel(context.Background(), 8, nWorkers, func(workerId, jobId int) error {
			if jobId == 3 {
				return boom()
			}
			return nil
		})
		assert.ErrorContains(t, err, "boom", "workers: %d", nWorkers)
		err = Ranges(context.Background(), Partition(8, nWorkers), func(workerId, begin, end int) error {
			if begin <= 3 && 3 < end {
				return boom()
			}
			return nil
		})
		assert.ErrorContains(t, err, "boom", "workers: %d", nWorkers)
	}
}

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
	"sync"

	"github.com/juju/errors"
)

const chanSize = 1024

/* Parallel Schedulers */

// Parallel schedules and runs tasks in parallel. nJobs is the number of tasks. nWorkers is
// the number of executors. worker is the executed function which is passed the id of the
// executor and the id of the job. The ctx argument allows callers to cancel outstanding work.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := call(0, func() error { return worker(0, i) }); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	c := make(chan int, chanSize)
	// producer
	go func() {
		defer close(c)
		for i := 0; i < nJobs; i++ {
			select {
			case <-ctx.Done():
				return
			case c <- i:
			}
		}
	}()
	// consumer
	var wg sync.WaitGroup
	errs := make([]error, nJobs)
	for j := 0; j < nWorkers; j++ {
		workerId := j
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case jobId, ok := <-c:
					if !ok {
						return
					}
					if err := call(workerId, func() error { return worker(workerId, jobId) }); err != nil {
						errs[jobId] = err
						return
					}
				}
			}
		})
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(ctx.Err())
}

// Partition splits [0, n) into nWorkers contiguous ranges whose sizes differ by at most one.
// The returned slice has nWorkers+1 boundaries: range i is [bounds[i], bounds[i+1]).
// Ranges are balanced by count only, not by the work inside each index.
func Partition(n, nWorkers int) []int {
	if nWorkers < 1 {
		nWorkers = 1
	}
	bounds := make([]int, nWorkers+1)
	minChunkSize := n / nWorkers
	maxChunkNum := n % nWorkers
	for i := 0; i < nWorkers; i++ {
		chunkSize := minChunkSize
		if i < maxChunkNum {
			chunkSize++
		}
		bounds[i+1] = bounds[i] + chunkSize
	}
	return bounds
}

// Ranges runs worker once per range of bounds, each in its own goroutine, and returns after
// every worker has finished. Returning acts as a full barrier: writes made by any worker are
// visible to the caller. The first error in range order is returned.
func Ranges(ctx context.Context, bounds []int, worker func(workerId, begin, end int) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	nWorkers := len(bounds) - 1
	if nWorkers <= 0 {
		return nil
	}
	if nWorkers == 1 {
		return errors.Trace(call(0, func() error { return worker(0, bounds[0], bounds[1]) }))
	}
	var wg sync.WaitGroup
	errs := make([]error, nWorkers)
	for j := 0; j < nWorkers; j++ {
		workerId := j
		wg.Go(func() {
			errs[workerId] = call(workerId, func() error {
				return worker(workerId, bounds[workerId], bounds[workerId+1])
			})
		})
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// call runs fn and converts a panic into an error, whether or not fn runs on its own goroutine.
func call(workerId int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("worker %d panicked: %v", workerId, r)
		}
	}()
	return fn()
}

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
	"math"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/tensorfact/base"
)

// Split holds out about ratio of the nonzeros. Coordinates of the hold-out tensor never appear
// in the training tensor: duplicates of a held-out coordinate are dropped from training.
// Both tensors keep the dimensions of t. ratio is clamped to [0, 1].
func (t *Tensor) Split(ratio float64, seed int64) (train, holdout *Tensor) {
	rng := base.NewRandomGenerator(seed)
	perm := rng.Perm(t.NNZ())
	if math.IsNaN(ratio) {
		ratio = 0
	}
	ratio = min(max(ratio, 0), 1)
	numHoldout := int(ratio * float64(t.NNZ()))
	train, holdout = New(t.Dims), New(t.Dims)
	heldOut := mapset.NewThreadUnsafeSet[string]()
	for _, x := range perm[:numHoldout] {
		holdout.Append(t.Index(x), t.Vals[x])
		heldOut.Add(t.key(x))
	}
	for _, x := range perm[numHoldout:] {
		if !heldOut.Contains(t.key(x)) {
			train.Append(t.Index(x), t.Vals[x])
		}
	}
	return
}

func (t *Tensor) key(x int) string {
	buf := make([]byte, 0, 8*t.NModes())
	for m := range t.Inds {
		buf = strconv.AppendInt(buf, int64(t.Inds[m][x]), 36)
		buf = append(buf, ',')
	}
	return string(buf)
}

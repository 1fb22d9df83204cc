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
	"strings"

	"github.com/juju/errors"
)

// FiberOrder decides which mode becomes the innermost level of a fiber tensor. The innermost mode
// sets the length of the fibers traversed by MTTKRP.
type FiberOrder int

const (
	// ShortestModeLast puts the smallest remaining mode innermost.
	ShortestModeLast FiberOrder = iota
	// LongestModeLast puts the largest remaining mode innermost.
	LongestModeLast
)

func (o FiberOrder) String() string {
	switch o {
	case ShortestModeLast:
		return "shortest"
	case LongestModeLast:
		return "longest"
	default:
		return "unknown"
	}
}

// ParseFiberOrder parses "shortest" or "longest".
func ParseFiberOrder(s string) (FiberOrder, error) {
	switch strings.ToLower(s) {
	case "shortest", "shortest_mode_last":
		return ShortestModeLast, nil
	case "longest", "longest_mode_last":
		return LongestModeLast, nil
	default:
		return 0, errors.NotValidf("fiber order %q", s)
	}
}

// ModeOrder returns the permutation of modes used to compress the tensor for mode. mode comes
// first and the longest (or shortest) of the other modes comes last; ties go to the first mode
// met scanning mode+1, mode+2, ... cyclically. The others keep that cyclic order.
func ModeOrder(dims []int, mode int, order FiberOrder) []int {
	nModes := len(dims)
	perm := make([]int, nModes)
	perm[0] = mode
	if nModes == 1 {
		return perm
	}
	last := (mode + 1) % nModes
	for k := 1; k < nModes; k++ {
		m := (mode + k) % nModes
		switch order {
		case LongestModeLast:
			if dims[m] > dims[last] {
				last = m
			}
		default:
			if dims[m] < dims[last] {
				last = m
			}
		}
	}
	perm[nModes-1] = last
	mark := 1
	for k := 1; k < nModes; k++ {
		m := (mode + k) % nModes
		if m != last {
			perm[mark] = m
			mark++
		}
	}
	return perm
}

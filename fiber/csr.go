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

// CSR is a sparse matrix in compressed sparse row format.
type CSR struct {
	Rows   int
	Cols   int
	RowPtr []int
	ColInd []int
	Vals   []float64
}

// CSR views the fiber tensor as a matrix with one row per fiber and the innermost mode as
// columns. Slices and Fids are dropped. The returned matrix owns its arrays.
func (ft *Tensor) CSR() *CSR {
	return &CSR{
		Rows:   ft.NFibers(),
		Cols:   ft.Dims[ft.Perm[len(ft.Perm)-1]],
		RowPtr: append([]int(nil), ft.Fptr...),
		ColInd: append([]int(nil), ft.Inds...),
		Vals:   append([]float64(nil), ft.Vals...),
	}
}

// Row returns the column indices and values of row i.
func (m *CSR) Row(i int) ([]int, []float64) {
	return m.ColInd[m.RowPtr[i]:m.RowPtr[i+1]], m.Vals[m.RowPtr[i]:m.RowPtr[i+1]]
}

func (m *CSR) NNZ() int {
	return len(m.Vals)
}

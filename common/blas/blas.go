// Copyright 2025 gorse Project Authors
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

package blas

import (
	"github.com/juju/errors"
	gonum "gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/lapack64"
)

// ErrNotPositiveDefinite is returned when a Cholesky factorization meets a non-positive pivot.
var ErrNotPositiveDefinite = errors.New("matrix is not positive definite")

// Syr performs the symmetric rank-1 update a += x*x^T. a is an n×n row-major matrix and only
// its upper triangle is referenced and updated.
func Syr(n int, x, a []float64) {
	blas64.Syr(1, blas64.Vector{N: n, Inc: 1, Data: x}, blas64.Symmetric{
		Uplo:   gonum.Upper,
		N:      n,
		Stride: n,
		Data:   a,
	})
}

// Posv solves a*x = b for a symmetric positive definite n×n row-major matrix a, reading only
// its upper triangle. On return a holds the Cholesky factor U and b is overwritten with x.
//
// If the factorization fails the triangular solve still runs on the partial factor and
// ErrNotPositiveDefinite is returned; b then holds a numerically invalid solution.
func Posv(n int, a, b []float64) error {
	t, ok := lapack64.Potrf(blas64.Symmetric{
		Uplo:   gonum.Upper,
		N:      n,
		Stride: n,
		Data:   a,
	})
	lapack64.Potrs(t, blas64.General{Rows: n, Cols: 1, Stride: 1, Data: b})
	if !ok {
		return ErrNotPositiveDefinite
	}
	return nil
}

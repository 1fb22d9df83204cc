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
	"context"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/gorse-io/tensorfact/common/blas"
	"github.com/gorse-io/tensorfact/common/log"
	"github.com/gorse-io/tensorfact/common/parallel"
	"github.com/gorse-io/tensorfact/common/progress"
	"github.com/gorse-io/tensorfact/fiber"
	"github.com/gorse-io/tensorfact/model"
	"github.com/gorse-io/tensorfact/tensor"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ALS completes a 3-mode tensor by alternating least squares. Each row of a factor is the
// solution of a rank×rank regularized normal-equations system assembled from the fibers of
// its slice.
type ALS struct {
	BaseTensorFactorization
	// Hyper parameters
	nFactors   int
	nEpochs    int
	reg        float64
	initMean   float64
	initStdDev float64
	regs       []float64
	// Status of the last fit
	Status *SolveStatus
}

// NewALS creates an ALS solver.
func NewALS(params model.Params) *ALS {
	als := new(ALS)
	als.SetParams(params)
	return als
}

// SetParams sets hyper-parameters for the ALS solver.
func (als *ALS) SetParams(params model.Params) {
	als.BaseTensorFactorization.SetParams(params)
	als.nFactors = als.Params.GetInt(model.NFactors, 10)
	als.nEpochs = als.Params.GetInt(model.NEpochs, 20)
	als.reg = als.Params.GetFloat64(model.Reg, 0.01)
	als.initMean = als.Params.GetFloat64(model.InitMean, 0)
	als.initStdDev = als.Params.GetFloat64(model.InitStdDev, 0.1)
}

// Init draws random factors for a tensor of the given dimensions.
func (als *ALS) Init(dims []int) {
	als.Kruskal = model.NewKruskal(dims, als.nFactors)
	als.Kruskal.Init(als.GetRandomGenerator(), als.initMean, als.initStdDev)
	als.regs = als.Params.GetRegs(len(dims), als.reg)
	als.Status = NewSolveStatus(dims)
}

// Fit the ALS model. Each epoch updates every mode in turn; rows of a mode are solved in
// parallel and all of them are written before the next mode reads them.
func (als *ALS) Fit(ctx context.Context, train, validate *tensor.Tensor, config *FitConfig) (Score, error) {
	if config == nil {
		config = NewFitConfig()
	}
	if train.NModes() != 3 {
		return Score{}, errors.NotSupportedf("ALS on %d-mode tensor", train.NModes())
	}
	log.Logger().Info("fit als",
		zap.Int("train_set_size", train.NNZ()),
		zap.Int("test_set_size", validate.NNZ()),
		zap.Any("params", als.GetParams()),
		zap.Any("config", config))
	als.Init(train.Dims)
	jobs := config.jobs()

	fts, err := fiber.BuildAll(ctx, train, fiber.Options{
		Order:    config.FiberOrder,
		Tile:     config.Tile,
		TileDims: config.TileDims,
	}, jobs)
	if err != nil {
		return Score{}, errors.Trace(err)
	}
	parts := make([][]int, len(fts))
	for m, ft := range fts {
		parts[m] = parallel.Partition(ft.NSlices(), jobs)
	}
	ws := NewWorkspace(jobs, als.nFactors)
	failed := make([][]int, jobs)

	var (
		score     Score
		prevRMSE  float64
		trainTime time.Duration
		evalTime  time.Duration
	)
	_, span := progress.Start(ctx, "ALS.Fit", als.nEpochs)
	for ep := 1; ep <= als.nEpochs; ep++ {
		fitStart := time.Now()
		for m, ft := range fts {
			if err = als.updateMode(ctx, ft, parts[m], ws, failed); err != nil {
				span.Fail(err)
				return score, errors.Trace(err)
			}
		}
		trainTime += time.Since(fitStart)

		evalStart := time.Now()
		loss, err := model.LossSq(train, als.Kruskal, jobs)
		if err != nil {
			span.Fail(err)
			return score, errors.Trace(err)
		}
		objective := loss + model.FrobeniusSq(als.Kruskal, als.regs)
		trainRMSE := 0.0
		if train.NNZ() > 0 {
			trainRMSE = math.Sqrt(loss / float64(train.NNZ()))
		}
		validateRMSE, err := model.RMSE(validate, als.Kruskal, jobs)
		if err != nil {
			span.Fail(err)
			return score, errors.Trace(err)
		}
		evalTime += time.Since(evalStart)

		score = Score{
			Epochs:       ep,
			Objective:    objective,
			TrainRMSE:    trainRMSE,
			ValidateRMSE: validateRMSE,
			Failures:     als.Status.Failures(),
		}
		report("als", config, als.nEpochs, EpochReport{
			Epoch:        ep,
			Objective:    objective,
			TrainRMSE:    trainRMSE,
			ValidateRMSE: validateRMSE,
			TrainTime:    trainTime,
			EvalTime:     evalTime,
			Failures:     als.Status.NumDegraded(),
		})
		span.Add(1)

		if ep > 1 && validate.NNZ() > 0 && math.Abs(validateRMSE-prevRMSE) < config.Tolerance {
			log.Logger().Info("als converged", zap.Int("epoch", ep))
			break
		}
		prevRMSE = validateRMSE
	}
	span.End()

	log.Logger().Info("fit als complete",
		zap.Int("epochs", score.Epochs),
		zap.Float64("train_rmse", score.TrainRMSE),
		zap.Float64("validate_rmse", score.ValidateRMSE),
		zap.Int("solve_failures", score.Failures))
	return score, nil
}

// updateMode solves every stored slice of ft. failed holds one scratch row list per worker.
func (als *ALS) updateMode(ctx context.Context, ft *fiber.Tensor, bounds []int, ws *Workspace, failed [][]int) error {
	reg := als.regs[ft.Mode]
	for i := range failed {
		failed[i] = failed[i][:0]
	}
	err := parallel.Ranges(ctx, bounds, func(workerId, begin, end int) error {
		buf := ws.Buffers(workerId)
		for s := begin; s < end; s++ {
			if err := UpdateRow(ft, s, reg, als.Kruskal, buf); err != nil {
				if !errors.Is(err, blas.ErrNotPositiveDefinite) {
					return errors.Trace(err)
				}
				failed[workerId] = append(failed[workerId], ft.SliceID(s))
				als.Status.inc()
			}
		}
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	als.Status.update(ft.Mode, failed)
	if n := lo.SumBy(failed, func(rows []int) int { return len(rows) }); n > 0 {
		SolveFailuresTotal.WithLabelValues(strconv.Itoa(ft.Mode)).Add(float64(n))
		log.Logger().Warn("failed to solve normal equations",
			zap.Int("mode", ft.Mode),
			zap.Int("rows", n),
			zap.Ints("degraded", lo.Slice(als.Status.DegradedRows(ft.Mode), 0, 10)))
	}
	return nil
}

// UpdateRow replaces the factor row of stored slice s of ft with the solution of its
// regularized normal equations. ft must come from a 3-mode tensor. On
// blas.ErrNotPositiveDefinite the row holds the degraded solution.
func UpdateRow(ft *fiber.Tensor, s int, reg float64, k *model.Kruskal, buf *Buffers) error {
	if len(ft.Perm) != 3 {
		return errors.NotSupportedf("row update on %d-mode tensor", len(ft.Perm))
	}
	rank := k.Rank
	out := k.Row(ft.Perm[0], ft.SliceID(s))
	clear(out)
	clear(buf.Neqs)
	begin, end := ft.SliceFibers(s)
	for f := begin; f < end; f++ {
		av := k.Row(ft.Perm[1], ft.Fids[f])
		clear(buf.Accum)
		for jj := ft.Fptr[f]; jj < ft.Fptr[f+1]; jj++ {
			v := ft.Vals[jj]
			bv := k.Row(ft.Perm[2], ft.Inds[jj])
			for r := 0; r < rank; r++ {
				buf.Accum[r] += v * bv[r]
				buf.Hada[r] = av[r] * bv[r]
			}
			blas.Syr(rank, buf.Hada, buf.Neqs)
		}
		for r := 0; r < rank; r++ {
			out[r] += buf.Accum[r] * av[r]
		}
	}
	for r := 0; r < rank; r++ {
		buf.Neqs[r*rank+r] += reg
	}
	return blas.Posv(rank, buf.Neqs, out)
}

// MTTKRP computes the matricized tensor times Khatri-Rao product for the mode of ft by the
// same fiber traversal as UpdateRow. The result is a dims[mode]×rank row-major matrix.
func MTTKRP(ft *fiber.Tensor, k *model.Kruskal, jobs int) ([]float64, error) {
	if len(ft.Perm) != 3 {
		return nil, errors.NotSupportedf("MTTKRP on %d-mode tensor", len(ft.Perm))
	}
	rank := k.Rank
	out := make([]float64, ft.Dims[ft.Mode]*rank)
	err := parallel.Ranges(context.Background(), parallel.Partition(ft.NSlices(), jobs), func(_, begin, end int) error {
		accum := make([]float64, rank)
		for s := begin; s < end; s++ {
			row := ft.SliceID(s)
			outRow := out[row*rank : (row+1)*rank]
			fBegin, fEnd := ft.SliceFibers(s)
			for f := fBegin; f < fEnd; f++ {
				av := k.Row(ft.Perm[1], ft.Fids[f])
				clear(accum)
				for jj := ft.Fptr[f]; jj < ft.Fptr[f+1]; jj++ {
					bv := k.Row(ft.Perm[2], ft.Inds[jj])
					for r := range accum {
						accum[r] += ft.Vals[jj] * bv[r]
					}
				}
				for r := range accum {
					outRow[r] += accum[r] * av[r]
				}
			}
		}
		return nil
	})
	return out, errors.Trace(err)
}

// Unmarshal model from byte stream.
func (als *ALS) Unmarshal(r io.Reader) error {
	if err := als.BaseTensorFactorization.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	als.SetParams(als.Params)
	als.regs = als.Params.GetRegs(als.Kruskal.NModes(), als.reg)
	return nil
}

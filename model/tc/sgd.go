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
	"time"

	"github.com/gorse-io/tensorfact/common/log"
	"github.com/gorse-io/tensorfact/common/progress"
	"github.com/gorse-io/tensorfact/model"
	"github.com/gorse-io/tensorfact/tensor"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// SGD completes a tensor of any order by stochastic gradient descent over its nonzeros.
// Updates within an epoch are sequential in a shuffled order.
type SGD struct {
	BaseTensorFactorization
	// Hyper parameters
	nFactors   int
	nEpochs    int
	lr         float64
	reg        float64
	initMean   float64
	initStdDev float64
	regs       []float64
}

// NewSGD creates an SGD solver.
func NewSGD(params model.Params) *SGD {
	sgd := new(SGD)
	sgd.SetParams(params)
	return sgd
}

// SetParams sets hyper-parameters for the SGD solver.
func (sgd *SGD) SetParams(params model.Params) {
	sgd.BaseTensorFactorization.SetParams(params)
	sgd.nFactors = sgd.Params.GetInt(model.NFactors, 10)
	sgd.nEpochs = sgd.Params.GetInt(model.NEpochs, 20)
	sgd.lr = sgd.Params.GetFloat64(model.Lr, 0.001)
	sgd.reg = sgd.Params.GetFloat64(model.Reg, 0.01)
	sgd.initMean = sgd.Params.GetFloat64(model.InitMean, 0)
	sgd.initStdDev = sgd.Params.GetFloat64(model.InitStdDev, 0.1)
}

// Init draws random factors for a tensor of the given dimensions.
func (sgd *SGD) Init(dims []int) {
	sgd.Kruskal = model.NewKruskal(dims, sgd.nFactors)
	sgd.Kruskal.Init(sgd.GetRandomGenerator(), sgd.initMean, sgd.initStdDev)
	sgd.regs = sgd.Params.GetRegs(len(dims), sgd.reg)
}

// Fit the SGD model for a fixed number of epochs with a constant learning rate.
func (sgd *SGD) Fit(ctx context.Context, train, validate *tensor.Tensor, config *FitConfig) (Score, error) {
	if config == nil {
		config = NewFitConfig()
	}
	if train.NModes() < 2 {
		return Score{}, errors.NotSupportedf("SGD on %d-mode tensor", train.NModes())
	}
	log.Logger().Info("fit sgd",
		zap.Int("train_set_size", train.NNZ()),
		zap.Int("test_set_size", validate.NNZ()),
		zap.Any("params", sgd.GetParams()),
		zap.Any("config", config))
	sgd.Init(train.Dims)
	// factors absorb the scale
	for f := range sgd.Kruskal.Lambda {
		sgd.Kruskal.Lambda[f] = 1
	}
	jobs := config.jobs()
	nnz := train.NNZ()
	perm := make([]int, nnz)
	for i := range perm {
		perm[i] = i
	}
	predictBuf := make([]float64, sgd.nFactors)
	othersBuf := make([]float64, sgd.nFactors)
	rng := sgd.GetRandomGenerator()

	var (
		score     Score
		trainTime time.Duration
		evalTime  time.Duration
	)
	_, span := progress.Start(ctx, "SGD.Fit", sgd.nEpochs)
	for ep := 1; ep <= sgd.nEpochs; ep++ {
		if err := ctx.Err(); err != nil {
			span.Fail(err)
			return score, errors.Trace(err)
		}
		fitStart := time.Now()
		rng.ShuffleInts(perm)
		for _, x := range perm {
			err := train.Vals[x] - sgd.Kruskal.PredictAt(train, x, predictBuf)
			sgd.update(train, x, err, othersBuf)
		}
		trainTime += time.Since(fitStart)

		evalStart := time.Now()
		loss, err := model.LossSq(train, sgd.Kruskal, jobs)
		if err != nil {
			span.Fail(err)
			return score, errors.Trace(err)
		}
		objective := loss + model.FrobeniusSq(sgd.Kruskal, sgd.regs)
		trainRMSE := 0.0
		if nnz > 0 {
			trainRMSE = math.Sqrt(loss / float64(nnz))
		}
		validateRMSE, err := model.RMSE(validate, sgd.Kruskal, jobs)
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
		}
		report("sgd", config, sgd.nEpochs, EpochReport{
			Epoch:        ep,
			Objective:    objective,
			TrainRMSE:    trainRMSE,
			ValidateRMSE: validateRMSE,
			TrainTime:    trainTime,
			EvalTime:     evalTime,
		})
		span.Add(1)
	}
	span.End()

	log.Logger().Info("fit sgd complete",
		zap.Int("epochs", score.Epochs),
		zap.Float64("train_rmse", score.TrainRMSE),
		zap.Float64("validate_rmse", score.ValidateRMSE))
	return score, nil
}

// update moves every row touched by nonzero x along its gradient. The gradient of a mode is
// the elementwise product of the other modes' rows, read after earlier modes were updated.
func (sgd *SGD) update(train *tensor.Tensor, x int, err float64, buffer []float64) {
	k := sgd.Kruskal
	for m := range k.Factors {
		for f := range buffer {
			buffer[f] = 1
		}
		for m2 := range k.Factors {
			if m2 == m {
				continue
			}
			row := k.Row(m2, train.Inds[m2][x])
			for f := range buffer {
				buffer[f] *= row[f]
			}
		}
		row := k.Row(m, train.Inds[m][x])
		reg := sgd.regs[m]
		for f := range buffer {
			row[f] += sgd.lr * (err*buffer[f] - reg*row[f])
		}
	}
}

// Unmarshal model from byte stream.
func (sgd *SGD) Unmarshal(r io.Reader) error {
	if err := sgd.BaseTensorFactorization.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	sgd.SetParams(sgd.Params)
	sgd.regs = sgd.Params.GetRegs(sgd.Kruskal.NModes(), sgd.reg)
	return nil
}

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
	"fmt"
	"io"
	"time"

	"github.com/gorse-io/tensorfact/common/encoding"
	"github.com/gorse-io/tensorfact/common/log"
	"github.com/gorse-io/tensorfact/fiber"
	"github.com/gorse-io/tensorfact/model"
	"github.com/gorse-io/tensorfact/tensor"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Score summarizes the last epoch of a fit.
type Score struct {
	Epochs       int
	Objective    float64
	TrainRMSE    float64
	ValidateRMSE float64
	Failures     int
}

// EpochReport is emitted after every epoch. TrainTime and EvalTime are cumulative since the
// start of the fit.
type EpochReport struct {
	Epoch        int
	Objective    float64
	TrainRMSE    float64
	ValidateRMSE float64
	TrainTime    time.Duration
	EvalTime     time.Duration
	Failures     int
}

type FitConfig struct {
	Jobs       int
	Verbose    int
	Tile       bool
	TileDims   []int
	FiberOrder fiber.FiberOrder
	Tolerance  float64
	OnEpoch    func(EpochReport) `json:"-"`
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:      1,
		Verbose:   10,
		Tolerance: 1e-8,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

// SetTile enables slab tiling. Without tileDims the default tile dimensions are used.
func (config *FitConfig) SetTile(tileDims ...int) *FitConfig {
	config.Tile = true
	config.TileDims = tileDims
	return config
}

func (config *FitConfig) SetFiberOrder(order fiber.FiberOrder) *FitConfig {
	config.FiberOrder = order
	return config
}

func (config *FitConfig) SetTolerance(tolerance float64) *FitConfig {
	config.Tolerance = tolerance
	return config
}

func (config *FitConfig) SetOnEpoch(onEpoch func(EpochReport)) *FitConfig {
	config.OnEpoch = onEpoch
	return config
}

func (config *FitConfig) jobs() int {
	if config.Jobs < 1 {
		return 1
	}
	return config.Jobs
}

type Model interface {
	model.Model
	// Fit a model with a train set and an optional validation set.
	Fit(ctx context.Context, train, validate *tensor.Tensor, config *FitConfig) (Score, error)
	// Predict estimates the value at a coordinate.
	Predict(inds []int) float64
	// GetKruskal returns the fitted decomposition.
	GetKruskal() *model.Kruskal
	Marshal(w io.Writer) error
	Unmarshal(r io.Reader) error
}

// BaseTensorFactorization holds the decomposition shared by all solvers.
type BaseTensorFactorization struct {
	model.BaseModel
	Kruskal *model.Kruskal
}

func (baseModel *BaseTensorFactorization) Predict(inds []int) float64 {
	if baseModel.Kruskal == nil {
		return 0
	}
	return baseModel.Kruskal.Predict(inds)
}

func (baseModel *BaseTensorFactorization) GetKruskal() *model.Kruskal {
	return baseModel.Kruskal
}

// Marshal writes hyper-parameters followed by the decomposition.
func (baseModel *BaseTensorFactorization) Marshal(w io.Writer) error {
	if baseModel.Kruskal == nil {
		return errors.NotValidf("unfitted model")
	}
	if err := encoding.WriteGob(w, baseModel.Params); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(baseModel.Kruskal.Marshal(w))
}

func (baseModel *BaseTensorFactorization) Unmarshal(r io.Reader) error {
	var params model.Params
	if err := encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	k := new(model.Kruskal)
	if err := k.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	baseModel.SetParams(params)
	baseModel.Kruskal = k
	return nil
}

// report publishes an epoch report to metrics, the log and the callback.
func report(solver string, config *FitConfig, nEpochs int, r EpochReport) {
	EpochSecondsVec.WithLabelValues(solver, PhaseTrain).Set(r.TrainTime.Seconds())
	EpochSecondsVec.WithLabelValues(solver, PhaseEval).Set(r.EvalTime.Seconds())
	TrainRMSE.WithLabelValues(solver).Set(r.TrainRMSE)
	ValidateRMSE.WithLabelValues(solver).Set(r.ValidateRMSE)
	fields := []zap.Field{
		zap.Float64("obj", r.Objective),
		zap.Float64("train_rmse", r.TrainRMSE),
		zap.Float64("validate_rmse", r.ValidateRMSE),
		zap.Duration("train_time", r.TrainTime),
		zap.Duration("eval_time", r.EvalTime),
	}
	if r.Failures > 0 {
		fields = append(fields, zap.Int("solve_failures", r.Failures))
	}
	msg := fmt.Sprintf("fit %s %v/%v", solver, r.Epoch, nEpochs)
	if config.Verbose > 0 && (r.Epoch%config.Verbose == 0 || r.Epoch == nEpochs) {
		log.Logger().Info(msg, fields...)
	} else {
		log.Logger().Debug(msg, fields...)
	}
	if config.OnEpoch != nil {
		config.OnEpoch(r)
	}
}

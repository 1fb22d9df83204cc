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
	"encoding/json"
	"reflect"

	"github.com/gorse-io/tensorfact/common/log"
	"go.uber.org/zap"
)

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	Lr          ParamName = "Lr"          // learning rate
	Reg         ParamName = "Reg"         // regularization strength shared by all modes
	ModeRegs    ParamName = "ModeRegs"    // per-mode regularization, overrides Reg
	NEpochs     ParamName = "NEpochs"     // number of epochs
	NFactors    ParamName = "NFactors"    // rank of the decomposition
	RandomState ParamName = "RandomState" // random state (seed)
	InitMean    ParamName = "InitMean"    // mean of gaussian initial factors
	InitStdDev  ParamName = "InitStdDev"  // standard deviation of gaussian initial factors
)

// Params stores hyper-parameters for a solver. For example, hyper-parameters for ALS
// is given by:
//
//	model.Params{
//		model.NFactors: 10,
//		model.NEpochs:  20,
//		model.Reg:      0.01,
//	}
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params)
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// GetInt gets a integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		case int64:
			return int(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param_name", string(name)),
				zap.String("expect_type", "int"),
				zap.String("actual_type", reflect.TypeOf(val).Name()))
		}
	}
	return _default
}

// GetInt64 gets a int64 parameter by name. Returns _default if not exists or type doesn't match. The
// type will be converted if given int.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param_name", string(name)),
				zap.String("expect_type", "int64"),
				zap.String("actual_type", reflect.TypeOf(val).Name()))
		}
	}
	return _default
}

// GetBool gets a bool parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetBool(name ParamName, _default bool) bool {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case bool:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param_name", string(name)),
				zap.String("expect_type", "bool"),
				zap.String("actual_type", reflect.TypeOf(val).Name()))
		}
	}
	return _default
}

// GetFloat64 gets a float parameter by name. Integers are converted.
func (parameters Params) GetFloat64(name ParamName, _default float64) float64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float64:
			return val
		case float32:
			return float64(val)
		case int:
			return float64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param_name", string(name)),
				zap.String("expect_type", "float64"),
				zap.String("actual_type", reflect.TypeOf(val).Name()))
		}
	}
	return _default
}

// GetFloat64s gets a float slice parameter by name. The returned slice is a copy.
func (parameters Params) GetFloat64s(name ParamName, _default []float64) []float64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case []float64:
			return append([]float64(nil), val...)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param_name", string(name)),
				zap.String("expect_type", "[]float64"),
				zap.String("actual_type", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetString gets a string parameter. Returns _default if not exists or type doesn't match.
func (parameters Params) GetString(name ParamName, _default string) string {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case string:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param_name", string(name)),
				zap.String("expect_type", "string"),
				zap.String("actual_type", reflect.TypeOf(val).Name()))
		}
	}
	return _default
}

// GetRegs resolves the regularization of each mode: ModeRegs if given with one value per
// mode, otherwise Reg for every mode.
func (parameters Params) GetRegs(nModes int, _default float64) []float64 {
	regs := parameters.GetFloat64s(ModeRegs, nil)
	if regs != nil && len(regs) != nModes {
		log.Logger().Warn("ignore per-mode regularization of wrong length",
			zap.Int("n_modes", nModes), zap.Int("length", len(regs)))
		regs = nil
	}
	if regs == nil {
		reg := parameters.GetFloat64(Reg, _default)
		regs = make([]float64, nModes)
		for m := range regs {
			regs[m] = reg
		}
	}
	return regs
}

func (parameters Params) Overwrite(params Params) Params {
	merged := make(Params)
	for k, v := range parameters {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

func (parameters Params) ToString() string {
	b, err := json.Marshal(parameters)
	if err != nil {
		log.Logger().Error("failed to marshal params", zap.Error(err))
		return ""
	}
	return string(b)
}

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelMode   = "mode"
	LabelSolver = "solver"
	LabelPhase  = "phase"

	PhaseTrain = "train"
	PhaseEval  = "eval"
)

var (
	SolveFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tensorfact",
		Subsystem: "tc",
		Name:      "solve_failures_total",
	}, []string{LabelMode})
	EpochSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tensorfact",
		Subsystem: "tc",
		Name:      "epoch_seconds",
	}, []string{LabelSolver, LabelPhase})
	TrainRMSE = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tensorfact",
		Subsystem: "tc",
		Name:      "train_rmse",
	}, []string{LabelSolver})
	ValidateRMSE = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tensorfact",
		Subsystem: "tc",
		Name:      "validate_rmse",
	}, []string{LabelSolver})
)

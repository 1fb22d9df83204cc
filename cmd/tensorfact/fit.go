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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorse-io/tensorfact/common/log"
	"github.com/gorse-io/tensorfact/config"
	"github.com/gorse-io/tensorfact/model/tc"
	"github.com/gorse-io/tensorfact/storage/blob"
	"github.com/gorse-io/tensorfact/tensor"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var alsCmd = &cobra.Command{
	Use:   "als <train> [validate]",
	Short: "Fit a 3-mode tensor with alternating least squares.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFit(cmd, args, "als", func(cfg *config.Config) tc.Model {
			return tc.NewALS(cfg.Model.GetParams())
		})
	},
}

var sgdCmd = &cobra.Command{
	Use:   "sgd <train> [validate]",
	Short: "Fit a tensor with stochastic gradient descent.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFit(cmd, args, "sgd", func(cfg *config.Config) tc.Model {
			return tc.NewSGD(cfg.Model.GetParams())
		})
	},
}

func init() {
	defaults := config.GetDefaultConfig()
	for _, cmd := range []*cobra.Command{alsCmd, sgdCmd} {
		cmd.Flags().Float64("holdout", defaults.Fit.Holdout, "ratio of nonzeros held out for validation when no validation file is given")
		cmd.Flags().Float64("tolerance", defaults.Fit.Tolerance, "stop when the validation RMSE changes less than this")
		cmd.Flags().String("checkpoint", "", "name of the checkpoint written to the blob store")
	}
	alsCmd.Flags().Bool("tile", false, "build tiled fiber tensors")
	alsCmd.Flags().String("fiber-order", defaults.Fit.FiberOrder, "mode placed last in fiber tensors (shortest or longest)")
	sgdCmd.Flags().Float64("lr", defaults.Model.Lr, "learning rate")
}

func runFit(cmd *cobra.Command, args []string, solver string, newModel func(*config.Config) tc.Model) error {
	cfg, err := setup(cmd)
	if err != nil {
		return errors.Trace(err)
	}
	train, validate, err := loadTensors(args, cfg.Fit.Holdout, cfg.Model.Seed)
	if err != nil {
		return errors.Trace(err)
	}
	fitConfig, err := cfg.Fit.GetFitConfig()
	if err != nil {
		return errors.Trace(err)
	}

	var reports []tc.EpochReport
	bar := progressbar.Default(int64(cfg.Model.Epochs), "fit "+solver)
	fitConfig.SetOnEpoch(func(r tc.EpochReport) {
		reports = append(reports, r)
		_ = bar.Add(1)
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	m := newModel(cfg)
	score, err := m.Fit(ctx, train, validate, fitConfig)
	_ = bar.Finish()
	if err != nil {
		return errors.Annotatef(err, "failed to fit %s", solver)
	}
	if err = writeReports(os.Stdout, reports); err != nil {
		return errors.Trace(err)
	}
	fmt.Printf("epochs: %d, objective: %g, train RMSE: %g, validate RMSE: %g, failures: %d\n",
		score.Epochs, score.Objective, score.TrainRMSE, score.ValidateRMSE, score.Failures)

	checkpoint, _ := cmd.Flags().GetString("checkpoint")
	return saveCheckpoint(cfg.Blob, solver, checkpoint, m)
}

// loadTensors reads the training tensor and the validation tensor. Without a validation file,
// a holdout ratio above zero splits the training tensor; otherwise validation is empty.
func loadTensors(args []string, holdout float64, seed int64) (train, validate *tensor.Tensor, err error) {
	train, err = tensor.ReadFile(args[0])
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	switch {
	case len(args) > 1:
		validate, err = tensor.ReadFile(args[1])
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		if validate.NModes() != train.NModes() {
			return nil, nil, errors.NotValidf("%d-mode validation tensor for %d-mode training tensor",
				validate.NModes(), train.NModes())
		}
		train.ExpandDims(validate.Dims)
		validate.ExpandDims(train.Dims)
	case holdout > 0:
		train, validate = train.Split(holdout, seed)
	default:
		validate = tensor.New(train.Dims)
	}
	if err = train.Validate(); err != nil {
		return nil, nil, errors.Trace(err)
	}
	if err = validate.Validate(); err != nil {
		return nil, nil, errors.Trace(err)
	}
	log.Logger().Info("load tensors",
		zap.Ints("dims", train.Dims),
		zap.Int("train_nnz", train.NNZ()),
		zap.Int("validate_nnz", validate.NNZ()))
	return train, validate, nil
}

func writeReports(w io.Writer, reports []tc.EpochReport) error {
	table := tablewriter.NewWriter(w)
	table.Header("Epoch", "Objective", "Train RMSE", "Validate RMSE", "Failures", "Train Time", "Eval Time")
	rows := lo.Map(reports, func(r tc.EpochReport, _ int) []string {
		return []string{
			strconv.Itoa(r.Epoch),
			strconv.FormatFloat(r.Objective, 'g', 6, 64),
			strconv.FormatFloat(r.TrainRMSE, 'g', 6, 64),
			strconv.FormatFloat(r.ValidateRMSE, 'g', 6, 64),
			strconv.Itoa(r.Failures),
			r.TrainTime.String(),
			r.EvalTime.String(),
		}
	})
	if err := table.Bulk(rows); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(table.Render())
}

// saveCheckpoint writes the model to the blob store. An explicit name falls back to the local
// checkpoint directory when no store is configured. Without a name, a configured store gets a
// fresh one.
func saveCheckpoint(cfg config.BlobConfig, solver, name string, m tc.Model) error {
	store, err := blob.Open(cfg)
	if err != nil {
		return errors.Trace(err)
	}
	if store == nil {
		if name == "" {
			return nil
		}
		store = blob.NewPOSIX(cfg.Dir)
	}
	if name == "" {
		name = fmt.Sprintf("%s-%s.ckpt", solver, uuid.NewString())
	}
	return errors.Trace(blob.SaveModel(store, name, m))
}

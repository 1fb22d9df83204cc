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
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gorse-io/tensorfact/config"
	"github.com/gorse-io/tensorfact/fiber"
	"github.com/gorse-io/tensorfact/tensor"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <tensor>",
	Short: "Print the layout of the fiber tensors of a tensor.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd)
		if err != nil {
			return errors.Trace(err)
		}
		t, err := tensor.ReadFile(args[0])
		if err != nil {
			return errors.Trace(err)
		}
		if err = t.Validate(); err != nil {
			return errors.Trace(err)
		}
		fts, err := buildFiberTensors(cmd.Context(), t, cfg.Fit)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Printf("dims: %v, nnz: %d\n", t.Dims, t.NNZ())
		return writeStats(os.Stdout, fts)
	},
}

func init() {
	defaults := config.GetDefaultConfig()
	statsCmd.Flags().Bool("tile", false, "build tiled fiber tensors")
	statsCmd.Flags().String("fiber-order", defaults.Fit.FiberOrder, "mode placed last in fiber tensors (shortest or longest)")
}

func buildFiberTensors(ctx context.Context, t *tensor.Tensor, cfg config.FitConfig) ([]*fiber.Tensor, error) {
	order, err := fiber.ParseFiberOrder(cfg.FiberOrder)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return fiber.BuildAll(ctx, t, fiber.Options{
		Order:    order,
		Tile:     cfg.Tile,
		TileDims: cfg.TileDims,
	}, cfg.Jobs)
}

func writeStats(w io.Writer, fts []*fiber.Tensor) error {
	table := tablewriter.NewWriter(w)
	table.Header("Mode", "Perm", "Slices", "Fibers", "Nonzeros", "Slabs", "Storage")
	for _, ft := range fts {
		if err := table.Append([]string{
			strconv.Itoa(ft.Mode),
			fmt.Sprint(ft.Perm),
			strconv.Itoa(ft.NSlices()),
			strconv.Itoa(ft.NFibers()),
			strconv.Itoa(ft.NNZ()),
			strconv.Itoa(ft.NSlabs),
			humanize.Bytes(ft.StorageBytes()),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

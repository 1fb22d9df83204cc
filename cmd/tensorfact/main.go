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
	"net/http"
	"os"

	"github.com/gorse-io/tensorfact/common/log"
	"github.com/gorse-io/tensorfact/config"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:          "tensorfact",
	Short:        "Sparse tensor completion with CP decomposition.",
	SilenceUsage: true,
}

func init() {
	defaults := config.GetDefaultConfig()
	log.AddFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCmd.PersistentFlags().IntP("jobs", "j", defaults.Fit.Jobs, "number of workers")
	rootCmd.PersistentFlags().Int("verbose", defaults.Fit.Verbose, "log every n epochs")
	rootCmd.PersistentFlags().Int("rank", defaults.Model.Rank, "rank of the decomposition")
	rootCmd.PersistentFlags().Int("epochs", defaults.Model.Epochs, "maximum number of epochs")
	rootCmd.PersistentFlags().Float64("reg", defaults.Model.Reg, "regularization strength")
	rootCmd.PersistentFlags().Int64("seed", defaults.Model.Seed, "random seed")
	rootCmd.PersistentFlags().String("metrics-address", "", "serve prometheus metrics on this address")
	rootCmd.AddCommand(alsCmd, sgdCmd, statsCmd)
}

// setup initializes the logger and resolves the configuration of a command: the config file
// (or defaults) first, then environment, then flags set on the command line.
func setup(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	log.SetLogger(cmd.Flags(), debug)
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = overrideConfig(cfg, cmd.Flags()); err != nil {
		return nil, errors.Trace(err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Metrics.Address != "" {
		serveMetrics(cfg.Metrics.Address)
	}
	return cfg, nil
}

func overrideConfig(cfg *config.Config, flags *pflag.FlagSet) error {
	var err error
	set := func(name string, fn func() error) {
		if err == nil && flags.Changed(name) {
			err = fn()
		}
	}
	set("jobs", func() (e error) { cfg.Fit.Jobs, e = flags.GetInt("jobs"); return })
	set("verbose", func() (e error) { cfg.Fit.Verbose, e = flags.GetInt("verbose"); return })
	set("rank", func() (e error) { cfg.Model.Rank, e = flags.GetInt("rank"); return })
	set("epochs", func() (e error) { cfg.Model.Epochs, e = flags.GetInt("epochs"); return })
	set("reg", func() (e error) { cfg.Model.Reg, e = flags.GetFloat64("reg"); return })
	set("seed", func() (e error) { cfg.Model.Seed, e = flags.GetInt64("seed"); return })
	set("lr", func() (e error) { cfg.Model.Lr, e = flags.GetFloat64("lr"); return })
	set("tile", func() (e error) { cfg.Fit.Tile, e = flags.GetBool("tile"); return })
	set("fiber-order", func() (e error) { cfg.Fit.FiberOrder, e = flags.GetString("fiber-order"); return })
	set("tolerance", func() (e error) { cfg.Fit.Tolerance, e = flags.GetFloat64("tolerance"); return })
	set("holdout", func() (e error) { cfg.Fit.Holdout, e = flags.GetFloat64("holdout"); return })
	set("metrics-address", func() (e error) { cfg.Metrics.Address, e = flags.GetString("metrics-address"); return })
	return err
}

func serveMetrics(address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Logger().Info("start metrics server", zap.String("address", address))
		if err := http.ListenAndServe(address, mux); err != nil {
			log.Logger().Error("failed to serve metrics", zap.Error(err))
		}
	}()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

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

package config

import (
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/tensorfact/fiber"
	"github.com/gorse-io/tensorfact/model"
	"github.com/gorse-io/tensorfact/model/tc"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config is the configuration of tensorfact.
type Config struct {
	Model   ModelConfig   `mapstructure:"model"`
	Fit     FitConfig     `mapstructure:"fit"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ModelConfig holds the hyper-parameters of a solver.
type ModelConfig struct {
	Rank       int       `mapstructure:"rank" validate:"gt=0"`
	Epochs     int       `mapstructure:"epochs" validate:"gt=0"`
	Reg        float64   `mapstructure:"reg" validate:"gte=0"`
	ModeRegs   []float64 `mapstructure:"mode_regs" validate:"dive,gte=0"`
	Lr         float64   `mapstructure:"lr" validate:"gt=0"`
	InitMean   float64   `mapstructure:"init_mean"`
	InitStdDev float64   `mapstructure:"init_std" validate:"gte=0"`
	Seed       int64     `mapstructure:"seed"`
}

// FitConfig holds the options of a fit.
type FitConfig struct {
	Jobs       int     `mapstructure:"jobs" validate:"gt=0"`
	Verbose    int     `mapstructure:"verbose" validate:"gte=0"`
	Tile       bool    `mapstructure:"tile"`
	TileDims   []int   `mapstructure:"tile_dims" validate:"dive,gt=0"`
	FiberOrder string  `mapstructure:"fiber_order" validate:"oneof=shortest longest"`
	Tolerance  float64 `mapstructure:"tolerance" validate:"gte=0"`
	Holdout    float64 `mapstructure:"holdout" validate:"gte=0,lt=1"`
}

// BlobConfig selects where checkpoints are stored. An empty type disables checkpoints.
type BlobConfig struct {
	Type  string          `mapstructure:"type" validate:"omitempty,oneof=posix s3 gcs azure"`
	Dir   string          `mapstructure:"dir"`
	S3    S3Config        `mapstructure:"s3"`
	GCS   GCSConfig       `mapstructure:"gcs"`
	Azure AzureBlobConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

type AzureBlobConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Rank:       10,
			Epochs:     20,
			Reg:        0.01,
			Lr:         0.001,
			InitStdDev: 0.1,
		},
		Fit: FitConfig{
			Jobs:       1,
			Verbose:    1,
			TileDims:   append([]int(nil), fiber.DefaultTileDims...),
			FiberOrder: fiber.ShortestModeLast.String(),
			Tolerance:  1e-8,
		},
		Blob: BlobConfig{
			Dir: "checkpoints",
		},
	}
}

// GetParams converts the model section into solver hyper-parameters.
func (c *ModelConfig) GetParams() model.Params {
	params := model.Params{
		model.NFactors:    c.Rank,
		model.NEpochs:     c.Epochs,
		model.Reg:         c.Reg,
		model.Lr:          c.Lr,
		model.InitMean:    c.InitMean,
		model.InitStdDev:  c.InitStdDev,
		model.RandomState: c.Seed,
	}
	if len(c.ModeRegs) > 0 {
		params[model.ModeRegs] = append([]float64(nil), c.ModeRegs...)
	}
	return params
}

// GetFitConfig converts the fit section into solver options.
func (c *FitConfig) GetFitConfig() (*tc.FitConfig, error) {
	order, err := fiber.ParseFiberOrder(c.FiberOrder)
	if err != nil {
		return nil, errors.Trace(err)
	}
	config := tc.NewFitConfig().
		SetJobs(c.Jobs).
		SetVerbose(c.Verbose).
		SetFiberOrder(order).
		SetTolerance(c.Tolerance)
	if c.Tile {
		config.SetTile(c.TileDims...)
	}
	return config, nil
}

// Validate checks every field against its constraints.
func (config *Config) Validate() error {
	if err := validator.New().Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	return nil
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [model]
	v.SetDefault("model.rank", defaultConfig.Model.Rank)
	v.SetDefault("model.epochs", defaultConfig.Model.Epochs)
	v.SetDefault("model.reg", defaultConfig.Model.Reg)
	v.SetDefault("model.lr", defaultConfig.Model.Lr)
	v.SetDefault("model.init_mean", defaultConfig.Model.InitMean)
	v.SetDefault("model.init_std", defaultConfig.Model.InitStdDev)
	v.SetDefault("model.seed", defaultConfig.Model.Seed)
	// [fit]
	v.SetDefault("fit.jobs", defaultConfig.Fit.Jobs)
	v.SetDefault("fit.verbose", defaultConfig.Fit.Verbose)
	v.SetDefault("fit.tile", defaultConfig.Fit.Tile)
	v.SetDefault("fit.tile_dims", defaultConfig.Fit.TileDims)
	v.SetDefault("fit.fiber_order", defaultConfig.Fit.FiberOrder)
	v.SetDefault("fit.tolerance", defaultConfig.Fit.Tolerance)
	v.SetDefault("fit.holdout", defaultConfig.Fit.Holdout)
	// [blob]
	v.SetDefault("blob.type", defaultConfig.Blob.Type)
	v.SetDefault("blob.dir", defaultConfig.Blob.Dir)
}

type configBinding struct {
	key string
	env string
}

func bindEnv(v *viper.Viper) error {
	bindings := []configBinding{
		{"model.rank", "TENSORFACT_RANK"},
		{"model.epochs", "TENSORFACT_EPOCHS"},
		{"model.reg", "TENSORFACT_REG"},
		{"model.seed", "TENSORFACT_SEED"},
		{"fit.jobs", "TENSORFACT_JOBS"},
		{"fit.tile", "TENSORFACT_TILE"},
		{"fit.tile_dims", "TENSORFACT_TILE_DIMS"},
		{"fit.fiber_order", "TENSORFACT_FIBER_ORDER"},
		{"blob.type", "TENSORFACT_BLOB_TYPE"},
		{"blob.dir", "TENSORFACT_BLOB_DIR"},
		{"blob.s3.endpoint", "TENSORFACT_S3_ENDPOINT"},
		{"blob.s3.access_key_id", "TENSORFACT_S3_ACCESS_KEY_ID"},
		{"blob.s3.secret_access_key", "TENSORFACT_S3_SECRET_ACCESS_KEY"},
		{"blob.gcs.credentials_file", "TENSORFACT_GCS_CREDENTIALS_FILE"},
		{"blob.azure.connection_string", "TENSORFACT_AZURE_CONNECTION_STRING"},
		{"metrics.address", "TENSORFACT_METRICS_ADDRESS"},
	}
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// LoadConfig reads a config file (TOML unless the extension says otherwise), applies
// environment overrides and validates the result. An empty path yields the defaults plus
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	if err := bindEnv(v); err != nil {
		return nil, errors.Trace(err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); !lo.Contains(viper.SupportedExts, ext) {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config file %s", path)
		}
	}
	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, errors.Annotate(err, "failed to decode config")
	}
	config.Fit.FiberOrder = strings.ToLower(config.Fit.FiberOrder)
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &config, nil
}

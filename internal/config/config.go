// Package config loads service and tool settings from an optional file and
// NINES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"nines/internal/classify"
	"nines/internal/glyph"
	"nines/internal/model"
	"nines/internal/pipeline"
	"nines/internal/raster"
	"nines/internal/segment"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. NINES_MODEL_PATH.
const EnvPrefix = "NINES"

// BackendTesseract selects the OCR recognizer instead of a model artifact.
const BackendTesseract = "tesseract"

// ModelConfig locates the classifier.
type ModelConfig struct {
	Backend        string
	Path           string
	Labels         classify.Labels
	RuntimeLibrary string
	Watch          bool
}

// Options returns the model loader options.
func (m ModelConfig) Options() model.Options {
	return model.Options{Backend: m.Backend, Path: m.Path, RuntimeLibrary: m.RuntimeLibrary}
}

// Config is the full application configuration.
type Config struct {
	Pipeline   pipeline.Config
	Model      ModelConfig
	ServerAddr string
	LogLevel   zerolog.Level
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binarize.threshold", raster.DefaultThreshold)
	v.SetDefault("segment.min_area", segment.DefaultParams().MinArea)
	v.SetDefault("segment.connectivity", segment.DefaultParams().Connectivity)
	v.SetDefault("glyph.size", glyph.DefaultParams().Size)
	v.SetDefault("glyph.interpolation", string(glyph.DefaultParams().Interpolation))
	v.SetDefault("glyph.invert", false)
	v.SetDefault("model.backend", model.BackendONNX)
	v.SetDefault("model.path", "models/symbol_classifier.onnx")
	v.SetDefault("model.labels", []string(classify.DefaultLabels()))
	v.SetDefault("model.onnxruntime_lib", "")
	v.SetDefault("model.watch", false)
	v.SetDefault("pipeline.workers", pipeline.DefaultConfig().Workers)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
}

// Load reads path (YAML, TOML or JSON; empty for none) and applies
// environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var cfg Config

	cfg.Pipeline = pipeline.Config{
		Threshold: v.GetFloat64("binarize.threshold"),
		Segment: segment.DefaultParams().
			WithMinArea(v.GetInt("segment.min_area")).
			WithConnectivity(v.GetInt("segment.connectivity")),
		Glyph: glyph.DefaultParams().
			WithSize(v.GetInt("glyph.size")).
			WithInterpolation(glyph.Interpolation(strings.ToLower(v.GetString("glyph.interpolation")))).
			WithInvert(v.GetBool("glyph.invert")),
		Workers: v.GetInt("pipeline.workers"),
	}

	cfg.Model = ModelConfig{
		Backend:        strings.ToLower(v.GetString("model.backend")),
		Path:           v.GetString("model.path"),
		Labels:         classify.Labels(v.GetStringSlice("model.labels")),
		RuntimeLibrary: v.GetString("model.onnxruntime_lib"),
		Watch:          v.GetBool("model.watch"),
	}

	cfg.ServerAddr = v.GetString("server.addr")

	level, err := zerolog.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid log.level: %w", err)
	}
	cfg.LogLevel = level

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	p := c.Pipeline
	if p.Threshold <= 0 || p.Threshold > 256 {
		errs = append(errs, fmt.Errorf("binarize.threshold must be in (0,256], got %v", p.Threshold))
	}
	if p.Segment.MinArea < 0 {
		errs = append(errs, fmt.Errorf("segment.min_area must be >= 0, got %d", p.Segment.MinArea))
	}
	if p.Segment.Connectivity != 4 && p.Segment.Connectivity != 8 {
		errs = append(errs, fmt.Errorf("segment.connectivity must be 4 or 8, got %d", p.Segment.Connectivity))
	}
	if p.Glyph.Size <= 0 {
		errs = append(errs, fmt.Errorf("glyph.size must be positive, got %d", p.Glyph.Size))
	}
	if p.Glyph.Interpolation != glyph.Nearest && p.Glyph.Interpolation != glyph.Linear {
		errs = append(errs, fmt.Errorf("glyph.interpolation must be nearest or linear, got %q", p.Glyph.Interpolation))
	}
	if p.Workers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be >= 1, got %d", p.Workers))
	}
	switch c.Model.Backend {
	case model.BackendONNX, model.BackendDense, BackendTesseract:
	default:
		errs = append(errs, fmt.Errorf("model.backend must be onnx, dense or tesseract, got %q", c.Model.Backend))
	}
	if c.Model.Backend != BackendTesseract && c.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if len(c.Model.Labels) == 0 {
		errs = append(errs, errors.New("model.labels must not be empty"))
	}
	return errors.Join(errs...)
}

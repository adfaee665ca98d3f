// Package app assembles the recognizer, pipeline and model lifecycle from
// configuration.
package app

import (
	"fmt"

	"nines/internal/config"
	"nines/internal/model"
	"nines/internal/ocr"
	"nines/internal/pipeline"

	"github.com/rs/zerolog/log"
)

// App owns the long-lived resources of a process.
type App struct {
	Config   config.Config
	Pipeline *pipeline.Pipeline
	Cache    *model.Cache // nil for the OCR backend

	watcher *model.Watcher
	engine  *ocr.Engine
}

// New builds the pipeline described by cfg. The model is loaded lazily on
// the first pass; Warm forces the load.
func New(cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	var source pipeline.Source
	if cfg.Model.Backend == config.BackendTesseract {
		engine, err := ocr.NewEngine(cfg.Model.Labels)
		if err != nil {
			return nil, fmt.Errorf("failed to create OCR engine: %w", err)
		}
		a.engine = engine
		source = pipeline.Static{Rec: engine}
	} else {
		a.Cache = model.NewCache(model.Loader(cfg.Model.Options()))
		source = pipeline.CacheSource{Cache: a.Cache, Labels: cfg.Model.Labels}

		if cfg.Model.Watch {
			w, err := model.NewWatcher(cfg.Model.Path, model.DefaultDebounce)
			if err != nil {
				return nil, fmt.Errorf("failed to watch model: %w", err)
			}
			w.InvalidateOnChange(a.Cache)
			w.Start()
			a.watcher = w
			log.Info().Str("path", w.Path()).Msg("Model: watching artifact")
		}
	}

	a.Pipeline = pipeline.New(cfg.Pipeline, source, nil)
	return a, nil
}

// Warm loads the model now instead of on the first pass. A failure is
// remembered by the cache, so it is also what the first pass reports.
func (a *App) Warm() error {
	if a.Cache == nil {
		return nil
	}
	h, err := a.Cache.Acquire()
	if err != nil {
		return err
	}
	h.Release()
	return nil
}

// Reload drops the cached model (and any remembered load failure).
func (a *App) Reload() {
	if a.Cache != nil {
		a.Cache.Invalidate()
	}
}

// Close stops the watcher and releases the model or OCR engine.
func (a *App) Close() error {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			log.Warn().Err(err).Msg("Model: stop watcher")
		}
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.engine != nil {
		return a.engine.Close()
	}
	return nil
}

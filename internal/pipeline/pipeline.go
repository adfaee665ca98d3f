// Package pipeline chains binarization, segmentation, glyph normalization,
// classification, assembly and validation into one recognition pass.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"nines/internal/classify"
	"nines/internal/expression"
	"nines/internal/glyph"
	"nines/internal/model"
	"nines/internal/raster"
	"nines/internal/segment"

	"github.com/rs/zerolog/log"
)

// ErrInference wraps a failure of the recognizer on a glyph.
var ErrInference = errors.New("inference failed")

// Config holds the parameters of every stage.
type Config struct {
	Threshold float64
	Segment   segment.Params
	Glyph     glyph.Params
	Workers   int // parallel glyph classifications per pass
}

// DefaultConfig returns the configuration the shipped model expects.
func DefaultConfig() Config {
	return Config{
		Threshold: raster.DefaultThreshold,
		Segment:   segment.DefaultParams(),
		Glyph:     glyph.DefaultParams(),
		Workers:   4,
	}
}

// WithWorkers returns a copy with the classification parallelism set.
func (c Config) WithWorkers(n int) Config {
	c.Workers = n
	return c
}

// Recognition is everything one pass found in a drawing.
type Recognition struct {
	Regions    []segment.Region  // discovery order
	Glyphs     []glyph.Glyph     // parallel to Regions
	Symbols    []classify.Symbol // reading order
	Expression string
}

// Pipeline runs recognition passes one at a time.
type Pipeline struct {
	cfg       Config
	source    Source
	evaluator expression.Evaluator

	mu sync.Mutex
}

// New creates a pipeline. A nil evaluator selects the default one.
func New(cfg Config, source Source, evaluator expression.Evaluator) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if evaluator == nil {
		evaluator = expression.NewExprEvaluator()
	}
	return &Pipeline{cfg: cfg, source: source, evaluator: evaluator}
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Recognize turns a drawing into an expression string.
func (p *Pipeline) Recognize(buf *raster.Buffer) (Recognition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recognize(buf)
}

// Evaluate recognizes the drawing and validates it against target. Model
// and inference failures are returned as errors; every other outcome is
// a Result.
func (p *Pipeline) Evaluate(buf *raster.Buffer, target int) (expression.Result, Recognition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.recognize(buf)
	if err != nil {
		if IsFatal(err) {
			log.Error().Err(err).Msg("Pipeline: recognizer unavailable")
			return expression.Result{}, rec, err
		}
		log.Warn().Err(err).Msg("Pipeline: recognition failed")
		return expression.Result{Message: expression.MsgInvalid}, rec, nil
	}

	res := expression.Validate(rec.Expression, target, p.evaluator)
	log.Info().
		Str("expression", rec.Expression).
		Int("target", target).
		Bool("valid", res.Valid).
		Str("message", res.Message).
		Msg("Pipeline: evaluated")
	return res, rec, nil
}

// IsFatal reports whether err leaves the recognizer unusable for this
// and later passes.
func IsFatal(err error) bool {
	return errors.Is(err, model.ErrModelLoad) ||
		errors.Is(err, model.ErrLabelMismatch) ||
		errors.Is(err, ErrInference)
}

func (p *Pipeline) recognize(buf *raster.Buffer) (Recognition, error) {
	if buf == nil {
		return Recognition{}, raster.ErrInvalidBuffer
	}
	start := time.Now()

	mask := raster.Binarize(buf, p.cfg.Threshold)
	regions, err := segment.Segment(mask, p.cfg.Segment)
	if err != nil {
		return Recognition{}, fmt.Errorf("failed to segment drawing: %w", err)
	}
	rec := Recognition{Regions: regions}
	if len(regions) == 0 {
		log.Debug().Msg("Pipeline: blank drawing")
		return rec, nil
	}

	glyphs, err := p.normalize(mask, regions)
	if err != nil {
		return rec, err
	}
	rec.Glyphs = glyphs

	recognizer, release, err := p.source.Recognizer()
	if err != nil {
		return rec, err
	}
	defer release()

	symbols, err := p.classify(recognizer, glyphs)
	if err != nil {
		return rec, err
	}

	rec.Symbols = expression.Order(symbols)
	rec.Expression = expression.Assemble(rec.Symbols)

	log.Debug().
		Int("regions", len(regions)).
		Str("expression", rec.Expression).
		Dur("elapsed", time.Since(start)).
		Msg("Pipeline: recognized")
	return rec, nil
}

func (p *Pipeline) normalize(mask raster.Mask, regions []segment.Region) ([]glyph.Glyph, error) {
	n, err := glyph.NewNormalizer(mask, p.cfg.Glyph)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare glyphs: %w", err)
	}
	defer n.Close()

	glyphs := make([]glyph.Glyph, len(regions))
	for i, r := range regions {
		g, err := n.Normalize(r)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize region %d: %w", i, err)
		}
		glyphs[i] = g
	}
	return glyphs, nil
}

// classify runs the recognizer over all glyphs with a bounded pool. Each
// result lands in its glyph's slot; ordering happens afterwards.
func (p *Pipeline) classify(rec classify.Recognizer, glyphs []glyph.Glyph) ([]classify.Symbol, error) {
	symbols := make([]classify.Symbol, len(glyphs))
	errs := make([]error, len(glyphs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(p.cfg.Workers, len(glyphs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				symbols[i], errs[i] = rec.Classify(glyphs[i])
			}
		}()
	}
	for i := range glyphs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return symbols, nil
}

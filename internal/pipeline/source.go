package pipeline

import (
	"nines/internal/classify"
	"nines/internal/model"
)

// Source hands a recognizer to one pass. The release func is called when
// the pass is done with it.
type Source interface {
	Recognizer() (classify.Recognizer, func(), error)
}

// CacheSource binds the shared model to a label table for each pass.
type CacheSource struct {
	Cache  *model.Cache
	Labels classify.Labels
}

// Recognizer acquires the cached model. Load failures are returned as is
// so callers can test for model.ErrModelLoad.
func (s CacheSource) Recognizer() (classify.Recognizer, func(), error) {
	h, err := s.Cache.Acquire()
	if err != nil {
		return nil, nil, err
	}
	c, err := classify.NewClassifier(h.Model(), s.Labels)
	if err != nil {
		h.Release()
		return nil, nil, err
	}
	return c, h.Release, nil
}

// Static always returns the same recognizer, such as the OCR engine.
type Static struct {
	Rec classify.Recognizer
}

// Recognizer returns the wrapped recognizer.
func (s Static) Recognizer() (classify.Recognizer, func(), error) {
	return s.Rec, func() {}, nil
}

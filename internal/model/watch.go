package model

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces the burst of events a copy or editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// Watcher watches a model artifact and triggers a callback when it changes.
// The parent directory is watched so that atomic replace (write temp, rename)
// is seen as well as in-place writes.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	onChange func()
}

// NewWatcher creates a watcher for the artifact at path.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model path: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		watcher:  fw,
	}, nil
}

// OnChange sets the callback. It is called from a background goroutine.
func (w *Watcher) OnChange(callback func()) {
	w.onChange = callback
}

// InvalidateOnChange wires the watcher to a cache.
func (w *Watcher) InvalidateOnChange(c *Cache) {
	w.OnChange(c.Invalidate)
}

// Path returns the watched artifact path.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.watchLoop()
}

// Stop stops the watcher and releases its file handles.
func (w *Watcher) Stop() error {
	if w.stopCh != nil {
		close(w.stopCh)
		<-w.doneCh
		w.stopCh = nil
	}
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("Model: artifact event")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			log.Info().Str("path", w.path).Msg("Model: artifact changed")
			if w.onChange != nil {
				w.onChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Model: watcher error")
		}
	}
}

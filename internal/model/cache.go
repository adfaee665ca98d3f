package model

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Cache owns the process-wide model instance. The first Acquire triggers
// the load; concurrent callers wait on that single in-flight load. A
// failed load is remembered and returned to every caller until
// Invalidate is called.
type Cache struct {
	load func() (Model, error)

	mu       sync.Mutex
	inflight chan struct{} // closed when the running load finishes
	current  *entry
	err      error
	gen      uint64 // bumped by Invalidate
	loads    int
}

type entry struct {
	model Model
	refs  int
	stale bool
}

// NewCache creates a cache around a loader. Nothing is loaded until the
// first Acquire.
func NewCache(load func() (Model, error)) *Cache {
	return &Cache{load: load}
}

// Acquire returns a handle to the shared model, loading it if needed.
// Every successful Acquire must be paired with Handle.Release.
func (c *Cache) Acquire() (*Handle, error) {
	c.mu.Lock()
	for {
		if c.current != nil {
			e := c.current
			e.refs++
			c.mu.Unlock()
			return &Handle{cache: c, entry: e}, nil
		}
		if c.err != nil {
			err := c.err
			c.mu.Unlock()
			return nil, err
		}
		if c.inflight != nil {
			wait := c.inflight
			c.mu.Unlock()
			<-wait
			c.mu.Lock()
			continue
		}

		done := make(chan struct{})
		c.inflight = done
		gen := c.gen
		c.loads++
		c.mu.Unlock()

		m, err := c.load()

		c.mu.Lock()
		c.inflight = nil
		close(done)
		switch {
		case gen != c.gen:
			// Invalidated while loading; the result may be outdated.
			if m != nil {
				closeModel(m)
			}
		case err != nil:
			c.err = fmt.Errorf("%w: %w", ErrModelLoad, err)
			log.Error().Err(err).Msg("Model: load failed")
		default:
			c.current = &entry{model: m}
			h, w := m.InputShape()
			log.Info().Int("input_h", h).Int("input_w", w).Int("classes", m.OutputSize()).Msg("Model: loaded")
		}
	}
}

// Invalidate drops the cached model and any remembered load error. The
// next Acquire reloads the artifact. Outstanding handles keep the old
// model alive until they are released.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.err = nil
	old := c.current
	c.current = nil
	var toClose Model
	if old != nil {
		old.stale = true
		if old.refs == 0 {
			toClose = old.model
		}
	}
	c.mu.Unlock()

	if toClose != nil {
		closeModel(toClose)
	}
	log.Info().Msg("Model: cache invalidated")
}

// Loads returns how many times the loader has been invoked.
func (c *Cache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// Close invalidates the cache, releasing the model once unused.
func (c *Cache) Close() {
	c.Invalidate()
}

func (c *Cache) release(e *entry) {
	c.mu.Lock()
	e.refs--
	var toClose Model
	if e.refs == 0 && e.stale {
		toClose = e.model
	}
	c.mu.Unlock()

	if toClose != nil {
		closeModel(toClose)
	}
}

func closeModel(m Model) {
	if err := m.Close(); err != nil {
		log.Warn().Err(err).Msg("Model: close failed")
	}
}

// Handle is a counted reference to the shared model.
type Handle struct {
	cache *Cache
	entry *entry
	once  sync.Once
}

// Model returns the shared model. It stays valid until Release.
func (h *Handle) Model() Model {
	return h.entry.model
}

// Release drops the reference. Calling it more than once is a no-op.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.cache.release(h.entry)
	})
}

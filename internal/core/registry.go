package core

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JonMunkholm/dynforms/internal/form"
)

// ErrFormNotFound is returned by metadata sources for unknown form ids.
var ErrFormNotFound = errors.New("form not found")

// MetadataSource supplies form metadata. Metadata is consumed read-only
// when a form is built.
type MetadataSource interface {
	LoadForm(ctx context.Context, formID string) (*form.Definition, error)
}

// registry caches form definitions by form id so that reloading a form
// does not refetch its metadata.
type registry struct {
	source MetadataSource

	mu   sync.RWMutex
	defs map[string]*form.Definition
}

func newRegistry(source MetadataSource) *registry {
	return &registry{source: source, defs: make(map[string]*form.Definition)}
}

// Get returns the definition for formID, loading it on first use.
func (r *registry) Get(ctx context.Context, formID string) (*form.Definition, error) {
	r.mu.RLock()
	def, ok := r.defs[formID]
	r.mu.RUnlock()
	if ok {
		return def, nil
	}

	def, err := r.source.LoadForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.defs[formID]; ok {
		return cached, nil
	}
	r.defs[formID] = def
	return def, nil
}

// Invalidate drops a cached definition. An empty id clears the cache.
func (r *registry) Invalidate(formID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if formID == "" {
		r.defs = make(map[string]*form.Definition)
		return
	}
	delete(r.defs, formID)
}

// Cached returns the ids of cached definitions, sorted.
func (r *registry) Cached() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

package main

import (
	"context"
	"errors"
	"sync"

	"github.com/icalstore/rcal/command"
	"github.com/icalstore/rcal/persistbadger"
)

// Registry maps a calendar key to its live *command.Engine, lazily
// loading from persistbadger on first touch. Unlike the query AST
// cache (query.Cache, ristretto-backed), an Engine holds mutable state
// that must stay a single instance per key, so this is a plain guarded
// map rather than an LRU — eviction here would mean silently dropping
// in-memory mutations a caller hasn't Saved yet.
type Registry struct {
	store   *persistbadger.Store
	opts    []command.Option
	mu      sync.Mutex
	engines map[string]*command.Engine
	loading map[string]*sync.WaitGroup
}

func NewRegistry(store *persistbadger.Store, opts ...command.Option) (*Registry, error) {
	return &Registry{
		store:   store,
		opts:    opts,
		engines: make(map[string]*command.Engine),
		loading: make(map[string]*sync.WaitGroup),
	}, nil
}

// Get returns the engine for key, loading it from persistbadger (or
// creating a fresh empty calendar) on first touch. Concurrent Gets for
// the same unresolved key coalesce onto a single load.
func (r *Registry) Get(ctx context.Context, key string) (*command.Engine, error) {
	r.mu.Lock()
	if eng, ok := r.engines[key]; ok {
		r.mu.Unlock()
		return eng, nil
	}
	if wg, inFlight := r.loading[key]; inFlight {
		r.mu.Unlock()
		wg.Wait()
		return r.Get(ctx, key)
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	r.loading[key] = wg
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.loading, key)
		r.mu.Unlock()
		wg.Done()
	}()

	eng, err := r.store.Load(ctx, key, r.opts...)
	if errors.Is(err, persistbadger.ErrNotFound) {
		eng = command.New(key, r.opts...)
	} else if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.engines[key] = eng
	r.mu.Unlock()
	return eng, nil
}

// Save persists key's current in-memory snapshot.
func (r *Registry) Save(ctx context.Context, key string) error {
	r.mu.Lock()
	eng, ok := r.engines[key]
	r.mu.Unlock()
	if !ok {
		return errRegistryNotLoaded(key)
	}
	return r.store.Save(ctx, key, eng)
}

// Delete removes key's durable snapshot and drops its live engine.
func (r *Registry) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	eng, ok := r.engines[key]
	delete(r.engines, key)
	r.mu.Unlock()
	if ok {
		eng.Close()
	}
	return r.store.Delete(ctx, key)
}

// Close shuts down every loaded engine's query cache.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, eng := range r.engines {
		eng.Close()
	}
}

type errRegistryNotLoaded string

func (e errRegistryNotLoaded) Error() string {
	return "registry: save: " + string(e) + " not loaded"
}

package pipeline

import "fmt"

// Router maps engine names to backend implementations, with a fallback
// default used when the requested engine is unknown.
type Router[T any] struct {
	backends map[string]T
	fallback string
}

// NewRouter creates an empty router whose Route falls back to the named
// engine when a lookup misses.
func NewRouter[T any](fallback string) *Router[T] {
	return &Router[T]{backends: make(map[string]T), fallback: fallback}
}

// Register adds or replaces the backend for an engine name.
func (r *Router[T]) Register(engine string, backend T) {
	r.backends[engine] = backend
}

// Route returns the backend for the given engine name, or the fallback.
func (r *Router[T]) Route(engine string) (T, error) {
	if backend, ok := r.backends[engine]; ok {
		return backend, nil
	}
	if backend, ok := r.backends[r.fallback]; ok {
		return backend, nil
	}
	var zero T
	return zero, fmt.Errorf("no backend for engine %q", engine)
}

// Fallback returns the default engine name.
func (r *Router[T]) Fallback() string {
	return r.fallback
}

// Has reports whether a backend is registered for the engine name.
func (r *Router[T]) Has(engine string) bool {
	_, ok := r.backends[engine]
	return ok
}

// Engines returns the names of all registered backends.
func (r *Router[T]) Engines() []string {
	names := make([]string, 0, len(r.backends))
	for k := range r.backends {
		names = append(names, k)
	}
	return names
}

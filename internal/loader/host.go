package loader

import "sync"

// Host is the environment a library artifact is installed into.
// Artifacts are keyed by ID so that separate loaders for the same library share one artifact.
type Host[T any] interface {
	Lookup(id string) (T, bool)
	// Insert stores the artifact unless one already exists, and returns the stored one.
	// The boolean is false when an existing artifact was kept.
	Insert(id string, artifact T) (T, bool)
}

// Registry is an in-process Host.
type Registry[T any] struct {
	mu        sync.Mutex
	artifacts map[string]T
	inserts   int
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{artifacts: make(map[string]T)}
}

func (r *Registry[T]) Lookup(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	artifact, ok := r.artifacts[id]

	return artifact, ok
}

func (r *Registry[T]) Insert(id string, artifact T) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.artifacts[id]; ok {
		return existing, false
	}
	r.artifacts[id] = artifact
	r.inserts++

	return artifact, true
}

// Inserts returns how many artifacts were actually installed.
func (r *Registry[T]) Inserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.inserts
}

package sources

import (
	"sort"
	"sync"

	"github.com/litscout/litscout/internal/domain"
)

// Registry holds the configured source adapters. It provides thread-safe
// registration and lookup; the pipeline orchestrator owns the concurrent
// fan-out across sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]Source),
	}
}

// Register adds a source to the registry, replacing any existing source of
// the same type.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not registered.
func (r *Registry) Get(sourceType domain.SourceType) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// Enabled returns the enabled sources among the requested types, in
// alphabetical order by source identifier. That order is the pipeline's
// fixed dispatch order. Requested types that are unregistered or disabled
// are skipped; if types is empty, all enabled sources are returned.
func (r *Registry) Enabled(types []domain.SourceType) []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Source
	if len(types) == 0 {
		for _, s := range r.sources {
			if s.IsEnabled() {
				out = append(out, s)
			}
		}
	} else {
		seen := make(map[domain.SourceType]bool, len(types))
		for _, st := range types {
			if seen[st] {
				continue
			}
			seen[st] = true
			if s, ok := r.sources[st]; ok && s.IsEnabled() {
				out = append(out, s)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SourceType() < out[j].SourceType()
	})
	return out
}

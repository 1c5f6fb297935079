package feed

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/booksim/internal/domain"
)

// Registry maps venue keys to their adapters and endpoint configuration. It is
// filled once at startup and is safe for concurrent use.
type Registry struct {
	adapters map[string]domain.VenueAdapter
	venues   map[string]domain.VenueConfig
	mu       sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]domain.VenueAdapter),
		venues:   make(map[string]domain.VenueConfig),
	}
}

// Register adds an adapter under cfg.Name together with the venue's endpoint
// configuration. An empty name defaults to the adapter's venue, so several
// venues may share one wire protocol. An existing registration is replaced.
func (r *Registry) Register(a domain.VenueAdapter, cfg domain.VenueConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.Name == "" {
		cfg.Name = a.Venue()
	}
	r.adapters[cfg.Name] = a
	r.venues[cfg.Name] = cfg
}

// Get retrieves the adapter and configuration for venue.
func (r *Registry) Get(venue string) (domain.VenueAdapter, domain.VenueConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[venue]
	if !ok {
		return nil, domain.VenueConfig{}, fmt.Errorf("feed: venue %q: %w", venue, domain.ErrUnknownVenue)
	}
	return a, r.venues[venue], nil
}

// List returns the names of all registered venues in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Configs returns the configuration of every registered venue, sorted by name.
func (r *Registry) Configs() []domain.VenueConfig {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.VenueConfig, 0, len(names))
	for _, n := range names {
		if cfg, ok := r.venues[n]; ok {
			out = append(out, cfg)
		}
	}
	return out
}

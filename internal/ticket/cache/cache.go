// Package cache implements a session-scoped, in-memory cache of reference
// entities keyed by canonical name, eliminating N+1 lookups inside a
// single logical transaction. Per spec §4.1 / §5 it is never safe to share
// one Cache instance across concurrent transactions.
package cache

import (
	"context"
	"sync"

	"github.com/wastetrack/ticketcore/internal/ticket"
)

// Loader resolves a reference entity by exact name when the cache misses.
// Implementations are typically thin wrappers over repository read calls.
type Loader interface {
	JobByName(ctx context.Context, name string) (*ticket.Job, error)
	MaterialByName(ctx context.Context, name string) (*ticket.Material, error)
	SourceByName(ctx context.Context, name string) (*ticket.Source, error)
	DestinationByName(ctx context.Context, name string) (*ticket.Destination, error)
	VendorByName(ctx context.Context, name string) (*ticket.Vendor, error)
	TicketTypeByName(ctx context.Context, name string) (*ticket.TicketType, error)

	AllJobs(ctx context.Context) ([]*ticket.Job, error)
	AllMaterials(ctx context.Context) ([]*ticket.Material, error)
	AllSources(ctx context.Context) ([]*ticket.Source, error)
	AllDestinations(ctx context.Context) ([]*ticket.Destination, error)
	AllVendors(ctx context.Context) ([]*ticket.Vendor, error)
	AllTicketTypes(ctx context.Context) ([]*ticket.TicketType, error)
}

// Cache amortizes reference lookups across a run. Scoped to a single
// logical transaction/session — guard with an external mutex or construct
// one Cache per worker if sharing across goroutines.
type Cache struct {
	mu     sync.Mutex
	loader Loader

	jobs         map[string]*ticket.Job
	materials    map[string]*ticket.Material
	sources      map[string]*ticket.Source
	destinations map[string]*ticket.Destination
	vendors      map[string]*ticket.Vendor
	ticketTypes  map[string]*ticket.TicketType
}

// New returns a Cache backed by loader.
func New(loader Loader) *Cache {
	return &Cache{
		loader:       loader,
		jobs:         make(map[string]*ticket.Job),
		materials:    make(map[string]*ticket.Material),
		sources:      make(map[string]*ticket.Source),
		destinations: make(map[string]*ticket.Destination),
		vendors:      make(map[string]*ticket.Vendor),
		ticketTypes:  make(map[string]*ticket.TicketType),
	}
}

// Clear invalidates all cached entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = make(map[string]*ticket.Job)
	c.materials = make(map[string]*ticket.Material)
	c.sources = make(map[string]*ticket.Source)
	c.destinations = make(map[string]*ticket.Destination)
	c.vendors = make(map[string]*ticket.Vendor)
	c.ticketTypes = make(map[string]*ticket.TicketType)
}

// PreloadAll populates every reference table in one round trip per table.
func (c *Cache) PreloadAll(ctx context.Context) error {
	jobs, err := c.loader.AllJobs(ctx)
	if err != nil {
		return err
	}
	materials, err := c.loader.AllMaterials(ctx)
	if err != nil {
		return err
	}
	sources, err := c.loader.AllSources(ctx)
	if err != nil {
		return err
	}
	destinations, err := c.loader.AllDestinations(ctx)
	if err != nil {
		return err
	}
	vendors, err := c.loader.AllVendors(ctx)
	if err != nil {
		return err
	}
	ticketTypes, err := c.loader.AllTicketTypes(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range jobs {
		c.jobs[j.Code] = j
	}
	for _, m := range materials {
		c.materials[m.Name] = m
	}
	for _, s := range sources {
		c.sources[s.Name] = s
	}
	for _, d := range destinations {
		c.destinations[d.Name] = d
	}
	for _, v := range vendors {
		c.vendors[v.Name] = v
	}
	for _, tt := range ticketTypes {
		c.ticketTypes[string(tt.Name)] = tt
	}
	return nil
}

// JobByCode returns the Job for code, loading and memoizing on first miss.
func (c *Cache) JobByCode(ctx context.Context, code string) (*ticket.Job, error) {
	c.mu.Lock()
	if j, ok := c.jobs[code]; ok {
		c.mu.Unlock()
		return j, nil
	}
	c.mu.Unlock()

	j, err := c.loader.JobByName(ctx, code)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.jobs[code] = j
	c.mu.Unlock()
	return j, nil
}

// MaterialByName returns the Material for name, loading and memoizing on
// first miss.
func (c *Cache) MaterialByName(ctx context.Context, name string) (*ticket.Material, error) {
	c.mu.Lock()
	if m, ok := c.materials[name]; ok {
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	m, err := c.loader.MaterialByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.materials[name] = m
	c.mu.Unlock()
	return m, nil
}

// SourceByName returns the Source for name, loading and memoizing on first
// miss.
func (c *Cache) SourceByName(ctx context.Context, name string) (*ticket.Source, error) {
	c.mu.Lock()
	if s, ok := c.sources[name]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	s, err := c.loader.SourceByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.sources[name] = s
	c.mu.Unlock()
	return s, nil
}

// DestinationByName returns the Destination for name, loading and
// memoizing on first miss.
func (c *Cache) DestinationByName(ctx context.Context, name string) (*ticket.Destination, error) {
	c.mu.Lock()
	if d, ok := c.destinations[name]; ok {
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	d, err := c.loader.DestinationByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.destinations[name] = d
	c.mu.Unlock()
	return d, nil
}

// VendorByName returns the Vendor for name, loading and memoizing on first
// miss.
func (c *Cache) VendorByName(ctx context.Context, name string) (*ticket.Vendor, error) {
	c.mu.Lock()
	if v, ok := c.vendors[name]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.loader.VendorByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.vendors[name] = v
	c.mu.Unlock()
	return v, nil
}

// TicketTypeByName returns the TicketType for name, loading and memoizing
// on first miss.
func (c *Cache) TicketTypeByName(ctx context.Context, name string) (*ticket.TicketType, error) {
	c.mu.Lock()
	if tt, ok := c.ticketTypes[name]; ok {
		c.mu.Unlock()
		return tt, nil
	}
	c.mu.Unlock()

	tt, err := c.loader.TicketTypeByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if tt == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.ticketTypes[name] = tt
	c.mu.Unlock()
	return tt, nil
}

// Package iface resolves and memoizes canister interfaces.
package iface

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/icrepl/internal/ir"
)

// CanisterInfo is what is known about a canister.
type CanisterInfo struct {
	// Source is the Candid text the interface was compiled from, if any.
	Source    string
	Interface *ir.Interface
	// Profiling maps function indices to names for instrumented canisters.
	Profiling map[uint16]string
}

// Fetcher looks up the interface of a canister.
type Fetcher interface {
	Fetch(ctx context.Context, id ir.Principal) (*CanisterInfo, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id ir.Principal) (*CanisterInfo, error)

func (f FetcherFunc) Fetch(ctx context.Context, id ir.Principal) (*CanisterInfo, error) {
	return f(ctx, id)
}

// Cache memoizes successful fetches per canister. Failed fetches are
// retried on the next lookup. The management canister is always known.
type Cache struct {
	mu      sync.Mutex
	fetcher Fetcher
	entries map[string]*CanisterInfo
	logger  *slog.Logger
}

// NewCache returns a cache backed by f. A nil f never finds anything.
func NewCache(f Fetcher, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		fetcher: f,
		entries: map[string]*CanisterInfo{ir.ManagementCanister.String(): Management()},
		logger:  logger,
	}
}

// Get returns the cached entry for id, fetching it on first use.
func (c *Cache) Get(ctx context.Context, id ir.Principal) (*CanisterInfo, error) {
	key := id.String()
	if info, ok := c.Lookup(id); ok {
		return info, nil
	}
	if c.fetcher == nil {
		return nil, &NotFoundError{ID: key}
	}
	info, err := c.fetcher.Fetch(ctx, id)
	if err != nil {
		c.logger.Debug("interface fetch failed", "canister", key, "error", err)
		return nil, err
	}
	c.Put(id, info)
	return info, nil
}

// Lookup returns a cached entry without fetching.
func (c *Cache) Lookup(id ir.Principal) (*CanisterInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.entries[id.String()]
	return info, ok
}

// Put stores info for id, replacing any previous entry.
func (c *Cache) Put(id ir.Principal, info *CanisterInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id.String()] = info
}

// NotFoundError reports that no source knows the interface of a canister.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "cannot fetch candid interface for " + e.ID
}

package synccache

import (
	"context"
	"sync"

	"minix/internal/drive"
)

// Cache is a registry of mounted views for one owner. Views are shared by
// scope and reference counted; the last Release tears a view down.
type Cache struct {
	owner  string
	lister Lister
	source Source
	logger drive.Logger

	mu     sync.Mutex
	views  map[string]*View
	closed bool
}

// New creates a cache for owner that fetches listings from lister and
// follows changes from source. A nil logger discards log output.
func New(owner string, lister Lister, source Source, logger drive.Logger) *Cache {
	if logger == nil {
		logger = drive.NewNopLogger()
	}
	return &Cache{owner: owner, lister: lister, source: source, logger: logger, views: make(map[string]*View)}
}

// Mount returns the view of scope, creating and loading it on first use.
// Every successful Mount must be paired with a Release. Values carried by
// ctx are used for the view's fetches; its cancellation is not.
func (c *Cache) Mount(ctx context.Context, scope Scope) (*View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrReleased
	}
	if v, ok := c.views[scope.key()]; ok {
		v.mu.Lock()
		v.refs++
		v.mu.Unlock()
		return v, nil
	}

	v := newView(ctx, scope, c.owner, c.lister, c.logger)
	if err := v.start(c.source); err != nil {
		v.release()
		return nil, err
	}
	v.refs = 1
	c.views[scope.key()] = v
	c.logger.Debug("scope mounted", "scope", scope.String())
	return v, nil
}

// Release drops one reference to v.
func (c *Cache) Release(v *View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.views[v.scope.key()] != v {
		return
	}
	v.mu.Lock()
	v.refs--
	last := v.refs <= 0
	v.mu.Unlock()
	if !last {
		return
	}
	delete(c.views, v.scope.key())
	v.release()
	c.logger.Debug("scope released", "scope", v.scope.String())
}

// Mounted returns the number of live views.
func (c *Cache) Mounted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.views)
}

// Close releases every view regardless of references.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for k, v := range c.views {
		delete(c.views, k)
		v.release()
	}
}

// Browser is a single view moving between scopes.
type Browser struct {
	cache *Cache

	mu      sync.Mutex
	current *View
}

// NewBrowser creates a Browser over cache with no scope mounted.
func NewBrowser(cache *Cache) *Browser {
	return &Browser{cache: cache}
}

// Navigate mounts scope and releases the previous one. The new scope is
// mounted first, so navigating to the current scope keeps its listing.
func (b *Browser) Navigate(ctx context.Context, scope Scope) (*View, error) {
	v, err := b.cache.Mount(ctx, scope)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	prev := b.current
	b.current = v
	b.mu.Unlock()
	if prev != nil {
		b.cache.Release(prev)
	}
	return v, nil
}

// Current returns the view navigated to last, or nil.
func (b *Browser) Current() *View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Close releases the current scope.
func (b *Browser) Close() {
	b.mu.Lock()
	prev := b.current
	b.current = nil
	b.mu.Unlock()
	if prev != nil {
		b.cache.Release(prev)
	}
}

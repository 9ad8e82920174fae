package element

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annbed/annbed/backend"
)

// ErrNotFound is returned when a named element does not exist in a
// collection.
var ErrNotFound = errors.New("element: not found")

// Collection is an ordered mapping of name to element. Axis-length
// invariants are enforced by the owning container before insertion; the
// collection itself only guards its structure.
//
// The structural lock is never held across backend I/O: deletes release it
// before touching the store.
type Collection struct {
	mu    sync.RWMutex
	names []string
	elems map[string]*Element

	// Backing, when the owning container is backed. parent is the group
	// holding this collection's children.
	store  backend.Store
	parent backend.Location
}

// NewCollection creates an empty, unbacked collection.
func NewCollection() *Collection {
	return &Collection{elems: make(map[string]*Element)}
}

// Bind attaches the collection to its backing group. Existing members are
// not flushed; Flush writes them.
func (c *Collection) Bind(store backend.Store, parent backend.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
	c.parent = parent
}

// Len returns the number of members.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.elems)
}

// Names returns member names in insertion order.
func (c *Collection) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.names...)
}

// SortedNames returns member names in lexicographic order. Bulk operations
// acquire member locks in this order; the ordering is part of the engine's
// concurrency contract, not an implementation detail.
func (c *Collection) SortedNames() []string {
	out := c.Names()
	sort.Strings(out)
	return out
}

// Get returns the named element.
func (c *Collection) Get(name string) (*Element, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.elems[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e, nil
}

// Set inserts or replaces the named element. If the collection is backed,
// the element is bound to the backing group (data reaches the store on the
// next Flush).
func (c *Collection) Set(name string, e *Element) error {
	c.mu.Lock()
	if _, ok := c.elems[name]; !ok {
		c.names = append(c.names, name)
	}
	c.elems[name] = e
	store, parent := c.store, c.parent
	c.mu.Unlock()

	if store != nil && !e.Bound() {
		return e.Bind(store, parent, name)
	}
	return nil
}

// Delete removes the named element and, when backed, deletes its backend
// child. Returns ErrNotFound if the element does not exist.
func (c *Collection) Delete(ctx context.Context, name string) error {
	c.mu.Lock()
	_, ok := c.elems[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(c.elems, name)
	for i, n := range c.names {
		if n == name {
			c.names = append(c.names[:i], c.names[i+1:]...)
			break
		}
	}
	store, parent := c.store, c.parent
	c.mu.Unlock()

	if store != nil {
		if err := store.Delete(ctx, parent, name); err != nil && !errors.Is(err, backend.ErrNotFound) {
			return err
		}
	}
	return nil
}

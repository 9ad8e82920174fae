// Package annbed provides a storage-agnostic container for large annotated
// data matrices: a primary matrix with row and column annotation tables,
// axis-bound annotation collections, pairwise annotation matrices and an
// unstructured mapping.
//
// A container lives fully in memory or is transparently backed by any
// hierarchical store implementing backend.Store; backed elements load
// lazily and flush explicitly. On top of the container the package offers:
//
//   - Subsetting by boolean mask, index list or strided range, applied
//     consistently to every collection sharing the subset axis
//   - Concatenation of containers along either axis with Union or
//     Intersection reconciliation of annotation fields
//   - Chunked, out-of-core iteration over the primary matrix
//   - Per-element read/write locking for concurrent access
//
// # Quick Start
//
// Build an in-memory container and subset it:
//
//	ad := annbed.New()
//	x, _ := element.NewDense([]int{5, 3}, values)
//	_ = ad.SetX(x)
//	obs := frame.WithIndex([]string{"a", "b", "c", "d", "e"})
//	_ = ad.SetObs(obs)
//
//	sub, err := ad.Subset(ctx,
//	    sel.Mask([]bool{true, false, true, false, true}), nil)
//
// Create a backed container and flush it:
//
//	store := backend.NewMem(backend.WithCodec(zstdCodec))
//	ad, err := annbed.Create(ctx, store)
//	...
//	err = ad.Flush(ctx)
//
// Iterate the primary matrix in row blocks:
//
//	for chunk, err := range ad.Chunks(ctx, 1000) {
//	    if err != nil {
//	        return err
//	    }
//	    process(chunk)
//	}
package annbed

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/element"
	"github.com/annbed/annbed/internal/resource"
)

// Axis identifies one of the two primary dimensions.
type Axis uint8

const (
	// AxisObs is the observation (row) axis.
	AxisObs Axis = iota
	// AxisVars is the variable (column) axis.
	AxisVars
)

// String returns the string representation of the Axis.
func (a Axis) String() string {
	if a == AxisVars {
		return "vars"
	}
	return "obs"
}

// Persisted child names of a container's root group.
const (
	childObs    = "row_table"
	childVars   = "column_table"
	childX      = "primary_matrix"
	childLayers = "layers"
	childObsM   = "row_multi"
	childVarM   = "column_multi"
	childObsP   = "row_pairwise"
	childVarP   = "column_pairwise"
	childUns    = "unstructured"

	attrContainerID = "container-id"
)

// Container is the top-level annotated-matrix object. Its structural lock
// guards the set of children per collection and the axis lengths; element
// data is guarded by per-element locks, and backend I/O never happens
// while the structural lock is held.
type Container struct {
	mu     sync.RWMutex
	id     string
	closed bool

	nObs  int // -1 until fixed by the first obs-bound element
	nVars int // -1 until fixed by the first vars-bound element

	x    *element.Element // dense or sparse, nObs x nVars; nil when absent
	obs  *element.Element // dataframe over the obs axis; nil when absent
	vars *element.Element // dataframe over the vars axis; nil when absent
	uns  *element.Element // mapping; always present

	layers *element.Collection // nObs x nVars matrices
	obsM   *element.Collection // obs-bound, free second dimension
	varM   *element.Collection // vars-bound, free second dimension
	obsP   *element.Collection // square, nObs x nObs
	varP   *element.Collection // square, nVars x nVars

	store backend.Store // nil for in-memory containers
	root  backend.Location

	logger  *Logger
	metrics MetricsCollector
	res     *resource.Controller
}

// New creates an empty in-memory container. Axis lengths are fixed by the
// first element added to each axis.
func New(optFns ...Option) *Container {
	opts := applyOptions(optFns)
	id := uuid.NewString()
	return &Container{
		id:      id,
		nObs:    -1,
		nVars:   -1,
		uns:     element.New(element.NewMapping()),
		layers:  element.NewCollection(),
		obsM:    element.NewCollection(),
		varM:    element.NewCollection(),
		obsP:    element.NewCollection(),
		varP:    element.NewCollection(),
		logger:  opts.logger.WithContainer(id),
		metrics: opts.metrics,
		res:     opts.controller(),
	}
}

// Create creates a new backed container rooted at the store's "/" group.
// The container exclusively owns the store from this point on; Close
// closes it.
func Create(ctx context.Context, store backend.Store, optFns ...Option) (*Container, error) {
	c := New(optFns...)
	root, err := initStore(ctx, store, c.id)
	if err != nil {
		return nil, err
	}
	if err := c.bind(ctx, store, root); err != nil {
		return nil, err
	}
	return c, nil
}

// Open attaches to an existing backed container without reading element
// data; every element found in the tree starts backed-unloaded.
func Open(ctx context.Context, store backend.Store, optFns ...Option) (*Container, error) {
	opts := applyOptions(optFns)
	root, err := store.Open(ctx, "/")
	if err != nil {
		return nil, translateIO(err)
	}
	id := uuid.NewString()
	if raw, err := store.ReadAttr(ctx, root, attrContainerID); err == nil {
		if s, ok := raw.(string); ok {
			id = s
		}
	}

	c := &Container{
		id:      id,
		nObs:    -1,
		nVars:   -1,
		layers:  element.NewCollection(),
		obsM:    element.NewCollection(),
		varM:    element.NewCollection(),
		obsP:    element.NewCollection(),
		varP:    element.NewCollection(),
		store:   store,
		root:    root,
		logger:  opts.logger.WithContainer(id),
		metrics: opts.metrics,
		res:     opts.controller(),
	}

	children, err := store.ListChildren(ctx, root)
	if err != nil {
		return nil, translateIO(err)
	}
	present := make(map[string]bool, len(children))
	for _, name := range children {
		present[name] = true
	}

	for _, open := range []struct {
		name string
		dst  **element.Element
	}{
		{childX, &c.x},
		{childObs, &c.obs},
		{childVars, &c.vars},
		{childUns, &c.uns},
	} {
		if !present[open.name] {
			continue
		}
		e, err := element.Open(ctx, store, root, open.name)
		if err != nil {
			return nil, translateError(err)
		}
		*open.dst = e
	}
	if c.uns == nil {
		c.uns = element.New(element.NewMapping())
	}

	for _, col := range []struct {
		name string
		dst  *element.Collection
	}{
		{childLayers, c.layers},
		{childObsM, c.obsM},
		{childVarM, c.varM},
		{childObsP, c.obsP},
		{childVarP, c.varP},
	} {
		if !present[col.name] {
			continue
		}
		group, err := store.Open(ctx, joinPath(root, col.name))
		if err != nil {
			return nil, translateIO(err)
		}
		col.dst.Bind(store, group)
		members, err := store.ListChildren(ctx, group)
		if err != nil {
			return nil, translateIO(err)
		}
		for _, member := range members {
			e, err := element.Open(ctx, store, group, member)
			if err != nil {
				return nil, translateError(err)
			}
			if err := col.dst.Set(member, e); err != nil {
				return nil, translateError(err)
			}
		}
	}

	c.recomputeAxesLocked()
	return c, nil
}

// bind attaches an in-memory container to a store without writing element
// data; Flush persists it.
func (c *Container) bind(ctx context.Context, store backend.Store, root backend.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
	c.root = root

	if c.x != nil {
		if err := c.x.Bind(store, root, childX); err != nil {
			return translateError(err)
		}
	}
	if c.obs != nil {
		if err := c.obs.Bind(store, root, childObs); err != nil {
			return translateError(err)
		}
	}
	if c.vars != nil {
		if err := c.vars.Bind(store, root, childVars); err != nil {
			return translateError(err)
		}
	}
	if err := c.uns.Bind(store, root, childUns); err != nil {
		return translateError(err)
	}

	for _, col := range []struct {
		name string
		dst  *element.Collection
	}{
		{childLayers, c.layers},
		{childObsM, c.obsM},
		{childVarM, c.varM},
		{childObsP, c.obsP},
		{childVarP, c.varP},
	} {
		group, err := store.Open(ctx, joinPath(root, col.name))
		if err != nil {
			return translateIO(err)
		}
		col.dst.Bind(store, group)
		for _, name := range col.dst.Names() {
			e, err := col.dst.Get(name)
			if err != nil {
				continue
			}
			if !e.Bound() {
				if err := e.Bind(store, group, name); err != nil {
					return translateError(err)
				}
			}
		}
	}
	return nil
}

// Backed reports whether the container is attached to a store.
func (c *Container) Backed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store != nil
}

// ID returns the container's identity, stable across open/close cycles of
// a backed container.
func (c *Container) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// NObs returns the observation-axis length, or 0 for an empty container.
func (c *Container) NObs() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.nObs < 0 {
		return 0
	}
	return c.nObs
}

// NVars returns the variable-axis length, or 0 for an empty container.
func (c *Container) NVars() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.nVars < 0 {
		return 0
	}
	return c.nVars
}

// Close releases the container and, when backed, closes the store.
// Unflushed in-memory changes are discarded; Flush is always explicit.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.store != nil {
		return translateIO(c.store.Close())
	}
	return nil
}

func (c *Container) checkOpen() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}

// recomputeAxesLocked re-derives the axis lengths from present elements.
// It is called after deletions so a container emptied of all elements may
// fix new lengths again, and by Open.
func (c *Container) recomputeAxesLocked() {
	c.nObs = -1
	c.nVars = -1
	fix := func(axis *int, n int) {
		if *axis < 0 {
			*axis = n
		}
	}
	if c.x != nil {
		shape := c.x.Shape()
		fix(&c.nObs, shape[0])
		fix(&c.nVars, shape[1])
	}
	if c.obs != nil {
		fix(&c.nObs, c.obs.Shape()[0])
	}
	if c.vars != nil {
		fix(&c.nVars, c.vars.Shape()[0])
	}
	for _, col := range []struct {
		axis *int
		dst  *element.Collection
		dim  int
	}{
		{&c.nObs, c.layers, 0},
		{&c.nVars, c.layers, 1},
		{&c.nObs, c.obsM, 0},
		{&c.nVars, c.varM, 0},
		{&c.nObs, c.obsP, 0},
		{&c.nVars, c.varP, 0},
	} {
		for _, name := range col.dst.Names() {
			e, err := col.dst.Get(name)
			if err != nil {
				continue
			}
			if shape := e.Shape(); len(shape) > col.dim {
				fix(col.axis, shape[col.dim])
			}
		}
	}
}

func joinPath(loc backend.Location, name string) string {
	if loc.Path() == "/" {
		return "/" + name
	}
	return loc.Path() + "/" + name
}

// errIsNotFound reports whether err is any of the engine's not-found
// kinds.
func errIsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, backend.ErrNotFound) ||
		errors.Is(err, element.ErrNotFound)
}

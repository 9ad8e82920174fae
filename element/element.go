// Package element implements the polymorphic lazy data unit of the engine:
// a named value of one of six kinds (dense array, sparse matrix, dataframe,
// scalar, categorical vector, nested mapping) with an explicit
// load/flush/drop lifecycle against a hierarchical backend store.
package element

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/frame"
)

var (
	// ErrSchema is returned on shape or dtype violations.
	ErrSchema = errors.New("element: schema violation")

	// ErrUnbound is returned when a backend operation is attempted on an
	// element that has no bound location.
	ErrUnbound = errors.New("element: not bound to a backend")

	// ErrUnloaded is returned by Value when the element's data is not in
	// memory; use Materialize to load it.
	ErrUnloaded = errors.New("element: data not loaded")
)

// State is the lifecycle state of an element.
type State uint8

const (
	// StateUnbound marks a memory-only element with no backend location.
	StateUnbound State = iota
	// StateLoaded marks an element whose data is in memory and which is
	// bound to a backend location (the in-memory copy may be newer than
	// the store until the next Flush).
	StateLoaded
	// StateBackedUnloaded marks an element whose authoritative data lives
	// in the backend and is not materialized.
	StateBackedUnloaded
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateLoaded:
		return "loaded"
	case StateBackedUnloaded:
		return "backed-unloaded"
	default:
		return "unknown"
	}
}

// Element is one named unit of data with a lazy three-state lifecycle.
// All methods are safe for concurrent use; the element's own RWMutex admits
// any number of readers or exactly one writer. Backend I/O happens while
// holding the element lock but never any container-level lock.
//
// An element going out of scope with unflushed changes is NOT auto-flushed;
// Flush is always explicit.
type Element struct {
	mu     sync.RWMutex
	state  State
	kind   Kind
	shape  []int
	dtype  backend.DType
	store  backend.Store
	parent backend.Location
	name   string
	value  Value
}

// New creates an unbound, memory-only element holding v.
func New(v Value) *Element {
	return &Element{
		state: StateUnbound,
		kind:  v.Kind(),
		shape: v.Shape(),
		dtype: v.DType(),
		value: v,
	}
}

// Open attaches to an existing backend child without reading its data.
// The returned element is in state backed-unloaded with its kind, shape and
// dtype resolved from node metadata.
func Open(ctx context.Context, store backend.Store, parent backend.Location, name string) (*Element, error) {
	loc, err := store.Open(ctx, childPath(parent, name))
	if err != nil {
		return nil, err
	}
	kind, shape, dtype, err := statNode(ctx, store, loc)
	if err != nil {
		return nil, err
	}
	return &Element{
		state:  StateBackedUnloaded,
		kind:   kind,
		shape:  shape,
		dtype:  dtype,
		store:  store,
		parent: parent,
		name:   name,
	}, nil
}

// Kind returns the element's variant tag.
func (e *Element) Kind() Kind {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.kind
}

// State returns the element's lifecycle state.
func (e *Element) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Shape returns the element's dimensions; nil for scalars and mappings.
// The shape is fixed at construction and never changes afterwards.
func (e *Element) Shape() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]int(nil), e.shape...)
}

// DType returns the element type of the value's storage.
func (e *Element) DType() backend.DType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dtype
}

// Bound reports whether the element has a backend location.
func (e *Element) Bound() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store != nil
}

// Bind attaches the element to a backend child. If the element holds no
// in-memory value the child must already exist and the element becomes
// backed-unloaded; if it does hold a value, the element stays in memory
// (state loaded) and the location receives data on the next Flush.
func (e *Element) Bind(store backend.Store, parent backend.Location, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store != nil {
		return fmt.Errorf("element: %q is already bound to %s", e.name, childPath(e.parent, e.name))
	}
	e.store = store
	e.parent = parent
	e.name = name
	if e.value == nil {
		e.state = StateBackedUnloaded
	} else {
		e.state = StateLoaded
	}
	return nil
}

// Value returns the in-memory value without touching the backend. It
// returns ErrUnloaded when the element is backed-unloaded.
func (e *Element) Value() (Value, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.value == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnloaded, e.name)
	}
	return e.value, nil
}

// Materialize reads the full value into memory if needed and returns it.
// Idempotent when the value is already in memory.
func (e *Element) Materialize(ctx context.Context) (Value, error) {
	e.mu.RLock()
	if e.value != nil {
		v := e.value
		e.mu.RUnlock()
		return v, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.value != nil {
		return e.value, nil
	}
	loc, err := e.store.Open(ctx, childPath(e.parent, e.name))
	if err != nil {
		return nil, err
	}
	v, err := readValue(ctx, e.store, loc)
	if err != nil {
		return nil, err
	}
	e.value = v
	e.state = StateLoaded
	return v, nil
}

// Flush writes the in-memory value to the bound location. When drop is
// true the in-memory copy is released afterwards and the element becomes
// backed-unloaded. Flushing an unbound element fails; use FlushTo to bind
// and flush in one step.
func (e *Element) Flush(ctx context.Context, drop bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked(ctx, drop)
}

// FlushTo binds the element to a backend child and flushes it there.
func (e *Element) FlushTo(ctx context.Context, store backend.Store, parent backend.Location, name string, drop bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store != nil {
		return fmt.Errorf("element: %q is already bound", e.name)
	}
	e.store = store
	e.parent = parent
	e.name = name
	e.state = StateLoaded
	return e.flushLocked(ctx, drop)
}

func (e *Element) flushLocked(ctx context.Context, drop bool) error {
	if e.store == nil {
		return fmt.Errorf("%w: flush of %q", ErrUnbound, e.name)
	}
	if e.value != nil {
		if err := writeValue(ctx, e.store, e.parent, e.name, e.value); err != nil {
			return err
		}
	}
	if drop {
		e.value = nil
		e.state = StateBackedUnloaded
	} else {
		e.state = StateLoaded
	}
	return nil
}

// Drop releases the in-memory copy of a bound element without writing.
// The backend copy becomes authoritative; dropping an unbound element
// would lose its only copy and fails.
func (e *Element) Drop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return fmt.Errorf("%w: drop of %q", ErrUnbound, e.name)
	}
	e.value = nil
	e.state = StateBackedUnloaded
	return nil
}

// ReadSlice reads the rectangular region of a dense or sparse element
// described by one range per dimension. Backed elements read through the
// store without materializing when the region is contiguous in the
// compressed dimension (sparse) or always (dense); other sparse regions
// fall back to materializing and gathering.
func (e *Element) ReadSlice(ctx context.Context, ranges []backend.Range) (Value, error) {
	e.mu.RLock()
	switch e.kind {
	case KindDense, KindSparse:
	default:
		k := e.kind
		e.mu.RUnlock()
		return nil, fmt.Errorf("%w: slice read of %s element", ErrSchema, k)
	}
	if len(ranges) != len(e.shape) {
		n, r := len(e.shape), len(ranges)
		e.mu.RUnlock()
		return nil, fmt.Errorf("%w: %d ranges for rank-%d element", ErrSchema, r, n)
	}
	for i, r := range ranges {
		if r.Start < 0 || r.Stop < r.Start || r.Stop > e.shape[i] {
			dim := e.shape[i]
			e.mu.RUnlock()
			return nil, fmt.Errorf("%w: range [%d, %d) out of bounds for dimension %d of size %d",
				ErrSchema, r.Start, r.Stop, i, dim)
		}
	}

	if e.value != nil {
		defer e.mu.RUnlock()
		return sliceValue(e.value, ranges)
	}

	if e.kind == KindDense {
		defer e.mu.RUnlock()
		loc, err := e.store.Open(ctx, childPath(e.parent, e.name))
		if err != nil {
			return nil, err
		}
		data, err := e.store.ReadSlice(ctx, loc, ranges)
		if err != nil {
			return nil, err
		}
		dims := make([]int, len(ranges))
		for i, r := range ranges {
			dims[i] = r.Len()
		}
		return NewDense(dims, data)
	}

	// Backed sparse: fast path for a contiguous major-axis block with the
	// minor axis untouched.
	layout, err := e.sparseLayoutLocked(ctx)
	if err != nil {
		e.mu.RUnlock()
		return nil, err
	}
	major, minor := ranges[0], ranges[1]
	minorLen := e.shape[1]
	if layout == LayoutCSC {
		major, minor = minor, major
		minorLen = e.shape[0]
	}
	if minor.Start == 0 && minor.Stop == minorLen {
		defer e.mu.RUnlock()
		return e.readSparseBlockLocked(ctx, layout, major)
	}
	e.mu.RUnlock()

	// Generic gather: materialize, then slice in memory.
	if _, err := e.Materialize(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sliceValue(e.value, ranges)
}

// Gather materializes the element if needed and returns a new unbound
// element holding the selected rows (and columns, for two-dimensional
// kinds). Scalars and mappings cannot be gathered.
func (e *Element) Gather(ctx context.Context, rows, cols []int) (*Element, error) {
	v, err := e.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	out, err := gatherValue(v, rows, cols)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", e.name, err)
	}
	return New(out), nil
}

func (e *Element) sparseLayoutLocked(ctx context.Context) (SparseLayout, error) {
	loc, err := e.store.Open(ctx, childPath(e.parent, e.name))
	if err != nil {
		return LayoutCSR, err
	}
	enc, err := e.store.ReadAttr(ctx, loc, attrEncoding)
	if err != nil {
		return LayoutCSR, err
	}
	if enc == encCSC {
		return LayoutCSC, nil
	}
	return LayoutCSR, nil
}

// readSparseBlockLocked reads a contiguous major-axis block of a backed
// sparse element directly from its three backing arrays.
func (e *Element) readSparseBlockLocked(ctx context.Context, layout SparseLayout, major backend.Range) (Value, error) {
	loc, err := e.store.Open(ctx, childPath(e.parent, e.name))
	if err != nil {
		return nil, err
	}
	indptrLoc, err := e.store.Open(ctx, loc.Path()+"/indptr")
	if err != nil {
		return nil, err
	}
	raw, err := e.store.ReadSlice(ctx, indptrLoc, []backend.Range{{Start: major.Start, Stop: major.Stop + 1}})
	if err != nil {
		return nil, err
	}
	window := raw.([]int64)
	base := window[0]
	indptr := make([]int64, len(window))
	for i, p := range window {
		indptr[i] = p - base
	}
	nnzStop := window[len(window)-1]

	indicesLoc, err := e.store.Open(ctx, loc.Path()+"/indices")
	if err != nil {
		return nil, err
	}
	rawIdx, err := e.store.ReadSlice(ctx, indicesLoc, []backend.Range{{Start: int(base), Stop: int(nnzStop)}})
	if err != nil {
		return nil, err
	}
	dataLoc, err := e.store.Open(ctx, loc.Path()+"/data")
	if err != nil {
		return nil, err
	}
	data, err := e.store.ReadSlice(ctx, dataLoc, []backend.Range{{Start: int(base), Stop: int(nnzStop)}})
	if err != nil {
		return nil, err
	}

	nrows, ncols := major.Len(), e.shape[1]
	if layout == LayoutCSC {
		nrows, ncols = e.shape[0], major.Len()
	}
	return NewSparse(layout, nrows, ncols, indptr, rawIdx.([]int64), data)
}

// sliceValue extracts a rectangular region from an in-memory array value.
func sliceValue(v Value, ranges []backend.Range) (Value, error) {
	switch x := v.(type) {
	case *Dense:
		rows := rangeIndices(ranges[0])
		var cols []int
		if len(ranges) > 1 {
			cols = rangeIndices(ranges[1])
		}
		if len(ranges) == 1 {
			return x.Gather(rows, nil)
		}
		return x.Gather(rows, cols)
	case *Sparse:
		major, minor := ranges[0], ranges[1]
		if x.Layout == LayoutCSC {
			major, minor = minor, major
		}
		if minor.Start == 0 && minor.Stop == x.minorLen() {
			return x.SliceMajor(major.Start, major.Stop), nil
		}
		return x.Gather(rangeIndices(ranges[0]), rangeIndices(ranges[1]))
	default:
		return nil, fmt.Errorf("%w: slice of %s value", ErrSchema, v.Kind())
	}
}

// gatherValue applies a row/column gather to an in-memory value. A nil
// index slice leaves that axis untouched.
func gatherValue(v Value, rows, cols []int) (Value, error) {
	switch x := v.(type) {
	case *Dense:
		return x.Gather(rows, cols)
	case *Sparse:
		return x.Gather(rows, cols)
	case *Table:
		if cols != nil {
			return nil, fmt.Errorf("%w: column gather of a dataframe element", ErrSchema)
		}
		if rows == nil {
			return &Table{Frame: x.Frame.Clone()}, nil
		}
		return &Table{Frame: x.Frame.Gather(rows)}, nil
	case *Categorical:
		if cols != nil {
			return nil, fmt.Errorf("%w: column gather of a categorical element", ErrSchema)
		}
		if rows == nil {
			return x.Gather(identity(len(x.Codes))), nil
		}
		return x.Gather(rows), nil
	default:
		return nil, fmt.Errorf("%w: gather of %s value", ErrSchema, v.Kind())
	}
}

func rangeIndices(r backend.Range) []int {
	out := make([]int, r.Len())
	for i := range out {
		out[i] = r.Start + i
	}
	return out
}

// ValueEqual reports whether two values hold observationally equal data.
// Sparse and dense values of equal content are not considered equal; the
// kinds must match.
func ValueEqual(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *Dense:
		return x.Equal(b.(*Dense))
	case *Sparse:
		return x.Equal(b.(*Sparse))
	case *Table:
		return x.Frame.Equal(b.(*Table).Frame)
	case *Scalar:
		return x.Value == b.(*Scalar).Value
	case *Categorical:
		y := b.(*Categorical)
		ca := frame.CategoricalCol(x.Codes, x.Cats)
		cb := frame.CategoricalCol(y.Codes, y.Cats)
		return ca.Equal(cb)
	case *Mapping:
		y := b.(*Mapping)
		if x.Len() != y.Len() {
			return false
		}
		for _, name := range x.Names() {
			ea, _ := x.Get(name)
			eb, ok := y.Get(name)
			if !ok {
				return false
			}
			va, err := ea.Value()
			if err != nil {
				return false
			}
			vb, err := eb.Value()
			if err != nil {
				return false
			}
			if !ValueEqual(va, vb) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func childPath(parent backend.Location, name string) string {
	if parent.Path() == "/" {
		return "/" + name
	}
	return parent.Path() + "/" + name
}

package backend

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a named node or path does not exist.
	//
	// Implementations should return an error that satisfies
	// `errors.Is(err, ErrNotFound)`.
	ErrNotFound = errors.New("backend: node not found")

	// ErrAttrMissing is returned by ReadAttr when the attribute is not set.
	ErrAttrMissing = errors.New("backend: attribute missing")

	// ErrExists is returned when creating a child that already exists.
	ErrExists = errors.New("backend: node already exists")
)

// NodeKind distinguishes the two node flavors of a hierarchical store.
type NodeKind uint8

const (
	// KindGroup is a node that holds named children and attributes.
	KindGroup NodeKind = iota
	// KindArray is a leaf node that holds a rectangular typed array.
	KindArray
)

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Range is a half-open [Start, Stop) interval along one array dimension.
type Range struct {
	Start int
	Stop  int
}

// Len returns the number of positions covered by the range.
func (r Range) Len() int {
	if r.Stop < r.Start {
		return 0
	}
	return r.Stop - r.Start
}

// Info describes a node without loading its data.
type Info struct {
	Kind  NodeKind
	Shape []int // nil for groups
	DType DType // DTypeNone for groups
}

// Location is an opaque handle to a node (group or array) inside a store.
// Handles are owned by the store that produced them and become invalid once
// the node is deleted or the store is closed.
type Location interface {
	// Path returns the absolute slash-separated path of the node.
	Path() string
}

// Store is the minimal capability contract a hierarchical storage format
// must provide. The engine above is written purely against this interface
// and places no format-specific assumption beyond "rectangular array slice"
// and "named child with attributes".
//
// Stores never retry failed operations; I/O failures propagate unchanged to
// the caller. Multi-step writes are not atomic: callers must sequence writes
// so that a partial failure leaves the store readable, if stale.
type Store interface {
	// Open resolves an absolute path to a node handle.
	// Returns ErrNotFound if no node exists at the path.
	Open(ctx context.Context, path string) (Location, error)

	// Stat describes a node's kind and, for arrays, its shape and dtype.
	Stat(ctx context.Context, loc Location) (Info, error)

	// CreateGroup creates a new empty group under parent.
	CreateGroup(ctx context.Context, parent Location, name string) (Location, error)

	// CreateArray creates a new array node under parent with the given
	// shape and element type. The array's contents are zero valued until
	// written.
	CreateArray(ctx context.Context, parent Location, name string, shape []int, dt DType) (Location, error)

	// ReadSlice reads the rectangular region described by one Range per
	// dimension and returns it as a typed slice (row-major for rank >= 2).
	ReadSlice(ctx context.Context, loc Location, ranges []Range) (any, error)

	// WriteSlice writes a typed slice into the rectangular region described
	// by one Range per dimension. The value's dtype and length must match
	// the region exactly.
	WriteSlice(ctx context.Context, loc Location, ranges []Range, data any) error

	// ReadAttr reads a named attribute. Returns ErrAttrMissing if unset.
	ReadAttr(ctx context.Context, loc Location, key string) (any, error)

	// WriteAttr sets a named attribute. Values are restricted to
	// string, bool, int64, float64, []int64, []float64 and []string.
	WriteAttr(ctx context.Context, loc Location, key string, value any) error

	// ListChildren returns the names of a group's children in creation
	// order.
	ListChildren(ctx context.Context, loc Location) ([]string, error)

	// Delete removes the named child of loc, recursively for groups.
	Delete(ctx context.Context, loc Location, name string) error

	// Close releases the store. Handles obtained from the store are
	// invalid afterwards.
	Close() error
}

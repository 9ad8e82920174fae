package element

import (
	"fmt"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/frame"
	"github.com/annbed/annbed/internal/buf"
)

// Kind identifies the concrete variant held by an element. The set is
// closed: every shape and dtype decision in the engine switches over it
// exhaustively.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindDense is a dense rectangular array.
	KindDense
	// KindSparse is a compressed sparse matrix.
	KindSparse
	// KindFrame is a dataframe of typed columns.
	KindFrame
	// KindScalar is a single typed value.
	KindScalar
	// KindCategorical is a coded categorical vector.
	KindCategorical
	// KindMapping is a nested name-to-element mapping.
	KindMapping
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindSparse:
		return "sparse"
	case KindFrame:
		return "dataframe"
	case KindScalar:
		return "scalar"
	case KindCategorical:
		return "categorical"
	case KindMapping:
		return "mapping"
	default:
		return "invalid"
	}
}

// Value is the in-memory payload of an element. Implementations form a
// closed set: Dense, Sparse, Table, Scalar, Categorical and Mapping.
type Value interface {
	// Kind returns the variant tag.
	Kind() Kind
	// Shape returns the value's dimensions; nil for scalars and mappings.
	Shape() []int
	// DType returns the element type of the value's storage, or DTypeNone
	// where none applies (frames, mappings).
	DType() backend.DType
}

// Dense is a dense row-major array of arbitrary rank.
type Dense struct {
	Dims []int
	Data any // typed slice of product(Dims) elements
}

// NewDense builds a dense value, validating that the payload type is
// supported and its length matches the shape.
func NewDense(dims []int, data any) (*Dense, error) {
	dt := backend.DTypeOf(data)
	if dt == backend.DTypeNone {
		return nil, fmt.Errorf("%w: unsupported dense payload %T", ErrSchema, data)
	}
	want := 1
	for _, d := range dims {
		want *= d
	}
	if got := buf.Len(data); got != want {
		return nil, fmt.Errorf("%w: dense payload of %d elements for shape %v", ErrSchema, got, dims)
	}
	return &Dense{Dims: append([]int(nil), dims...), Data: data}, nil
}

// Kind implements Value.
func (d *Dense) Kind() Kind { return KindDense }

// Shape implements Value.
func (d *Dense) Shape() []int { return append([]int(nil), d.Dims...) }

// DType implements Value.
func (d *Dense) DType() backend.DType { return backend.DTypeOf(d.Data) }

// Gather returns a new dense value holding the selected rows and, for rank
// two, columns. A nil index slice leaves that axis untouched.
func (d *Dense) Gather(rows, cols []int) (*Dense, error) {
	if len(d.Dims) == 0 {
		return nil, fmt.Errorf("%w: gather of rank-0 dense value", ErrSchema)
	}
	for _, r := range rows {
		if r < 0 || r >= d.Dims[0] {
			return nil, fmt.Errorf("%w: index %d out of range for axis of %d", ErrSchema, r, d.Dims[0])
		}
	}
	if cols != nil && len(d.Dims) == 2 {
		for _, c := range cols {
			if c < 0 || c >= d.Dims[1] {
				return nil, fmt.Errorf("%w: index %d out of range for axis of %d", ErrSchema, c, d.Dims[1])
			}
		}
	}
	inner := 1
	for _, dim := range d.Dims[1:] {
		inner *= dim
	}
	if cols == nil {
		if rows == nil {
			rows = identity(d.Dims[0])
		}
		data, err := buf.GatherRows(d.Data, inner, rows)
		if err != nil {
			return nil, err
		}
		dims := append([]int{len(rows)}, d.Dims[1:]...)
		return &Dense{Dims: dims, Data: data}, nil
	}
	if len(d.Dims) != 2 {
		return nil, fmt.Errorf("%w: column gather of rank-%d dense value", ErrSchema, len(d.Dims))
	}
	if rows == nil {
		data, err := buf.GatherCols(d.Data, d.Dims[0], d.Dims[1], cols)
		if err != nil {
			return nil, err
		}
		return &Dense{Dims: []int{d.Dims[0], len(cols)}, Data: data}, nil
	}
	data, err := buf.Gather2D(d.Data, d.Dims[1], rows, cols)
	if err != nil {
		return nil, err
	}
	return &Dense{Dims: []int{len(rows), len(cols)}, Data: data}, nil
}

// Equal reports whether two dense values hold the same shape, dtype and
// data.
func (d *Dense) Equal(o *Dense) bool {
	if len(d.Dims) != len(o.Dims) {
		return false
	}
	for i := range d.Dims {
		if d.Dims[i] != o.Dims[i] {
			return false
		}
	}
	return buf.Equal(d.Data, o.Data)
}

// Table is a dataframe payload. Its bound axis is the frame's row axis.
type Table struct {
	Frame *frame.Frame
}

// Kind implements Value.
func (t *Table) Kind() Kind { return KindFrame }

// Shape implements Value.
func (t *Table) Shape() []int { return []int{t.Frame.NRows()} }

// DType implements Value.
func (t *Table) DType() backend.DType { return backend.DTypeNone }

// Scalar is a single typed value: string, bool, int64 or float64.
type Scalar struct {
	Value any
}

// NewScalar builds a scalar value, validating the payload type.
func NewScalar(v any) (*Scalar, error) {
	switch v.(type) {
	case string, bool, int64, float64:
		return &Scalar{Value: v}, nil
	case int:
		return &Scalar{Value: int64(v.(int))}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported scalar payload %T", ErrSchema, v)
	}
}

// Kind implements Value.
func (s *Scalar) Kind() Kind { return KindScalar }

// Shape implements Value.
func (s *Scalar) Shape() []int { return nil }

// DType implements Value.
func (s *Scalar) DType() backend.DType {
	switch s.Value.(type) {
	case string:
		return backend.DTypeString
	case bool:
		return backend.DTypeBool
	case int64:
		return backend.DTypeInt64
	case float64:
		return backend.DTypeFloat64
	default:
		return backend.DTypeNone
	}
}

// Categorical is a coded categorical vector; a code of -1 marks a missing
// value.
type Categorical struct {
	Codes []int32
	Cats  []string
}

// Kind implements Value.
func (c *Categorical) Kind() Kind { return KindCategorical }

// Shape implements Value.
func (c *Categorical) Shape() []int { return []int{len(c.Codes)} }

// DType implements Value.
func (c *Categorical) DType() backend.DType { return backend.DTypeInt32 }

// Gather returns a new categorical vector holding the selected positions.
func (c *Categorical) Gather(idx []int) *Categorical {
	codes := make([]int32, len(idx))
	for i, j := range idx {
		codes[i] = c.Codes[j]
	}
	return &Categorical{Codes: codes, Cats: append([]string(nil), c.Cats...)}
}

// Mapping is an ordered nested mapping of names to elements. Access is
// guarded by the owning element's lock.
type Mapping struct {
	names []string
	elems map[string]*Element
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{elems: make(map[string]*Element)}
}

// Kind implements Value.
func (m *Mapping) Kind() Kind { return KindMapping }

// Shape implements Value.
func (m *Mapping) Shape() []int { return nil }

// DType implements Value.
func (m *Mapping) DType() backend.DType { return backend.DTypeNone }

// Names returns the child names in insertion order.
func (m *Mapping) Names() []string {
	return append([]string(nil), m.names...)
}

// Get returns the named child element.
func (m *Mapping) Get(name string) (*Element, bool) {
	e, ok := m.elems[name]
	return e, ok
}

// Set inserts or replaces a child element.
func (m *Mapping) Set(name string, e *Element) {
	if _, ok := m.elems[name]; !ok {
		m.names = append(m.names, name)
	}
	m.elems[name] = e
}

// Del removes a child element. Removing an absent child is a no-op.
func (m *Mapping) Del(name string) {
	if _, ok := m.elems[name]; !ok {
		return
	}
	delete(m.elems, name)
	for i, n := range m.names {
		if n == name {
			m.names = append(m.names[:i], m.names[i+1:]...)
			break
		}
	}
}

// Len returns the number of children.
func (m *Mapping) Len() int { return len(m.elems) }

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

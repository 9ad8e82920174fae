// Package frame implements the dataframe model used for the row and column
// annotation tables: ordered, typed columns sharing one row count, plus an
// optional string index holding per-row names.
package frame

import (
	"errors"
	"fmt"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/internal/buf"
)

var (
	// ErrLengthMismatch is returned when a column or index does not match
	// the frame's row count.
	ErrLengthMismatch = errors.New("frame: length mismatch")

	// ErrTypeMismatch is returned when columns of different types are
	// combined.
	ErrTypeMismatch = errors.New("frame: column type mismatch")

	// ErrNotFound is returned when a named column or index entry does not
	// exist.
	ErrNotFound = errors.New("frame: not found")
)

// ColumnType identifies the data type of a frame column.
type ColumnType uint8

const (
	// TypeInvalid represents an invalid column type.
	TypeInvalid ColumnType = iota
	// TypeFloat64 is a float64 column.
	TypeFloat64
	// TypeInt64 is an int64 column.
	TypeInt64
	// TypeString is a string column.
	TypeString
	// TypeBool is a bool column.
	TypeBool
	// TypeCategorical is a categorical column: int32 codes into a shared
	// category list, with -1 marking a missing value.
	TypeCategorical
)

// String returns the string representation of the ColumnType.
func (t ColumnType) String() string {
	switch t {
	case TypeFloat64:
		return "float64"
	case TypeInt64:
		return "int64"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeCategorical:
		return "categorical"
	default:
		return "invalid"
	}
}

// Column is a single typed vector of a frame.
type Column struct {
	Type ColumnType
	Data any // typed slice; nil for categorical columns

	// Categorical representation.
	Codes []int32
	Cats  []string
}

// Float64Col builds a float64 column.
func Float64Col(data []float64) Column {
	return Column{Type: TypeFloat64, Data: data}
}

// IntCol builds an int64 column.
func IntCol(data []int64) Column {
	return Column{Type: TypeInt64, Data: data}
}

// StringCol builds a string column.
func StringCol(data []string) Column {
	return Column{Type: TypeString, Data: data}
}

// BoolCol builds a bool column.
func BoolCol(data []bool) Column {
	return Column{Type: TypeBool, Data: data}
}

// CategoricalCol builds a categorical column from codes and categories.
// A code of -1 marks a missing value.
func CategoricalCol(codes []int32, cats []string) Column {
	return Column{Type: TypeCategorical, Codes: codes, Cats: cats}
}

// Len returns the column's row count.
func (c Column) Len() int {
	if c.Type == TypeCategorical {
		return len(c.Codes)
	}
	return buf.Len(c.Data)
}

// DType returns the backend element type of the column's storage vector.
// Categorical columns store their codes as int32.
func (c Column) DType() backend.DType {
	switch c.Type {
	case TypeFloat64:
		return backend.DTypeFloat64
	case TypeInt64:
		return backend.DTypeInt64
	case TypeString:
		return backend.DTypeString
	case TypeBool:
		return backend.DTypeBool
	case TypeCategorical:
		return backend.DTypeInt32
	default:
		return backend.DTypeNone
	}
}

// Gather returns a new column holding rows idx[0], idx[1], ... in order.
func (c Column) Gather(idx []int) Column {
	if c.Type == TypeCategorical {
		codes := make([]int32, len(idx))
		for i, j := range idx {
			codes[i] = c.Codes[j]
		}
		return Column{Type: TypeCategorical, Codes: codes, Cats: append([]string(nil), c.Cats...)}
	}
	return Column{Type: c.Type, Data: buf.Gather(c.Data, idx)}
}

// Equal reports whether two columns hold the same type and values.
// Categorical columns compare by decoded category value, not by code.
func (c Column) Equal(o Column) bool {
	if c.Type != o.Type || c.Len() != o.Len() {
		return false
	}
	if c.Type == TypeCategorical {
		for i := range c.Codes {
			a, aok := c.Category(i)
			b, bok := o.Category(i)
			if aok != bok || a != b {
				return false
			}
		}
		return true
	}
	return buf.Equal(c.Data, o.Data)
}

// Category returns the decoded categorical value at row i, and false when
// the row is missing (code -1). It returns false for non-categorical
// columns.
func (c Column) Category(i int) (string, bool) {
	if c.Type != TypeCategorical {
		return "", false
	}
	code := c.Codes[i]
	if code < 0 || int(code) >= len(c.Cats) {
		return "", false
	}
	return c.Cats[code], true
}

func (c Column) validate() error {
	switch c.Type {
	case TypeFloat64, TypeInt64, TypeString, TypeBool:
		want := c.DType()
		if got := backend.DTypeOf(c.Data); got != want {
			return fmt.Errorf("%w: %s column holds %s data", ErrTypeMismatch, c.Type, got)
		}
	case TypeCategorical:
		for i, code := range c.Codes {
			if int(code) >= len(c.Cats) {
				return fmt.Errorf("frame: categorical code %d at row %d exceeds %d categories",
					code, i, len(c.Cats))
			}
		}
	default:
		return fmt.Errorf("%w: invalid column type", ErrTypeMismatch)
	}
	return nil
}

// Frame is an ordered mapping of column name to typed column, all sharing
// one row count, with an optional string index of row names.
type Frame struct {
	nrows int
	names []string
	cols  map[string]Column
	index []string // nil when the frame has no explicit row names
}

// New creates an empty frame with a fixed row count.
func New(nrows int) *Frame {
	return &Frame{nrows: nrows, cols: make(map[string]Column)}
}

// WithIndex creates a frame whose row count and row names come from index.
func WithIndex(index []string) *Frame {
	f := New(len(index))
	f.index = append([]string(nil), index...)
	return f
}

// NRows returns the frame's row count.
func (f *Frame) NRows() int { return f.nrows }

// Columns returns column names in insertion order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.names...)
}

// Has reports whether the named column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Col returns the named column.
func (f *Frame) Col(name string) (Column, bool) {
	c, ok := f.cols[name]
	return c, ok
}

// SetCol inserts or replaces a column. The column's length must equal the
// frame's row count.
func (f *Frame) SetCol(name string, c Column) error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.Len() != f.nrows {
		return fmt.Errorf("%w: column %q has %d rows, frame has %d", ErrLengthMismatch, name, c.Len(), f.nrows)
	}
	if _, ok := f.cols[name]; !ok {
		f.names = append(f.names, name)
	}
	f.cols[name] = c
	return nil
}

// DelCol removes a column. Removing an absent column is a no-op.
func (f *Frame) DelCol(name string) {
	if _, ok := f.cols[name]; !ok {
		return
	}
	delete(f.cols, name)
	for i, n := range f.names {
		if n == name {
			f.names = append(f.names[:i], f.names[i+1:]...)
			break
		}
	}
}

// Index returns the row names, or nil if the frame has none.
func (f *Frame) Index() []string {
	if f.index == nil {
		return nil
	}
	return append([]string(nil), f.index...)
}

// SetIndex replaces the row names. Pass nil to drop the index.
func (f *Frame) SetIndex(index []string) error {
	if index != nil && len(index) != f.nrows {
		return fmt.Errorf("%w: index of %d names for %d rows", ErrLengthMismatch, len(index), f.nrows)
	}
	if index == nil {
		f.index = nil
		return nil
	}
	f.index = append([]string(nil), index...)
	return nil
}

// Lookup maps row names to positions using the frame's index.
func (f *Frame) Lookup(names []string) ([]int, error) {
	if f.index == nil {
		return nil, fmt.Errorf("%w: frame has no index", ErrNotFound)
	}
	pos := make(map[string]int, len(f.index))
	for i, n := range f.index {
		if _, ok := pos[n]; !ok {
			pos[n] = i
		}
	}
	out := make([]int, len(names))
	for i, n := range names {
		p, ok := pos[n]
		if !ok {
			return nil, fmt.Errorf("%w: row name %q", ErrNotFound, n)
		}
		out[i] = p
	}
	return out, nil
}

// Gather returns a new frame holding rows idx[0], idx[1], ... in order.
// Indices must already be validated against NRows.
func (f *Frame) Gather(idx []int) *Frame {
	out := New(len(idx))
	if f.index != nil {
		out.index = make([]string, len(idx))
		for i, j := range idx {
			out.index[i] = f.index[j]
		}
	}
	for _, name := range f.names {
		out.names = append(out.names, name)
		out.cols[name] = f.cols[name].Gather(idx)
	}
	return out
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	idx := make([]int, f.nrows)
	for i := range idx {
		idx[i] = i
	}
	return f.Gather(idx)
}

// Equal reports whether two frames hold the same columns, order, index and
// values.
func (f *Frame) Equal(o *Frame) bool {
	if f.nrows != o.nrows || len(f.names) != len(o.names) {
		return false
	}
	if (f.index == nil) != (o.index == nil) {
		return false
	}
	for i, n := range f.index {
		if o.index[i] != n {
			return false
		}
	}
	for i, name := range f.names {
		if o.names[i] != name {
			return false
		}
		if !f.cols[name].Equal(o.cols[name]) {
			return false
		}
	}
	return true
}

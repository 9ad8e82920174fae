package element

import (
	"context"
	"errors"
	"fmt"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/frame"
	"github.com/annbed/annbed/internal/buf"
)

// Persisted node layout. Every element maps to one backend child: dense
// values to a single array node, every other kind to a group whose
// encoding-type attribute names the variant.
const (
	attrEncoding  = "encoding-type"
	attrShape     = "shape"
	attrNRows     = "n-rows"
	attrColumns   = "column-order"
	attrValue     = "value"
	attrWithIndex = "with-index"

	encArray       = "array"
	encCSR         = "csr_matrix"
	encCSC         = "csc_matrix"
	encFrame       = "dataframe"
	encScalar      = "scalar"
	encCategorical = "categorical"
	encMapping     = "mapping"

	childData       = "data"
	childIndices    = "indices"
	childIndPtr     = "indptr"
	childCodes      = "codes"
	childCategories = "categories"
	childIndex      = "_index"
)

// writeValue persists v as the named child of parent, replacing any
// existing child. Writes are sequenced child-first so a failure mid-way
// leaves a readable, if stale or partial, subtree.
func writeValue(ctx context.Context, store backend.Store, parent backend.Location, name string, v Value) error {
	if err := store.Delete(ctx, parent, name); err != nil && !errors.Is(err, backend.ErrNotFound) {
		return err
	}

	switch x := v.(type) {
	case *Dense:
		loc, err := store.CreateArray(ctx, parent, name, x.Dims, x.DType())
		if err != nil {
			return err
		}
		full := make([]backend.Range, len(x.Dims))
		for i, d := range x.Dims {
			full[i] = backend.Range{Start: 0, Stop: d}
		}
		if err := store.WriteSlice(ctx, loc, full, x.Data); err != nil {
			return err
		}
		return store.WriteAttr(ctx, loc, attrEncoding, encArray)

	case *Sparse:
		loc, err := store.CreateGroup(ctx, parent, name)
		if err != nil {
			return err
		}
		enc := encCSR
		if x.Layout == LayoutCSC {
			enc = encCSC
		}
		if err := store.WriteAttr(ctx, loc, attrEncoding, enc); err != nil {
			return err
		}
		if err := store.WriteAttr(ctx, loc, attrShape, []int64{int64(x.NRows), int64(x.NCols)}); err != nil {
			return err
		}
		if err := writeVector(ctx, store, loc, childData, x.Data); err != nil {
			return err
		}
		if err := writeVector(ctx, store, loc, childIndices, x.Indices); err != nil {
			return err
		}
		return writeVector(ctx, store, loc, childIndPtr, x.IndPtr)

	case *Table:
		return writeFrame(ctx, store, parent, name, x.Frame)

	case *Scalar:
		loc, err := store.CreateGroup(ctx, parent, name)
		if err != nil {
			return err
		}
		if err := store.WriteAttr(ctx, loc, attrEncoding, encScalar); err != nil {
			return err
		}
		return store.WriteAttr(ctx, loc, attrValue, x.Value)

	case *Categorical:
		loc, err := store.CreateGroup(ctx, parent, name)
		if err != nil {
			return err
		}
		if err := store.WriteAttr(ctx, loc, attrEncoding, encCategorical); err != nil {
			return err
		}
		if err := writeVector(ctx, store, loc, childCodes, x.Codes); err != nil {
			return err
		}
		return writeVector(ctx, store, loc, childCategories, x.Cats)

	case *Mapping:
		loc, err := store.CreateGroup(ctx, parent, name)
		if err != nil {
			return err
		}
		if err := store.WriteAttr(ctx, loc, attrEncoding, encMapping); err != nil {
			return err
		}
		for _, child := range x.Names() {
			e, _ := x.Get(child)
			cv, err := e.Materialize(ctx)
			if err != nil {
				return err
			}
			if err := writeValue(ctx, store, loc, child, cv); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: cannot persist %s value", ErrSchema, v.Kind())
	}
}

func writeFrame(ctx context.Context, store backend.Store, parent backend.Location, name string, f *frame.Frame) error {
	loc, err := store.CreateGroup(ctx, parent, name)
	if err != nil {
		return err
	}
	if err := store.WriteAttr(ctx, loc, attrEncoding, encFrame); err != nil {
		return err
	}
	if err := store.WriteAttr(ctx, loc, attrNRows, int64(f.NRows())); err != nil {
		return err
	}
	if err := store.WriteAttr(ctx, loc, attrColumns, f.Columns()); err != nil {
		return err
	}
	if err := store.WriteAttr(ctx, loc, attrWithIndex, f.Index() != nil); err != nil {
		return err
	}
	if idx := f.Index(); idx != nil {
		if err := writeVector(ctx, store, loc, childIndex, idx); err != nil {
			return err
		}
	}
	for _, col := range f.Columns() {
		c, _ := f.Col(col)
		if c.Type == frame.TypeCategorical {
			cv := &Categorical{Codes: c.Codes, Cats: c.Cats}
			if err := writeValue(ctx, store, loc, col, cv); err != nil {
				return err
			}
			continue
		}
		if err := writeVector(ctx, store, loc, col, c.Data); err != nil {
			return err
		}
	}
	return nil
}

// writeVector persists a one-dimensional typed slice as an array child.
func writeVector(ctx context.Context, store backend.Store, parent backend.Location, name string, data any) error {
	n := buf.Len(data)
	loc, err := store.CreateArray(ctx, parent, name, []int{n}, backend.DTypeOf(data))
	if err != nil {
		return err
	}
	return store.WriteSlice(ctx, loc, []backend.Range{{Start: 0, Stop: n}}, data)
}

// statNode resolves a node's kind, shape and dtype without loading data.
func statNode(ctx context.Context, store backend.Store, loc backend.Location) (Kind, []int, backend.DType, error) {
	info, err := store.Stat(ctx, loc)
	if err != nil {
		return KindInvalid, nil, backend.DTypeNone, err
	}
	if info.Kind == backend.KindArray {
		return KindDense, info.Shape, info.DType, nil
	}
	enc, err := store.ReadAttr(ctx, loc, attrEncoding)
	if err != nil {
		return KindInvalid, nil, backend.DTypeNone, err
	}
	switch enc {
	case encCSR, encCSC:
		rawShape, err := store.ReadAttr(ctx, loc, attrShape)
		if err != nil {
			return KindInvalid, nil, backend.DTypeNone, err
		}
		dims := rawShape.([]int64)
		dataLoc, err := store.Open(ctx, loc.Path()+"/"+childData)
		if err != nil {
			return KindInvalid, nil, backend.DTypeNone, err
		}
		dataInfo, err := store.Stat(ctx, dataLoc)
		if err != nil {
			return KindInvalid, nil, backend.DTypeNone, err
		}
		return KindSparse, []int{int(dims[0]), int(dims[1])}, dataInfo.DType, nil
	case encFrame:
		raw, err := store.ReadAttr(ctx, loc, attrNRows)
		if err != nil {
			return KindInvalid, nil, backend.DTypeNone, err
		}
		return KindFrame, []int{int(raw.(int64))}, backend.DTypeNone, nil
	case encScalar:
		return KindScalar, nil, backend.DTypeNone, nil
	case encCategorical:
		codesLoc, err := store.Open(ctx, loc.Path()+"/"+childCodes)
		if err != nil {
			return KindInvalid, nil, backend.DTypeNone, err
		}
		codesInfo, err := store.Stat(ctx, codesLoc)
		if err != nil {
			return KindInvalid, nil, backend.DTypeNone, err
		}
		return KindCategorical, codesInfo.Shape, backend.DTypeInt32, nil
	case encMapping:
		return KindMapping, nil, backend.DTypeNone, nil
	default:
		return KindInvalid, nil, backend.DTypeNone,
			fmt.Errorf("%w: unknown encoding %v at %s", ErrSchema, enc, loc.Path())
	}
}

// readValue materializes the full value stored at loc.
func readValue(ctx context.Context, store backend.Store, loc backend.Location) (Value, error) {
	kind, shape, _, err := statNode(ctx, store, loc)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindDense:
		full := make([]backend.Range, len(shape))
		for i, d := range shape {
			full[i] = backend.Range{Start: 0, Stop: d}
		}
		data, err := store.ReadSlice(ctx, loc, full)
		if err != nil {
			return nil, err
		}
		return NewDense(shape, data)

	case KindSparse:
		enc, err := store.ReadAttr(ctx, loc, attrEncoding)
		if err != nil {
			return nil, err
		}
		layout := LayoutCSR
		if enc == encCSC {
			layout = LayoutCSC
		}
		data, err := readVector(ctx, store, loc, childData)
		if err != nil {
			return nil, err
		}
		indices, err := readVector(ctx, store, loc, childIndices)
		if err != nil {
			return nil, err
		}
		indptr, err := readVector(ctx, store, loc, childIndPtr)
		if err != nil {
			return nil, err
		}
		return NewSparse(layout, shape[0], shape[1], indptr.([]int64), indices.([]int64), data)

	case KindFrame:
		f, err := readFrame(ctx, store, loc, shape[0])
		if err != nil {
			return nil, err
		}
		return &Table{Frame: f}, nil

	case KindScalar:
		v, err := store.ReadAttr(ctx, loc, attrValue)
		if err != nil {
			return nil, err
		}
		return NewScalar(v)

	case KindCategorical:
		codes, err := readVector(ctx, store, loc, childCodes)
		if err != nil {
			return nil, err
		}
		cats, err := readVector(ctx, store, loc, childCategories)
		if err != nil {
			return nil, err
		}
		return &Categorical{Codes: codes.([]int32), Cats: cats.([]string)}, nil

	case KindMapping:
		m := NewMapping()
		children, err := store.ListChildren(ctx, loc)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			childLoc, err := store.Open(ctx, loc.Path()+"/"+child)
			if err != nil {
				return nil, err
			}
			cv, err := readValue(ctx, store, childLoc)
			if err != nil {
				return nil, err
			}
			m.Set(child, New(cv))
		}
		return m, nil

	default:
		return nil, fmt.Errorf("%w: cannot read %s node at %s", ErrSchema, kind, loc.Path())
	}
}

func readFrame(ctx context.Context, store backend.Store, loc backend.Location, nrows int) (*frame.Frame, error) {
	var f *frame.Frame
	withIndex, err := store.ReadAttr(ctx, loc, attrWithIndex)
	if err != nil {
		return nil, err
	}
	if withIndex == true {
		idx, err := readVector(ctx, store, loc, childIndex)
		if err != nil {
			return nil, err
		}
		f = frame.WithIndex(idx.([]string))
	} else {
		f = frame.New(nrows)
	}

	rawCols, err := store.ReadAttr(ctx, loc, attrColumns)
	if err != nil {
		return nil, err
	}
	for _, col := range rawCols.([]string) {
		colLoc, err := store.Open(ctx, loc.Path()+"/"+col)
		if err != nil {
			return nil, err
		}
		info, err := store.Stat(ctx, colLoc)
		if err != nil {
			return nil, err
		}
		var c frame.Column
		if info.Kind == backend.KindGroup {
			cv, err := readValue(ctx, store, colLoc)
			if err != nil {
				return nil, err
			}
			cat, ok := cv.(*Categorical)
			if !ok {
				return nil, fmt.Errorf("%w: frame column %q holds a %s group", ErrSchema, col, cv.Kind())
			}
			c = frame.CategoricalCol(cat.Codes, cat.Cats)
		} else {
			data, err := store.ReadSlice(ctx, colLoc, []backend.Range{{Start: 0, Stop: info.Shape[0]}})
			if err != nil {
				return nil, err
			}
			c, err = columnFromData(data)
			if err != nil {
				return nil, fmt.Errorf("frame column %q: %w", col, err)
			}
		}
		if err := f.SetCol(col, c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func columnFromData(data any) (frame.Column, error) {
	switch d := data.(type) {
	case []float64:
		return frame.Float64Col(d), nil
	case []int64:
		return frame.IntCol(d), nil
	case []string:
		return frame.StringCol(d), nil
	case []bool:
		return frame.BoolCol(d), nil
	default:
		return frame.Column{}, fmt.Errorf("%w: unsupported column payload %T", ErrSchema, data)
	}
}

func readVector(ctx context.Context, store backend.Store, parent backend.Location, name string) (any, error) {
	loc, err := store.Open(ctx, parent.Path()+"/"+name)
	if err != nil {
		return nil, err
	}
	info, err := store.Stat(ctx, loc)
	if err != nil {
		return nil, err
	}
	return store.ReadSlice(ctx, loc, []backend.Range{{Start: 0, Stop: info.Shape[0]}})
}

package frame

import (
	"fmt"

	"github.com/annbed/annbed/internal/buf"
)

// Policy selects how column sets are reconciled when frames are combined.
type Policy uint8

const (
	// Union keeps every column appearing in any input; rows from inputs
	// that lack a column are filled with the sentinel value.
	Union Policy = iota
	// Intersection keeps only columns present in every input.
	Intersection
)

// String returns the string representation of the Policy.
func (p Policy) String() string {
	switch p {
	case Union:
		return "union"
	case Intersection:
		return "intersection"
	default:
		return "unknown"
	}
}

// ConcatRows stacks frames vertically. The column set of the result follows
// the policy; under Union, rows originating from a frame that lacks a
// column are filled with sentinel. A sentinel the column's type cannot
// hold degrades to the zero value, or to the missing code for categorical
// columns. Column types must agree across inputs. The result has an index
// only if every input has one.
func ConcatRows(frames []*Frame, policy Policy, sentinel any) (*Frame, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("frame: concat of zero frames")
	}
	total := 0
	withIndex := true
	for _, f := range frames {
		total += f.nrows
		if f.index == nil {
			withIndex = false
		}
	}

	names, err := reconcileNames(frames, policy)
	if err != nil {
		return nil, err
	}

	out := New(total)
	if withIndex {
		idx := make([]string, 0, total)
		for _, f := range frames {
			idx = append(idx, f.index...)
		}
		out.index = idx
	}

	for _, name := range names {
		col, err := concatColumn(frames, name, sentinel)
		if err != nil {
			return nil, err
		}
		out.names = append(out.names, name)
		out.cols[name] = col
	}
	return out, nil
}

// Reconcile merges equal-length frames covering the same axis into one
// frame per the policy. Column values come from the first input defining
// the column; conflicting column types fail.
func Reconcile(frames []*Frame, policy Policy) (*Frame, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("frame: reconcile of zero frames")
	}
	nrows := frames[0].nrows
	for _, f := range frames[1:] {
		if f.nrows != nrows {
			return nil, fmt.Errorf("%w: reconcile of frames with %d and %d rows", ErrLengthMismatch, nrows, f.nrows)
		}
	}
	names, err := reconcileNames(frames, policy)
	if err != nil {
		return nil, err
	}
	out := New(nrows)
	out.index = frames[0].Index()
	for _, name := range names {
		for _, f := range frames {
			if c, ok := f.cols[name]; ok {
				out.names = append(out.names, name)
				out.cols[name] = c.Gather(identity(nrows))
				break
			}
		}
	}
	return out, nil
}

func reconcileNames(frames []*Frame, policy Policy) ([]string, error) {
	var names []string
	seen := make(map[string]ColumnType)
	for _, f := range frames {
		for _, name := range f.names {
			c := f.cols[name]
			if prev, ok := seen[name]; ok {
				if prev != c.Type {
					return nil, fmt.Errorf("%w: column %q is %s in one input and %s in another",
						ErrTypeMismatch, name, prev, c.Type)
				}
				continue
			}
			seen[name] = c.Type
			names = append(names, name)
		}
	}
	if policy == Intersection {
		common := names[:0]
		for _, name := range names {
			inAll := true
			for _, f := range frames {
				if !f.Has(name) {
					inAll = false
					break
				}
			}
			if inAll {
				common = append(common, name)
			}
		}
		names = common
	}
	return names, nil
}

func concatColumn(frames []*Frame, name string, sentinel any) (Column, error) {
	typ := TypeInvalid
	for _, f := range frames {
		if c, ok := f.cols[name]; ok {
			typ = c.Type
			break
		}
	}
	if typ == TypeCategorical {
		return concatCategorical(frames, name, sentinel)
	}

	total := 0
	for _, f := range frames {
		total += f.nrows
	}
	ref := Column{Type: typ}
	data, err := buf.Alloc(ref.DType(), total)
	if err != nil {
		return Column{}, err
	}
	off := 0
	for _, f := range frames {
		if c, ok := f.cols[name]; ok {
			if err := buf.Copy(data, off, c.Data, 0, f.nrows); err != nil {
				return Column{}, err
			}
		} else if sentinel != nil {
			// A sentinel the column's type cannot hold leaves the
			// gap zero-valued, mirroring the categorical fallback.
			_ = buf.Fill(data, off, off+f.nrows, sentinel)
		}
		off += f.nrows
	}
	return Column{Type: typ, Data: data}, nil
}

func concatCategorical(frames []*Frame, name string, sentinel any) (Column, error) {
	// Merged category list, in order of first appearance.
	var cats []string
	catPos := make(map[string]int32)
	intern := func(s string) int32 {
		if p, ok := catPos[s]; ok {
			return p
		}
		p := int32(len(cats))
		cats = append(cats, s)
		catPos[s] = p
		return p
	}

	fillCode := int32(-1)
	if s, ok := sentinel.(string); ok {
		fillCode = intern(s)
	}

	total := 0
	for _, f := range frames {
		total += f.nrows
	}
	codes := make([]int32, 0, total)
	for _, f := range frames {
		c, ok := f.cols[name]
		if !ok {
			for i := 0; i < f.nrows; i++ {
				codes = append(codes, fillCode)
			}
			continue
		}
		remap := make([]int32, len(c.Cats))
		for i, cat := range c.Cats {
			remap[i] = intern(cat)
		}
		for _, code := range c.Codes {
			if code < 0 {
				codes = append(codes, -1)
			} else {
				codes = append(codes, remap[code])
			}
		}
	}
	return Column{Type: TypeCategorical, Codes: codes, Cats: cats}, nil
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mem is an in-memory Store implementation. It is the reference store the
// engine ships for in-process use and for tests; it needs no filesystem and
// is safe for concurrent use.
//
// Array payloads are held serialized and, when a codec is configured,
// compressed at rest. ReadSlice and WriteSlice therefore decode the full
// payload; Mem trades slice-read locality for a small resident footprint.
type Mem struct {
	mu    sync.RWMutex
	root  *memNode
	codec Codec
}

// MemOption configures a Mem store.
type MemOption func(*Mem)

// WithCodec sets the at-rest payload codec. Defaults to NoCompression.
func WithCodec(c Codec) MemOption {
	return func(m *Mem) {
		if c != nil {
			m.codec = c
		}
	}
}

// NewMem creates an empty in-memory store with a root group at "/".
func NewMem(optFns ...MemOption) *Mem {
	m := &Mem{
		root:  newGroupNode(),
		codec: NoCompression{},
	}
	for _, fn := range optFns {
		fn(m)
	}
	return m
}

type memNode struct {
	kind     NodeKind
	children map[string]*memNode
	order    []string
	attrs    map[string]any

	// array fields
	shape []int
	dtype DType
	data  []byte // encoded, codec-compressed payload
}

func newGroupNode() *memNode {
	return &memNode{
		kind:     KindGroup,
		children: make(map[string]*memNode),
		attrs:    make(map[string]any),
	}
}

type memLoc struct {
	path string
}

func (l *memLoc) Path() string { return l.path }

// Open implements Store.
func (m *Mem) Open(_ context.Context, path string) (Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path = cleanPath(path)
	if _, err := m.resolve(path); err != nil {
		return nil, err
	}
	return &memLoc{path: path}, nil
}

// Stat implements Store.
func (m *Mem) Stat(_ context.Context, loc Location) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.resolve(loc.Path())
	if err != nil {
		return Info{}, err
	}
	info := Info{Kind: n.kind}
	if n.kind == KindArray {
		info.Shape = append([]int(nil), n.shape...)
		info.DType = n.dtype
	}
	return info, nil
}

// CreateGroup implements Store.
func (m *Mem) CreateGroup(_ context.Context, parent Location, name string) (Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.resolveGroup(parent.Path())
	if err != nil {
		return nil, err
	}
	if _, ok := p.children[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, childPath(parent.Path(), name))
	}
	p.children[name] = newGroupNode()
	p.order = append(p.order, name)
	return &memLoc{path: childPath(parent.Path(), name)}, nil
}

// CreateArray implements Store.
func (m *Mem) CreateArray(_ context.Context, parent Location, name string, shape []int, dt DType) (Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.resolveGroup(parent.Path())
	if err != nil {
		return nil, err
	}
	if _, ok := p.children[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, childPath(parent.Path(), name))
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("backend: negative dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	zero, err := allocZero(dt, n)
	if err != nil {
		return nil, err
	}
	data, err := m.seal(zero)
	if err != nil {
		return nil, err
	}
	p.children[name] = &memNode{
		kind:  KindArray,
		attrs: make(map[string]any),
		shape: append([]int(nil), shape...),
		dtype: dt,
		data:  data,
	}
	p.order = append(p.order, name)
	return &memLoc{path: childPath(parent.Path(), name)}, nil
}

// ReadSlice implements Store.
func (m *Mem) ReadSlice(_ context.Context, loc Location, ranges []Range) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.resolveArray(loc.Path())
	if err != nil {
		return nil, err
	}
	if err := checkRanges(n.shape, ranges); err != nil {
		return nil, fmt.Errorf("%s: %w", loc.Path(), err)
	}
	full, err := m.unseal(n)
	if err != nil {
		return nil, err
	}
	return extractRegion(full, n.shape, ranges)
}

// WriteSlice implements Store.
func (m *Mem) WriteSlice(_ context.Context, loc Location, ranges []Range, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.resolveArray(loc.Path())
	if err != nil {
		return err
	}
	if err := checkRanges(n.shape, ranges); err != nil {
		return fmt.Errorf("%s: %w", loc.Path(), err)
	}
	if got := DTypeOf(data); got != n.dtype {
		return fmt.Errorf("backend: write dtype %s to %s array %s", got, n.dtype, loc.Path())
	}
	want := 1
	for _, r := range ranges {
		want *= r.Len()
	}
	if got := payloadLen(data); got != want {
		return fmt.Errorf("backend: write of %d elements into region of %d at %s", got, want, loc.Path())
	}
	full, err := m.unseal(n)
	if err != nil {
		return err
	}
	if err := placeRegion(full, n.shape, ranges, data); err != nil {
		return err
	}
	sealed, err := m.seal(full)
	if err != nil {
		return err
	}
	n.data = sealed
	return nil
}

// ReadAttr implements Store.
func (m *Mem) ReadAttr(_ context.Context, loc Location, key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.resolve(loc.Path())
	if err != nil {
		return nil, err
	}
	v, ok := n.attrs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q at %s", ErrAttrMissing, key, loc.Path())
	}
	return v, nil
}

// WriteAttr implements Store.
func (m *Mem) WriteAttr(_ context.Context, loc Location, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.resolve(loc.Path())
	if err != nil {
		return err
	}
	switch v := value.(type) {
	case string, bool, int64, float64, []int64, []float64, []string:
		n.attrs[key] = v
	case int:
		n.attrs[key] = int64(v)
	case []int:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}
		n.attrs[key] = out
	default:
		return fmt.Errorf("backend: unsupported attribute type %T for %q", value, key)
	}
	return nil
}

// ListChildren implements Store.
func (m *Mem) ListChildren(_ context.Context, loc Location) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.resolveGroup(loc.Path())
	if err != nil {
		return nil, err
	}
	return append([]string(nil), n.order...), nil
}

// Delete implements Store.
func (m *Mem) Delete(_ context.Context, loc Location, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.resolveGroup(loc.Path())
	if err != nil {
		return err
	}
	if _, ok := n.children[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, childPath(loc.Path(), name))
	}
	delete(n.children, name)
	for i, c := range n.order {
		if c == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close implements Store.
func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = newGroupNode()
	return nil
}

func (m *Mem) seal(v any) ([]byte, error) {
	raw, err := encodePayload(v)
	if err != nil {
		return nil, err
	}
	return m.codec.Compress(raw)
}

func (m *Mem) unseal(n *memNode) (any, error) {
	count := 1
	for _, d := range n.shape {
		count *= d
	}
	raw, err := m.codec.Decompress(n.data)
	if err != nil {
		return nil, err
	}
	return decodePayload(n.dtype, count, raw)
}

func (m *Mem) resolve(path string) (*memNode, error) {
	path = cleanPath(path)
	n := m.root
	if path == "/" {
		return n, nil
	}
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if n.kind != KindGroup {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		child, ok := n.children[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		n = child
	}
	return n, nil
}

func (m *Mem) resolveGroup(path string) (*memNode, error) {
	n, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	if n.kind != KindGroup {
		return nil, fmt.Errorf("backend: %s is not a group", path)
	}
	return n, nil
}

func (m *Mem) resolveArray(path string) (*memNode, error) {
	n, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	if n.kind != KindArray {
		return nil, fmt.Errorf("backend: %s is not an array", path)
	}
	return n, nil
}

func cleanPath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func checkRanges(shape []int, ranges []Range) error {
	if len(ranges) != len(shape) {
		return fmt.Errorf("backend: %d ranges for rank-%d array", len(ranges), len(shape))
	}
	for i, r := range ranges {
		if r.Start < 0 || r.Stop < r.Start || r.Stop > shape[i] {
			return fmt.Errorf("backend: range [%d, %d) out of bounds for dimension %d of size %d",
				r.Start, r.Stop, i, shape[i])
		}
	}
	return nil
}

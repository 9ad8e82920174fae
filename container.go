package annbed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/annbed/annbed/element"
	"github.com/annbed/annbed/frame"
)

// axisLen pairs an axis with the length an element claims along it.
type axisLen struct {
	axis Axis
	n    int
}

// matrixValue validates a value destined for X or a layer and returns its
// (obs, vars) dimensions.
func matrixValue(collection, name string, v element.Value) ([2]int, error) {
	switch m := v.(type) {
	case *element.Dense:
		if len(m.Dims) != 2 {
			return [2]int{}, fmt.Errorf("%w: %s[%q] must be two-dimensional, got rank %d",
				ErrSchemaViolation, collection, name, len(m.Dims))
		}
		return [2]int{m.Dims[0], m.Dims[1]}, nil
	case *element.Sparse:
		return [2]int{m.NRows, m.NCols}, nil
	case nil:
		return [2]int{}, fmt.Errorf("%w: %s[%q] is nil", ErrSchemaViolation, collection, name)
	default:
		return [2]int{}, fmt.Errorf("%w: %s[%q] must be a dense or sparse matrix, got %s",
			ErrSchemaViolation, collection, name, v.Kind())
	}
}

// axisBoundLen validates a value destined for an axis-bound collection
// and returns its length along the bound (leading) dimension.
func axisBoundLen(collection, name string, v element.Value) (int, error) {
	switch m := v.(type) {
	case *element.Dense:
		if len(m.Dims) == 0 {
			return 0, fmt.Errorf("%w: %s[%q] must have at least one dimension",
				ErrSchemaViolation, collection, name)
		}
		return m.Dims[0], nil
	case *element.Sparse:
		return m.NRows, nil
	case *element.Table:
		return m.Frame.NRows(), nil
	case *element.Categorical:
		return len(m.Codes), nil
	case nil:
		return 0, fmt.Errorf("%w: %s[%q] is nil", ErrSchemaViolation, collection, name)
	default:
		return 0, fmt.Errorf("%w: %s[%q] must be an array, matrix or table, got %s",
			ErrSchemaViolation, collection, name, v.Kind())
	}
}

func (c *Container) wantLocked(a Axis) int {
	if a == AxisVars {
		return c.nVars
	}
	return c.nObs
}

func (c *Container) fixLocked(a Axis, n int) {
	if a == AxisVars {
		if c.nVars < 0 {
			c.nVars = n
		}
		return
	}
	if c.nObs < 0 {
		c.nObs = n
	}
}

// checkLenLocked compares an element's length along an axis against the
// container's fixed length. A free axis always passes; callers fix it
// after the whole insertion has been validated.
func (c *Container) checkLenLocked(collection, name string, a Axis, got int) error {
	want := c.wantLocked(a)
	if want >= 0 && got != want {
		return &AxisLengthError{Collection: collection, Element: name, Axis: a, Want: want, Got: got}
	}
	return nil
}

// materialize loads an element's value, recording the load in metrics.
func (c *Container) materialize(ctx context.Context, e *element.Element) (element.Value, error) {
	start := time.Now()
	v, err := e.Materialize(ctx)
	c.metrics.RecordMaterialize(time.Since(start), err)
	return v, translateError(err)
}

// SetX sets the primary matrix. When both axes are still free the matrix
// fixes them; otherwise its dimensions must match the fixed lengths.
// Replacing an existing matrix is allowed.
func (c *Container) SetX(v element.Value) error {
	dims, err := matrixValue("X", "", v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.checkLenLocked("X", "", AxisObs, dims[0]); err != nil {
		return err
	}
	if err := c.checkLenLocked("X", "", AxisVars, dims[1]); err != nil {
		return err
	}
	e := element.New(v)
	if c.store != nil {
		if err := e.Bind(c.store, c.root, childX); err != nil {
			return translateError(err)
		}
	}
	c.x = e
	c.fixLocked(AxisObs, dims[0])
	c.fixLocked(AxisVars, dims[1])
	return nil
}

// X returns the primary matrix, loading it from the backend if needed.
func (c *Container) X(ctx context.Context) (element.Value, error) {
	c.mu.RLock()
	e := c.x
	err := c.checkOpen()
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: primary matrix", ErrNotFound)
	}
	return c.materialize(ctx, e)
}

// DelX removes the primary matrix and, when backed, deletes its node.
// Axis lengths are re-derived from the remaining elements.
func (c *Container) DelX(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	had := c.x != nil
	c.x = nil
	c.recomputeAxesLocked()
	store, root := c.store, c.root
	c.mu.Unlock()

	if !had {
		return fmt.Errorf("%w: primary matrix", ErrNotFound)
	}
	if store != nil {
		if err := store.Delete(ctx, root, childX); err != nil && !errIsNotFound(translateIO(err)) {
			return translateIO(err)
		}
	}
	return nil
}

// SetObs sets the observation annotation table.
func (c *Container) SetObs(f *frame.Frame) error {
	return c.setTable(&c.obs, childObs, "obs", AxisObs, f)
}

// SetVars sets the variable annotation table.
func (c *Container) SetVars(f *frame.Frame) error {
	return c.setTable(&c.vars, childVars, "var", AxisVars, f)
}

func (c *Container) setTable(dst **element.Element, child, collection string, axis Axis, f *frame.Frame) error {
	if f == nil {
		return fmt.Errorf("%w: %s table is nil", ErrSchemaViolation, collection)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.checkLenLocked(collection, "", axis, f.NRows()); err != nil {
		return err
	}
	e := element.New(&element.Table{Frame: f})
	if c.store != nil {
		if err := e.Bind(c.store, c.root, child); err != nil {
			return translateError(err)
		}
	}
	*dst = e
	c.fixLocked(axis, f.NRows())
	return nil
}

// Obs returns the observation annotation table, loading it if needed.
func (c *Container) Obs(ctx context.Context) (*frame.Frame, error) {
	return c.getTable(ctx, func() *element.Element { return c.obs }, "obs")
}

// Vars returns the variable annotation table, loading it if needed.
func (c *Container) Vars(ctx context.Context) (*frame.Frame, error) {
	return c.getTable(ctx, func() *element.Element { return c.vars }, "var")
}

func (c *Container) getTable(ctx context.Context, get func() *element.Element, collection string) (*frame.Frame, error) {
	c.mu.RLock()
	e := get()
	err := c.checkOpen()
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s table", ErrNotFound, collection)
	}
	v, err := c.materialize(ctx, e)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*element.Table)
	if !ok {
		return nil, fmt.Errorf("%w: %s node holds a %s, not a dataframe",
			ErrSchemaViolation, collection, v.Kind())
	}
	return t.Frame, nil
}

// SetLayer sets a named layer. Layers share the primary matrix's shape
// and fix free axes the same way SetX does.
func (c *Container) SetLayer(name string, v element.Value) error {
	dims, err := matrixValue("layers", name, v)
	if err != nil {
		return err
	}
	return c.setInCollection(c.layers, "layers", name, v,
		[]axisLen{{AxisObs, dims[0]}, {AxisVars, dims[1]}})
}

// Layer returns the named layer, loading it if needed.
func (c *Container) Layer(ctx context.Context, name string) (element.Value, error) {
	return c.getFromCollection(ctx, c.layers, name)
}

// DelLayer removes the named layer.
func (c *Container) DelLayer(ctx context.Context, name string) error {
	return c.delFromCollection(ctx, c.layers, name)
}

// LayerNames returns the layer names in lexicographic order.
func (c *Container) LayerNames() []string { return c.layers.SortedNames() }

// SetObsM sets a named observation-bound annotation. The value's leading
// dimension is tied to the obs axis; remaining dimensions are free.
func (c *Container) SetObsM(name string, v element.Value) error {
	n, err := axisBoundLen("obsm", name, v)
	if err != nil {
		return err
	}
	return c.setInCollection(c.obsM, "obsm", name, v, []axisLen{{AxisObs, n}})
}

// ObsM returns the named observation-bound annotation.
func (c *Container) ObsM(ctx context.Context, name string) (element.Value, error) {
	return c.getFromCollection(ctx, c.obsM, name)
}

// DelObsM removes the named observation-bound annotation.
func (c *Container) DelObsM(ctx context.Context, name string) error {
	return c.delFromCollection(ctx, c.obsM, name)
}

// ObsMNames returns the obsm member names in lexicographic order.
func (c *Container) ObsMNames() []string { return c.obsM.SortedNames() }

// SetVarM sets a named variable-bound annotation.
func (c *Container) SetVarM(name string, v element.Value) error {
	n, err := axisBoundLen("varm", name, v)
	if err != nil {
		return err
	}
	return c.setInCollection(c.varM, "varm", name, v, []axisLen{{AxisVars, n}})
}

// VarM returns the named variable-bound annotation.
func (c *Container) VarM(ctx context.Context, name string) (element.Value, error) {
	return c.getFromCollection(ctx, c.varM, name)
}

// DelVarM removes the named variable-bound annotation.
func (c *Container) DelVarM(ctx context.Context, name string) error {
	return c.delFromCollection(ctx, c.varM, name)
}

// VarMNames returns the varm member names in lexicographic order.
func (c *Container) VarMNames() []string { return c.varM.SortedNames() }

// SetObsP sets a named pairwise observation matrix. The value must be a
// square matrix over the obs axis.
func (c *Container) SetObsP(name string, v element.Value) error {
	return c.setPairwise(c.obsP, "obsp", AxisObs, name, v)
}

// ObsP returns the named pairwise observation matrix.
func (c *Container) ObsP(ctx context.Context, name string) (element.Value, error) {
	return c.getFromCollection(ctx, c.obsP, name)
}

// DelObsP removes the named pairwise observation matrix.
func (c *Container) DelObsP(ctx context.Context, name string) error {
	return c.delFromCollection(ctx, c.obsP, name)
}

// ObsPNames returns the obsp member names in lexicographic order.
func (c *Container) ObsPNames() []string { return c.obsP.SortedNames() }

// SetVarP sets a named pairwise variable matrix.
func (c *Container) SetVarP(name string, v element.Value) error {
	return c.setPairwise(c.varP, "varp", AxisVars, name, v)
}

// VarP returns the named pairwise variable matrix.
func (c *Container) VarP(ctx context.Context, name string) (element.Value, error) {
	return c.getFromCollection(ctx, c.varP, name)
}

// DelVarP removes the named pairwise variable matrix.
func (c *Container) DelVarP(ctx context.Context, name string) error {
	return c.delFromCollection(ctx, c.varP, name)
}

// VarPNames returns the varp member names in lexicographic order.
func (c *Container) VarPNames() []string { return c.varP.SortedNames() }

func (c *Container) setPairwise(col *element.Collection, collection string, axis Axis, name string, v element.Value) error {
	dims, err := matrixValue(collection, name, v)
	if err != nil {
		return err
	}
	if dims[0] != dims[1] {
		return fmt.Errorf("%w: %s[%q] must be square, got %dx%d",
			ErrSchemaViolation, collection, name, dims[0], dims[1])
	}
	return c.setInCollection(col, collection, name, v, []axisLen{{axis, dims[0]}})
}

// setInCollection validates every axis constraint before touching the
// collection, so a failed insertion leaves the container unchanged.
func (c *Container) setInCollection(col *element.Collection, collection, name string, v element.Value, lens []axisLen) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	for _, al := range lens {
		if err := c.checkLenLocked(collection, name, al.axis, al.n); err != nil {
			return err
		}
	}
	if err := col.Set(name, element.New(v)); err != nil {
		return translateError(err)
	}
	for _, al := range lens {
		c.fixLocked(al.axis, al.n)
	}
	return nil
}

func (c *Container) getFromCollection(ctx context.Context, col *element.Collection, name string) (element.Value, error) {
	c.mu.RLock()
	err := c.checkOpen()
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	e, err := col.Get(name)
	if err != nil {
		return nil, translateError(err)
	}
	return c.materialize(ctx, e)
}

// delFromCollection removes a member and re-derives the axis lengths so
// a container emptied of all elements can fix new lengths again. The
// backend delete runs outside the structural lock.
func (c *Container) delFromCollection(ctx context.Context, col *element.Collection, name string) error {
	c.mu.RLock()
	err := c.checkOpen()
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, name); err != nil {
		return translateError(err)
	}
	c.mu.Lock()
	c.recomputeAxesLocked()
	c.mu.Unlock()
	return nil
}

// SetUns sets a named entry of the unstructured mapping. Unstructured
// values carry no axis constraint.
func (c *Container) SetUns(ctx context.Context, name string, v element.Value) error {
	if v == nil {
		return fmt.Errorf("%w: uns[%q] is nil", ErrSchemaViolation, name)
	}
	m, err := c.unsMapping(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	m.Set(name, element.New(v))
	return nil
}

// Uns returns the named entry of the unstructured mapping. Backed
// entries load lazily.
func (c *Container) Uns(ctx context.Context, name string) (element.Value, error) {
	m, err := c.unsMapping(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	e, ok := m.Get(name)
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: uns[%q]", ErrNotFound, name)
	}
	return c.materialize(ctx, e)
}

// DelUns removes a named entry of the unstructured mapping. For backed
// containers the backend node disappears on the next Flush, which
// rewrites the mapping as a whole.
func (c *Container) DelUns(ctx context.Context, name string) error {
	m, err := c.unsMapping(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if _, ok := m.Get(name); !ok {
		return fmt.Errorf("%w: uns[%q]", ErrNotFound, name)
	}
	m.Del(name)
	return nil
}

// UnsNames returns the unstructured entry names in insertion order.
func (c *Container) UnsNames(ctx context.Context) ([]string, error) {
	m, err := c.unsMapping(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return m.Names(), nil
}

func (c *Container) unsMapping(ctx context.Context) (*element.Mapping, error) {
	c.mu.RLock()
	e := c.uns
	err := c.checkOpen()
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	v, err := c.materialize(ctx, e)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*element.Mapping)
	if !ok {
		return nil, fmt.Errorf("%w: unstructured node holds a %s, not a mapping",
			ErrSchemaViolation, v.Kind())
	}
	return m, nil
}

// flushItem names one element for Flush's error reporting.
type flushItem struct {
	collection string
	name       string
	elem       *element.Element
}

// Flush writes every loaded element to the backing store. Elements flush
// concurrently, bounded by the resource controller; backed-unloaded
// elements are already authoritative on the store and are skipped.
// In-memory copies are kept; use per-element Drop to release them.
func (c *Container) Flush(ctx context.Context) error {
	start := time.Now()

	c.mu.RLock()
	if err := c.checkOpen(); err != nil {
		c.mu.RUnlock()
		return err
	}
	if c.store == nil {
		c.mu.RUnlock()
		return fmt.Errorf("%w: container is not backed", ErrBackendIO)
	}
	items := c.flushItemsLocked()
	c.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, it := range items {
		it := it
		g.Go(func() error {
			if err := c.res.AcquireWorker(gctx); err != nil {
				return err
			}
			defer c.res.ReleaseWorker()
			if it.elem.State() != element.StateLoaded {
				return nil
			}
			if err := it.elem.Flush(gctx, false); err != nil {
				return fmt.Errorf("flush %s[%q]: %w", it.collection, it.name, translateError(err))
			}
			return nil
		})
	}
	err := g.Wait()

	c.logger.LogFlush(ctx, len(items), err)
	c.metrics.RecordFlush(len(items), time.Since(start), err)
	return err
}

func (c *Container) flushItemsLocked() []flushItem {
	var items []flushItem
	if c.x != nil {
		items = append(items, flushItem{"X", "", c.x})
	}
	if c.obs != nil {
		items = append(items, flushItem{"obs", "", c.obs})
	}
	if c.vars != nil {
		items = append(items, flushItem{"var", "", c.vars})
	}
	items = append(items, flushItem{"uns", "", c.uns})
	for _, col := range []struct {
		label string
		dst   *element.Collection
	}{
		{"layers", c.layers},
		{"obsm", c.obsM},
		{"varm", c.varM},
		{"obsp", c.obsP},
		{"varp", c.varP},
	} {
		for _, name := range col.dst.SortedNames() {
			e, err := col.dst.Get(name)
			if err != nil {
				continue
			}
			items = append(items, flushItem{col.label, name, e})
		}
	}
	return items
}

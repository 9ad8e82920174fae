package annbed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/element"
	"github.com/annbed/annbed/sel"
)

// Subset returns a new in-memory container holding the selected
// observations and variables. A nil selection keeps that axis whole. The
// selection is applied consistently: tables and axis-bound annotations
// are gathered along their bound axis, pairwise matrices along both.
// The source container is never mutated; elements on axes the subset
// leaves whole are shared rather than copied.
func (c *Container) Subset(ctx context.Context, obsSel, varSel sel.Selection) (*Container, error) {
	start := time.Now()
	out, err := c.subset(ctx, obsSel, varSel, true)
	c.metrics.RecordSubset(time.Since(start), err)
	if err != nil {
		c.logger.LogSubset(ctx, 0, 0, err)
		return nil, err
	}
	c.logger.LogSubset(ctx, out.NObs(), out.NVars(), nil)
	return out, nil
}

// SubsetTo writes the subset to the given store and returns the backed
// result. Unlike Subset it copies every element, so the result is fully
// independent of the source and its store.
func (c *Container) SubsetTo(ctx context.Context, store backend.Store, obsSel, varSel sel.Selection) (*Container, error) {
	start := time.Now()
	out, err := c.subsetTo(ctx, store, obsSel, varSel)
	c.metrics.RecordSubset(time.Since(start), err)
	if err != nil {
		c.logger.LogSubset(ctx, 0, 0, err)
		return nil, err
	}
	c.logger.LogSubset(ctx, out.NObs(), out.NVars(), nil)
	return out, nil
}

func (c *Container) subsetTo(ctx context.Context, store backend.Store, obsSel, varSel sel.Selection) (*Container, error) {
	out, err := c.subset(ctx, obsSel, varSel, false)
	if err != nil {
		return nil, err
	}
	root, err := initStore(ctx, store, out.id)
	if err != nil {
		return nil, err
	}
	if err := out.bind(ctx, store, root); err != nil {
		return nil, err
	}
	if err := out.Flush(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// member is a snapshot of one collection entry, taken under the
// structural lock so gathering can run without it.
type member struct {
	name string
	elem *element.Element
}

func snapshotCollection(col *element.Collection) []member {
	names := col.SortedNames()
	out := make([]member, 0, len(names))
	for _, n := range names {
		if e, err := col.Get(n); err == nil {
			out = append(out, member{n, e})
		}
	}
	return out
}

// resolveSel resolves a selection against an axis length and normalizes
// identity selections to nil.
func resolveSel(s sel.Selection, n int) ([]int, error) {
	if s == nil {
		return nil, nil
	}
	if n < 0 {
		n = 0
	}
	idx, err := s.Resolve(n)
	if err != nil {
		return nil, translateError(err)
	}
	if sel.IsIdentity(idx, n) {
		return nil, nil
	}
	return idx, nil
}

// subset does the actual work. With share set, elements untouched by the
// selection are carried over by pointer; without it every element is
// materialized and copied into a fresh unbound element, which is what
// SubsetTo needs to rebind the result elsewhere.
func (c *Container) subset(ctx context.Context, obsSel, varSel sel.Selection, share bool) (*Container, error) {
	c.mu.RLock()
	if err := c.checkOpen(); err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	nObs, nVars := c.nObs, c.nVars
	x, obs, vars := c.x, c.obs, c.vars
	layers := snapshotCollection(c.layers)
	obsM := snapshotCollection(c.obsM)
	varM := snapshotCollection(c.varM)
	obsP := snapshotCollection(c.obsP)
	varP := snapshotCollection(c.varP)
	c.mu.RUnlock()

	rows, err := resolveSel(obsSel, nObs)
	if err != nil {
		return nil, err
	}
	cols, err := resolveSel(varSel, nVars)
	if err != nil {
		return nil, err
	}

	outObs, outVars := nObs, nVars
	if rows != nil {
		outObs = len(rows)
	}
	if cols != nil {
		outVars = len(cols)
	}

	out := &Container{
		id:      uuid.NewString(),
		nObs:    outObs,
		nVars:   outVars,
		layers:  element.NewCollection(),
		obsM:    element.NewCollection(),
		varM:    element.NewCollection(),
		obsP:    element.NewCollection(),
		varP:    element.NewCollection(),
		logger:  c.logger,
		metrics: c.metrics,
		res:     c.res,
	}

	g, gctx := errgroup.WithContext(ctx)
	gather := func(src *element.Element, rows, cols []int, set func(*element.Element)) {
		if src == nil {
			return
		}
		if share && rows == nil && cols == nil {
			set(src)
			return
		}
		g.Go(func() error {
			if err := c.res.AcquireWorker(gctx); err != nil {
				return err
			}
			defer c.res.ReleaseWorker()
			e, err := src.Gather(gctx, rows, cols)
			if err != nil {
				return translateError(err)
			}
			set(e)
			return nil
		})
	}

	gather(x, rows, cols, func(e *element.Element) { out.x = e })
	gather(obs, rows, nil, func(e *element.Element) { out.obs = e })
	gather(vars, cols, nil, func(e *element.Element) { out.vars = e })
	for _, m := range layers {
		m := m
		gather(m.elem, rows, cols, func(e *element.Element) { _ = out.layers.Set(m.name, e) })
	}
	for _, m := range obsM {
		m := m
		gather(m.elem, rows, nil, func(e *element.Element) { _ = out.obsM.Set(m.name, e) })
	}
	for _, m := range varM {
		m := m
		gather(m.elem, cols, nil, func(e *element.Element) { _ = out.varM.Set(m.name, e) })
	}
	for _, m := range obsP {
		m := m
		gather(m.elem, rows, rows, func(e *element.Element) { _ = out.obsP.Set(m.name, e) })
	}
	for _, m := range varP {
		m := m
		gather(m.elem, cols, cols, func(e *element.Element) { _ = out.varP.Set(m.name, e) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	uns, err := c.unsMapping(ctx)
	if err != nil {
		return nil, err
	}
	if share {
		shared := element.NewMapping()
		for _, name := range uns.Names() {
			if e, ok := uns.Get(name); ok {
				shared.Set(name, e)
			}
		}
		out.uns = element.New(shared)
	} else {
		detached, err := detachMapping(ctx, uns)
		if err != nil {
			return nil, err
		}
		out.uns = element.New(detached)
	}
	return out, nil
}

// detachMapping materializes a mapping's members into fresh unbound
// elements, recursing through nested mappings.
func detachMapping(ctx context.Context, m *element.Mapping) (*element.Mapping, error) {
	out := element.NewMapping()
	for _, name := range m.Names() {
		e, ok := m.Get(name)
		if !ok {
			continue
		}
		v, err := e.Materialize(ctx)
		if err != nil {
			return nil, translateError(err)
		}
		if nested, ok := v.(*element.Mapping); ok {
			d, err := detachMapping(ctx, nested)
			if err != nil {
				return nil, err
			}
			out.Set(name, element.New(d))
			continue
		}
		out.Set(name, element.New(v))
	}
	return out, nil
}

// initStore prepares an empty store to hold a container: writes the
// identity attribute and creates the collection groups.
func initStore(ctx context.Context, store backend.Store, id string) (backend.Location, error) {
	root, err := store.Open(ctx, "/")
	if err != nil {
		return nil, translateIO(err)
	}
	if err := store.WriteAttr(ctx, root, attrContainerID, id); err != nil {
		return nil, translateIO(err)
	}
	for _, name := range []string{childLayers, childObsM, childVarM, childObsP, childVarP} {
		if _, err := store.CreateGroup(ctx, root, name); err != nil {
			return nil, translateIO(err)
		}
	}
	return root, nil
}

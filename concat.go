package annbed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/annbed/annbed/backend"
	"github.com/annbed/annbed/element"
	"github.com/annbed/annbed/frame"
	"github.com/annbed/annbed/internal/buf"
)

// ConcatOptions controls how containers are combined.
type ConcatOptions struct {
	// Policy reconciles annotation table columns. Union keeps every
	// column and fills gaps; Intersection keeps only columns every
	// input has. Collection members stack only when present in every
	// input, regardless of policy.
	Policy frame.Policy

	// Sentinel fills annotation gaps under the Union policy. String
	// columns receive it as-is when it is a string; numeric columns
	// receive a converted value where possible.
	Sentinel any

	// StrictDrops turns annotations that concatenation would silently
	// drop, such as pairwise matrices bound to the non-join axis, into
	// an error.
	StrictDrops bool
}

// ConcatOption configures Concat.
type ConcatOption func(*ConcatOptions)

// WithMergePolicy sets the column and member reconciliation policy.
func WithMergePolicy(p frame.Policy) ConcatOption {
	return func(o *ConcatOptions) { o.Policy = p }
}

// WithFillSentinel sets the fill value for Union gaps.
func WithFillSentinel(v any) ConcatOption {
	return func(o *ConcatOptions) { o.Sentinel = v }
}

// WithStrictDrops makes Concat fail instead of dropping annotations it
// cannot carry over.
func WithStrictDrops() ConcatOption {
	return func(o *ConcatOptions) { o.StrictDrops = true }
}

// concatInput is an axis-normalized snapshot of one input container:
// join-axis structures on one side, other-axis structures on the other,
// so the concatenation logic is written once for both axes.
type concatInput struct {
	joinLen  int
	otherLen int // -1 when the input never fixed that axis

	x        *element.Element
	joinTab  *element.Element
	otherTab *element.Element

	layers []member
	joinM  []member
	joinP  []member
	dropM  []member
	dropP  []member
}

func (c *Container) concatSnapshot(axis Axis) concatInput {
	c.mu.RLock()
	defer c.mu.RUnlock()
	in := concatInput{
		x:      c.x,
		layers: snapshotCollection(c.layers),
	}
	if axis == AxisObs {
		in.joinLen, in.otherLen = c.nObs, c.nVars
		in.joinTab, in.otherTab = c.obs, c.vars
		in.joinM, in.dropM = snapshotCollection(c.obsM), snapshotCollection(c.varM)
		in.joinP, in.dropP = snapshotCollection(c.obsP), snapshotCollection(c.varP)
	} else {
		in.joinLen, in.otherLen = c.nVars, c.nObs
		in.joinTab, in.otherTab = c.vars, c.obs
		in.joinM, in.dropM = snapshotCollection(c.varM), snapshotCollection(c.obsM)
		in.joinP, in.dropP = snapshotCollection(c.varP), snapshotCollection(c.obsP)
	}
	if in.joinLen < 0 {
		in.joinLen = 0
	}
	return in
}

// Concat combines containers along the given axis into a new in-memory
// container. Join-axis tables stack row-wise under the merge policy,
// the other axis's table is reconciled across inputs, layers and
// join-axis annotations present in every input are stacked, and
// join-axis pairwise matrices combine block-diagonally. Annotations
// bound to the non-join axis, and members missing from some input,
// cannot be aligned and are dropped with a warning unless StrictDrops
// is set. The result's unstructured mapping
// is empty and the inputs are never mutated.
//
// Concatenating a single container returns a shared copy of it,
// unstructured mapping included.
func Concat(ctx context.Context, containers []*Container, axis Axis, optFns ...ConcatOption) (*Container, error) {
	if len(containers) == 0 {
		return nil, fmt.Errorf("%w: concat of zero containers", ErrSchemaViolation)
	}
	first := containers[0]
	if len(containers) == 1 {
		return first.subset(ctx, nil, nil, true)
	}

	var opts ConcatOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	out, err := concat(ctx, containers, axis, opts)
	first.metrics.RecordConcat(len(containers), time.Since(start), err)
	if err != nil {
		first.logger.LogConcat(ctx, len(containers), 0, err)
		return nil, err
	}
	joinLen := out.NObs()
	if axis == AxisVars {
		joinLen = out.NVars()
	}
	first.logger.LogConcat(ctx, len(containers), joinLen, nil)
	return out, nil
}

func concat(ctx context.Context, containers []*Container, axis Axis, opts ConcatOptions) (*Container, error) {
	first := containers[0]
	inputs := make([]concatInput, len(containers))
	joinLen := 0
	otherLen := -1
	for i, c := range containers {
		c.mu.RLock()
		err := c.checkOpen()
		c.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		inputs[i] = c.concatSnapshot(axis)
		joinLen += inputs[i].joinLen
		if n := inputs[i].otherLen; n >= 0 {
			if otherLen >= 0 && n != otherLen {
				return nil, &ShapeError{Collection: axis.other().String(),
					Detail: fmt.Sprintf("input %d has length %d, previous inputs have %d", i, n, otherLen)}
			}
			if otherLen < 0 {
				otherLen = n
			}
		}
	}

	if err := validateStacked(inputs, "X", func(in concatInput) *element.Element { return in.x }); err != nil {
		return nil, err
	}
	layerNames := sharedNames(inputs, func(in concatInput) []member { return in.layers })
	joinMNames := sharedNames(inputs, func(in concatInput) []member { return in.joinM })
	joinPNames := sharedNames(inputs, func(in concatInput) []member { return in.joinP })
	for _, name := range layerNames {
		name := name
		if err := validateStacked(inputs, "layers", func(in concatInput) *element.Element {
			return findMember(in.layers, name)
		}); err != nil {
			return nil, err
		}
	}
	if err := checkDrops(ctx, first, inputs, axis, opts); err != nil {
		return nil, err
	}

	out := &Container{
		id:      uuid.NewString(),
		nObs:    -1,
		nVars:   -1,
		uns:     element.New(element.NewMapping()),
		layers:  element.NewCollection(),
		obsM:    element.NewCollection(),
		varM:    element.NewCollection(),
		obsP:    element.NewCollection(),
		varP:    element.NewCollection(),
		logger:  first.logger,
		metrics: first.metrics,
		res:     first.res,
	}
	outJoinM, outJoinP := out.obsM, out.obsP
	if axis == AxisVars {
		outJoinM, outJoinP = out.varM, out.varP
	}

	g, gctx := errgroup.WithContext(ctx)
	run := func(fn func(context.Context) error) {
		g.Go(func() error {
			if err := first.res.AcquireWorker(gctx); err != nil {
				return err
			}
			defer first.res.ReleaseWorker()
			return fn(gctx)
		})
	}

	if inputs[0].x != nil {
		run(func(ctx context.Context) error {
			v, err := stackMatrices(ctx, inputs, axis, "X", func(in concatInput) *element.Element { return in.x })
			if err != nil {
				return err
			}
			out.mu.Lock()
			out.x = element.New(v)
			out.mu.Unlock()
			return nil
		})
	}
	for _, name := range layerNames {
		name := name
		run(func(ctx context.Context) error {
			v, err := stackMatrices(ctx, inputs, axis, "layers", func(in concatInput) *element.Element {
				return findMember(in.layers, name)
			})
			if err != nil {
				return err
			}
			return translateError(out.layers.Set(name, element.New(v)))
		})
	}
	for _, name := range joinMNames {
		name := name
		run(func(ctx context.Context) error {
			v, err := stackMulti(ctx, inputs, axis, name, opts)
			if err != nil {
				return err
			}
			return translateError(outJoinM.Set(name, element.New(v)))
		})
	}
	for _, name := range joinPNames {
		name := name
		run(func(ctx context.Context) error {
			v, err := blockDiag(ctx, inputs, axis, name)
			if err != nil {
				return err
			}
			return translateError(outJoinP.Set(name, element.New(v)))
		})
	}

	var joinFrame, otherFrame *frame.Frame
	run(func(ctx context.Context) error {
		f, err := concatJoinTables(ctx, inputs, opts)
		if err != nil {
			return err
		}
		joinFrame = f
		return nil
	})
	run(func(ctx context.Context) error {
		f, err := reconcileOtherTables(ctx, inputs, opts)
		if err != nil {
			return err
		}
		otherFrame = f
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if joinFrame != nil {
		out.setTableElement(axis, joinFrame)
	}
	if otherFrame != nil {
		out.setTableElement(axis.other(), otherFrame)
	}
	out.mu.Lock()
	if axis == AxisObs {
		out.nObs, out.nVars = joinLen, otherLen
	} else {
		out.nVars, out.nObs = joinLen, otherLen
	}
	out.mu.Unlock()
	return out, nil
}

// setTableElement installs a table without axis validation; concat has
// already aligned the lengths.
func (c *Container) setTableElement(axis Axis, f *frame.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := element.New(&element.Table{Frame: f})
	if axis == AxisObs {
		c.obs = e
	} else {
		c.vars = e
	}
}

func (a Axis) other() Axis {
	if a == AxisObs {
		return AxisVars
	}
	return AxisObs
}

func (a Axis) multi() string {
	if a == AxisVars {
		return "varm"
	}
	return "obsm"
}

func (a Axis) pairwise() string {
	if a == AxisVars {
		return "varp"
	}
	return "obsp"
}

func findMember(members []member, name string) *element.Element {
	for _, m := range members {
		if m.name == name {
			return m.elem
		}
	}
	return nil
}

// validateStacked checks kind, dtype and presence agreement of one
// stacked element across inputs, using element metadata only, before any
// data is read.
func validateStacked(inputs []concatInput, collection string, get func(concatInput) *element.Element) error {
	var ref *element.Element
	refIdx := -1
	for i, in := range inputs {
		e := get(in)
		if e == nil {
			continue
		}
		if ref == nil {
			ref, refIdx = e, i
			continue
		}
		if e.Kind() != ref.Kind() {
			return &ShapeError{Collection: collection,
				Detail: fmt.Sprintf("input %d is %s, input %d is %s", refIdx, ref.Kind(), i, e.Kind())}
		}
		if e.DType() != ref.DType() {
			return &ShapeError{Collection: collection,
				Detail: fmt.Sprintf("input %d has dtype %s, input %d has %s", refIdx, ref.DType(), i, e.DType())}
		}
	}
	if ref == nil {
		return nil
	}
	for i, in := range inputs {
		if get(in) == nil {
			return &ShapeError{Collection: collection,
				Detail: fmt.Sprintf("present in input %d but missing from input %d", refIdx, i)}
		}
	}
	return nil
}

// sharedNames returns the member names present in every input; only those
// can be stacked, since matrices cannot be sentinel-filled. Partially
// present members are reported by checkDrops.
func sharedNames(inputs []concatInput, get func(concatInput) []member) []string {
	counts := make(map[string]int)
	for _, in := range inputs {
		for _, m := range get(in) {
			counts[m.name]++
		}
	}
	var names []string
	for name, n := range counts {
		if n == len(inputs) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// checkDrops reports or rejects everything concatenation cannot carry:
// non-join-axis annotations and members missing from some input.
func checkDrops(ctx context.Context, first *Container, inputs []concatInput, axis Axis, opts ConcatOptions) error {
	drop := func(collection, name, reason string) error {
		if opts.StrictDrops {
			return fmt.Errorf("%w: %s[%q] %s", ErrSchemaViolation, collection, name, reason)
		}
		first.logger.LogDropped(ctx, collection, name, reason)
		return nil
	}
	seenM := make(map[string]bool)
	seenP := make(map[string]bool)
	for _, in := range inputs {
		for _, m := range in.dropM {
			if !seenM[m.name] {
				seenM[m.name] = true
				if err := drop(axis.other().multi(), m.name, "is bound to the non-join axis"); err != nil {
					return err
				}
			}
		}
		for _, m := range in.dropP {
			if !seenP[m.name] {
				seenP[m.name] = true
				if err := drop(axis.other().pairwise(), m.name, "is bound to the non-join axis"); err != nil {
					return err
				}
			}
		}
	}
	partial := func(collection string, get func(concatInput) []member) error {
		counts := make(map[string]int)
		for _, in := range inputs {
			for _, m := range get(in) {
				counts[m.name]++
			}
		}
		for name, n := range counts {
			if n < len(inputs) {
				if err := drop(collection, name, "is missing from some inputs"); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := partial("layers", func(in concatInput) []member { return in.layers }); err != nil {
		return err
	}
	if err := partial(axis.multi(), func(in concatInput) []member { return in.joinM }); err != nil {
		return err
	}
	if err := partial(axis.pairwise(), func(in concatInput) []member { return in.joinP }); err != nil {
		return err
	}
	return nil
}

// stackMatrices materializes one matrix per input and stacks them along
// the join axis.
func stackMatrices(ctx context.Context, inputs []concatInput, axis Axis, collection string, get func(concatInput) *element.Element) (element.Value, error) {
	vals := make([]element.Value, len(inputs))
	for i, in := range inputs {
		e := get(in)
		if e == nil {
			return nil, &ShapeError{Collection: collection, Detail: fmt.Sprintf("missing from input %d", i)}
		}
		v, err := e.Materialize(ctx)
		if err != nil {
			return nil, translateError(err)
		}
		vals[i] = v
	}
	return stackMatrixValues(vals, axis, collection)
}

func stackMatrixValues(vals []element.Value, axis Axis, collection string) (element.Value, error) {
	switch vals[0].(type) {
	case *element.Dense:
		blocks := make([]*element.Dense, len(vals))
		for i, v := range vals {
			d, ok := v.(*element.Dense)
			if !ok {
				return nil, &ShapeError{Collection: collection, Detail: "inputs mix dense and sparse values"}
			}
			blocks[i] = d
		}
		if axis == AxisObs {
			return vstackDense(blocks)
		}
		return hstackDense(blocks)
	case *element.Sparse:
		blocks := make([]*element.Sparse, len(vals))
		for i, v := range vals {
			s, ok := v.(*element.Sparse)
			if !ok {
				return nil, &ShapeError{Collection: collection, Detail: "inputs mix dense and sparse values"}
			}
			blocks[i] = s
		}
		var out *element.Sparse
		var err error
		if axis == AxisObs {
			out, err = element.StackSparse(blocks)
		} else {
			out, err = element.HStackSparse(blocks)
		}
		if err != nil {
			return nil, &ShapeError{Collection: collection, Detail: err.Error()}
		}
		return out, nil
	default:
		return nil, &ShapeError{Collection: collection,
			Detail: fmt.Sprintf("cannot stack %s values", vals[0].Kind())}
	}
}

// stackMulti stacks one join-axis annotation along its leading, bound
// dimension. Dense values need matching trailing dimensions; tables go
// through the frame merge policy.
func stackMulti(ctx context.Context, inputs []concatInput, axis Axis, name string, opts ConcatOptions) (element.Value, error) {
	collection := axis.multi()
	vals := make([]element.Value, len(inputs))
	for i, in := range inputs {
		e := findMember(in.joinM, name)
		if e == nil {
			return nil, &ShapeError{Collection: collection, Element: name,
				Detail: fmt.Sprintf("missing from input %d", i)}
		}
		v, err := e.Materialize(ctx)
		if err != nil {
			return nil, translateError(err)
		}
		vals[i] = v
	}
	switch vals[0].(type) {
	case *element.Dense:
		blocks := make([]*element.Dense, len(vals))
		inner := -1
		for i, v := range vals {
			d, ok := v.(*element.Dense)
			if !ok {
				return nil, &ShapeError{Collection: collection, Element: name, Detail: "inputs mix value kinds"}
			}
			width := 1
			for _, dim := range d.Dims[1:] {
				width *= dim
			}
			if inner >= 0 && width != inner {
				return nil, &ShapeError{Collection: collection, Element: name,
					Detail: "inputs disagree on trailing dimensions"}
			}
			inner = width
			blocks[i] = d
		}
		return vstackDense(blocks)
	case *element.Sparse:
		blocks := make([]*element.Sparse, len(vals))
		for i, v := range vals {
			s, ok := v.(*element.Sparse)
			if !ok {
				return nil, &ShapeError{Collection: collection, Element: name, Detail: "inputs mix value kinds"}
			}
			blocks[i] = s
		}
		out, err := element.StackSparse(blocks)
		if err != nil {
			return nil, &ShapeError{Collection: collection, Element: name, Detail: err.Error()}
		}
		return out, nil
	case *element.Table:
		frames := make([]*frame.Frame, len(vals))
		for i, v := range vals {
			t, ok := v.(*element.Table)
			if !ok {
				return nil, &ShapeError{Collection: collection, Element: name, Detail: "inputs mix value kinds"}
			}
			frames[i] = t.Frame
		}
		f, err := frame.ConcatRows(frames, opts.Policy, opts.Sentinel)
		if err != nil {
			return nil, translateError(err)
		}
		return &element.Table{Frame: f}, nil
	default:
		return nil, &ShapeError{Collection: collection, Element: name,
			Detail: fmt.Sprintf("cannot stack %s values", vals[0].Kind())}
	}
}

// blockDiag combines one join-axis pairwise matrix block-diagonally:
// relations never span inputs, so everything off the blocks is zero.
func blockDiag(ctx context.Context, inputs []concatInput, axis Axis, name string) (element.Value, error) {
	collection := axis.pairwise()
	vals := make([]element.Value, len(inputs))
	for i, in := range inputs {
		e := findMember(in.joinP, name)
		if e == nil {
			return nil, &ShapeError{Collection: collection, Element: name,
				Detail: fmt.Sprintf("missing from input %d", i)}
		}
		v, err := e.Materialize(ctx)
		if err != nil {
			return nil, translateError(err)
		}
		vals[i] = v
	}
	switch vals[0].(type) {
	case *element.Sparse:
		blocks := make([]*element.Sparse, len(vals))
		for i, v := range vals {
			s, ok := v.(*element.Sparse)
			if !ok {
				return nil, &ShapeError{Collection: collection, Element: name, Detail: "inputs mix value kinds"}
			}
			blocks[i] = s
		}
		out, err := element.BlockDiagSparse(blocks)
		if err != nil {
			return nil, &ShapeError{Collection: collection, Element: name, Detail: err.Error()}
		}
		return out, nil
	case *element.Dense:
		blocks := make([]*element.Dense, len(vals))
		for i, v := range vals {
			d, ok := v.(*element.Dense)
			if !ok {
				return nil, &ShapeError{Collection: collection, Element: name, Detail: "inputs mix value kinds"}
			}
			blocks[i] = d
		}
		return blockDiagDense(blocks)
	default:
		return nil, &ShapeError{Collection: collection, Element: name,
			Detail: fmt.Sprintf("cannot combine %s values", vals[0].Kind())}
	}
}

// concatJoinTables stacks the join-axis tables. Inputs without a table
// contribute empty rows so the merge policy's fill applies to them.
func concatJoinTables(ctx context.Context, inputs []concatInput, opts ConcatOptions) (*frame.Frame, error) {
	have := false
	frames := make([]*frame.Frame, len(inputs))
	for i, in := range inputs {
		if in.joinTab == nil {
			frames[i] = frame.New(in.joinLen)
			continue
		}
		v, err := in.joinTab.Materialize(ctx)
		if err != nil {
			return nil, translateError(err)
		}
		t, ok := v.(*element.Table)
		if !ok {
			return nil, fmt.Errorf("%w: join-axis table holds a %s", ErrSchemaViolation, v.Kind())
		}
		frames[i] = t.Frame
		have = true
	}
	if !have {
		return nil, nil
	}
	f, err := frame.ConcatRows(frames, opts.Policy, opts.Sentinel)
	if err != nil {
		return nil, translateError(err)
	}
	return f, nil
}

// reconcileOtherTables merges the non-join-axis tables, which describe
// the same entities in every input.
func reconcileOtherTables(ctx context.Context, inputs []concatInput, opts ConcatOptions) (*frame.Frame, error) {
	var frames []*frame.Frame
	for _, in := range inputs {
		if in.otherTab == nil {
			continue
		}
		v, err := in.otherTab.Materialize(ctx)
		if err != nil {
			return nil, translateError(err)
		}
		t, ok := v.(*element.Table)
		if !ok {
			return nil, fmt.Errorf("%w: non-join-axis table holds a %s", ErrSchemaViolation, v.Kind())
		}
		frames = append(frames, t.Frame)
	}
	if len(frames) == 0 {
		return nil, nil
	}
	f, err := frame.Reconcile(frames, opts.Policy)
	if err != nil {
		return nil, translateError(err)
	}
	return f, nil
}

// vstackDense stacks row-major dense blocks along the leading dimension.
func vstackDense(blocks []*element.Dense) (*element.Dense, error) {
	first := blocks[0]
	inner := 1
	for _, dim := range first.Dims[1:] {
		inner *= dim
	}
	rows := 0
	parts := make([]any, len(blocks))
	for i, b := range blocks {
		rows += b.Dims[0]
		parts[i] = b.Data
	}
	data, err := buf.StackRows(inner, parts...)
	if err != nil {
		return nil, err
	}
	dims := append([]int{rows}, first.Dims[1:]...)
	return element.NewDense(dims, data)
}

// hstackDense stacks rank-2 dense blocks side by side.
func hstackDense(blocks []*element.Dense) (*element.Dense, error) {
	first := blocks[0]
	if len(first.Dims) != 2 {
		return nil, fmt.Errorf("%w: horizontal stack of rank-%d dense value", ErrSchemaViolation, len(first.Dims))
	}
	nrows := first.Dims[0]
	total := 0
	for _, b := range blocks {
		if len(b.Dims) != 2 || b.Dims[0] != nrows {
			return nil, fmt.Errorf("%w: horizontal stack inputs disagree on row count", ErrShapeMismatch)
		}
		total += b.Dims[1]
	}
	data, err := buf.Alloc(backend.DTypeOf(first.Data), nrows*total)
	if err != nil {
		return nil, err
	}
	for r := 0; r < nrows; r++ {
		off := r * total
		for _, b := range blocks {
			nc := b.Dims[1]
			if err := buf.Copy(data, off, b.Data, r*nc, nc); err != nil {
				return nil, err
			}
			off += nc
		}
	}
	return element.NewDense([]int{nrows, total}, data)
}

// blockDiagDense places square dense blocks along the diagonal of a
// zero matrix.
func blockDiagDense(blocks []*element.Dense) (*element.Dense, error) {
	total := 0
	for _, b := range blocks {
		if len(b.Dims) != 2 || b.Dims[0] != b.Dims[1] {
			return nil, fmt.Errorf("%w: block-diagonal input is not square", ErrSchemaViolation)
		}
		total += b.Dims[0]
	}
	data, err := buf.Alloc(backend.DTypeOf(blocks[0].Data), total*total)
	if err != nil {
		return nil, err
	}
	off := 0
	for _, b := range blocks {
		n := b.Dims[0]
		for r := 0; r < n; r++ {
			if err := buf.Copy(data, (off+r)*total+off, b.Data, r*n, n); err != nil {
				return nil, err
			}
		}
		off += n
	}
	return element.NewDense([]int{total, total}, data)
}

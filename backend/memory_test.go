package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMem_GroupsAndChildren(t *testing.T) {
	ctx := context.Background()
	m := NewMem()

	root, err := m.Open(ctx, "/")
	require.NoError(t, err)

	_, err = m.CreateGroup(ctx, root, "layers")
	require.NoError(t, err)
	_, err = m.CreateGroup(ctx, root, "uns")
	require.NoError(t, err)

	children, err := m.ListChildren(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"layers", "uns"}, children)

	// Creating the same child twice fails.
	_, err = m.CreateGroup(ctx, root, "layers")
	assert.ErrorIs(t, err, ErrExists)

	info, err := m.Stat(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, KindGroup, info.Kind)

	_, err = m.Open(ctx, "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMem_ArrayRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	root, err := m.Open(ctx, "/")
	require.NoError(t, err)

	loc, err := m.CreateArray(ctx, root, "x", []int{2, 3}, DTypeFloat64)
	require.NoError(t, err)

	full := []Range{{0, 2}, {0, 3}}
	err = m.WriteSlice(ctx, loc, full, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	got, err := m.ReadSlice(ctx, loc, full)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, got)

	// Interior region.
	got, err = m.ReadSlice(ctx, loc, []Range{{1, 2}, {1, 3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, got)

	// Partial overwrite.
	err = m.WriteSlice(ctx, loc, []Range{{0, 1}, {0, 2}}, []float64{9, 9})
	require.NoError(t, err)
	got, err = m.ReadSlice(ctx, loc, []Range{{0, 1}, {0, 3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 9, 3}, got)

	info, err := m.Stat(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, KindArray, info.Kind)
	assert.Equal(t, []int{2, 3}, info.Shape)
	assert.Equal(t, DTypeFloat64, info.DType)
}

func TestMem_RangeValidation(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	root, _ := m.Open(ctx, "/")
	loc, err := m.CreateArray(ctx, root, "x", []int{4}, DTypeInt64)
	require.NoError(t, err)

	_, err = m.ReadSlice(ctx, loc, []Range{{0, 5}})
	assert.Error(t, err)
	_, err = m.ReadSlice(ctx, loc, []Range{{0, 2}, {0, 1}})
	assert.Error(t, err)
	err = m.WriteSlice(ctx, loc, []Range{{0, 2}}, []int64{1, 2, 3})
	assert.Error(t, err)
}

func TestMem_Attrs(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	root, _ := m.Open(ctx, "/")

	require.NoError(t, m.WriteAttr(ctx, root, "encoding-type", "array"))
	require.NoError(t, m.WriteAttr(ctx, root, "n-rows", 42))
	require.NoError(t, m.WriteAttr(ctx, root, "shape", []int{2, 3}))

	v, err := m.ReadAttr(ctx, root, "encoding-type")
	require.NoError(t, err)
	assert.Equal(t, "array", v)

	v, err = m.ReadAttr(ctx, root, "n-rows")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = m.ReadAttr(ctx, root, "shape")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, v)

	_, err = m.ReadAttr(ctx, root, "missing")
	assert.ErrorIs(t, err, ErrAttrMissing)

	err = m.WriteAttr(ctx, root, "bad", struct{}{})
	assert.Error(t, err)
}

func TestMem_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	root, _ := m.Open(ctx, "/")
	_, err := m.CreateGroup(ctx, root, "g")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, root, "g"))
	_, err = m.Open(ctx, "/g")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, root, "g"), ErrNotFound)
}

func TestMem_StringArray(t *testing.T) {
	ctx := context.Background()
	m := NewMem()
	root, _ := m.Open(ctx, "/")
	loc, err := m.CreateArray(ctx, root, "names", []int{3}, DTypeString)
	require.NoError(t, err)

	full := []Range{{0, 3}}
	require.NoError(t, m.WriteSlice(ctx, loc, full, []string{"a", "b", "c"}))
	got, err := m.ReadSlice(ctx, loc, []Range{{1, 3}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestMem_Codecs(t *testing.T) {
	zstd, err := NewZstdCodec()
	require.NoError(t, err)

	for _, codec := range []Codec{NoCompression{}, zstd, LZ4Codec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			ctx := context.Background()
			m := NewMem(WithCodec(codec))
			root, _ := m.Open(ctx, "/")
			loc, err := m.CreateArray(ctx, root, "x", []int{2, 2}, DTypeFloat32)
			require.NoError(t, err)

			full := []Range{{0, 2}, {0, 2}}
			require.NoError(t, m.WriteSlice(ctx, loc, full, []float32{1, 2, 3, 4}))
			got, err := m.ReadSlice(ctx, loc, full)
			require.NoError(t, err)
			assert.Equal(t, []float32{1, 2, 3, 4}, got)
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	zstd, err := NewZstdCodec()
	require.NoError(t, err)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 7)
	}
	for _, codec := range []Codec{zstd, LZ4Codec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			packed, err := codec.Compress(payload)
			require.NoError(t, err)
			assert.Less(t, len(packed), len(payload))

			back, err := codec.Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, payload, back)
		})
	}
}

func TestDType(t *testing.T) {
	assert.Equal(t, DTypeFloat64, DTypeOf([]float64{1}))
	assert.Equal(t, DTypeString, DTypeOf([]string{"a"}))
	assert.Equal(t, DTypeNone, DTypeOf(42))

	dt, err := ParseDType("int32")
	require.NoError(t, err)
	assert.Equal(t, DTypeInt32, dt)
	_, err = ParseDType("complex128")
	assert.Error(t, err)

	assert.Equal(t, 8, DTypeFloat64.Size())
	assert.Equal(t, 1, DTypeBool.Size())
}

package backend

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses array payloads at rest inside a Mem store. Payloads are
// serialized to a little-endian byte stream before compression and decoded
// back to typed slices on read.
type Codec interface {
	// Name identifies the codec in store attributes.
	Name() string
	// Compress compresses src into a new buffer.
	Compress(src []byte) ([]byte, error)
	// Decompress decompresses src into a new buffer.
	Decompress(src []byte) ([]byte, error)
}

// NoCompression stores payloads verbatim.
type NoCompression struct{}

// Name implements Codec.
func (NoCompression) Name() string { return "none" }

// Compress implements Codec.
func (NoCompression) Compress(src []byte) ([]byte, error) { return src, nil }

// Decompress implements Codec.
func (NoCompression) Decompress(src []byte) ([]byte, error) { return src, nil }

// ZstdCodec compresses payloads with zstd.
type ZstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCodec creates a zstd codec at the default compression level.
func NewZstdCodec() (*ZstdCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &ZstdCodec{enc: enc, dec: dec}, nil
}

// Name implements Codec.
func (c *ZstdCodec) Name() string { return "zstd" }

// Compress implements Codec.
func (c *ZstdCodec) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

// Decompress implements Codec.
func (c *ZstdCodec) Decompress(src []byte) ([]byte, error) {
	return c.dec.DecodeAll(src, nil)
}

// LZ4Codec compresses payloads with the lz4 frame format.
type LZ4Codec struct{}

// Name implements Codec.
func (LZ4Codec) Name() string { return "lz4" }

// Compress implements Codec.
func (LZ4Codec) Compress(src []byte) ([]byte, error) {
	var out bytes.Buffer
	w := lz4.NewWriter(&out)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decompress implements Codec.
func (LZ4Codec) Decompress(src []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	return io.ReadAll(r)
}

// encodePayload serializes a typed slice to a little-endian byte stream.
func encodePayload(v any) ([]byte, error) {
	var out bytes.Buffer
	switch s := v.(type) {
	case []float64:
		for _, x := range s {
			writeU64(&out, math.Float64bits(x))
		}
	case []float32:
		for _, x := range s {
			writeU32(&out, math.Float32bits(x))
		}
	case []int64:
		for _, x := range s {
			writeU64(&out, uint64(x))
		}
	case []int32:
		for _, x := range s {
			writeU32(&out, uint32(x))
		}
	case []uint8:
		out.Write(s)
	case []bool:
		for _, x := range s {
			if x {
				out.WriteByte(1)
			} else {
				out.WriteByte(0)
			}
		}
	case []string:
		var tmp [binary.MaxVarintLen64]byte
		for _, x := range s {
			n := binary.PutUvarint(tmp[:], uint64(len(x)))
			out.Write(tmp[:n])
			out.WriteString(x)
		}
	default:
		return nil, fmt.Errorf("backend: cannot encode payload of type %T", v)
	}
	return out.Bytes(), nil
}

// decodePayload is the inverse of encodePayload. n is the element count.
func decodePayload(dt DType, n int, data []byte) (any, error) {
	switch dt {
	case DTypeFloat64:
		if len(data) != 8*n {
			return nil, decodeLenError(dt, n, len(data))
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
		return out, nil
	case DTypeFloat32:
		if len(data) != 4*n {
			return nil, decodeLenError(dt, n, len(data))
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return out, nil
	case DTypeInt64:
		if len(data) != 8*n {
			return nil, decodeLenError(dt, n, len(data))
		}
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(data[8*i:]))
		}
		return out, nil
	case DTypeInt32:
		if len(data) != 4*n {
			return nil, decodeLenError(dt, n, len(data))
		}
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return out, nil
	case DTypeUint8:
		if len(data) != n {
			return nil, decodeLenError(dt, n, len(data))
		}
		out := make([]uint8, n)
		copy(out, data)
		return out, nil
	case DTypeBool:
		if len(data) != n {
			return nil, decodeLenError(dt, n, len(data))
		}
		out := make([]bool, n)
		for i := range out {
			out[i] = data[i] != 0
		}
		return out, nil
	case DTypeString:
		out := make([]string, n)
		rest := data
		for i := range out {
			l, sz := binary.Uvarint(rest)
			if sz <= 0 || uint64(len(rest)-sz) < l {
				return nil, fmt.Errorf("backend: corrupt string payload at element %d", i)
			}
			out[i] = string(rest[sz : sz+int(l)])
			rest = rest[sz+int(l):]
		}
		if len(rest) != 0 {
			return nil, fmt.Errorf("backend: %d trailing bytes in string payload", len(rest))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("backend: cannot decode dtype %s", dt)
	}
}

func decodeLenError(dt DType, n, got int) error {
	return fmt.Errorf("backend: payload of %d bytes does not hold %d %s elements", got, n, dt)
}

func writeU64(b *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Write(tmp[:])
}

func writeU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

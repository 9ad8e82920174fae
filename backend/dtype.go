package backend

import "fmt"

// DType identifies the element type of an array node.
type DType uint8

const (
	// DTypeNone marks nodes without an element type (groups).
	DTypeNone DType = iota
	// DTypeFloat64 is a 64-bit float element.
	DTypeFloat64
	// DTypeFloat32 is a 32-bit float element.
	DTypeFloat32
	// DTypeInt64 is a 64-bit signed integer element.
	DTypeInt64
	// DTypeInt32 is a 32-bit signed integer element.
	DTypeInt32
	// DTypeUint8 is an 8-bit unsigned integer element.
	DTypeUint8
	// DTypeBool is a boolean element.
	DTypeBool
	// DTypeString is a variable-length string element.
	DTypeString
)

// String returns the string representation of the DType.
func (dt DType) String() string {
	switch dt {
	case DTypeNone:
		return "none"
	case DTypeFloat64:
		return "float64"
	case DTypeFloat32:
		return "float32"
	case DTypeInt64:
		return "int64"
	case DTypeInt32:
		return "int32"
	case DTypeUint8:
		return "uint8"
	case DTypeBool:
		return "bool"
	case DTypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Size returns the in-memory width of one element in bytes. Strings
// report the string header size; their payload is not accounted for.
func (dt DType) Size() int {
	switch dt {
	case DTypeFloat64, DTypeInt64:
		return 8
	case DTypeFloat32, DTypeInt32:
		return 4
	case DTypeUint8, DTypeBool:
		return 1
	case DTypeString:
		return 16
	default:
		return 0
	}
}

// ParseDType is the inverse of DType.String. Used when reading the dtype
// attribute of persisted nodes.
func ParseDType(s string) (DType, error) {
	switch s {
	case "float64":
		return DTypeFloat64, nil
	case "float32":
		return DTypeFloat32, nil
	case "int64":
		return DTypeInt64, nil
	case "int32":
		return DTypeInt32, nil
	case "uint8":
		return DTypeUint8, nil
	case "bool":
		return DTypeBool, nil
	case "string":
		return DTypeString, nil
	default:
		return DTypeNone, fmt.Errorf("backend: unknown dtype %q", s)
	}
}

// DTypeOf reports the DType of a typed slice value, or DTypeNone if the
// value is not one of the supported slice types.
func DTypeOf(v any) DType {
	switch v.(type) {
	case []float64:
		return DTypeFloat64
	case []float32:
		return DTypeFloat32
	case []int64:
		return DTypeInt64
	case []int32:
		return DTypeInt32
	case []uint8:
		return DTypeUint8
	case []bool:
		return DTypeBool
	case []string:
		return DTypeString
	default:
		return DTypeNone
	}
}

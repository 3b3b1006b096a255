// Package hostbuf converts typed host slices to and from the raw bytes moved
// across the device boundary. Values use host byte order, which is what the
// device sees for a buffer written from this process.
package hostbuf

import (
	"fmt"
	"unsafe"

	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Element is any fixed-size numeric type a kernel parameter can hold.
type Element interface {
	constraints.Integer | constraints.Float
}

// Bytes returns a copy of values as raw bytes.
func Bytes[T Element](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	size := len(values) * int(unsafe.Sizeof(values[0]))
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), size))
	return out
}

// Scalar returns the raw bytes of a single value, for scalar kernel arguments.
func Scalar[T Element](v T) []byte {
	return Bytes([]T{v})
}

// Decode copies raw into a new slice of T. The length of raw must be a
// multiple of the element size.
func Decode[T Element](raw []byte) ([]T, error) {
	var zero T
	elem := int(unsafe.Sizeof(zero))
	if len(raw)%elem != 0 {
		return nil, fmt.Errorf("%d bytes is not a multiple of element size %d", len(raw), elem)
	}
	out := make([]T, len(raw)/elem)
	if len(out) > 0 {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), len(raw)), raw)
	}
	return out, nil
}

// SizeOf returns the byte size of n elements of T.
func SizeOf[T Element](n int) int {
	var zero T
	return n * int(unsafe.Sizeof(zero))
}

// Float16Bytes encodes values as IEEE 754 half-precision (the kernel "half"
// type), rounding to nearest even.
func Float16Bytes(values []float32) []byte {
	bits := make([]uint16, len(values))
	for i, v := range values {
		bits[i] = float16.Fromfloat32(v).Bits()
	}
	return Bytes(bits)
}

// Float16Decode decodes half-precision bytes into float32 values.
func Float16Decode(raw []byte) ([]float32, error) {
	bits, err := Decode[uint16](raw)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(bits))
	for i, b := range bits {
		out[i] = float16.Frombits(b).Float32()
	}
	return out, nil
}

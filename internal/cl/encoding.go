package cl

import (
	"encoding/binary"
	"fmt"
)

// EncodeString encodes a string property value the way runtimes return it:
// the text followed by a terminating NUL.
func EncodeString(s string) []byte {
	out := make([]byte, len(s)+1)
	copy(out, s)
	return out
}

// DecodeString strips the trailing NUL of a string property value.
func DecodeString(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}
	return string(raw)
}

// EncodeUint encodes v with the width of a numeric kind in host byte order.
func EncodeUint(kind Kind, v uint64) ([]byte, error) {
	switch kind.Width() {
	case 4:
		return binary.NativeEndian.AppendUint32(nil, uint32(v)), nil
	case 8:
		return binary.NativeEndian.AppendUint64(nil, v), nil
	default:
		return nil, fmt.Errorf("kind %s is not numeric", kind)
	}
}

// DecodeUint decodes a numeric property value of the given kind.
func DecodeUint(kind Kind, raw []byte) (uint64, error) {
	width := kind.Width()
	if width == 0 {
		return 0, fmt.Errorf("kind %s is not numeric", kind)
	}
	if len(raw) != width {
		return 0, fmt.Errorf("kind %s expects %d bytes, got %d", kind, width, len(raw))
	}
	if width == 4 {
		return uint64(binary.NativeEndian.Uint32(raw)), nil
	}
	return binary.NativeEndian.Uint64(raw), nil
}

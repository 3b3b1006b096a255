package catalog

import (
	"fmt"
	"strconv"

	"github.com/cwbudde/clsession/internal/cl"
)

// Attribute is one probed platform or device property. Its kind comes from the
// property schema, never from the value itself.
type Attribute struct {
	Name string
	Kind cl.Kind
	raw  []byte
}

// Text returns the value of a string attribute.
func (a Attribute) Text() (string, error) {
	if a.Kind != cl.KindString {
		return "", fmt.Errorf("%w: %s is %s, not string", cl.ErrKindMismatch, a.Name, a.Kind)
	}
	return cl.DecodeString(a.raw), nil
}

// Uint returns the value of a numeric attribute.
func (a Attribute) Uint() (uint64, error) {
	if a.Kind == cl.KindString {
		return 0, fmt.Errorf("%w: %s is string, not numeric", cl.ErrKindMismatch, a.Name)
	}
	v, err := cl.DecodeUint(a.Kind, a.raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", a.Name, err)
	}
	return v, nil
}

// Raw returns a copy of the undecoded value bytes.
func (a Attribute) Raw() []byte {
	return append([]byte(nil), a.raw...)
}

func (a Attribute) String() string {
	if a.Kind == cl.KindString {
		return cl.DecodeString(a.raw)
	}
	v, err := a.Uint()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	if a.Kind == cl.KindBitfield {
		return "0x" + strconv.FormatUint(v, 16)
	}
	return strconv.FormatUint(v, 10)
}

func probePlatform(rt cl.Runtime, id cl.PlatformID, param cl.PlatformParam) (Attribute, error) {
	prop, ok := param.Describe()
	if !ok {
		return Attribute{}, fmt.Errorf("no schema for %s", param)
	}
	raw, err := rt.PlatformProperty(id, param)
	if err != nil {
		return Attribute{}, fmt.Errorf("failed to query %s: %w", param, err)
	}
	return Attribute{Name: prop.Name, Kind: prop.Kind, raw: raw}, nil
}

func probeDevice(rt cl.Runtime, id cl.DeviceID, param cl.DeviceParam) (Attribute, error) {
	prop, ok := param.Describe()
	if !ok {
		return Attribute{}, fmt.Errorf("no schema for %s", param)
	}
	raw, err := rt.DeviceProperty(id, param)
	if err != nil {
		return Attribute{}, fmt.Errorf("failed to query %s: %w", param, err)
	}
	return Attribute{Name: prop.Name, Kind: prop.Kind, raw: raw}, nil
}

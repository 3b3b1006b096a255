package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cwbudde/clsession/internal/cl"
)

// deviceSchema is the fixed, ordered attribute set probed for every device.
var deviceSchema = []cl.DeviceParam{
	cl.DeviceName,
	cl.DeviceVendor,
	cl.DeviceVersion,
	cl.DriverVersion,
	cl.DeviceOpenCLCVersion,
	cl.DeviceTypeBitfield,
	cl.DeviceMaxComputeUnits,
	cl.DeviceMaxClockFrequency,
	cl.DeviceMaxConstantBufferSize,
	cl.DeviceMaxWorkGroupSize,
	cl.DeviceGlobalMemSize,
}

var platformSchema = []cl.PlatformParam{
	cl.PlatformName,
	cl.PlatformVendor,
	cl.PlatformVersion,
	cl.PlatformProfile,
}

// Device describes one accelerator device. Attributes are probed once, when
// the descriptor is built; extensions are queried live.
type Device struct {
	ID         cl.DeviceID
	Attributes []Attribute

	rt cl.Runtime
}

func newDevice(rt cl.Runtime, id cl.DeviceID) (*Device, error) {
	d := &Device{ID: id, rt: rt, Attributes: make([]Attribute, 0, len(deviceSchema))}
	for _, param := range deviceSchema {
		attr, err := probeDevice(rt, id, param)
		if err != nil {
			return nil, err
		}
		d.Attributes = append(d.Attributes, attr)
	}
	return d, nil
}

// Attribute looks up a probed attribute by schema name.
func (d *Device) Attribute(name string) (Attribute, bool) {
	return findAttribute(d.Attributes, name)
}

func (d *Device) Name() string {
	attr, _ := d.Attribute("name")
	return attr.String()
}

func (d *Device) Type() cl.DeviceType {
	attr, ok := d.Attribute("type")
	if !ok {
		return cl.DeviceTypeUnknown
	}
	bits, err := attr.Uint()
	if err != nil {
		return cl.DeviceTypeUnknown
	}
	return cl.MapDeviceType(bits)
}

// MaxWorkGroupSize returns the largest local work size the device accepts.
func (d *Device) MaxWorkGroupSize() uint64 {
	return d.uintAttribute("max_work_group_size")
}

// GlobalMemSize returns the device memory size in bytes.
func (d *Device) GlobalMemSize() uint64 {
	return d.uintAttribute("global_mem_size")
}

func (d *Device) uintAttribute(name string) uint64 {
	attr, ok := d.Attribute(name)
	if !ok {
		return 0
	}
	v, _ := attr.Uint()
	return v
}

// Extensions fetches the device's current extension list from the runtime.
func (d *Device) Extensions() ([]string, error) {
	raw, err := d.rt.DeviceProperty(d.ID, cl.DeviceExtensions)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", cl.DeviceExtensions, err)
	}
	return strings.Fields(cl.DecodeString(raw)), nil
}

// SupportsExtension reports whether ext appears in the live extension list.
func (d *Device) SupportsExtension(ext string) (bool, error) {
	exts, err := d.Extensions()
	if err != nil {
		return false, err
	}
	return slices.Contains(exts, ext), nil
}

// Platform describes one vendor runtime instance and the devices it hosts.
type Platform struct {
	ID         cl.PlatformID
	Attributes []Attribute
	Devices    []*Device

	rt cl.Runtime
}

func newPlatform(rt cl.Runtime, id cl.PlatformID) (*Platform, error) {
	p := &Platform{ID: id, rt: rt, Attributes: make([]Attribute, 0, len(platformSchema))}
	for _, param := range platformSchema {
		attr, err := probePlatform(rt, id, param)
		if err != nil {
			return nil, err
		}
		p.Attributes = append(p.Attributes, attr)
	}

	ids, err := rt.DeviceIDs(id)
	if err != nil {
		if status, ok := cl.StatusOf(err); ok && status == cl.StatusDeviceNotFound {
			return p, nil
		}
		return nil, fmt.Errorf("failed to enumerate devices of %q: %w", p.Name(), err)
	}
	for _, devID := range ids {
		d, err := newDevice(rt, devID)
		if err != nil {
			return nil, fmt.Errorf("platform %q: %w", p.Name(), err)
		}
		p.Devices = append(p.Devices, d)
	}
	return p, nil
}

func (p *Platform) Attribute(name string) (Attribute, bool) {
	return findAttribute(p.Attributes, name)
}

func (p *Platform) Name() string {
	attr, _ := p.Attribute("name")
	return attr.String()
}

// Extensions fetches the platform's current extension list from the runtime.
func (p *Platform) Extensions() ([]string, error) {
	raw, err := p.rt.PlatformProperty(p.ID, cl.PlatformExtensions)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", cl.PlatformExtensions, err)
	}
	return strings.Fields(cl.DecodeString(raw)), nil
}

func (p *Platform) SupportsExtension(ext string) (bool, error) {
	exts, err := p.Extensions()
	if err != nil {
		return false, err
	}
	return slices.Contains(exts, ext), nil
}

func findAttribute(attrs []Attribute, name string) (Attribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

package cl

import "fmt"

// Kind is the declared value type of a platform or device property.
type Kind int

const (
	KindString Kind = iota
	KindUint
	KindUlong
	KindSize
	KindBitfield
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindUint:
		return "uint"
	case KindUlong:
		return "ulong"
	case KindSize:
		return "size"
	case KindBitfield:
		return "bitfield"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Width returns the encoded byte width of a numeric kind, or 0 for strings.
func (k Kind) Width() int {
	switch k {
	case KindUint:
		return 4
	case KindUlong, KindSize, KindBitfield:
		return 8
	default:
		return 0
	}
}

// PlatformParam identifies a platform property (cl_platform_info).
type PlatformParam uint32

const (
	PlatformProfile    PlatformParam = 0x0900
	PlatformVersion    PlatformParam = 0x0901
	PlatformName       PlatformParam = 0x0902
	PlatformVendor     PlatformParam = 0x0903
	PlatformExtensions PlatformParam = 0x0904
)

// DeviceParam identifies a device property (cl_device_info).
type DeviceParam uint32

const (
	DeviceTypeBitfield          DeviceParam = 0x1000
	DeviceMaxComputeUnits       DeviceParam = 0x1002
	DeviceMaxWorkGroupSize      DeviceParam = 0x1004
	DeviceMaxClockFrequency     DeviceParam = 0x100C
	DeviceGlobalMemSize         DeviceParam = 0x101F
	DeviceMaxConstantBufferSize DeviceParam = 0x1020
	DeviceName                  DeviceParam = 0x102B
	DeviceVendor                DeviceParam = 0x102C
	DriverVersion               DeviceParam = 0x102D
	DeviceProfile               DeviceParam = 0x102E
	DeviceVersion               DeviceParam = 0x102F
	DeviceExtensions            DeviceParam = 0x1030
	DeviceOpenCLCVersion        DeviceParam = 0x103D
)

// Property describes one entry of an attribute schema.
type Property struct {
	Name string
	Kind Kind
}

var platformProperties = map[PlatformParam]Property{
	PlatformProfile:    {Name: "profile", Kind: KindString},
	PlatformVersion:    {Name: "version", Kind: KindString},
	PlatformName:       {Name: "name", Kind: KindString},
	PlatformVendor:     {Name: "vendor", Kind: KindString},
	PlatformExtensions: {Name: "extensions", Kind: KindString},
}

var deviceProperties = map[DeviceParam]Property{
	DeviceTypeBitfield:          {Name: "type", Kind: KindBitfield},
	DeviceMaxComputeUnits:       {Name: "compute_units", Kind: KindUint},
	DeviceMaxWorkGroupSize:      {Name: "max_work_group_size", Kind: KindSize},
	DeviceMaxClockFrequency:     {Name: "max_clock_mhz", Kind: KindUint},
	DeviceGlobalMemSize:         {Name: "global_mem_size", Kind: KindUlong},
	DeviceMaxConstantBufferSize: {Name: "max_constant_buffer_size", Kind: KindUlong},
	DeviceName:                  {Name: "name", Kind: KindString},
	DeviceVendor:                {Name: "vendor", Kind: KindString},
	DriverVersion:               {Name: "driver_version", Kind: KindString},
	DeviceProfile:               {Name: "profile", Kind: KindString},
	DeviceVersion:               {Name: "version", Kind: KindString},
	DeviceExtensions:            {Name: "extensions", Kind: KindString},
	DeviceOpenCLCVersion:        {Name: "opencl_c_version", Kind: KindString},
}

// Describe returns the schema entry of a platform property.
func (p PlatformParam) Describe() (Property, bool) {
	prop, ok := platformProperties[p]
	return prop, ok
}

func (p PlatformParam) String() string {
	if prop, ok := platformProperties[p]; ok {
		return "platform." + prop.Name
	}
	return fmt.Sprintf("platform.0x%04x", uint32(p))
}

// Describe returns the schema entry of a device property.
func (d DeviceParam) Describe() (Property, bool) {
	prop, ok := deviceProperties[d]
	return prop, ok
}

func (d DeviceParam) String() string {
	if prop, ok := deviceProperties[d]; ok {
		return "device." + prop.Name
	}
	return fmt.Sprintf("device.0x%04x", uint32(d))
}

package cl

// Opaque runtime handles. Their values only have meaning to the Runtime that
// produced them; zero is never a valid handle.
type (
	PlatformID uintptr
	DeviceID   uintptr
	Context    uintptr
	Queue      uintptr
	Program    uintptr
	Kernel     uintptr
	Mem        uintptr
)

// DeviceType describes the class of a compute device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// Device type bitfield values as reported by the DeviceType property.
const (
	deviceTypeDefaultBit     uint64 = 1 << 0
	deviceTypeCPUBit         uint64 = 1 << 1
	deviceTypeGPUBit         uint64 = 1 << 2
	deviceTypeAcceleratorBit uint64 = 1 << 3
)

// MapDeviceType converts a raw device type bitfield into a DeviceType.
func MapDeviceType(bits uint64) DeviceType {
	switch {
	case bits&deviceTypeGPUBit != 0:
		return DeviceTypeGPU
	case bits&deviceTypeCPUBit != 0:
		return DeviceTypeCPU
	case bits&deviceTypeAcceleratorBit != 0:
		return DeviceTypeAccelerator
	case bits&deviceTypeDefaultBit != 0:
		return DeviceTypeDefault
	default:
		return DeviceTypeUnknown
	}
}

// DeviceTypeBits is the inverse of MapDeviceType.
func DeviceTypeBits(t DeviceType) uint64 {
	switch t {
	case DeviceTypeGPU:
		return deviceTypeGPUBit
	case DeviceTypeCPU:
		return deviceTypeCPUBit
	case DeviceTypeAccelerator:
		return deviceTypeAcceleratorBit
	case DeviceTypeDefault:
		return deviceTypeDefaultBit
	default:
		return 0
	}
}

// MemFlags mirrors the cl_mem_flags bitfield.
type MemFlags uint64

const (
	MemReadWrite MemFlags = 1 << 0
	MemWriteOnly MemFlags = 1 << 1
	MemReadOnly  MemFlags = 1 << 2
)

// ContextProperty is one key/value pair of a context property list.
type ContextProperty struct {
	Key   uint32
	Value uintptr
}

// ContextPlatform binds a context to a platform (CL_CONTEXT_PLATFORM).
const ContextPlatform uint32 = 0x1084

// Package cl defines the boundary between the compute session and an
// accelerator runtime: opaque handles, status codes, property schemas and the
// Runtime capability-provider interface.
//
// Concrete runtimes register themselves by name (see Register). The pure-Go
// simulator lives in package sim, the cgo OpenCL binding in package opencl.
package cl

// Runtime is the capability provider a compute session drives.
//
// Every method returning an error reports runtime failures as *StatusError.
// Property queries hide the two-call size/value protocol: implementations
// allocate exactly once and return the raw value bytes.
type Runtime interface {
	// Name returns the registered name of the runtime, e.g. "sim" or "opencl".
	Name() string

	PlatformIDs() ([]PlatformID, error)
	DeviceIDs(platform PlatformID) ([]DeviceID, error)
	PlatformProperty(platform PlatformID, param PlatformParam) ([]byte, error)
	DeviceProperty(device DeviceID, param DeviceParam) ([]byte, error)

	CreateContext(device DeviceID, props []ContextProperty) (Context, error)
	// CreateQueue creates an in-order command queue.
	CreateQueue(ctx Context, device DeviceID) (Queue, error)

	CreateProgramWithSource(ctx Context, source string) (Program, error)
	BuildProgram(program Program, device DeviceID, options string) error
	ProgramBuildLog(program Program, device DeviceID) ([]byte, error)
	CreateKernel(program Program, name string) (Kernel, error)

	SetKernelArgMem(kernel Kernel, index uint32, mem Mem) error
	SetKernelArgBytes(kernel Kernel, index uint32, value []byte) error
	// EnqueueNDRange enqueues a one-dimensional range dispatch.
	EnqueueNDRange(queue Queue, kernel Kernel, global, local int) error
	// Finish blocks until every command enqueued on queue has completed.
	Finish(queue Queue) error

	CreateBuffer(ctx Context, flags MemFlags, size int) (Mem, error)
	// WriteBuffer is a blocking host-to-device copy of data into mem at offset 0.
	WriteBuffer(queue Queue, mem Mem, data []byte) error
	// ReadBuffer is a blocking device-to-host copy of len(dst) bytes from mem.
	ReadBuffer(queue Queue, mem Mem, dst []byte) error

	ReleaseMem(mem Mem) error
	ReleaseKernel(kernel Kernel) error
	ReleaseProgram(program Program) error
	ReleaseQueue(queue Queue) error
	ReleaseContext(ctx Context) error
}

//go:build gpu

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <stdlib.h>
#include <CL/cl.h>

static cl_command_queue clsession_create_queue(cl_context ctx, cl_device_id device, cl_int *status) {
#if CL_TARGET_OPENCL_VERSION >= 200
	const cl_queue_properties props[] = {0};
	return clCreateCommandQueueWithProperties(ctx, device, props, status);
#else
	return clCreateCommandQueue(ctx, device, 0, status);
#endif
}
*/
import "C"

import (
	"unsafe"

	"github.com/cwbudde/clsession/internal/cl"
)

func init() {
	cl.Register(Name, func(config string) (cl.Runtime, error) {
		return New(), nil
	})
}

var _ cl.Runtime = (*Runtime)(nil)

// Runtime calls the system OpenCL ICD loader. Handles are the native object
// pointers; they point into driver memory, never into the Go heap.
type Runtime struct{}

// New returns the OpenCL runtime. It holds no state of its own.
func New() *Runtime { return &Runtime{} }

func (r *Runtime) Name() string { return Name }

func statusError(op string, status C.cl_int) error {
	return cl.NewStatusError(op, cl.Status(status))
}

func platformID(h cl.PlatformID) C.cl_platform_id {
	return C.cl_platform_id(unsafe.Pointer(uintptr(h)))
}

func deviceID(h cl.DeviceID) C.cl_device_id {
	return C.cl_device_id(unsafe.Pointer(uintptr(h)))
}

func context(h cl.Context) C.cl_context { return C.cl_context(unsafe.Pointer(uintptr(h))) }

func queue(h cl.Queue) C.cl_command_queue {
	return C.cl_command_queue(unsafe.Pointer(uintptr(h)))
}

func program(h cl.Program) C.cl_program { return C.cl_program(unsafe.Pointer(uintptr(h))) }

func kernel(h cl.Kernel) C.cl_kernel { return C.cl_kernel(unsafe.Pointer(uintptr(h))) }

func mem(h cl.Mem) C.cl_mem { return C.cl_mem(unsafe.Pointer(uintptr(h))) }

func (r *Runtime) PlatformIDs() ([]cl.PlatformID, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_platform_id, int(count))
	status = C.clGetPlatformIDs(count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}

	out := make([]cl.PlatformID, len(ids))
	for i, id := range ids {
		out[i] = cl.PlatformID(uintptr(unsafe.Pointer(id)))
	}
	return out, nil
}

func (r *Runtime) DeviceIDs(p cl.PlatformID) ([]cl.DeviceID, error) {
	var count C.cl_uint
	status := C.clGetDeviceIDs(platformID(p), C.CL_DEVICE_TYPE_ALL, 0, nil, &count)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}
	if count == 0 {
		return nil, statusError("clGetDeviceIDs(count)", C.CL_DEVICE_NOT_FOUND)
	}

	ids := make([]C.cl_device_id, int(count))
	status = C.clGetDeviceIDs(platformID(p), C.CL_DEVICE_TYPE_ALL, count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	out := make([]cl.DeviceID, len(ids))
	for i, id := range ids {
		out[i] = cl.DeviceID(uintptr(unsafe.Pointer(id)))
	}
	return out, nil
}

func (r *Runtime) PlatformProperty(p cl.PlatformID, param cl.PlatformParam) ([]byte, error) {
	id, info := platformID(p), C.cl_platform_info(param)

	var size C.size_t
	status := C.clGetPlatformInfo(id, info, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformInfo(size)", status)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, int(size))
	status = C.clGetPlatformInfo(id, info, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformInfo(value)", status)
	}
	return buf, nil
}

func (r *Runtime) DeviceProperty(d cl.DeviceID, param cl.DeviceParam) ([]byte, error) {
	id, info := deviceID(d), C.cl_device_info(param)

	var size C.size_t
	status := C.clGetDeviceInfo(id, info, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceInfo(size)", status)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, int(size))
	status = C.clGetDeviceInfo(id, info, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceInfo(value)", status)
	}
	return buf, nil
}

func (r *Runtime) CreateContext(d cl.DeviceID, props []cl.ContextProperty) (cl.Context, error) {
	var propList *C.cl_context_properties
	if len(props) > 0 {
		list := make([]C.cl_context_properties, 0, 2*len(props)+1)
		for _, p := range props {
			list = append(list, C.cl_context_properties(p.Key), C.cl_context_properties(p.Value))
		}
		list = append(list, 0)
		propList = &list[0]
	}

	dev := deviceID(d)
	var status C.cl_int
	ctx := C.clCreateContext(propList, 1, &dev, nil, nil, &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateContext", status)
	}
	return cl.Context(uintptr(unsafe.Pointer(ctx))), nil
}

func (r *Runtime) CreateQueue(ctx cl.Context, d cl.DeviceID) (cl.Queue, error) {
	var status C.cl_int
	q := C.clsession_create_queue(context(ctx), deviceID(d), &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateCommandQueue", status)
	}
	return cl.Queue(uintptr(unsafe.Pointer(q))), nil
}

func (r *Runtime) CreateProgramWithSource(ctx cl.Context, source string) (cl.Program, error) {
	csrc := C.CString(source)
	defer C.free(unsafe.Pointer(csrc))
	length := C.size_t(len(source))

	var status C.cl_int
	p := C.clCreateProgramWithSource(context(ctx), 1, &csrc, &length, &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateProgramWithSource", status)
	}
	return cl.Program(uintptr(unsafe.Pointer(p))), nil
}

func (r *Runtime) BuildProgram(p cl.Program, d cl.DeviceID, options string) error {
	var copts *C.char
	if options != "" {
		copts = C.CString(options)
		defer C.free(unsafe.Pointer(copts))
	}
	dev := deviceID(d)
	status := C.clBuildProgram(program(p), 1, &dev, copts, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clBuildProgram", status)
	}
	return nil
}

func (r *Runtime) ProgramBuildLog(p cl.Program, d cl.DeviceID) ([]byte, error) {
	var size C.size_t
	status := C.clGetProgramBuildInfo(program(p), deviceID(d), C.CL_PROGRAM_BUILD_LOG, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetProgramBuildInfo(size)", status)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, int(size))
	status = C.clGetProgramBuildInfo(program(p), deviceID(d), C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetProgramBuildInfo(value)", status)
	}
	return buf, nil
}

func (r *Runtime) CreateKernel(p cl.Program, name string) (cl.Kernel, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var status C.cl_int
	k := C.clCreateKernel(program(p), cname, &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateKernel", status)
	}
	return cl.Kernel(uintptr(unsafe.Pointer(k))), nil
}

func (r *Runtime) SetKernelArgMem(k cl.Kernel, index uint32, m cl.Mem) error {
	handle := mem(m)
	status := C.clSetKernelArg(kernel(k), C.cl_uint(index), C.size_t(unsafe.Sizeof(handle)), unsafe.Pointer(&handle))
	if status != C.CL_SUCCESS {
		return statusError("clSetKernelArg", status)
	}
	return nil
}

func (r *Runtime) SetKernelArgBytes(k cl.Kernel, index uint32, value []byte) error {
	if len(value) == 0 {
		return statusError("clSetKernelArg", C.CL_INVALID_ARG_SIZE)
	}
	status := C.clSetKernelArg(kernel(k), C.cl_uint(index), C.size_t(len(value)), unsafe.Pointer(&value[0]))
	if status != C.CL_SUCCESS {
		return statusError("clSetKernelArg", status)
	}
	return nil
}

func (r *Runtime) EnqueueNDRange(q cl.Queue, k cl.Kernel, global, local int) error {
	g, l := C.size_t(global), C.size_t(local)
	status := C.clEnqueueNDRangeKernel(queue(q), kernel(k), 1, nil, &g, &l, 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueNDRangeKernel", status)
	}
	return nil
}

func (r *Runtime) Finish(q cl.Queue) error {
	if status := C.clFinish(queue(q)); status != C.CL_SUCCESS {
		return statusError("clFinish", status)
	}
	return nil
}

func (r *Runtime) CreateBuffer(ctx cl.Context, flags cl.MemFlags, size int) (cl.Mem, error) {
	var status C.cl_int
	m := C.clCreateBuffer(context(ctx), C.cl_mem_flags(flags), C.size_t(size), nil, &status)
	if status != C.CL_SUCCESS {
		return 0, statusError("clCreateBuffer", status)
	}
	return cl.Mem(uintptr(unsafe.Pointer(m))), nil
}

func (r *Runtime) WriteBuffer(q cl.Queue, m cl.Mem, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	status := C.clEnqueueWriteBuffer(queue(q), mem(m), C.CL_TRUE, 0, C.size_t(len(data)), unsafe.Pointer(&data[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueWriteBuffer", status)
	}
	return nil
}

func (r *Runtime) ReadBuffer(q cl.Queue, m cl.Mem, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	status := C.clEnqueueReadBuffer(queue(q), mem(m), C.CL_TRUE, 0, C.size_t(len(dst)), unsafe.Pointer(&dst[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer", status)
	}
	return nil
}

func (r *Runtime) ReleaseMem(m cl.Mem) error {
	if status := C.clReleaseMemObject(mem(m)); status != C.CL_SUCCESS {
		return statusError("clReleaseMemObject", status)
	}
	return nil
}

func (r *Runtime) ReleaseKernel(k cl.Kernel) error {
	if status := C.clReleaseKernel(kernel(k)); status != C.CL_SUCCESS {
		return statusError("clReleaseKernel", status)
	}
	return nil
}

func (r *Runtime) ReleaseProgram(p cl.Program) error {
	if status := C.clReleaseProgram(program(p)); status != C.CL_SUCCESS {
		return statusError("clReleaseProgram", status)
	}
	return nil
}

func (r *Runtime) ReleaseQueue(q cl.Queue) error {
	if status := C.clReleaseCommandQueue(queue(q)); status != C.CL_SUCCESS {
		return statusError("clReleaseCommandQueue", status)
	}
	return nil
}

func (r *Runtime) ReleaseContext(ctx cl.Context) error {
	if status := C.clReleaseContext(context(ctx)); status != C.CL_SUCCESS {
		return statusError("clReleaseContext", status)
	}
	return nil
}

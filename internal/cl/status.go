package cl

import (
	"errors"
	"fmt"
)

// Status is a runtime status code. Zero is success, negative values are failures.
type Status int32

const (
	StatusSuccess                    Status = 0
	StatusDeviceNotFound             Status = -1
	StatusDeviceNotAvailable         Status = -2
	StatusCompilerNotAvailable       Status = -3
	StatusMemObjectAllocationFailure Status = -4
	StatusOutOfResources             Status = -5
	StatusOutOfHostMemory            Status = -6
	StatusBuildProgramFailure        Status = -11
	StatusInvalidValue               Status = -30
	StatusInvalidPlatform            Status = -32
	StatusInvalidDevice              Status = -33
	StatusInvalidContext             Status = -34
	StatusInvalidCommandQueue        Status = -36
	StatusInvalidMemObject           Status = -38
	StatusInvalidProgram             Status = -44
	StatusInvalidProgramExecutable   Status = -45
	StatusInvalidKernelName          Status = -46
	StatusInvalidKernel              Status = -48
	StatusInvalidArgIndex            Status = -49
	StatusInvalidArgValue            Status = -50
	StatusInvalidArgSize             Status = -51
	StatusInvalidKernelArgs          Status = -52
	StatusInvalidWorkDimension       Status = -53
	StatusInvalidWorkGroupSize       Status = -54
	StatusInvalidOperation           Status = -59
	StatusInvalidBufferSize          Status = -61
	StatusInvalidGlobalWorkSize      Status = -63
	StatusInvalidProperty            Status = -64
	StatusPlatformNotFoundKHR        Status = -1001
)

var statusNames = map[Status]string{
	0:     "CL_SUCCESS",
	-1:    "CL_DEVICE_NOT_FOUND",
	-2:    "CL_DEVICE_NOT_AVAILABLE",
	-3:    "CL_COMPILER_NOT_AVAILABLE",
	-4:    "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	-5:    "CL_OUT_OF_RESOURCES",
	-6:    "CL_OUT_OF_HOST_MEMORY",
	-7:    "CL_PROFILING_INFO_NOT_AVAILABLE",
	-8:    "CL_MEM_COPY_OVERLAP",
	-9:    "CL_IMAGE_FORMAT_MISMATCH",
	-10:   "CL_IMAGE_FORMAT_NOT_SUPPORTED",
	-11:   "CL_BUILD_PROGRAM_FAILURE",
	-12:   "CL_MAP_FAILURE",
	-13:   "CL_MISALIGNED_SUB_BUFFER_OFFSET",
	-14:   "CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST",
	-15:   "CL_COMPILE_PROGRAM_FAILURE",
	-16:   "CL_LINKER_NOT_AVAILABLE",
	-17:   "CL_LINK_PROGRAM_FAILURE",
	-18:   "CL_DEVICE_PARTITION_FAILED",
	-19:   "CL_KERNEL_ARG_INFO_NOT_AVAILABLE",
	-30:   "CL_INVALID_VALUE",
	-31:   "CL_INVALID_DEVICE_TYPE",
	-32:   "CL_INVALID_PLATFORM",
	-33:   "CL_INVALID_DEVICE",
	-34:   "CL_INVALID_CONTEXT",
	-35:   "CL_INVALID_QUEUE_PROPERTIES",
	-36:   "CL_INVALID_COMMAND_QUEUE",
	-37:   "CL_INVALID_HOST_PTR",
	-38:   "CL_INVALID_MEM_OBJECT",
	-39:   "CL_INVALID_IMAGE_FORMAT_DESCRIPTOR",
	-40:   "CL_INVALID_IMAGE_SIZE",
	-41:   "CL_INVALID_SAMPLER",
	-42:   "CL_INVALID_BINARY",
	-43:   "CL_INVALID_BUILD_OPTIONS",
	-44:   "CL_INVALID_PROGRAM",
	-45:   "CL_INVALID_PROGRAM_EXECUTABLE",
	-46:   "CL_INVALID_KERNEL_NAME",
	-47:   "CL_INVALID_KERNEL_DEFINITION",
	-48:   "CL_INVALID_KERNEL",
	-49:   "CL_INVALID_ARG_INDEX",
	-50:   "CL_INVALID_ARG_VALUE",
	-51:   "CL_INVALID_ARG_SIZE",
	-52:   "CL_INVALID_KERNEL_ARGS",
	-53:   "CL_INVALID_WORK_DIMENSION",
	-54:   "CL_INVALID_WORK_GROUP_SIZE",
	-55:   "CL_INVALID_WORK_ITEM_SIZE",
	-56:   "CL_INVALID_GLOBAL_OFFSET",
	-57:   "CL_INVALID_EVENT_WAIT_LIST",
	-58:   "CL_INVALID_EVENT",
	-59:   "CL_INVALID_OPERATION",
	-60:   "CL_INVALID_GL_OBJECT",
	-61:   "CL_INVALID_BUFFER_SIZE",
	-62:   "CL_INVALID_MIP_LEVEL",
	-63:   "CL_INVALID_GLOBAL_WORK_SIZE",
	-64:   "CL_INVALID_PROPERTY",
	-65:   "CL_INVALID_IMAGE_DESCRIPTOR",
	-66:   "CL_INVALID_COMPILER_OPTIONS",
	-67:   "CL_INVALID_LINKER_OPTIONS",
	-68:   "CL_INVALID_DEVICE_PARTITION_COUNT",
	-1000: "CL_INVALID_GL_SHAREGROUP_REFERENCE_KHR",
	-1001: "CL_PLATFORM_NOT_FOUND_KHR",
	-1002: "CL_INVALID_D3D10_DEVICE_KHR",
	-1003: "CL_INVALID_D3D10_RESOURCE_KHR",
	-1004: "CL_D3D10_RESOURCE_ALREADY_ACQUIRED_KHR",
	-1005: "CL_D3D10_RESOURCE_NOT_ACQUIRED_KHR",
}

// Name returns the symbolic name of the status code.
func (s Status) Name() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "CL_UNKNOWN_ERROR"
}

func (s Status) String() string {
	return s.Name()
}

// Error makes a Status usable as an errors.Is target.
func (s Status) Error() string {
	return fmt.Sprintf("%s (%d)", s.Name(), int32(s))
}

// StatusError reports a non-success status returned by a runtime call.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Status.Name(), int32(e.Status))
}

func (e *StatusError) Unwrap() error {
	return e.Status
}

// NewStatusError returns nil for StatusSuccess and a *StatusError otherwise.
func NewStatusError(op string, status Status) error {
	if status == StatusSuccess {
		return nil
	}
	return &StatusError{Op: op, Status: status}
}

// StatusOf extracts the runtime status carried by err, if any.
func StatusOf(err error) (Status, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return StatusSuccess, false
}

// Package opencl binds the system OpenCL library through cgo. It is only
// compiled with the gpu build tag; without it the registered runtime fails
// with ErrNotBuilt.
package opencl

import "errors"

// Name is the registry name of the OpenCL runtime.
const Name = "opencl"

// ErrNotBuilt indicates the binary was built without OpenCL support.
var ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")

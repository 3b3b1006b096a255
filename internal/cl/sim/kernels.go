package sim

import "github.com/pkg/errors"

// WorkItem identifies one invocation of a kernel within a dispatch.
type WorkItem struct {
	GlobalID   int
	LocalID    int
	GroupID    int
	GlobalSize int
	LocalSize  int
}

// Arg is one bound kernel argument as seen by a KernelFunc. For pointer
// parameters Data aliases the buffer storage; for scalars it holds a copy of
// the bound value.
type Arg struct {
	Param Param
	Data  []byte
}

// KernelFunc is the Go implementation of a simulated kernel, invoked once per
// work item.
type KernelFunc func(item WorkItem, args []Arg) error

var builtinKernels = map[string]KernelFunc{
	"copy":          copyKernel,
	"identity":      copyKernel,
	"identity_copy": copyKernel,
}

// copyKernel copies element GlobalID of args[0] into args[1].
func copyKernel(item WorkItem, args []Arg) error {
	if len(args) < 2 {
		return errors.Errorf("copy kernel expects 2 arguments, got %d", len(args))
	}
	src, dst := args[0], args[1]
	if !src.Param.Pointer || !dst.Param.Pointer {
		return errors.New("copy kernel expects two pointer arguments")
	}
	size := src.Param.ElemSize
	lo, hi := item.GlobalID*size, (item.GlobalID+1)*size
	if hi > len(src.Data) || hi > len(dst.Data) {
		return errors.Errorf("copy kernel: work item %d accesses bytes [%d,%d) past end of buffer", item.GlobalID, lo, hi)
	}
	copy(dst.Data[lo:hi], src.Data[lo:hi])
	return nil
}

//go:build !gpu

package opencl

import "github.com/cwbudde/clsession/internal/cl"

func init() {
	cl.Register(Name, func(config string) (cl.Runtime, error) {
		return nil, ErrNotBuilt
	})
}

//go:build !gpu

package opencl

import (
	"errors"
	"testing"

	"github.com/cwbudde/clsession/internal/cl"
)

func TestOpenWithoutGPUTag(t *testing.T) {
	_, err := cl.Open(Name)
	if !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("Expected ErrNotBuilt, got %v", err)
	}
}

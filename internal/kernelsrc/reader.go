// Package kernelsrc loads kernel source text.
package kernelsrc

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/cwbudde/clsession/internal/cl"
)

// Reader returns the kernel source stored at path.
type Reader interface {
	ReadSource(path string) (string, error)
}

// FSReader reads sources from a file system.
type FSReader struct {
	FS fs.FS
}

// Dir returns an FSReader rooted at dir on the host file system.
func Dir(dir string) FSReader {
	return FSReader{FS: os.DirFS(dir)}
}

func (r FSReader) ReadSource(path string) (string, error) {
	data, err := fs.ReadFile(r.FS, path)
	if err != nil {
		return "", fmt.Errorf("failed to read kernel source %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%s: %w", path, cl.ErrEmptySource)
	}
	return string(data), nil
}

package cl

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies session failures so callers can decide whether to
// retry, degrade or abort.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindResolution covers enumeration failures and unsatisfiable capability requirements.
	KindResolution
	// KindBuild covers program creation, compilation and kernel lookup failures.
	KindBuild
	// KindResource covers allocation and argument binding failures.
	KindResource
	// KindUsage covers contract violations by the caller.
	KindUsage
)

func (k ErrorKind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindBuild:
		return "build"
	case KindResource:
		return "resource"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

var (
	ErrNoPlatforms      = errors.New("no platforms found")
	ErrNoDevices        = errors.New("no devices found")
	ErrExtensionMissing = errors.New("required extension not supported")
	ErrKindMismatch     = errors.New("attribute kind mismatch")
	ErrEmptySource      = errors.New("kernel source is empty")
	ErrBuildFailed      = errors.New("program build failed")
	ErrKernelNotFound   = errors.New("kernel entry point not found")
	ErrArgCollision     = errors.New("kernel argument index already bound")
	ErrBufferOverflow   = errors.New("transfer exceeds buffer size")
	ErrWorkSizeUnset    = errors.New("work size not initialized")
	ErrNotDivisible     = errors.New("global work size not divisible by local work size")
	ErrInvalidState     = errors.New("operation not valid in current session state")
	ErrReleased         = errors.New("resource already released")
)

// Error is the tagged error returned by every fallible session and catalog
// operation.
type Error struct {
	Kind ErrorKind
	// Op names the failing operation, e.g. "build_program".
	Op  string
	Err error
	// Log holds the full compiler output for build failures.
	Log string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s error", e.Op, e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Log != "" {
		b.WriteString("\nbuild log:\n")
		b.WriteString(e.Log)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error whose cause is formatted like fmt.Errorf, so %w
// verbs keep the wrapped errors reachable.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// BuildLog returns the compiler log attached to err, if any.
func BuildLog(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Log
	}
	return ""
}

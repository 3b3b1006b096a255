package session

import (
	"log/slog"

	"github.com/cwbudde/clsession/internal/catalog"
	"github.com/cwbudde/clsession/internal/cl"
	"github.com/cwbudde/clsession/internal/kernelsrc"
	"github.com/cwbudde/clsession/internal/trace"
)

// DivisibilityPolicy decides what happens when the global work size is not a
// multiple of the local work size.
type DivisibilityPolicy int

const (
	// DivisibilityFatal rejects the dispatch before it is enqueued.
	DivisibilityFatal DivisibilityPolicy = iota
	// DivisibilityWarn logs a warning and lets the runtime decide.
	DivisibilityWarn
)

func (p DivisibilityPolicy) String() string {
	if p == DivisibilityWarn {
		return "warn"
	}
	return "fatal"
}

// Recorder receives one entry per completed dispatch. *trace.Writer
// satisfies it.
type Recorder interface {
	Write(entry trace.Entry) error
}

type options struct {
	req          catalog.Requirements
	props        []cl.ContextProperty
	bindPlatform bool
	divisibility DivisibilityPolicy
	reader       kernelsrc.Reader
	recorder     Recorder
	logger       *slog.Logger
}

// Option configures a Session.
type Option func(*options)

// WithRequirements sets the extensions the selected device must support.
func WithRequirements(req catalog.Requirements) Option {
	return func(o *options) { o.req = req }
}

// WithExtensions requires exts of the device, accepting ones its platform
// reports on its behalf.
func WithExtensions(exts ...string) Option {
	return func(o *options) { o.req = catalog.Require(exts...) }
}

// WithContextProperties passes extra properties to context creation.
func WithContextProperties(props ...cl.ContextProperty) Option {
	return func(o *options) { o.props = append(o.props, props...) }
}

// WithPlatformBinding adds the selected platform as a context property.
func WithPlatformBinding() Option {
	return func(o *options) { o.bindPlatform = true }
}

func WithDivisibility(policy DivisibilityPolicy) Option {
	return func(o *options) { o.divisibility = policy }
}

// WithSourceReader sets where CreateProgram loads kernel source from.
// The default reads relative to the working directory.
func WithSourceReader(r kernelsrc.Reader) Option {
	return func(o *options) { o.reader = r }
}

// WithTracer records every dispatch once the queue has been finished.
func WithTracer(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

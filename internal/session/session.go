// Package session drives one accelerator device through the
// context → queue → program → kernel → dispatch pipeline and keeps track of
// the resources it creates.
//
// A Session is not safe for concurrent use.
package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/clsession/internal/catalog"
	"github.com/cwbudde/clsession/internal/cl"
	"github.com/cwbudde/clsession/internal/kernelsrc"
	"github.com/cwbudde/clsession/internal/trace"
)

// State is the position of a session in the build pipeline.
type State int

const (
	StateUninitialized State = iota
	StateQueueReady
	StateProgramCreated
	StateProgramBuilt
	StateKernelReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateQueueReady:
		return "queue-ready"
	case StateProgramCreated:
		return "program-created"
	case StateProgramBuilt:
		return "program-built"
	case StateKernelReady:
		return "kernel-ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session owns a context, an in-order queue and everything created on them.
type Session struct {
	rt      cl.Runtime
	catalog *catalog.Catalog
	opts    options
	logger  *slog.Logger

	state   State
	ctx     cl.Context
	queue   cl.Queue
	program cl.Program
	kernel  cl.Kernel
	// kernelName is the entry point of kernel, for logs and traces.
	kernelName string

	global, local int
	binder        *Binder
	buffers       []*Buffer

	seq     int
	pending []trace.Entry
}

// New selects a device on rt and creates a context and an in-order queue for
// it. On failure everything created so far is released.
func New(rt cl.Runtime, opts ...Option) (*Session, error) {
	o := options{reader: kernelsrc.Dir(".")}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := catalog.New(rt, o.req, logger)
	if err != nil {
		return nil, err
	}

	props := append([]cl.ContextProperty(nil), o.props...)
	if o.bindPlatform {
		props = append(props, cl.ContextProperty{Key: cl.ContextPlatform, Value: uintptr(cat.Platform().ID)})
	}

	ctx, err := rt.CreateContext(cat.DeviceID(), props)
	if err != nil {
		return nil, &cl.Error{Kind: cl.KindResource, Op: "create_context", Err: err}
	}
	queue, err := rt.CreateQueue(ctx, cat.DeviceID())
	if err != nil {
		if relErr := rt.ReleaseContext(ctx); relErr != nil {
			logger.Warn("Failed to release context", "error", relErr)
		}
		return nil, &cl.Error{Kind: cl.KindResource, Op: "create_queue", Err: err}
	}

	logger.Debug("Session ready", "device", cat.Device().Name(), "runtime", rt.Name())

	return &Session{
		rt:      rt,
		catalog: cat,
		opts:    o,
		logger:  logger,
		state:   StateQueueReady,
		ctx:     ctx,
		queue:   queue,
		binder:  newBinder(),
	}, nil
}

func (s *Session) State() State { return s.state }

// Catalog returns the hardware catalog the device was selected from.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

func (s *Session) Device() *catalog.Device { return s.catalog.Device() }

func (s *Session) Runtime() cl.Runtime { return s.rt }

// Binder exposes the argument binder of the current kernel run.
func (s *Session) Binder() *Binder { return s.binder }

// Divisibility returns the configured divisibility policy.
func (s *Session) Divisibility() DivisibilityPolicy { return s.opts.divisibility }

// Buffers returns the buffers that have not been released yet.
func (s *Session) Buffers() []*Buffer {
	return append([]*Buffer(nil), s.buffers...)
}

// requireState fails with a usage error unless the session is in one of allowed.
func (s *Session) requireState(op string, allowed ...State) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return cl.Errorf(cl.KindUsage, op, "%w: session is %s, need %v", cl.ErrInvalidState, s.state, allowed)
}

// requireOpen fails with a usage error once the session is closed.
func (s *Session) requireOpen(op string) error {
	if s.state == StateUninitialized || s.state == StateClosed {
		return cl.Errorf(cl.KindUsage, op, "%w: session is %s", cl.ErrInvalidState, s.state)
	}
	return nil
}

// Close releases every live buffer, records dispatches still pending in the
// trace, then releases the kernel, program, queue and context. Releasing the
// queue drains it. Closing a closed session is a no-op.
func (s *Session) Close() error {
	if s.state == StateClosed || s.state == StateUninitialized {
		return nil
	}

	var errs []error
	for _, b := range s.Buffers() {
		if err := b.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	s.flushTrace(0)
	errs = append(errs, s.releaseProgram())
	if err := s.rt.ReleaseQueue(s.queue); err != nil {
		errs = append(errs, err)
	}
	if err := s.rt.ReleaseContext(s.ctx); err != nil {
		errs = append(errs, err)
	}
	s.state = StateClosed

	if err := errors.Join(errs...); err != nil {
		return &cl.Error{Kind: cl.KindResource, Op: "close", Err: err}
	}
	return nil
}

// releaseKernel frees the current kernel, if any, and forgets its bindings.
func (s *Session) releaseKernel() error {
	if s.kernel == 0 {
		return nil
	}
	err := s.rt.ReleaseKernel(s.kernel)
	s.kernel, s.kernelName = 0, ""
	s.binder.Reset()
	return err
}

// releaseProgram frees the current kernel and program, if any.
func (s *Session) releaseProgram() error {
	errKernel := s.releaseKernel()
	if s.program == 0 {
		return errKernel
	}
	err := s.rt.ReleaseProgram(s.program)
	s.program = 0
	return errors.Join(errKernel, err)
}

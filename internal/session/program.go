package session

import (
	"fmt"
	"strings"

	"github.com/cwbudde/clsession/internal/cl"
)

// CreateProgram reads the kernel source at path and creates a program from
// it. A program created earlier is released first.
func (s *Session) CreateProgram(path string) error {
	if err := s.requireOpen("create_program"); err != nil {
		return err
	}
	src, err := s.opts.reader.ReadSource(path)
	if err != nil {
		return &cl.Error{Kind: cl.KindBuild, Op: "create_program", Err: err}
	}
	return s.createProgram("create_program", src)
}

// CreateProgramFromSource creates a program from in-memory source text.
func (s *Session) CreateProgramFromSource(src string) error {
	if err := s.requireOpen("create_program"); err != nil {
		return err
	}
	return s.createProgram("create_program", src)
}

func (s *Session) createProgram(op, src string) error {
	if strings.TrimSpace(src) == "" {
		return &cl.Error{Kind: cl.KindBuild, Op: op, Err: cl.ErrEmptySource}
	}
	if err := s.releaseProgram(); err != nil {
		s.logger.Warn("Failed to release previous program", "error", err)
	}

	program, err := s.rt.CreateProgramWithSource(s.ctx, src)
	if err != nil {
		s.state = StateQueueReady
		return &cl.Error{Kind: cl.KindBuild, Op: op, Err: err}
	}
	s.program = program
	s.state = StateProgramCreated
	return nil
}

// BuildProgram compiles the program for the selected device. A failed build
// returns a build error carrying the complete compiler log.
func (s *Session) BuildProgram() error {
	if err := s.requireState("build_program", StateProgramCreated); err != nil {
		return err
	}

	err := s.rt.BuildProgram(s.program, s.catalog.DeviceID(), "")
	if err == nil {
		s.state = StateProgramBuilt
		return nil
	}

	log := s.buildLog()
	s.logger.Error("Program build failed",
		"device", s.catalog.Device().Name(),
		"error", err,
		"log", log)

	return &cl.Error{
		Kind: cl.KindBuild,
		Op:   "build_program",
		Err:  fmt.Errorf("%w: %w", cl.ErrBuildFailed, err),
		Log:  log,
	}
}

// buildLog fetches the compiler log. It is never empty, so a build error
// always carries something to show.
func (s *Session) buildLog() string {
	raw, err := s.rt.ProgramBuildLog(s.program, s.catalog.DeviceID())
	if err != nil {
		return fmt.Sprintf("<build log unavailable: %v>", err)
	}
	log := strings.TrimRight(cl.DecodeString(raw), "\n")
	if log == "" {
		return "<empty build log>"
	}
	return log
}

// CreateKernel resolves the named entry point of the built program. A kernel
// created earlier is released and its bindings are forgotten.
func (s *Session) CreateKernel(name string) error {
	if err := s.requireState("create_kernel", StateProgramBuilt, StateKernelReady); err != nil {
		return err
	}
	if err := s.releaseKernel(); err != nil {
		s.logger.Warn("Failed to release previous kernel", "error", err)
	}
	s.state = StateProgramBuilt

	kernel, err := s.rt.CreateKernel(s.program, name)
	if err != nil {
		if status, ok := cl.StatusOf(err); ok && status == cl.StatusInvalidKernelName {
			return cl.Errorf(cl.KindBuild, "create_kernel", "%w: %q: %w", cl.ErrKernelNotFound, name, err)
		}
		return &cl.Error{Kind: cl.KindBuild, Op: "create_kernel", Err: err}
	}
	s.kernel, s.kernelName = kernel, name
	s.state = StateKernelReady
	return nil
}

// CreateAndBuildProgram is CreateProgram followed by BuildProgram.
func (s *Session) CreateAndBuildProgram(path string) error {
	if err := s.CreateProgram(path); err != nil {
		return err
	}
	return s.BuildProgram()
}

// CreateProgramAndKernel creates and builds the program at path and resolves
// the named kernel.
func (s *Session) CreateProgramAndKernel(path, name string) error {
	if err := s.CreateAndBuildProgram(path); err != nil {
		return err
	}
	return s.CreateKernel(name)
}

// KernelName returns the entry point of the current kernel.
func (s *Session) KernelName() string { return s.kernelName }

package session

import (
	"time"

	"github.com/cwbudde/clsession/internal/cl"
	"github.com/cwbudde/clsession/internal/trace"
)

// SetKernelArgAt binds buf to the kernel parameter at index.
func (s *Session) SetKernelArgAt(index uint32, buf *Buffer) error {
	if err := s.argPrecheck("set_kernel_arg", buf); err != nil {
		return err
	}
	return s.binder.BindAt(index, func(i uint32) error {
		return s.rt.SetKernelArgMem(s.kernel, i, buf.mem)
	})
}

// SetKernelArg binds buf to the next auto-indexed parameter and returns the
// index it landed on.
func (s *Session) SetKernelArg(buf *Buffer) (uint32, error) {
	if err := s.argPrecheck("set_kernel_arg", buf); err != nil {
		return 0, err
	}
	return s.binder.BindNext(func(i uint32) error {
		return s.rt.SetKernelArgMem(s.kernel, i, buf.mem)
	})
}

// SetKernelValueAt binds raw scalar bytes (see package hostbuf) to the kernel
// parameter at index.
func (s *Session) SetKernelValueAt(index uint32, value []byte) error {
	if err := s.requireState("set_kernel_value", StateKernelReady); err != nil {
		return err
	}
	return s.binder.BindAt(index, func(i uint32) error {
		return s.rt.SetKernelArgBytes(s.kernel, i, value)
	})
}

// SetKernelValue binds raw scalar bytes to the next auto-indexed parameter.
func (s *Session) SetKernelValue(value []byte) (uint32, error) {
	if err := s.requireState("set_kernel_value", StateKernelReady); err != nil {
		return 0, err
	}
	return s.binder.BindNext(func(i uint32) error {
		return s.rt.SetKernelArgBytes(s.kernel, i, value)
	})
}

func (s *Session) argPrecheck(op string, buf *Buffer) error {
	if err := s.requireState(op, StateKernelReady); err != nil {
		return err
	}
	return s.live(op, buf)
}

// SetItemSizes records the global and local work sizes of the next dispatch.
func (s *Session) SetItemSizes(global, local int) {
	s.global, s.local = global, local
}

func (s *Session) SetGlobalItemSize(global int) { s.global = global }

func (s *Session) SetLocalItemSize(local int) { s.local = local }

func (s *Session) GlobalItemSize() int { return s.global }

func (s *Session) LocalItemSize() int { return s.local }

// RunKernelWithSizes records the work sizes and runs the kernel.
func (s *Session) RunKernelWithSizes(global, local int) error {
	s.SetItemSizes(global, local)
	return s.RunKernel()
}

// RunKernel validates the recorded work sizes and enqueues a one-dimensional
// dispatch of the current kernel. Nothing is enqueued when validation fails.
func (s *Session) RunKernel() error {
	const op = "run_kernel"
	if err := s.requireState(op, StateKernelReady); err != nil {
		return err
	}
	if s.global <= 0 {
		return cl.Errorf(cl.KindUsage, op, "%w: global work size is %d", cl.ErrWorkSizeUnset, s.global)
	}
	if s.local <= 0 {
		return cl.Errorf(cl.KindUsage, op, "%w: local work size is %d", cl.ErrWorkSizeUnset, s.local)
	}
	if s.global%s.local != 0 {
		if s.opts.divisibility == DivisibilityFatal {
			return cl.Errorf(cl.KindUsage, op, "%w: %d %% %d = %d", cl.ErrNotDivisible, s.global, s.local, s.global%s.local)
		}
		s.logger.Warn("Global work size is not divisible by local work size",
			"kernel", s.kernelName,
			"global", s.global,
			"local", s.local)
	}

	start := time.Now()
	if err := s.rt.EnqueueNDRange(s.queue, s.kernel, s.global, s.local); err != nil {
		return &cl.Error{Kind: dispatchKind(err), Op: op, Err: err}
	}
	elapsed := time.Since(start)

	s.seq++
	s.pending = append(s.pending, trace.Entry{
		Seq:       s.seq,
		Kernel:    s.kernelName,
		Global:    s.global,
		Local:     s.local,
		Enqueue:   elapsed,
		Timestamp: start,
	})
	s.logger.Debug("Kernel enqueued", "kernel", s.kernelName, "global", s.global, "local", s.local, "seq", s.seq)
	return nil
}

// dispatchKind classifies an enqueue failure: bad sizes or missing arguments
// are the caller's fault, anything else is a resource problem.
func dispatchKind(err error) cl.ErrorKind {
	status, _ := cl.StatusOf(err)
	switch status {
	case cl.StatusInvalidWorkGroupSize, cl.StatusInvalidGlobalWorkSize,
		cl.StatusInvalidKernelArgs, cl.StatusInvalidWorkDimension:
		return cl.KindUsage
	default:
		return cl.KindResource
	}
}

// FinishQueue blocks until all enqueued work has completed, then resets the
// argument binder so the next run binds from index 0 again.
func (s *Session) FinishQueue() error {
	const op = "finish_queue"
	if err := s.requireOpen(op); err != nil {
		return err
	}
	start := time.Now()
	if err := s.rt.Finish(s.queue); err != nil {
		return &cl.Error{Kind: cl.KindResource, Op: op, Err: err}
	}
	s.flushTrace(time.Since(start))
	s.binder.Reset()
	return nil
}

// flushTrace hands pending dispatch entries to the recorder.
func (s *Session) flushTrace(finish time.Duration) {
	pending := s.pending
	s.pending = nil
	if s.opts.recorder == nil {
		return
	}
	for _, entry := range pending {
		entry.Finish = finish
		if err := s.opts.recorder.Write(entry); err != nil {
			s.logger.Warn("Failed to record dispatch", "seq", entry.Seq, "error", err)
		}
	}
}

package session

import (
	"slices"

	"github.com/cwbudde/clsession/internal/cl"
)

// Buffer is a device allocation owned by a session. It stays live until
// Release or until the session is closed.
type Buffer struct {
	s        *Session
	mem      cl.Mem
	size     int
	flags    cl.MemFlags
	released bool
}

// Size returns the allocation size in bytes.
func (b *Buffer) Size() int { return b.size }

// Mem returns the runtime handle.
func (b *Buffer) Mem() cl.Mem { return b.mem }

// Flags returns the access flags the buffer was allocated with.
func (b *Buffer) Flags() cl.MemFlags { return b.flags }

func (b *Buffer) Released() bool { return b.released }

// Release frees the device memory. Releasing twice is a usage error.
func (b *Buffer) Release() error {
	if b.released {
		return cl.Errorf(cl.KindUsage, "release_buffer", "%w", cl.ErrReleased)
	}
	b.released = true
	b.s.buffers = slices.DeleteFunc(b.s.buffers, func(other *Buffer) bool { return other == b })
	if err := b.s.rt.ReleaseMem(b.mem); err != nil {
		return &cl.Error{Kind: cl.KindResource, Op: "release_buffer", Err: err}
	}
	return nil
}

// live checks that b can be used by this session.
func (s *Session) live(op string, b *Buffer) error {
	if b == nil || b.s != s {
		return cl.Errorf(cl.KindUsage, op, "buffer does not belong to this session")
	}
	if b.released {
		return cl.Errorf(cl.KindUsage, op, "%w", cl.ErrReleased)
	}
	return nil
}

// CreateBuffer allocates size bytes of device memory that kernels only read.
func (s *Session) CreateBuffer(size int) (*Buffer, error) {
	return s.createBuffer("create_buffer", size, cl.MemReadOnly)
}

// CreateOutputBuffer allocates size bytes that kernels write and the host
// reads back with ReadFromBuffer.
func (s *Session) CreateOutputBuffer(size int) (*Buffer, error) {
	return s.createBuffer("create_output_buffer", size, cl.MemWriteOnly)
}

func (s *Session) createBuffer(op string, size int, flags cl.MemFlags) (*Buffer, error) {
	if err := s.requireOpen(op); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, cl.Errorf(cl.KindUsage, op, "buffer size must be positive, got %d", size)
	}
	mem, err := s.rt.CreateBuffer(s.ctx, flags, size)
	if err != nil {
		return nil, &cl.Error{Kind: cl.KindResource, Op: op, Err: err}
	}
	b := &Buffer{s: s, mem: mem, size: size, flags: flags}
	s.buffers = append(s.buffers, b)
	return b, nil
}

// WriteToBuffer copies the first size bytes of data into buf and blocks until
// the copy completes.
func (s *Session) WriteToBuffer(buf *Buffer, size int, data []byte) error {
	return s.writeToBuffer("write_to_buffer", buf, size, data)
}

func (s *Session) writeToBuffer(op string, buf *Buffer, size int, data []byte) error {
	if err := s.requireOpen(op); err != nil {
		return err
	}
	if err := s.live(op, buf); err != nil {
		return err
	}
	if size < 0 {
		return cl.Errorf(cl.KindUsage, op, "negative transfer size %d", size)
	}
	if size > buf.size {
		return cl.Errorf(cl.KindUsage, op, "%w: %d bytes into a %d byte buffer", cl.ErrBufferOverflow, size, buf.size)
	}
	if size > len(data) {
		return cl.Errorf(cl.KindUsage, op, "%w: %d bytes requested from %d bytes of data", cl.ErrBufferOverflow, size, len(data))
	}
	if err := s.rt.WriteBuffer(s.queue, buf.mem, data[:size]); err != nil {
		return &cl.Error{Kind: cl.KindResource, Op: op, Err: err}
	}
	return nil
}

// CreateAndWriteBuffer allocates a buffer of size bytes and fills it from
// data. The error's Op tells which half failed; if the write fails the new
// buffer is released again.
func (s *Session) CreateAndWriteBuffer(size int, data []byte) (*Buffer, error) {
	buf, err := s.createBuffer("create_and_write_buffer/create", size, cl.MemReadOnly)
	if err != nil {
		return nil, err
	}
	if err := s.writeToBuffer("create_and_write_buffer/write", buf, size, data); err != nil {
		if relErr := buf.Release(); relErr != nil {
			s.logger.Warn("Failed to release buffer after write failure", "error", relErr)
		}
		return nil, err
	}
	return buf, nil
}

// ReadFromBuffer copies the whole of buf into dest and blocks until the copy
// completes. Pending dispatches on the queue finish first.
func (s *Session) ReadFromBuffer(dest []byte, buf *Buffer) error {
	const op = "read_from_buffer"
	if err := s.requireOpen(op); err != nil {
		return err
	}
	if err := s.live(op, buf); err != nil {
		return err
	}
	if len(dest) < buf.size {
		return cl.Errorf(cl.KindUsage, op, "%w: %d byte buffer into %d bytes of destination", cl.ErrBufferOverflow, buf.size, len(dest))
	}
	if err := s.rt.ReadBuffer(s.queue, buf.mem, dest[:buf.size]); err != nil {
		return &cl.Error{Kind: cl.KindResource, Op: op, Err: err}
	}
	return nil
}

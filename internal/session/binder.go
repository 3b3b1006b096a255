package session

import (
	"github.com/cwbudde/clsession/internal/cl"
)

// Binder assigns kernel argument indices. Auto-indexed and explicit binds
// share one bound set, so binding an index twice is reported instead of
// silently overwriting the earlier argument.
type Binder struct {
	next  uint32
	bound map[uint32]bool
}

func newBinder() *Binder {
	return &Binder{bound: make(map[uint32]bool)}
}

// BindNext binds at the cursor and advances it. set performs the actual
// runtime call; the cursor only moves when set succeeds.
func (b *Binder) BindNext(set func(index uint32) error) (uint32, error) {
	index := b.next
	if err := b.bind("bind_next", index, set); err != nil {
		return index, err
	}
	b.next++
	return index, nil
}

// BindAt binds at an explicit index without moving the cursor.
func (b *Binder) BindAt(index uint32, set func(index uint32) error) error {
	return b.bind("bind_at", index, set)
}

func (b *Binder) bind(op string, index uint32, set func(uint32) error) error {
	if b.bound[index] {
		return cl.Errorf(cl.KindResource, op, "%w: index %d", cl.ErrArgCollision, index)
	}
	if err := set(index); err != nil {
		return &cl.Error{Kind: cl.KindResource, Op: op, Err: err}
	}
	b.bound[index] = true
	return nil
}

// Next returns the index the next auto-indexed bind will use.
func (b *Binder) Next() uint32 { return b.next }

// Bound reports whether index already holds an argument.
func (b *Binder) Bound(index uint32) bool { return b.bound[index] }

// Reset rewinds the cursor and forgets every binding.
func (b *Binder) Reset() {
	b.next = 0
	clear(b.bound)
}

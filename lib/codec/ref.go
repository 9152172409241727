package codec

import (
	"sync"
	"sync/atomic"
)

// Ref is a reference-counted handle to a codec. Every holder calls Release
// once; the codec is closed when the last reference goes away.
//
// Codecs are not safe for concurrent use. Holders that may run on different
// goroutines wrap their codec calls in Lock and Unlock.
type Ref struct {
	codec Codec
	refs  atomic.Int32
	mu    sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Share wraps c in a handle holding one reference for the caller.
func Share(c Codec) *Ref {
	r := &Ref{codec: c}
	r.refs.Store(1)
	return r
}

func (r *Ref) Codec() Codec {
	return r.codec
}

// Acquire adds a reference. It returns nil once the codec has been closed.
func (r *Ref) Acquire() *Ref {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return nil
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return r
		}
	}
}

// Release drops a reference and closes the codec when none are left.
func (r *Ref) Release() error {
	n := r.refs.Add(-1)
	if n < 0 {
		r.refs.Store(0)
		return ErrReleased
	}
	if n == 0 {
		r.closeOnce.Do(func() {
			r.closeErr = r.codec.Close()
		})
		return r.closeErr
	}
	return nil
}

func (r *Ref) Lock()   { r.mu.Lock() }
func (r *Ref) Unlock() { r.mu.Unlock() }

func (r *Ref) Refs() int {
	return int(r.refs.Load())
}

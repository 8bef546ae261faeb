package resource

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/kbukum/streamkit/errors"
)

// ReadCapable is implemented by streams that can report whether they are readable.
type ReadCapable interface {
	CanRead() bool
}

// WriteCapable is implemented by streams that can report whether they are writable.
type WriteCapable interface {
	CanWrite() bool
}

// Flusher is implemented by writers that buffer output.
type Flusher interface {
	Flush() error
}

// Pull is a readable stream plus whether the holder must close it. Release
// may be called while a Read is in flight.
type Pull struct {
	r    io.Reader
	owns bool

	once     sync.Once
	released atomic.Bool
	err      error
}

// NewPull wraps r. When owns is true, Release closes r.
func NewPull(r io.Reader, owns bool) (*Pull, error) {
	if r == nil {
		return nil, errors.InvalidArgument("reader", "must not be nil")
	}
	if rc, ok := r.(ReadCapable); ok && !rc.CanRead() {
		return nil, errors.NotSupported("read")
	}
	return &Pull{r: r, owns: owns}, nil
}

// Read reads from the wrapped stream.
func (p *Pull) Read(b []byte) (int, error) {
	if p.released.Load() {
		return 0, errors.Disposed("pull handle")
	}
	return p.r.Read(b)
}

// CanRead reports whether the handle still yields data.
func (p *Pull) CanRead() bool { return !p.released.Load() }

// Reader returns the wrapped stream.
func (p *Pull) Reader() io.Reader { return p.r }

// Owns reports whether Release closes the stream.
func (p *Pull) Owns() bool { return p.owns }

// Release closes the stream when owned. Only the first call has an effect.
func (p *Pull) Release() error {
	p.once.Do(func() {
		p.released.Store(true)
		p.err = closeOwned(p.r, p.owns)
	})
	return p.err
}

// Push is a writable stream, whether the holder must close it, and the
// context that cancels writes.
type Push struct {
	ctx  context.Context
	w    io.Writer
	owns bool

	once     sync.Once
	released bool
	err      error
}

// NewPush wraps w. When owns is true, Release closes w.
func NewPush(ctx context.Context, w io.Writer, owns bool) (*Push, error) {
	if w == nil {
		return nil, errors.InvalidArgument("writer", "must not be nil")
	}
	if wc, ok := w.(WriteCapable); ok && !wc.CanWrite() {
		return nil, errors.NotSupported("write")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Push{ctx: ctx, w: w, owns: owns}, nil
}

// Write writes to the wrapped stream unless the context is done.
func (p *Push) Write(b []byte) (int, error) {
	if p.released {
		return 0, errors.Disposed("push handle")
	}
	if err := p.ctx.Err(); err != nil {
		return 0, errors.Cancelled(err)
	}
	return p.w.Write(b)
}

// Flush flushes the wrapped stream when it buffers output.
func (p *Push) Flush() error {
	if p.released {
		return errors.Disposed("push handle")
	}
	if err := p.ctx.Err(); err != nil {
		return errors.Cancelled(err)
	}
	if f, ok := p.w.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// CanWrite reports whether the handle still accepts writes.
func (p *Push) CanWrite() bool { return !p.released }

// Context returns the cancellation context of the handle.
func (p *Push) Context() context.Context { return p.ctx }

// Writer returns the wrapped stream.
func (p *Push) Writer() io.Writer { return p.w }

// Owns reports whether Release closes the stream.
func (p *Push) Owns() bool { return p.owns }

// Release closes the stream when owned. Only the first call has an effect.
func (p *Push) Release() error {
	p.once.Do(func() {
		p.released = true
		p.err = closeOwned(p.w, p.owns)
	})
	return p.err
}

func closeOwned(stream any, owns bool) error {
	if !owns {
		return nil
	}
	if c, ok := stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

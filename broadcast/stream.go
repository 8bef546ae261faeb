package broadcast

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/resource"
)

// Sink names.
const (
	Primary   = "primary"
	Secondary = "secondary"
)

// SinkError is what an OnSecondaryError handler receives. Writer is the
// sink as it was passed to New.
type SinkError struct {
	Sink   string
	Writer io.Writer
	Err    error
}

func (e SinkError) Error() string { return fmt.Sprintf("%s sink: %v", e.Sink, e.Err) }

func (e SinkError) Unwrap() error { return e.Err }

// Option configures a Stream.
type Option func(*options)

type options struct {
	disposeSecondary bool
	onSecondaryError func(SinkError)
	log              *logger.Logger
}

// DisposeSecondary makes Close close the secondary sink as well.
func DisposeSecondary() Option {
	return func(o *options) { o.disposeSecondary = true }
}

// OnSecondaryError isolates secondary failures: fn receives the first one
// and the secondary receives no further writes.
func OnSecondaryError(fn func(SinkError)) Option {
	return func(o *options) { o.onSecondaryError = fn }
}

// WithLogger sets the logger that reports an isolated secondary.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// Stream fans writes out to two sinks. It is not safe for concurrent use.
type Stream struct {
	ctx       context.Context
	primary   *resource.Push
	secondary *resource.Push
	opts      options
	log       *logger.Logger

	mu              sync.Mutex
	secondaryActive bool
	closed          bool
}

// New creates a stream writing to primary and secondary. The stream owns
// primary; it owns secondary only with DisposeSecondary. Both sinks must be
// writable.
func New(ctx context.Context, primary, secondary io.Writer, opts ...Option) (*Stream, error) {
	if primary == nil {
		return nil, errors.InvalidArgument(Primary, "must not be nil")
	}
	if secondary == nil {
		return nil, errors.InvalidArgument(Secondary, "must not be nil")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p, err := resource.NewPush(ctx, primary, true)
	if err != nil {
		return nil, err
	}
	s, err := resource.NewPush(ctx, secondary, o.disposeSecondary)
	if err != nil {
		return nil, err
	}
	return &Stream{
		ctx:             p.Context(),
		primary:         p,
		secondary:       s,
		opts:            o,
		log:             logger.OrNop(o.log).WithComponent("broadcast"),
		secondaryActive: true,
	}, nil
}

// Write writes p to both sinks concurrently and waits for both.
func (s *Stream) Write(p []byte) (int, error) {
	n := 0
	err := s.fanOut("write", func(sink *resource.Push) error {
		written, err := sink.Write(p)
		if sink == s.primary {
			n = written
		}
		if err == nil && written < len(p) {
			err = io.ErrShortWrite
		}
		return err
	})
	if err != nil {
		return n, err
	}
	return len(p), nil
}

// Flush flushes both sinks under the same failure policy as Write.
func (s *Stream) Flush() error {
	return s.fanOut("flush", func(sink *resource.Push) error {
		return sink.Flush()
	})
}

func (s *Stream) fanOut(op string, call func(sink *resource.Push) error) error {
	s.mu.Lock()
	isolated, err := s.fanOutLocked(op, call)
	s.mu.Unlock()

	// The handler runs unlocked so it may inspect the stream.
	if isolated != nil {
		s.opts.onSecondaryError(*isolated)
	}
	return err
}

func (s *Stream) fanOutLocked(op string, call func(sink *resource.Push) error) (*SinkError, error) {
	if s.closed {
		return nil, errors.Disposed("broadcast stream")
	}
	if err := s.ctx.Err(); err != nil {
		return nil, errors.Cancelled(err)
	}

	var primaryErr, secondaryErr error
	var wg conc.WaitGroup
	wg.Go(func() { primaryErr = call(s.primary) })
	if s.secondaryActive {
		wg.Go(func() { secondaryErr = call(s.secondary) })
	}
	wg.Wait()

	if primaryErr != nil {
		return nil, errors.SinkFailure(Primary, primaryErr)
	}
	if secondaryErr == nil {
		return nil, nil
	}
	if s.opts.onSecondaryError == nil {
		return nil, errors.SinkFailure(Secondary, secondaryErr)
	}

	s.secondaryActive = false
	s.log.Warn("secondary sink isolated", logger.Fields(
		logger.FieldSink, Secondary,
		logger.FieldOperation, op,
		logger.FieldError, secondaryErr.Error(),
	))
	return &SinkError{Sink: Secondary, Writer: s.secondary.Writer(), Err: secondaryErr}, nil
}

// SecondaryActive reports whether the secondary still receives writes.
func (s *Stream) SecondaryActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secondaryActive && !s.closed
}

// Read is not supported.
func (s *Stream) Read([]byte) (int, error) { return 0, errors.NotSupported("read") }

// Seek is not supported.
func (s *Stream) Seek(int64, int) (int64, error) { return 0, errors.NotSupported("seek") }

// Len is always 0.
func (s *Stream) Len() int64 { return 0 }

// Position is always 0.
func (s *Stream) Position() int64 { return 0 }

// CanRead is always false.
func (s *Stream) CanRead() bool { return false }

// CanSeek is always false.
func (s *Stream) CanSeek() bool { return false }

// CanWrite reports whether the stream is still open.
func (s *Stream) CanWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close releases the primary, and the secondary when DisposeSecondary was
// given. Later calls return nil.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	perr := s.primary.Release()
	serr := s.secondary.Release()
	if perr != nil {
		return errors.SinkFailure(Primary, perr)
	}
	if serr != nil {
		return errors.SinkFailure(Secondary, serr)
	}
	return nil
}

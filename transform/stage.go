package transform

import (
	"context"
	"io"

	"github.com/kbukum/streamkit/errors"
)

// Stage transforms the bytes read from src into the bytes written to dst.
// Apply returns once src is exhausted and everything was written; it must
// not close dst.
type Stage interface {
	Name() string
	Apply(ctx context.Context, dst io.Writer, src io.Reader) error
}

// StageFunc adapts a function to Stage.
func StageFunc(name string, fn func(ctx context.Context, dst io.Writer, src io.Reader) error) Stage {
	return funcStage{name: name, fn: fn}
}

type funcStage struct {
	name string
	fn   func(ctx context.Context, dst io.Writer, src io.Reader) error
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Apply(ctx context.Context, dst io.Writer, src io.Reader) error {
	return s.fn(ctx, dst, src)
}

// copyStage moves bytes unchanged; it runs when a pipe has no stages.
var copyStage = StageFunc("copy", func(_ context.Context, dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
})

// ctxReader fails reads once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, errors.Cancelled(err)
	}
	return r.r.Read(p)
}

// ctxWriter fails writes once ctx is done and counts what went through.
type ctxWriter struct {
	ctx     context.Context
	w       io.Writer
	written int64
}

func (w *ctxWriter) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, errors.Cancelled(err)
	}
	n, err := w.w.Write(p)
	w.written += int64(n)
	return n, err
}

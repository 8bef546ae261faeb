package transform

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/resource"
)

// Option configures a Pipe.
type Option func(*options)

type options struct {
	log     *logger.Logger
	metrics *observability.Metrics
}

// WithLogger sets the logger used when the pipe is drained.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records drain and stage failure metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Pipe is an immutable chain of stages over one source.
type Pipe struct {
	src    *resource.Pull
	stages []Stage
	opts   options
}

// From starts a pipe reading from src. Draining the pipe releases src.
func From(src *resource.Pull, opts ...Option) *Pipe {
	p := &Pipe{src: src}
	for _, opt := range opts {
		opt(&p.opts)
	}
	return p
}

// FromReader starts a pipe reading from r; owns tells whether draining
// closes r.
func FromReader(r io.Reader, owns bool, opts ...Option) (*Pipe, error) {
	src, err := resource.NewPull(r, owns)
	if err != nil {
		return nil, err
	}
	return From(src, opts...), nil
}

// Then returns a new pipe with stage appended. p itself is left unchanged.
func (p *Pipe) Then(stage Stage) *Pipe {
	stages := make([]Stage, len(p.stages), len(p.stages)+1)
	copy(stages, p.stages)
	return &Pipe{src: p.src, stages: append(stages, stage), opts: p.opts}
}

// Stages returns the stage names in execution order.
func (p *Pipe) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Drain runs the chain into sink. The source is released when owned, and
// sink is closed when disposeSink is true, whatever the outcome.
func (p *Pipe) Drain(ctx context.Context, sink io.Writer, disposeSink bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if p == nil || p.src == nil {
		return errors.InvalidArgument("source", "must not be nil")
	}
	push, err := resource.NewPush(ctx, sink, disposeSink)
	if err != nil {
		_ = p.src.Release()
		return err
	}
	return p.run(ctx, push)
}

// DrainToFile runs the chain into a new file folder/name.ext on fs and
// returns its path. The file is removed when the chain fails.
func (p *Pipe) DrainToFile(ctx context.Context, fs afero.Fs, folder, name, ext string) (string, error) {
	if fs == nil {
		return "", errors.InvalidArgument("fs", "must not be nil")
	}
	if name == "" {
		return "", errors.InvalidArgument("name", "must not be empty")
	}
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	path := filepath.Join(folder, name)

	if err := fs.MkdirAll(folder, 0o755); err != nil {
		_ = p.releaseSource()
		return "", err
	}
	f, err := fs.Create(path)
	if err != nil {
		_ = p.releaseSource()
		return "", err
	}
	if err := p.Drain(ctx, f, true); err != nil {
		_ = fs.Remove(path)
		return "", err
	}
	return path, nil
}

// DrainToBytes runs the chain into memory.
func (p *Pipe) DrainToBytes(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Drain(ctx, &buf, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Pipe) releaseSource() error {
	if p == nil || p.src == nil {
		return nil
	}
	return p.src.Release()
}

func (p *Pipe) run(ctx context.Context, sink *resource.Push) (err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanTransformPipe)
	defer span.End()
	names := p.Stages()
	observability.SetSpanAttribute(ctx, observability.AttrStages, names)

	log := logger.OrNop(p.opts.log).WithContext(ctx).WithComponent("transform")
	log.Debug("transform drain started", logger.Fields("stages", strings.Join(names, ",")))
	start := time.Now()
	var written int64

	defer func() {
		if rerr := p.src.Release(); err == nil && rerr != nil {
			err = errors.StageFailure("source", rerr)
		}
		if rerr := sink.Release(); err == nil && rerr != nil {
			err = errors.StageFailure("sink", rerr)
		}

		status := observability.StatusOK
		switch {
		case err == nil:
			log.Debug("transform drain finished", logger.Fields(
				logger.FieldStatus, status,
				logger.FieldBytes, written,
				logger.FieldDuration, time.Since(start).Milliseconds(),
			))
		case errors.IsCancelled(err):
			status = observability.StatusCancelled
			log.Debug("transform drain cancelled", logger.Fields(logger.FieldStatus, status))
		default:
			status = observability.StatusError
			observability.SetSpanError(ctx, err)
			fields := logger.Fields(logger.FieldStatus, status)
			if appErr, ok := errors.AsAppError(err); ok && appErr.Details["stage"] != nil {
				fields[logger.FieldStage] = appErr.Details["stage"]
			}
			log.WithError(err).Error("transform drain failed", fields)
		}
		observability.SetSpanAttribute(ctx, observability.AttrStatus, status)
		p.opts.metrics.RecordDrain(ctx, status, written)
	}()

	if !p.src.CanRead() {
		return errors.Disposed("transform source")
	}
	written, err = p.execute(ctx, sink)
	return err
}

// execute runs one goroutine per stage. Stage i reads the output of stage
// i-1 through an io.Pipe; the first stage reads the source and the last one
// writes the sink.
func (p *Pipe) execute(ctx context.Context, sink io.Writer) (int64, error) {
	stages := p.stages
	if len(stages) == 0 {
		stages = []Stage{copyStage}
	}
	n := len(stages)

	readers := make([]*io.PipeReader, n-1)
	writers := make([]*io.PipeWriter, n-1)
	for i := range n - 1 {
		readers[i], writers[i] = io.Pipe()
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		cause := errors.Cancelled(gctx.Err())
		for i := range readers {
			readers[i].CloseWithError(cause)
			writers[i].CloseWithError(cause)
		}
		// Closing an owned source interrupts a first stage blocked in Read.
		_ = p.src.Release()
	})
	defer stop()

	var first firstError
	out := &ctxWriter{ctx: gctx, w: sink}

	for i, stage := range stages {
		var in io.Reader = p.src
		if i > 0 {
			in = readers[i-1]
		}
		var dst io.Writer = out
		if i < n-1 {
			dst = &ctxWriter{ctx: gctx, w: writers[i]}
		}

		g.Go(func() error {
			err := p.applyStage(gctx, stage, dst, ctxReader{ctx: gctx, r: in})
			first.record(err)

			if i < n-1 {
				writers[i].CloseWithError(err)
			}
			if i > 0 {
				if err != nil {
					readers[i-1].CloseWithError(err)
				} else {
					readers[i-1].Close()
				}
			}
			return err
		})
	}

	gerr := g.Wait()
	if err := first.get(); err != nil {
		return out.written, err
	}
	return out.written, gerr
}

// applyStage runs one stage under its own span and classifies its error.
// Input left over after a successful stage is discarded so the upstream
// hop can finish.
func (p *Pipe) applyStage(ctx context.Context, stage Stage, dst io.Writer, src io.Reader) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanStagePrefix+stage.Name())
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrStage, stage.Name())

	err := stage.Apply(ctx, dst, src)
	if err == nil {
		_, err = io.Copy(io.Discard, src)
	}

	switch {
	case err == nil:
		return nil
	case errors.IsCancelled(err):
		if errors.IsCode(err, errors.ErrCodeCancelled) {
			return err
		}
		return errors.Cancelled(err)
	case ctx.Err() != nil:
		// Closed pipes and a released source surface as plain I/O errors.
		return errors.Cancelled(ctx.Err())
	case errors.IsCode(err, errors.ErrCodeStageFailure):
		// Already attributed to the hop that failed first.
		return err
	default:
		observability.SetSpanError(ctx, err)
		p.opts.metrics.RecordStageFailure(ctx, stage.Name())
		return errors.StageFailure(stage.Name(), err)
	}
}

// firstError keeps the error of the first stage to fail. A stage records
// its error before closing its pipes, so failures it causes downstream or
// upstream always come later.
type firstError struct {
	mu  sync.Mutex
	err error
}

func (f *firstError) record(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *firstError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

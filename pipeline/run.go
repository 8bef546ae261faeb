package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/kbukum/streamkit/buffer"
	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
)

const defaultName = "pipeline"

// Config sizes a pipeline run.
type Config struct {
	// Producers is the number of producer tasks, at least 1.
	Producers int
	// Consumers is the number of consumer tasks, at least 1.
	Consumers int
	// Capacity bounds the shared buffer; 0 means unbounded.
	Capacity int
}

// Validate checks the task counts and the capacity.
func (c Config) Validate() error {
	switch {
	case c.Producers < 1:
		return errors.InvalidArgument("producers", "must be at least 1")
	case c.Consumers < 1:
		return errors.InvalidArgument("consumers", "must be at least 1")
	case c.Capacity < 0:
		return errors.InvalidArgument("capacity", "must not be negative")
	}
	return nil
}

// Producer pushes items into the run's buffer until it has nothing left.
type Producer[T any] func(ctx context.Context, out buffer.Distributor[T]) error

// Consumer pulls adapted units until the iterator is exhausted.
type Consumer[U any] func(ctx context.Context, in Iterator[U]) error

// ProducerFactory builds the producer with the given index.
type ProducerFactory[T any] func(index int) Producer[T]

// ConsumerFactory builds the consumer with the given index.
type ConsumerFactory[U any] func(index int) Consumer[U]

// Option configures Run.
type Option func(*options)

type options struct {
	name    string
	log     *logger.Logger
	metrics *observability.Metrics
}

// WithName labels the run in logs, spans and metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger used for run and task events.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records item and run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Run wires cfg.Producers producers and cfg.Consumers consumers around one
// buffer and waits for all of them.
//
// The first task error cancels the run; Run still waits for every task and
// then returns that error, not the cancellations it caused. Once every
// producer has returned the buffer is completed so consumers drain and stop.
// Once every consumer has returned the buffer is closed, so producers still
// holding items fail with a Disposed error instead of blocking forever.
// Panics inside tasks are returned as Internal errors. Cancelling ctx makes
// Run return a Cancelled error.
func Run[T, U any](
	ctx context.Context,
	cfg Config,
	adapter Adapter[T, U],
	newProducer ProducerFactory[T],
	newConsumer ConsumerFactory[U],
	opts ...Option,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if adapter == nil {
		return errors.InvalidArgument("adapter", "must not be nil")
	}
	if newProducer == nil {
		return errors.InvalidArgument("newProducer", "must not be nil")
	}
	if newConsumer == nil {
		return errors.InvalidArgument("newConsumer", "must not be nil")
	}

	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}

	producers := make([]Producer[T], cfg.Producers)
	for i := range producers {
		if producers[i] = newProducer(i); producers[i] == nil {
			return errors.InvalidArgument("newProducer", fmt.Sprintf("returned nil for producer %d", i))
		}
	}
	consumers := make([]Consumer[U], cfg.Consumers)
	for i := range consumers {
		if consumers[i] = newConsumer(i); consumers[i] == nil {
			return errors.InvalidArgument("newConsumer", fmt.Sprintf("returned nil for consumer %d", i))
		}
	}

	if err := ctx.Err(); err != nil {
		return errors.Cancelled(err)
	}

	runID := uuid.NewString()
	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineRun)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrPipeline, o.name)
	observability.SetSpanAttribute(ctx, observability.AttrRunID, runID)
	observability.SetSpanAttribute(ctx, observability.AttrProducers, cfg.Producers)
	observability.SetSpanAttribute(ctx, observability.AttrConsumers, cfg.Consumers)
	observability.SetSpanAttribute(ctx, observability.AttrCapacity, cfg.Capacity)

	log := logger.OrNop(o.log).WithContext(ctx).WithFields(logger.Fields(
		logger.FieldPipeline, o.name,
		logger.FieldRunID, runID,
	))
	log.Debug("pipeline run started", logger.Fields(
		logger.FieldProducer, cfg.Producers,
		logger.FieldConsumer, cfg.Consumers,
		"capacity", cfg.Capacity,
	))

	r := &run[T, U]{cfg: cfg, opts: o, log: log, adapter: adapter}
	start := time.Now()
	err := r.execute(ctx, producers, consumers)
	if err != nil && errors.IsCancelled(err) && !errors.IsCode(err, errors.ErrCodeCancelled) {
		err = errors.Cancelled(err)
	}
	elapsed := time.Since(start)

	status := observability.StatusOK
	fields := logger.DurationFields("run", elapsed)
	switch {
	case err == nil:
		fields[logger.FieldStatus] = status
		log.Debug("pipeline run finished", fields)
	case errors.IsCancelled(err):
		status = observability.StatusCancelled
		fields[logger.FieldStatus] = status
		log.Debug("pipeline run cancelled", fields)
	default:
		status = observability.StatusError
		fields[logger.FieldStatus] = status
		observability.SetSpanError(ctx, err)
		log.WithError(err).Error("pipeline run failed", fields)
	}
	observability.SetSpanAttribute(ctx, observability.AttrStatus, status)
	o.metrics.RecordRun(ctx, o.name, status, elapsed)
	return err
}

type run[T, U any] struct {
	cfg     Config
	opts    options
	log     *logger.Logger
	adapter Adapter[T, U]
	first   firstError
}

func (r *run[T, U]) execute(ctx context.Context, producers []Producer[T], consumers []Consumer[U]) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	buf, err := buffer.New[T](runCtx, r.cfg.Capacity)
	if err != nil {
		return err
	}
	defer buf.Close()

	out := r.distributor(buffer.DistributorOf(buf))
	feed := r.feed(buffer.FeedOf(buf))

	var producersLeft, consumersLeft atomic.Int32
	producersLeft.Store(int32(len(producers)))
	consumersLeft.Store(int32(len(consumers)))

	p := pool.New().
		WithContext(runCtx).
		WithCancelOnError().
		WithFirstError()

	for i, produce := range producers {
		p.Go(func(ctx context.Context) error {
			err := r.guard(logger.FieldProducer, i, func() error { return produce(ctx, out) })
			r.fail(err, cancel)
			if producersLeft.Add(-1) == 0 {
				buf.Complete()
			}
			return err
		})
	}
	for i, consume := range consumers {
		p.Go(func(ctx context.Context) error {
			iter := Adapt(feed, r.adapter)
			err := r.guard(logger.FieldConsumer, i, func() error { return consume(ctx, iter) })
			if cerr := iter.Close(); err == nil {
				err = cerr
			}
			r.fail(err, cancel)
			if consumersLeft.Add(-1) == 0 {
				buf.Close()
			}
			return err
		})
	}

	poolErr := p.Wait()
	if err := r.first.get(); err != nil {
		return err
	}
	return poolErr
}

// fail records err and cancels the buffer's context, so tasks that block
// without watching their own context are released as well.
func (r *run[T, U]) fail(err error, cancel context.CancelFunc) {
	if err == nil {
		return
	}
	r.first.record(err)
	cancel()
}

// guard runs one task, turning a panic into an Internal error.
func (r *run[T, U]) guard(role string, index int, task func() error) error {
	var err error
	if rec := panics.Try(func() { err = task() }); rec != nil {
		err = errors.Internal(fmt.Errorf("%s %d panicked: %v", role, index, rec.Value)).
			WithDetail("stack", string(rec.Stack))
	}
	switch {
	case err == nil:
	case errors.IsCancelled(err) || errors.IsCode(err, errors.ErrCodeDisposed):
		r.log.Debug("pipeline task stopped", logger.Fields(role, index, logger.FieldError, err.Error()))
	default:
		r.log.Error("pipeline task failed", logger.Fields(role, index, logger.FieldError, err.Error()))
	}
	return err
}

func (r *run[T, U]) distributor(out buffer.Distributor[T]) buffer.Distributor[T] {
	if r.opts.metrics == nil {
		return out
	}
	return buffer.DistributorFunc[T](func(ctx context.Context, item T) error {
		if err := out.Distribute(ctx, item); err != nil {
			return err
		}
		r.opts.metrics.RecordDistributed(ctx, r.opts.name, 1)
		return nil
	})
}

func (r *run[T, U]) feed(in buffer.Feed[T]) buffer.Feed[T] {
	if r.opts.metrics == nil {
		return in
	}
	return buffer.FeedFunc[T](func(ctx context.Context) (T, bool, error) {
		item, ok, err := in.Retrieve(ctx)
		if ok {
			r.opts.metrics.RecordRetrieved(ctx, r.opts.name, 1)
		}
		return item, ok, err
	})
}

// firstError keeps the error of the first task to fail. Tasks record their
// error before completing or closing the buffer, so errors caused by that
// failure can never be recorded ahead of it.
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

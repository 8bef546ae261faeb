package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/streamkit/config"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
)

// App carries the infrastructure shared by every task of a binary.
type App struct {
	Name    string
	Version string
	Cfg     *config.Config
	Logger  *logger.Logger
	// Metrics is set once RunTask has started.
	Metrics *observability.Metrics

	opts            *appOptions
	gracefulTimeout time.Duration
	onStart         []Hook
	onStop          []Hook
}

// NewApp applies defaults to cfg, validates it and builds the logger.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config validation: config is nil")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := resolveOptions(opts)
	app := &App{
		Name:            cfg.Name,
		Version:         o.version,
		Cfg:             cfg,
		opts:            o,
		gracefulTimeout: 15 * time.Second,
	}
	if app.Version == "" {
		app.Version = "dev"
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		app.Logger = logger.New(&cfg.Logging, cfg.Name)
	}
	return app, nil
}

// RunTask starts telemetry, runs the start hooks and then task. The task
// context is cancelled on SIGINT or SIGTERM. Stop hooks always run once
// startup succeeded; the task error wins over a stop error.
func (a *App) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		_ = a.stop()
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.Logger.Info("received signal, cancelling task", logger.Fields("signal", sig.String()))
			cancel()
		case <-taskCtx.Done():
		}
	}()

	start := time.Now()
	taskErr := task(taskCtx)
	cancel()
	a.Logger.Debug("task finished", logger.DurationFields("task", time.Since(start)))

	if stopErr := a.stop(); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

func (a *App) startup(ctx context.Context) error {
	a.Logger.Debug("starting", logger.Fields(
		"name", a.Name,
		"version", a.Version,
		"environment", a.Cfg.Environment,
	))

	if a.Cfg.Observability.Enabled() {
		if err := a.initTelemetry(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	meter := a.opts.meter
	if meter == nil {
		meter = observability.Meter(a.Name)
	}
	m, err := observability.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	a.Metrics = m

	if err := runHooks(ctx, a.onStart); err != nil {
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	return nil
}

// initTelemetry installs the OTLP tracer and meter providers and registers
// their shutdown as stop hooks, so buffered spans and metrics are flushed.
func (a *App) initTelemetry(ctx context.Context) error {
	obs := a.Cfg.Observability

	tcfg := observability.DefaultTracerConfig(a.Name)
	tcfg.ServiceVersion = a.Version
	tcfg.Environment = a.Cfg.Environment
	tcfg.Endpoint = obs.Endpoint
	tcfg.Insecure = obs.Insecure
	tcfg.SampleRate = obs.SampleRate
	tp, err := observability.InitTracer(ctx, tcfg)
	if err != nil {
		return err
	}
	a.OnStop(tp.Shutdown)

	mcfg := observability.DefaultMeterConfig(a.Name)
	mcfg.ServiceVersion = a.Version
	mcfg.Environment = a.Cfg.Environment
	mcfg.Endpoint = obs.Endpoint
	mcfg.Insecure = obs.Insecure
	mp, err := observability.InitMeter(ctx, mcfg)
	if err != nil {
		return err
	}
	a.OnStop(mp.Shutdown)

	a.Logger.Info("telemetry enabled", logger.Fields("endpoint", obs.Endpoint))
	return nil
}

func (a *App) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	if err := runStopHooks(ctx, a.onStop); err != nil {
		a.Logger.WithError(err).Error("shutdown completed with errors")
		return err
	}
	return nil
}

package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kbukum/streamkit/config"
	"github.com/kbukum/streamkit/logger"
)

func newTestConfig(name string) *config.Config {
	return &config.Config{Name: name, Environment: "development"}
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	app, err := NewApp(newTestConfig("test"), opts...)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func TestNewApp(t *testing.T) {
	app, err := NewApp(newTestConfig("flowctl"), WithVersion("1.0.0"))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.Name != "flowctl" {
		t.Errorf("expected name 'flowctl', got %q", app.Name)
	}
	if app.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", app.Version)
	}
	if app.Logger == nil {
		t.Error("expected non-nil logger")
	}
	if app.Cfg.Pipeline.Producers != 1 {
		t.Errorf("expected defaults to be applied, got %+v", app.Cfg.Pipeline)
	}
	if app.Metrics != nil {
		t.Error("metrics should only exist once a task runs")
	}
}

func TestNewAppValidation(t *testing.T) {
	if _, err := NewApp(nil); err == nil {
		t.Error("expected error for nil config")
	}
	_, err := NewApp(&config.Config{})
	if err == nil || !strings.Contains(err.Error(), "config validation") {
		t.Errorf("expected validation error for missing name, got %v", err)
	}
}

func TestDefaultVersionAndTimeout(t *testing.T) {
	app := newTestApp(t)
	if app.Version != "dev" {
		t.Errorf("expected 'dev', got %q", app.Version)
	}
	if app.gracefulTimeout != 15*time.Second {
		t.Errorf("expected 15s, got %v", app.gracefulTimeout)
	}
	app = newTestApp(t, WithGracefulTimeout(time.Second))
	if app.gracefulTimeout != time.Second {
		t.Errorf("expected 1s, got %v", app.gracefulTimeout)
	}
}

func TestRunTaskSuccess(t *testing.T) {
	app := newTestApp(t)
	executed := false
	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		executed = true
		if app.Metrics == nil {
			return fmt.Errorf("metrics not ready")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}
	if !executed {
		t.Error("expected task to be executed")
	}
}

func TestRunTaskError(t *testing.T) {
	app := newTestApp(t)
	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		return fmt.Errorf("task error")
	})
	if err == nil || err.Error() != "task error" {
		t.Errorf("expected 'task error', got %v", err)
	}
}

func TestRunTaskCancellation(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := app.RunTask(ctx, func(taskCtx context.Context) error {
		cancel()
		<-taskCtx.Done()
		return taskCtx.Err()
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunTaskWithHooks(t *testing.T) {
	app := newTestApp(t)

	var order []string
	app.OnStart(func(ctx context.Context) error {
		order = append(order, "start")
		return nil
	})
	app.OnStop(
		func(ctx context.Context) error {
			order = append(order, "stop-1")
			return nil
		},
		func(ctx context.Context) error {
			order = append(order, "stop-2")
			return nil
		},
	)

	if err := app.RunTask(context.Background(), func(ctx context.Context) error {
		order = append(order, "task")
		return nil
	}); err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	expected := []string{"start", "task", "stop-2", "stop-1"}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestRunTaskWithStartHookError(t *testing.T) {
	app := newTestApp(t)
	app.OnStart(func(ctx context.Context) error {
		return fmt.Errorf("start hook failed")
	})
	stopped := false
	app.OnStop(func(ctx context.Context) error {
		stopped = true
		return nil
	})

	executed := false
	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		executed = true
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "onStart hook failed") {
		t.Errorf("expected onStart error, got %v", err)
	}
	if executed {
		t.Error("task must not run when a start hook fails")
	}
	if !stopped {
		t.Error("stop hooks must still run")
	}
}

func TestRunTaskWithStopHookError(t *testing.T) {
	app := newTestApp(t)
	app.OnStop(func(ctx context.Context) error {
		return fmt.Errorf("stop hook failed")
	})

	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err == nil {
		t.Error("expected error from failing stop hook")
	}

	app = newTestApp(t)
	app.OnStop(func(ctx context.Context) error {
		return fmt.Errorf("stop hook failed")
	})
	err = app.RunTask(context.Background(), func(ctx context.Context) error {
		return fmt.Errorf("task error")
	})
	if err == nil || err.Error() != "task error" {
		t.Errorf("task error should win, got %v", err)
	}
}

func TestRunTaskAllStopHooksRun(t *testing.T) {
	app := newTestApp(t)
	calls := 0
	app.OnStop(
		func(ctx context.Context) error { calls++; return nil },
		func(ctx context.Context) error { calls++; return fmt.Errorf("boom") },
	)
	_ = app.RunTask(context.Background(), func(ctx context.Context) error { return nil })
	if calls != 2 {
		t.Errorf("expected both stop hooks to run, got %d", calls)
	}
}

func TestRunTaskUsesProvidedMeter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	app := newTestApp(t, WithMeter(mp.Meter("test")))
	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		app.Metrics.RecordStageFailure(ctx, "gzip-compress")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "transform.stage.failures" {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected transform.stage.failures on the provided meter")
	}
}

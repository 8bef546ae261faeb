// Package observability provides OpenTelemetry tracing and metrics for
// streamkit pipelines and transform chains.
//
// Without InitTracer/InitMeter the global no-op providers are used, so the
// helpers are always safe to call.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("flowctl"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineRun)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("flowctl"))
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("flowctl"))
//	metrics.RecordRun(ctx, "ingest", "ok", duration)
package observability

// Package bootstrap runs a finite streamkit task with the shared
// infrastructure set up around it: logger, OTLP telemetry when an endpoint
// is configured, pipeline/transform metrics and SIGINT/SIGTERM cancellation.
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    return err
//	}
//	return app.RunTask(ctx, func(ctx context.Context) error {
//	    return pack(ctx, app)
//	})
package bootstrap

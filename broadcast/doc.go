// Package broadcast provides a write-only stream that duplicates every
// write to a primary and a secondary sink.
//
// The primary is the source of truth: its failures are always returned.
// Secondary failures are returned too, unless an OnSecondaryError handler is
// set, in which case the failure is handed to the handler once and the
// secondary is skipped from then on.
//
//	s, err := broadcast.New(ctx, file, os.Stdout,
//	    broadcast.OnSecondaryError(func(e broadcast.SinkError) {
//	        log.WithError(e.Err).Warn("mirror disabled")
//	    }),
//	)
package broadcast

// Package resource pairs a stream with its disposal intent.
//
// A Pull carries a reader, a Push carries a writer and the context that
// cancels writes through it. Handles are passed from stage to stage so that
// whoever ends up holding one knows whether closing the stream is theirs to do.
package resource

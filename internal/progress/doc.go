// Package progress carries job log lines and lifecycle milestones from the
// pipeline to pluggable sinks. Emitting never blocks the pipeline; a
// background goroutine batches events and fans them out to sinks such as the
// log store, Prometheus collectors or a zap logger.
package progress

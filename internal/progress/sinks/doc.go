// Package sinks implements progress consumers: the job log store, Prometheus
// collectors and structured logging. Each satisfies progress.Sink.
package sinks

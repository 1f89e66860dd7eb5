// Package audit records every purge attempt to pluggable sinks.
package audit

// Emitter is a purge event sink. Emit never blocks the purge path and never
// returns errors; sinks log their own failures.
type Emitter interface {
	Emit(event *PurgeEvent)
	Close() error
}

// NoopEmitter discards events.
type NoopEmitter struct{}

func (n *NoopEmitter) Emit(event *PurgeEvent) {}

func (n *NoopEmitter) Close() error { return nil }

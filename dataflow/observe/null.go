package observe

import "context"

// NullEmitter discards every event. Zero overhead, safe for concurrent use.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that discards everything.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (*NullEmitter) Emit(Event) {}

func (*NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

func (*NullEmitter) Flush(context.Context) error { return nil }

// Copyright 2025 James Ross
package queue

import "context"

// Message is the delivery handle a Port hands to a Handler: the decoded
// job plus whatever the backend needs to acknowledge it later (spec.md 3
// "QueueMessage").
type Message struct {
	ID         string
	Job        Job
	IsPriority bool
	SourceQueue string
	receipt    string
}

// Handler processes one delivered job. Its return value only affects
// metrics: per spec.md 7/9, the delivery is ack'd whether the handler
// succeeds or fails.
type Handler func(ctx context.Context, msg Message) error

// Port is the uniform interface over the in-memory and cloud queue
// backends (spec.md 4.3 "Queue Port").
type Port interface {
	Publish(ctx context.Context, job Job, priority bool) error
	ConsumeAndProcess(ctx context.Context, handler Handler) error
	Close() error
}

// Copyright 2025 James Ross
package queue

import (
	"context"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/obs"
	"go.uber.org/zap"
)

// MemoryPort is a FIFO in-memory queue, used in tests and when TASK_QUEUE
// is unconfigured (spec.md 4.3 "In-memory").
type MemoryPort struct {
	ch  chan Job
	log *zap.Logger
}

func NewMemoryPort(log *zap.Logger, capacity int) *MemoryPort {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryPort{ch: make(chan Job, capacity), log: log}
}

func (p *MemoryPort) Publish(ctx context.Context, job Job, priority bool) error {
	select {
	case p.ch <- job:
		obs.EnqueueTotal.WithLabelValues("memory").Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeAndProcess pulls the next job and invokes the handler; failures
// are logged and counted but there is no ack step (spec.md 4.3).
func (p *MemoryPort) ConsumeAndProcess(ctx context.Context, handler Handler) error {
	select {
	case job, ok := <-p.ch:
		if !ok {
			return nil
		}
		start := time.Now()
		err := handler(ctx, Message{Job: job, SourceQueue: "memory"})
		obs.DurationSeconds.WithLabelValues("memory").Observe(time.Since(start).Seconds())
		if err != nil {
			obs.FailuresTotal.WithLabelValues("memory").Inc()
			p.log.Warn("in-memory job handler failed", obs.Err(err))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
		return nil
	}
}

func (p *MemoryPort) Close() error {
	close(p.ch)
	return nil
}

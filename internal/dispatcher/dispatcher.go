// Copyright 2025 James Ross

// Package dispatcher wires the queue, the pipelines, and the engine
// process lifecycle into the worker's main loop (spec.md 4.4).
package dispatcher

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/config"
	"github.com/dclexplorer/consumer-processor/internal/engine"
	"github.com/dclexplorer/consumer-processor/internal/notify"
	"github.com/dclexplorer/consumer-processor/internal/obs"
	"github.com/dclexplorer/consumer-processor/internal/queue"
	"github.com/dclexplorer/consumer-processor/internal/report"
	"github.com/dclexplorer/consumer-processor/internal/scene"
	"github.com/dclexplorer/consumer-processor/internal/storage"
	"github.com/dclexplorer/consumer-processor/internal/wearable"
	"go.uber.org/zap"
)

// Reporter is the subset of monitor.Reporter the dispatcher drives.
type Reporter interface {
	SetStatus(ctx context.Context, sceneID, step string, progress float64, isPriority bool)
	ReportJobComplete(ctx context.Context, sceneID, status string, startedAt, completedAt time.Time, errMsg string, isPriority bool)
}

// Dispatcher routes jobs to the configured pipeline and owns the
// restart-after-job engine lifecycle (spec.md 4.4).
type Dispatcher struct {
	method    config.ProcessMethod
	q         queue.Port
	engine    *engine.Client
	scenePipe *scene.Pipeline
	wearPipe  *wearable.Pipeline
	notifier  notify.Publisher
	reporter  Reporter
	store     storage.Storage
	log       *zap.Logger
}

func New(
	method config.ProcessMethod,
	q queue.Port,
	eng *engine.Client,
	scenePipe *scene.Pipeline,
	wearPipe *wearable.Pipeline,
	notifier notify.Publisher,
	reporter Reporter,
	store storage.Storage,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		method:    method,
		q:         q,
		engine:    eng,
		scenePipe: scenePipe,
		wearPipe:  wearPipe,
		notifier:  notifier,
		reporter:  reporter,
		store:     store,
		log:       log,
	}
}

// RunOnce drives a single consumeAndProcess cycle; Run calls this in a
// loop. Exposed separately so tests can drive one iteration at a time.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	return d.q.ConsumeAndProcess(ctx, d.handle)
}

// Run loops RunOnce until ctx is cancelled (spec.md 4.4).
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.Warn("consume cycle error", obs.Err(err))
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg queue.Message) error {
	startedAt := time.Now()
	rep := d.dispatch(ctx, msg)

	// The engine is restarted only for godot_optimizer, and only after the
	// pipeline returns — never mid-job (spec.md 4.4, 5 "Shared resources").
	if d.method == config.MethodGodotOptimizer && d.engine != nil {
		if err := d.engine.RestartGodot(ctx); err != nil {
			d.log.Error("engine restart failed", obs.Err(err))
		}
	}

	if rep == nil {
		return nil
	}

	d.storeReport(ctx, rep)
	d.notify(ctx, rep)

	status := "completed"
	var errMsg string
	if !rep.Success {
		status = "failed"
		if len(rep.Errors) > 0 {
			errMsg = strings.Join(rep.Errors, "; ")
		}
	}
	if d.reporter != nil {
		d.reporter.ReportJobComplete(ctx, msg.Job.EntityID, status, startedAt, rep.FinishedAt, errMsg, msg.IsPriority)
	}
	if !rep.Success {
		return fmt.Errorf("job %s failed: %s", msg.Job.EntityID, errMsg)
	}
	return nil
}

// dispatch routes by PROCESS_METHOD. godot_optimizer is the only mandatory
// route in this core (spec.md 4.4); the remaining methods are accepted at
// startup but have no optimization pipeline wired in this build.
func (d *Dispatcher) dispatch(ctx context.Context, msg queue.Message) *report.Report {
	switch d.method {
	case config.MethodLog:
		d.log.Info("job received", obs.String("entityId", msg.Job.EntityID), obs.String("entityType", string(msg.Job.Type())))
		rep := report.New(msg.Job.EntityID, string(msg.Job.Type()), msg.Job.ContentBaseURL())
		rep.Finish(true)
		return rep

	case config.MethodGodotOptimizer:
		if d.reporter != nil {
			d.reporter.SetStatus(ctx, msg.Job.EntityID, "dispatch", 0, msg.IsPriority)
		}
		switch msg.Job.Type() {
		case queue.EntityScene:
			return d.scenePipe.Run(ctx, msg.Job, d.reporter, msg.IsPriority)
		case queue.EntityWearable, queue.EntityEmote:
			return d.wearPipe.Run(ctx, msg.Job)
		default:
			rep := report.New(msg.Job.EntityID, string(msg.Job.Type()), msg.Job.ContentBaseURL())
			rep.AddError(fmt.Errorf("unknown entity type %q", msg.Job.Type()))
			rep.Finish(false)
			return rep
		}

	default:
		rep := report.New(msg.Job.EntityID, string(msg.Job.Type()), msg.Job.ContentBaseURL())
		rep.AddError(fmt.Errorf("process method %q has no pipeline in this build", d.method))
		rep.Finish(false)
		return rep
	}
}

// storeReport uploads {entityId}-report.json to storage before the
// dispatcher moves on, regardless of pipeline outcome (spec.md 3 "a report
// is always serialized to storage on pipeline exit").
func (d *Dispatcher) storeReport(ctx context.Context, rep *report.Report) {
	if d.store == nil {
		return
	}
	data, err := rep.Marshal()
	if err != nil {
		d.log.Warn("report marshal failed", obs.Err(err))
		return
	}
	tmp, err := os.CreateTemp("", "report-*.json")
	if err != nil {
		d.log.Warn("report tempfile failed", obs.Err(err))
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		d.log.Warn("report tempfile write failed", obs.Err(err))
		return
	}
	tmp.Close()
	if err := d.store.Store(ctx, rep.Key(), tmpPath); err != nil {
		d.log.Warn("report upload failed", obs.Err(err))
	}
}

func (d *Dispatcher) notify(ctx context.Context, rep *report.Report) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Publish(ctx, rep); err != nil {
		d.log.Warn("notification publish failed", obs.Err(err))
	}
}

// Copyright 2025 James Ross
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/config"
	"github.com/dclexplorer/consumer-processor/internal/obs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 10 * time.Second
	reportTimeout     = 5 * time.Second
)

type heartbeatPayload struct {
	ConsumerID      string  `json:"consumerId"`
	ProcessMethod   string  `json:"processMethod"`
	Status          string  `json:"status"`
	CurrentSceneID  string  `json:"currentSceneId,omitempty"`
	CurrentStep     string  `json:"currentStep,omitempty"`
	ProgressPercent float64 `json:"progressPercent,omitempty"`
	StartedAt       int64   `json:"startedAt,omitempty"`
	IsPriority      bool    `json:"isPriority,omitempty"`
	Secret          string  `json:"secret"`
}

type jobCompletePayload struct {
	SceneID      string `json:"sceneId"`
	Status       string `json:"status"`
	StartedAt    int64  `json:"startedAt"`
	CompletedAt  int64  `json:"completedAt"`
	DurationMs   int64  `json:"durationMs"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	IsPriority   bool   `json:"isPriority,omitempty"`
	Secret       string `json:"secret"`
}

// Reporter sends best-effort, non-blocking heartbeats and per-job
// completion reports to an external monitoring endpoint (spec.md C4). It
// never blocks or fails the pipeline: every send swallows its own error.
type Reporter struct {
	cfg        config.Monitoring
	method     string
	consumerID string
	client     *http.Client
	log        *zap.Logger

	mu     sync.Mutex
	status heartbeatPayload
}

func New(cfg config.Monitoring, processMethod string, log *zap.Logger) *Reporter {
	return &Reporter{
		cfg:        cfg,
		method:     processMethod,
		consumerID: uuid.NewString(),
		client:     &http.Client{Timeout: reportTimeout},
		log:        log,
		status: heartbeatPayload{
			ProcessMethod: processMethod,
			Secret:        cfg.Secret,
		},
	}
}

func (r *Reporter) Enabled() bool { return r.cfg.URL != "" && r.cfg.Secret != "" }

// Run starts the 10-second heartbeat loop; it returns when ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sendHeartbeat(ctx)
		}
	}
}

// SetStatus updates the in-flight job status and fires one heartbeat
// out-of-band in addition to the interval (spec.md 4.9 "On status change").
func (r *Reporter) SetStatus(ctx context.Context, sceneID, step string, progress float64, isPriority bool) {
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	r.status.CurrentSceneID = sceneID
	r.status.CurrentStep = step
	r.status.ProgressPercent = progress
	r.status.IsPriority = isPriority
	if r.status.StartedAt == 0 {
		r.status.StartedAt = time.Now().Unix()
	}
	r.mu.Unlock()
	r.sendHeartbeat(ctx)
}

func (r *Reporter) sendHeartbeat(ctx context.Context) {
	r.mu.Lock()
	payload := r.status
	r.mu.Unlock()
	payload.Status = "processing"
	r.post(ctx, "/api/monitoring/heartbeat", payload, "heartbeat")
}

// ReportJobComplete posts a completion record (spec.md 4.9 "On job completion").
func (r *Reporter) ReportJobComplete(ctx context.Context, sceneID, status string, startedAt, completedAt time.Time, errMsg string, isPriority bool) {
	if !r.Enabled() {
		return
	}
	payload := jobCompletePayload{
		SceneID:      sceneID,
		Status:       status,
		StartedAt:    startedAt.Unix(),
		CompletedAt:  completedAt.Unix(),
		DurationMs:   completedAt.Sub(startedAt).Milliseconds(),
		ErrorMessage: errMsg,
		IsPriority:   isPriority,
		Secret:       r.cfg.Secret,
	}
	r.post(ctx, "/api/monitoring/job-complete", payload, "job_complete")

	r.mu.Lock()
	r.status.CurrentSceneID = ""
	r.status.CurrentStep = ""
	r.status.ProgressPercent = 0
	r.status.StartedAt = 0
	r.mu.Unlock()
}

func (r *Reporter) post(ctx context.Context, path string, payload interface{}, kind string) {
	body, err := json.Marshal(payload)
	if err != nil {
		r.log.Debug("monitoring marshal failed", obs.Err(err))
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		r.log.Debug("monitoring request build failed", obs.Err(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		obs.MonitoringReportsTotal.WithLabelValues(kind, "error").Inc()
		r.log.Debug("monitoring report failed", obs.Err(err))
		return
	}
	defer resp.Body.Close()
	obs.MonitoringReportsTotal.WithLabelValues(kind, "ok").Inc()
}

// Copyright 2025 James Ross
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/fetcher"
	"go.uber.org/zap"
)

const pollInterval = 2 * time.Second

// Client wraps the local optimization engine's HTTP control API and
// process lifecycle (spec.md C5). All business sequencing (what to call
// when) lives in the pipelines; Client performs no decisions of its own.
type Client struct {
	baseURL string
	fetch   *fetcher.Fetcher
	log     *zap.Logger
	proc    *process
}

func New(baseURL string, fetch *fetcher.Fetcher, log *zap.Logger) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetch: fetch, log: log}
}

// IsReady reports whether the engine answers 2xx on /health.
func (c *Client) IsReady(ctx context.Context) bool {
	resp, err := c.fetch.Fetch(ctx, c.baseURL+"/health", fetcher.Options{Method: "GET"})
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}

// ProcessScene submits a scene optimization or metadata-only pass
// (empty PackHashes selects metadata-only mode, spec.md 4.5).
func (c *Client) ProcessScene(ctx context.Context, req ProcessSceneRequest) (*ProcessSceneResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.fetch.Fetch(ctx, c.baseURL+"/process-scene", fetcher.Options{
		Method:  "POST",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	var out ProcessSceneResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsNoProcessableAssets reports whether an error from ProcessScene is the
// "no processable assets" empty-scene case, which spec.md 4.6 treats as
// success with zero outputs rather than a pipeline failure.
func IsNoProcessableAssets(err error) bool {
	if err == nil {
		return false
	}
	var ferr *fetcher.FetchError
	msg := err.Error()
	if e, ok := err.(*fetcher.FetchError); ok {
		ferr = e
		if ferr.StatusCode == 400 {
			return true
		}
	}
	return strings.Contains(strings.ToLower(msg), "no processable assets")
}

// ProcessAssets submits a batch of individual asset optimizations.
func (c *Client) ProcessAssets(ctx context.Context, req ProcessAssetsRequest) (*ProcessAssetsResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.fetch.Fetch(ctx, c.baseURL+"/process", fetcher.Options{
		Method:  "POST",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	var out ProcessAssetsResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBatchStatus polls the status of a batch.
func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	resp, err := c.fetch.Fetch(ctx, fmt.Sprintf("%s/status/%s", c.baseURL, batchID), fetcher.Options{Method: "GET"})
	if err != nil {
		return nil, err
	}
	var out BatchStatus
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForCompletion polls GetBatchStatus every 2s until a terminal status
// or the timeout elapses (spec.md 4.5).
func (c *Client) WaitForCompletion(ctx context.Context, batchID string, timeout time.Duration) (*BatchStatus, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		status, err := c.GetBatchStatus(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if status.Status == StatusCompleted || status.Status == StatusFailed {
			return status, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("batch %s timed out after %s", batchID, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Copyright 2025 James Ross
package report

import (
	"encoding/json"
	"time"
)

// Report is the per-job record the worker persists regardless of outcome
// (spec.md 3 "ProcessReport"). It is always written before the dispatcher
// moves on, whether the pipeline succeeded, partially failed, or panicked
// mid-fan-out (spec.md 4.6 "a report is always written").
type Report struct {
	EntityID      string    `json:"entityId"`
	EntityType    string    `json:"entityType"`
	ContentServer string    `json:"contentServer"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Success       bool      `json:"success"`
	BatchID       string    `json:"batchId,omitempty"`
	UploadedKeys  []string  `json:"uploadedKeys"`
	AssetsTotal   int       `json:"assetsTotal"`
	AssetsSucc    int       `json:"assetsSucceeded"`
	AssetsFail    int       `json:"assetsFailed"`
	Errors        []string  `json:"errors,omitempty"`
}

// New starts a report at pipeline entry.
func New(entityID, entityType, contentServer string) *Report {
	return &Report{
		EntityID:      entityID,
		EntityType:    entityType,
		ContentServer: contentServer,
		StartedAt:     time.Now(),
		UploadedKeys:  []string{},
	}
}

// AddError records a non-fatal error without failing the whole report.
func (r *Report) AddError(err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// AddUploaded records a successfully uploaded storage key.
func (r *Report) AddUploaded(key string) {
	r.UploadedKeys = append(r.UploadedKeys, key)
}

// Finish marks the report complete. Success is true iff no asset failures
// were recorded and no fatal error occurred (spec.md 4.6 step 9).
func (r *Report) Finish(success bool) {
	r.FinishedAt = time.Now()
	r.Success = success
}

func (r *Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Key returns the storage key for this report (spec.md 6 "Storage key layout").
func (r *Report) Key() string {
	return r.EntityID + "-report.json"
}

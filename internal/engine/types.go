// Copyright 2025 James Ross
package engine

// AssetRequest is the engine's per-asset input shape (spec.md 3).
type AssetRequest struct {
	URL            string            `json:"url"`
	Type           string            `json:"type"`
	Hash           string            `json:"hash"`
	BaseURL        string            `json:"base_url"`
	ContentMapping map[string]string `json:"content_mapping,omitempty"`
}

// ProcessSceneRequest is the body of POST /process-scene.
type ProcessSceneRequest struct {
	SceneHash       string   `json:"scene_hash"`
	ContentBaseURL  string   `json:"content_base_url"`
	OutputHash      string   `json:"output_hash,omitempty"`
	PackHashes      []string `json:"pack_hashes"`
}

// ProcessSceneResponse is the body returned by POST /process-scene.
type ProcessSceneResponse struct {
	BatchID     string `json:"batch_id"`
	OutputHash  string `json:"output_hash"`
	SceneHash   string `json:"scene_hash"`
	TotalAssets int    `json:"total_assets"`
	PackAssets  int    `json:"pack_assets"`
}

// ProcessAssetsRequest is the body of POST /process.
type ProcessAssetsRequest struct {
	OutputHash string         `json:"output_hash,omitempty"`
	Assets     []AssetRequest `json:"assets"`
}

// ProcessAssetsResponse is the body returned by POST /process.
type ProcessAssetsResponse struct {
	BatchID string     `json:"batch_id"`
	OutputHash string  `json:"output_hash"`
	Jobs    []JobStatus `json:"jobs"`
	Total   int         `json:"total"`
}

// JobStatus is a single asset's status within a BatchStatus.
type JobStatus struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Batch status values.
const (
	StatusProcessing = "processing"
	StatusPacking    = "packing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// BatchStatus is the engine's batch-output shape (spec.md 3).
type BatchStatus struct {
	BatchID    string      `json:"batch_id"`
	OutputHash string      `json:"output_hash"`
	Status     string      `json:"status"`
	Progress   float64     `json:"progress"`
	ZipPath    string      `json:"zip_path,omitempty"`
	Error      string      `json:"error,omitempty"`
	Jobs       []JobStatus `json:"jobs,omitempty"`
}

// SceneMetadata is produced by the engine's metadata-only pass (spec.md 3).
type SceneMetadata struct {
	OptimizedContent            []string            `json:"optimizedContent"`
	ExternalSceneDependencies   map[string][]string `json:"externalSceneDependencies"`
	OriginalSizes                map[string]int64    `json:"originalSizes,omitempty"`
	HashSizeMap                  map[string]int64    `json:"hashSizeMap,omitempty"`
}

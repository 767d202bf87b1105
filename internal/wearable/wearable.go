// Copyright 2025 James Ross

// Package wearable implements the wearable/emote deployment pipeline
// (spec.md 4.7): a single-GLTF optimization job, either driven by a
// standard content-server fetch or by a profile-attached job payload.
package wearable

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/contentclient"
	"github.com/dclexplorer/consumer-processor/internal/engine"
	"github.com/dclexplorer/consumer-processor/internal/obs"
	"github.com/dclexplorer/consumer-processor/internal/queue"
	"github.com/dclexplorer/consumer-processor/internal/report"
	"github.com/dclexplorer/consumer-processor/internal/storage"
	"go.uber.org/zap"
)

// Pipeline runs the wearable/emote optimization flow.
type Pipeline struct {
	engine      *engine.Client
	content     *contentclient.Client
	store       storage.Storage
	log         *zap.Logger
	waitTimeout time.Duration
}

func New(eng *engine.Client, content *contentclient.Client, store storage.Storage, waitTimeout time.Duration, log *zap.Logger) *Pipeline {
	return &Pipeline{engine: eng, content: content, store: store, waitTimeout: waitTimeout, log: log}
}

// Run executes the wearable/emote pipeline for one job, always returning a
// populated report.
func (p *Pipeline) Run(ctx context.Context, job queue.Job) *report.Report {
	ctx, span := obs.StartSpan(ctx, "wearable.Pipeline.Run")
	defer span.End()

	rep := report.New(job.EntityID, string(job.Type()), job.ContentBaseURL())
	defer func() {
		if r := recover(); r != nil {
			rep.AddError(fmt.Errorf("wearable pipeline panic: %v", r))
			rep.Finish(false)
		}
	}()

	gltfHash, gltfFile, contentMapping, contentBaseURL, err := p.resolveInputs(ctx, job)
	if err != nil {
		rep.AddError(err)
		rep.Finish(false)
		return rep
	}
	if gltfHash == "" {
		// no GLTF/GLB content found: success with 0 assets (spec.md 4.7 "Standard").
		rep.Finish(true)
		return rep
	}
	rep.AssetsTotal = 1

	assetType := "wearable"
	if job.Type() == queue.EntityEmote {
		assetType = "emote"
	}

	resp, err := p.engine.ProcessAssets(ctx, engine.ProcessAssetsRequest{
		OutputHash: gltfHash,
		Assets: []engine.AssetRequest{{
			URL:            contentBaseURL + gltfFile,
			Type:           assetType,
			Hash:           gltfHash,
			BaseURL:        contentBaseURL,
			ContentMapping: contentMapping,
		}},
	})
	if err != nil {
		rep.AddError(err)
		rep.AssetsFail = 1
		obs.AssetOptimizationsTotal.WithLabelValues("failure").Inc()
		rep.Finish(false)
		return rep
	}
	rep.BatchID = resp.BatchID

	status, err := p.engine.WaitForCompletion(ctx, resp.BatchID, p.waitTimeout)
	if err != nil || status.Status != engine.StatusCompleted || status.ZipPath == "" {
		if err == nil {
			err = fmt.Errorf("batch ended in status %s: %s", status.Status, status.Error)
		}
		rep.AddError(err)
		rep.AssetsFail = 1
		obs.AssetOptimizationsTotal.WithLabelValues("failure").Inc()
		rep.Finish(false)
		return rep
	}

	key := gltfHash + "-mobile.zip"
	if err := p.store.Store(ctx, key, status.ZipPath); err != nil {
		rep.AddError(fmt.Errorf("upload: %w", err))
		rep.AssetsFail = 1
		obs.AssetOptimizationsTotal.WithLabelValues("failure").Inc()
		rep.Finish(false)
		return rep
	}
	os.Remove(status.ZipPath)
	rep.AddUploaded(key)
	rep.AssetsSucc = 1
	obs.AssetOptimizationsTotal.WithLabelValues("success").Inc()
	rep.Finish(true)
	return rep
}

// resolveInputs picks between the standard fetch path and the
// profile-attached path (spec.md 4.7).
func (p *Pipeline) resolveInputs(ctx context.Context, job queue.Job) (gltfHash, gltfFile string, contentMapping map[string]string, contentBaseURL string, err error) {
	if job.ProfileData != nil {
		pd := job.ProfileData
		return pd.GltfHash, pd.GltfFile, pd.ContentMapping, pd.ContentBaseURL, nil
	}

	contentBaseURL = job.ContentBaseURL()
	entity, err := p.content.FetchEntity(ctx, contentBaseURL, job.EntityID)
	if err != nil {
		return "", "", nil, "", err
	}
	gltfs := entity.GLTFFiles()
	if len(gltfs) == 0 {
		return "", "", nil, contentBaseURL, nil
	}
	first := gltfs[0]
	return first.Hash, first.File, entity.ContentMapping(), contentBaseURL, nil
}

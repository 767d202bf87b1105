// Copyright 2025 James Ross

// Package profile implements the one-shot profile expansion CLI path
// (spec.md 4.8): it resolves an avatar's wearables and emotes into
// individually optimized GLTF assets without going through the queue.
package profile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/contentclient"
	"github.com/dclexplorer/consumer-processor/internal/engine"
	"github.com/dclexplorer/consumer-processor/internal/obs"
	"github.com/dclexplorer/consumer-processor/internal/storage"
	"github.com/dclexplorer/consumer-processor/internal/urn"
	"go.uber.org/zap"
)

const peerProfileURL = "https://peer.decentraland.org"

// assetJob is one GLTF extracted from an active entity, tagged with the
// pointer set it came from.
type assetJob struct {
	entityType string
	gltfHash   string
	gltfFile   string
	mapping    map[string]string
}

// Result summarizes one run of the expansion for the caller (main.go) to
// turn into a process exit code.
type Result struct {
	Address       string
	AssetsTotal   int
	AssetsSucc    int
	AssetsFail    int
	Errors        []string
}

// Expander runs profile expansion.
type Expander struct {
	engine         *engine.Client
	content        *contentclient.Client
	store          storage.Storage
	log            *zap.Logger
	concurrentLimit int
	waitTimeout    time.Duration
}

func New(eng *engine.Client, content *contentclient.Client, store storage.Storage, concurrentLimit int, waitTimeout time.Duration, log *zap.Logger) *Expander {
	if concurrentLimit < 1 {
		concurrentLimit = 1
	}
	return &Expander{engine: eng, content: content, store: store, concurrentLimit: concurrentLimit, waitTimeout: waitTimeout, log: log}
}

// Run expands the given address's profile and optimizes every wearable
// and emote GLTF it references (spec.md 4.8).
func (e *Expander) Run(ctx context.Context, address, contentServer string) (*Result, error) {
	ctx, span := obs.StartSpan(ctx, "profile.Expander.Run")
	defer span.End()

	res := &Result{Address: address}

	avatar, err := e.content.FetchProfile(ctx, peerProfileURL, address)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	wearables := urn.FilterAndNormalize(avatar.Wearables, "base-avatars")
	emoteURNs := make([]string, 0, len(avatar.Emotes))
	for _, em := range avatar.Emotes {
		emoteURNs = append(emoteURNs, em.URN)
	}
	emotes := urn.FilterAndNormalize(emoteURNs, "base-emotes")

	pointers := make([]string, 0, len(wearables)+len(emotes))
	pointers = append(pointers, wearables...)
	pointers = append(pointers, emotes...)
	if len(pointers) == 0 {
		return res, nil
	}

	wearableSet := toSet(wearables)

	entities, err := e.content.FetchActiveEntities(ctx, contentServer, pointers)
	if err != nil {
		return nil, fmt.Errorf("fetch active entities: %w", err)
	}

	var jobs []assetJob
	for _, ent := range entities {
		entityType := "emote"
		for _, p := range ent.Pointers {
			if wearableSet[p] {
				entityType = "wearable"
				break
			}
		}
		mapping := ent.ContentMapping()
		for _, f := range ent.GLTFFiles() {
			jobs = append(jobs, assetJob{entityType: entityType, gltfHash: f.Hash, gltfFile: f.File, mapping: mapping})
		}
	}
	res.AssetsTotal = len(jobs)

	e.runBatches(ctx, contentServer, jobs, res)
	return res, nil
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// runBatches processes jobs in parallel batches of concurrentLimit
// (spec.md 4.8 step 5), recording success/failure and continuing
// regardless of individual failures.
func (e *Expander) runBatches(ctx context.Context, contentServer string, jobs []assetJob, res *Result) {
	var mu sync.Mutex
	total := len(jobs)
	for start := 0; start < total; start += e.concurrentLimit {
		end := start + e.concurrentLimit
		if end > total {
			end = total
		}
		batch := jobs[start:end]

		var wg sync.WaitGroup
		for _, job := range batch {
			wg.Add(1)
			go func(j assetJob) {
				defer wg.Done()
				actx, aspan := obs.StartSpan(ctx, "profile.processOne")
				defer aspan.End()
				err := e.processOne(actx, contentServer, j)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.AssetsFail++
					res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", j.gltfHash, err))
					obs.AssetOptimizationsTotal.WithLabelValues("failure").Inc()
					return
				}
				res.AssetsSucc++
				obs.AssetOptimizationsTotal.WithLabelValues("success").Inc()
			}(job)
		}
		wg.Wait()
	}
}

func (e *Expander) processOne(ctx context.Context, contentServer string, job assetJob) error {
	resp, err := e.engine.ProcessAssets(ctx, engine.ProcessAssetsRequest{
		OutputHash: job.gltfHash,
		Assets: []engine.AssetRequest{{
			URL:            contentServer + job.gltfHash,
			Type:           job.entityType,
			Hash:           job.gltfHash,
			BaseURL:        contentServer,
			ContentMapping: job.mapping,
		}},
	})
	if err != nil {
		return err
	}
	status, err := e.engine.WaitForCompletion(ctx, resp.BatchID, e.waitTimeout)
	if err != nil {
		return err
	}
	if status.Status != engine.StatusCompleted || status.ZipPath == "" {
		return fmt.Errorf("batch ended in status %s: %s", status.Status, status.Error)
	}
	key := job.gltfHash + "-mobile.zip"
	if err := e.store.Store(ctx, key, status.ZipPath); err != nil {
		return err
	}
	os.Remove(status.ZipPath)
	return nil
}

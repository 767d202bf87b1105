// Copyright 2025 James Ross

// Package contentclient wraps the Decentraland content-server and profile
// HTTP surfaces the pipelines consume (spec.md 3 "Entity definition", 4.7,
// 4.8). It performs no retry logic of its own; all resilience comes from
// the shared retrying fetcher.
package contentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dclexplorer/consumer-processor/internal/fetcher"
)

// EntityContentFile is one content-addressed file inside an entity.
type EntityContentFile struct {
	File string `json:"file"`
	Hash string `json:"hash"`
}

// Entity mirrors the content server's entity shape (spec.md 3).
type Entity struct {
	ID       string              `json:"id"`
	Pointers []string            `json:"pointers"`
	Content  []EntityContentFile `json:"content"`
}

// GLTFFiles returns every content file ending .glb or .gltf.
func (e Entity) GLTFFiles() []EntityContentFile {
	var out []EntityContentFile
	for _, f := range e.Content {
		lower := strings.ToLower(f.File)
		if strings.HasSuffix(lower, ".glb") || strings.HasSuffix(lower, ".gltf") {
			out = append(out, f)
		}
	}
	return out
}

// ContentMapping builds the file→hash map the engine's AssetRequest expects.
func (e Entity) ContentMapping() map[string]string {
	m := make(map[string]string, len(e.Content))
	for _, f := range e.Content {
		m[f.File] = f.Hash
	}
	return m
}

// Client fetches entity and profile data from a Decentraland content
// server and the profile lambda.
type Client struct {
	fetch *fetcher.Fetcher
}

func New(fetch *fetcher.Fetcher) *Client {
	return &Client{fetch: fetch}
}

// FetchEntity fetches the single entity definition at
// {contentServer}/contents/{entityID} (spec.md 4.7 "Standard").
func (c *Client) FetchEntity(ctx context.Context, contentServer, entityID string) (*Entity, error) {
	url := strings.TrimRight(contentServer, "/") + "/contents/" + entityID
	resp, err := c.fetch.Fetch(ctx, url, fetcher.Options{Method: "GET"})
	if err != nil {
		return nil, err
	}
	var e Entity
	if err := json.Unmarshal(resp.Body, &e); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return &e, nil
}

// ContentSize HEADs a single content file by hash and returns its
// Content-Length, used by the scene pipeline's pre-engine validation
// against MAX_CONTENT_SIZE_BYTES (spec.md 7 "Validation"). A server that
// omits Content-Length reports size 0, which never trips the limit.
func (c *Client) ContentSize(ctx context.Context, contentBaseURL, hash string) (int64, error) {
	url := strings.TrimRight(contentBaseURL, "/") + "/" + hash
	resp, err := c.fetch.Fetch(ctx, url, fetcher.Options{Method: "HEAD"})
	if err != nil {
		return 0, err
	}
	cl := resp.Headers.Get("Content-Length")
	if cl == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// FetchActiveEntities POSTs {contentServer}/entities/active with the given
// pointer set and returns the matched entities (spec.md 4.8 step 3).
func (c *Client) FetchActiveEntities(ctx context.Context, contentServer string, pointers []string) ([]Entity, error) {
	url := strings.TrimRight(contentServer, "/") + "/entities/active"
	body, err := json.Marshal(map[string]interface{}{"pointers": pointers})
	if err != nil {
		return nil, err
	}
	resp, err := c.fetch.Fetch(ctx, url, fetcher.Options{
		Method:  "POST",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	var entities []Entity
	if err := json.Unmarshal(resp.Body, &entities); err != nil {
		return nil, fmt.Errorf("decode active entities: %w", err)
	}
	return entities, nil
}

// Avatar is the subset of the profile lambda's avatar shape the pipeline needs.
type Avatar struct {
	Wearables []string      `json:"wearables"`
	Emotes    []EmoteRef    `json:"emotes"`
}

// EmoteRef is one slot in avatar.emotes.
type EmoteRef struct {
	Slot int    `json:"slot"`
	URN  string `json:"urn"`
}

type profileResponse struct {
	Avatars []struct {
		Avatar Avatar `json:"avatar"`
	} `json:"avatars"`
}

// FetchProfile fetches https://peer.decentraland.org/lambdas/profiles/{address}
// and returns avatars[0].avatar (spec.md 4.8 step 1).
func (c *Client) FetchProfile(ctx context.Context, peerURL, address string) (*Avatar, error) {
	url := strings.TrimRight(peerURL, "/") + "/lambdas/profiles/" + address
	resp, err := c.fetch.Fetch(ctx, url, fetcher.Options{Method: "GET"})
	if err != nil {
		return nil, err
	}
	var out profileResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if len(out.Avatars) == 0 {
		return nil, fmt.Errorf("profile %s has no avatars", address)
	}
	return &out.Avatars[0].Avatar, nil
}

// Copyright 2025 James Ross
package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTripWrapped(t *testing.T) {
	job := Job{EntityID: "abc123", EntityType: EntityWearable, ContentServerUrls: []string{"https://peer.decentraland.org/content"}}
	raw, err := EncodeEnvelope(job)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, job.EntityID, decoded.EntityID)
	require.Equal(t, job.EntityType, decoded.EntityType)
	require.Equal(t, job.ContentServerUrls, decoded.ContentServerUrls)
}

func TestEnvelopeRoundTripBare(t *testing.T) {
	job := Job{EntityID: "scene-hash", ContentServerUrls: []string{"https://peer.decentraland.org/content"}}
	raw, err := job.Marshal()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, job.EntityID, decoded.EntityID)
	require.Equal(t, EntityScene, decoded.Type(), "untyped job defaults to scene")
}

func TestContentBaseURLTakesFirstElement(t *testing.T) {
	job := Job{ContentServerUrls: []string{"https://a.example", "https://b.example"}}
	require.Equal(t, "https://a.example", job.ContentBaseURL())
}

func TestContentBaseURLEmptyWhenNoURLs(t *testing.T) {
	job := Job{}
	require.Equal(t, "", job.ContentBaseURL())
}

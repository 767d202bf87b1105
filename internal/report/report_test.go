// Copyright 2025 James Ross
package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReportKeyMatchesEntityID(t *testing.T) {
	r := New("abc123", "scene", "https://peer.decentraland.org/content")
	require.Equal(t, "abc123-report.json", r.Key())
}

func TestReportTracksErrorsAndUploads(t *testing.T) {
	r := New("abc123", "scene", "https://peer.decentraland.org/content")
	r.AddError(errors.New("boom"))
	r.AddUploaded("abc123-mobile.zip")
	r.Finish(false)

	require.Len(t, r.Errors, 1)
	require.Equal(t, []string{"abc123-mobile.zip"}, r.UploadedKeys)
	require.False(t, r.Success)
	require.False(t, r.FinishedAt.IsZero())
}

func TestReportAddErrorIgnoresNil(t *testing.T) {
	r := New("x", "scene", "")
	r.AddError(nil)
	require.Empty(t, r.Errors)
}

func TestReportMarshalRoundTrips(t *testing.T) {
	r := New("abc123", "wearable", "https://peer.decentraland.org/content")
	r.Finish(true)
	body, err := r.Marshal()
	require.NoError(t, err)
	require.Contains(t, string(body), "\"entityId\": \"abc123\"")
}

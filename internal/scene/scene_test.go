// Copyright 2025 James Ross
package scene

import (
	"testing"

	"github.com/dclexplorer/consumer-processor/internal/engine"
	"github.com/stretchr/testify/require"
)

func TestAssetSetUnionExcludesDuplicates(t *testing.T) {
	meta := &engine.SceneMetadata{
		OptimizedContent: []string{"h1", "h2", "h3"},
		ExternalSceneDependencies: map[string][]string{
			"h2": {"dep1"},
			"h4": {"dep2"},
		},
	}
	got := assetSet(meta)
	require.ElementsMatch(t, []string{"h1", "h2", "h3", "h4"}, got)
}

func TestAssetSetEmptyWhenNoAssets(t *testing.T) {
	meta := &engine.SceneMetadata{}
	require.Empty(t, assetSet(meta))
}

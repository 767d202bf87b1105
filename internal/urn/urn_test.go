// Copyright 2025 James Ross
package urn

import "testing"

func TestStripTokenIDTruncatesCollectionsV2(t *testing.T) {
	in := "urn:decentraland:matic:collections-v2:0xabc123:5"
	want := "urn:decentraland:matic:collections-v2:0xabc123"
	got := StripTokenID(in)
	if got != want {
		t.Fatalf("StripTokenID(%q) = %q, want %q", in, got, want)
	}
}

func TestStripTokenIDIsIdempotent(t *testing.T) {
	in := "urn:decentraland:matic:collections-v2:0xabc123:5"
	once := StripTokenID(in)
	twice := StripTokenID(once)
	if once != twice {
		t.Fatalf("StripTokenID is not idempotent: %q != %q", once, twice)
	}
}

func TestStripTokenIDLeavesShortURNsUnchanged(t *testing.T) {
	in := "urn:decentraland:off-chain:base-avatars:BaseMale"
	if got := StripTokenID(in); got != in {
		t.Fatalf("StripTokenID(%q) = %q, want unchanged", in, got)
	}
}

func TestFilterAndNormalizeExcludesSubstringMatches(t *testing.T) {
	in := []string{
		"urn:decentraland:off-chain:base-avatars:BaseMale",
		"urn:decentraland:matic:collections-v2:0xabc123:5",
	}
	out := FilterAndNormalize(in, "base-avatars")
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving urn, got %d: %v", len(out), out)
	}
	if out[0] != "urn:decentraland:matic:collections-v2:0xabc123" {
		t.Fatalf("unexpected normalized urn: %q", out[0])
	}
}

// Copyright 2025 James Ross

// Package urn implements the pointer-set rules profile expansion applies
// to wearable and emote URNs (spec.md 4.8 step 2).
package urn

import "strings"

// collectionsV2Segments is the fixed length a collections-v2 URN is
// truncated to: stripping the trailing token-id segment(s) so the
// pointer set addresses the item definition, not a single minted token.
const collectionsV2Segments = 6

// StripTokenID truncates a collections-v2 URN (more than 6 colon-delimited
// segments) to its first 6 segments. URNs with 6 or fewer segments are
// returned unchanged, making the operation idempotent (applying it twice
// yields the same result as once).
func StripTokenID(u string) string {
	parts := strings.Split(u, ":")
	if len(parts) <= collectionsV2Segments {
		return u
	}
	return strings.Join(parts[:collectionsV2Segments], ":")
}

// Contains reports whether u contains needle anywhere (case-sensitive),
// used for the base-avatars/base-emotes exclusion filters.
func Contains(u, needle string) bool {
	return strings.Contains(u, needle)
}

// FilterAndNormalize excludes any URN containing excludeSubstr and
// token-ID-strips the rest (spec.md 4.8 step 2).
func FilterAndNormalize(urns []string, excludeSubstr string) []string {
	out := make([]string, 0, len(urns))
	for _, u := range urns {
		if strings.Contains(u, excludeSubstr) {
			continue
		}
		out = append(out, StripTokenID(u))
	}
	return out
}

package usecase

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"github.com/pricelens/backend/internal/domain"
)

// Package-level compiled regex patterns for performance
var (
	nonAlphanumericRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	multipleSpacesRegex  = regexp.MustCompile(`\s+`)
)

// textCacheKey derives the cache key of a text search.
// Format: "text:{fnv64a(id, normalized title)}"
func textCacheKey(descriptor *domain.ProductDescriptor) string {
	return domain.SearchKindText + ":" + hashKey(descriptor.ID, normalizeForCacheKey(descriptor.Title))
}

// imageCacheKey derives the cache key of an image search from the image
// source and the normalized title hint, which changes scoring. URL and
// inline data never share keys.
func imageCacheKey(q domain.ImageQuery) string {
	hint := normalizeForCacheKey(q.Title)
	if q.ImageURL != "" {
		return domain.SearchKindImage + ":url:" + hashKey(strings.TrimSpace(q.ImageURL), hint)
	}
	return domain.SearchKindImage + ":data:" + hashKey(q.MimeType, string(q.Data), hint)
}

// hashKey hashes NUL-separated parts into a short hex digest
func hashKey(parts ...string) string {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// normalizeForCacheKey normalizes a string for use as cache key component.
// Converts to lowercase, removes special characters, and trims whitespace.
func normalizeForCacheKey(s string) string {
	if s == "" {
		return ""
	}
	result := strings.ToLower(s)
	result = nonAlphanumericRegex.ReplaceAllString(result, "")
	result = multipleSpacesRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

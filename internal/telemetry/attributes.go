// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by the instrumented packages.
const (
	CacheGenerationKey = "cache.generation"
	CacheClassKey      = "cache.class"
	CacheSourceKey     = "cache.source"
	CachePathKey       = "cache.path"
	CacheAssetsKey     = "cache.assets"

	ProgressCollectionKey = "progress.collection"
	ProgressOpKey         = "progress.op"
	ProgressChangedKey    = "progress.changed"
)

// CacheAttributes describes one served request.
func CacheAttributes(generation, class, path string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(CacheClassKey, class),
		attribute.String(CachePathKey, path),
	}
	if generation != "" {
		attrs = append(attrs, attribute.String(CacheGenerationKey, generation))
	}
	return attrs
}

// InstallAttributes describes one install attempt.
func InstallAttributes(generation string, assets int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CacheGenerationKey, generation),
		attribute.Int(CacheAssetsKey, assets),
	}
}

// ProgressAttributes describes one progress transition.
func ProgressAttributes(collection, op string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProgressCollectionKey, collection),
		attribute.String(ProgressOpKey, op),
	}
}

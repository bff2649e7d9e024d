package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// CacheTTL is how long a cached embedding matrix stays valid.
	CacheTTL = 24 * time.Hour

	cacheCleanupInterval = time.Hour
)

// CachingEmbedder wraps an Embedder with a shared in-process TTL cache.
//
// Batch results are keyed by a content hash of the sorted input, so two runs
// submitting the same keyword set share one upstream call regardless of
// ordering. Entries are immutable once written; the underlying cache is safe
// for concurrent use across pipeline runs.
type CachingEmbedder struct {
	inner Embedder
	cache *gocache.Cache
}

// NewCachingEmbedder wraps inner with a 24h TTL cache.
func NewCachingEmbedder(inner Embedder) *CachingEmbedder {
	return &CachingEmbedder{
		inner: inner,
		cache: gocache.New(CacheTTL, cacheCleanupInterval),
	}
}

// Embed delegates single-text calls without caching.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.inner.Embed(ctx, text)
}

// EmbedBatch returns the cached matrix for this keyword set if present,
// otherwise computes it synchronously and caches the result. The returned
// rows stay aligned with the caller's input order.
func (c *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	key := CacheKey(texts)
	if cached, ok := c.cache.Get(key); ok {
		if byText, ok := cached.(map[string][]float32); ok {
			out := make([][]float32, len(texts))
			complete := true
			for i, text := range texts {
				vec, ok := byText[text]
				if !ok {
					complete = false
					break
				}
				out[i] = vec
			}
			if complete {
				return out, nil
			}
		}
	}

	embeddings, err := c.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	// Store keyed by text so future calls with a different ordering of the
	// same set still hit.
	byText := make(map[string][]float32, len(texts))
	for i, text := range texts {
		byText[text] = embeddings[i]
	}
	c.cache.SetDefault(key, byText)

	return embeddings, nil
}

// Dimensions reports the wrapped embedder's dimensionality.
func (c *CachingEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// CacheKey computes a stable content hash for a keyword set. The input is
// sorted first, so any permutation of the same set yields the same key.
func CacheKey(texts []string) string {
	sorted := append([]string(nil), texts...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return "embeddings:" + hex.EncodeToString(sum[:])
}

package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// VectorDim is the embedding dimensionality. Matches the all-MiniLM-L6-v2
// model family so a real model server can replace the local embedder without
// recreating the collection.
const VectorDim = 384

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LocalEmbedder is a deterministic hashing embedder: each token is hashed
// into a bucket with a sign, the result L2-normalized. Identical texts embed
// identically and token overlap yields cosine similarity, which is enough for
// retrieval to function without a model server.
type LocalEmbedder struct{}

// Embed implements Embedder. It never fails and ignores the context.
func (LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, VectorDim)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		bucket := sum % VectorDim
		sign := float32(1)
		if (sum>>32)&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// PooledEmbedder runs an inner embedder on a fixed-size worker pool so that
// embedding bursts (a consolidation sweep promoting many entries at once)
// are bounded instead of spawning unbounded concurrent work.
type PooledEmbedder struct {
	inner Embedder
	slots chan struct{}
}

// NewPooledEmbedder wraps inner with at most workers concurrent embeddings.
func NewPooledEmbedder(inner Embedder, workers int) *PooledEmbedder {
	if workers <= 0 {
		workers = 4
	}
	return &PooledEmbedder{
		inner: inner,
		slots: make(chan struct{}, workers),
	}
}

// Embed acquires a worker slot (or gives up when the context expires) and
// delegates to the inner embedder.
func (p *PooledEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.inner.Embed(ctx, text)
}

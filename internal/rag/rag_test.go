package rag

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Companion-Memory/server/internal/models"
)

const testDim = 8

// hashBackend produces deterministic bag-of-words vectors so that texts
// sharing words are closer than texts that do not.
type hashBackend struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (b *hashBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.fail != nil {
		return nil, b.fail
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, testDim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			vec[h.Sum32()%testDim] += 1
		}
		vec[testDim-1] += 0.1
		out[i] = vec
	}
	return out, nil
}

func (b *hashBackend) Dim() int     { return testDim }
func (b *hashBackend) Name() string { return "hash" }

// hashEmbedder embeds without caching.
type hashEmbedder struct{ backend hashBackend }

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.backend.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.backend.Embed(ctx, texts)
}

func (e *hashEmbedder) Dim() int { return testDim }

func newTestStore(t *testing.T) (*MemoryStore, *InMemoryIndex, *MemorySideCache, *hashBackend) {
	t.Helper()
	backend := &hashBackend{}
	index := NewInMemoryIndex("test", testDim)
	cache := NewMemorySideCache()
	return NewMemoryStore(index, NewEmbeddingService(backend, 0, 0), cache), index, cache, backend
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
	assert.Empty(t, NormalizeVector(nil))
}

func TestCalculateCosineSimilarity(t *testing.T) {
	s, err := CalculateCosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)

	_, err = CalculateCosineSimilarity([]float32{1}, []float32{1, 0})
	assert.Error(t, err)
}

func TestIsValidVector(t *testing.T) {
	assert.True(t, IsValidVector([]float32{1, 2}))
	assert.False(t, IsValidVector([]float32{float32(math.NaN())}))
	assert.False(t, IsValidVector([]float32{float32(math.Inf(1))}))
}

func TestEmbeddingServiceCachesAndNormalizes(t *testing.T) {
	backend := &hashBackend{}
	svc := NewEmbeddingService(backend, 0, 0)
	ctx := context.Background()

	v1, err := svc.Embed(ctx, "hello there")
	require.NoError(t, err)
	v2, err := svc.Embed(ctx, "hello there")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, 1, svc.GetCacheSize())

	var norm float64
	for _, x := range v1 {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	vs, err := svc.EmbedBatch(ctx, []string{"hello there", "new text"})
	require.NoError(t, err)
	assert.Len(t, vs, 2)
	assert.Equal(t, v1, vs[0])
	assert.Equal(t, 2, backend.calls)

	stats := svc.GetStats()
	assert.Equal(t, 2, stats.CacheSize)
	assert.Equal(t, "hash", stats.Backend)
	assert.Equal(t, testDim, stats.EmbeddingDim)
}

func TestEmbeddingCacheExpiresEntries(t *testing.T) {
	backend := &hashBackend{}
	svc := NewEmbeddingService(backend, 200*time.Millisecond, 0)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_, err := svc.Embed(ctx, fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
	}
	require.Equal(t, 1000, svc.GetCacheSize())

	assert.Eventually(t, func() bool { return svc.GetCacheSize() == 0 }, 3*time.Second, 20*time.Millisecond)

	_, err := svc.Embed(ctx, "turn 0")
	require.NoError(t, err)
	assert.Equal(t, 1001, backend.calls)
}

func TestEmbeddingCacheBoundedBySize(t *testing.T) {
	backend := &hashBackend{}
	svc := NewEmbeddingService(backend, time.Hour, 10)
	ctx := context.Background()

	texts := make([]string, 50)
	for i := range texts {
		texts[i] = fmt.Sprintf("line %d", i)
	}
	_, err := svc.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, 10, svc.GetCacheSize())

	// the most recent entries survive eviction
	_, err = svc.Embed(ctx, "line 49")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls)
}

func TestEmbeddingServiceBackendError(t *testing.T) {
	svc := NewEmbeddingService(&hashBackend{fail: errors.New("boom")}, 0, 0)
	_, err := svc.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestFingerprintDeterministic(t *testing.T) {
	assert.Equal(t, Fingerprint("u1: hi"), Fingerprint("u1: hi"))
	assert.NotEqual(t, Fingerprint("u1: hi"), Fingerprint("u1: hi "))
	assert.Len(t, Fingerprint("anything"), 32)
}

func TestPointIDIsStableUUID(t *testing.T) {
	fp := Fingerprint("u1: hi")
	assert.Equal(t, PointID(fp), PointID(fp))
	assert.Len(t, PointID(fp), 36)
	assert.Len(t, PointID("not-hex"), 36)
}

func TestStoreIsIdempotent(t *testing.T) {
	store, index, cache, _ := newTestStore(t)
	ctx := context.Background()

	id1, err := store.Store(ctx, "u1", "u1: I like tea", models.MoodPositive)
	require.NoError(t, err)
	id2, err := store.Store(ctx, "u1", "u1: I like tea", models.MoodPositive)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, Fingerprint("u1: I like tea"), id1)

	info, err := index.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.PointCount)
	assert.Equal(t, 1, cache.Len())

	cached, ok, err := cache.GetMemory(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1: I like tea", cached.Text)
	assert.Equal(t, "u1", cached.Metadata["user_id"])
	assert.Equal(t, "positive", cached.Metadata["mood"])
}

func TestRetrieveExcludesSelfAndFiltersIdentity(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"u1: I like tea", "u1: tea is warm", "u1: I walked the dog"} {
		_, err := store.Store(ctx, "u1", text, models.MoodNeutral)
		require.NoError(t, err)
	}
	_, err := store.Store(ctx, "u2", "u2: I like tea too", models.MoodNeutral)
	require.NoError(t, err)

	for k := 1; k <= 5; k++ {
		memories, err := store.Retrieve(ctx, "u1", "u1: I like tea", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(memories), k)
		for i, m := range memories {
			assert.NotEqual(t, "u1: I like tea", m.Text)
			assert.Equal(t, "u1", m.Metadata["user_id"])
			assert.NotContains(t, m.Metadata, "text")
			if i > 0 {
				assert.GreaterOrEqual(t, memories[i-1].Score, m.Score)
			}
		}
	}

	memories, err := store.Retrieve(ctx, "u1", "u1: I like tea", 5)
	require.NoError(t, err)
	assert.Len(t, memories, 2)
}

func TestRetrieveZeroK(t *testing.T) {
	store, _, _, backend := newTestStore(t)
	memories, err := store.Retrieve(context.Background(), "u1", "x", 0)
	require.NoError(t, err)
	assert.Empty(t, memories)
	assert.Equal(t, 0, backend.calls)
}

func TestRecallReturnsIdentityTexts(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.StoreBatch(ctx, []Entry{
		{Text: "alex: I love hiking", Metadata: map[string]interface{}{"user_id": "alex"}},
		{Text: "alex: coffee first", Metadata: map[string]interface{}{"user_id": "alex"}},
		{Text: "sam: hi", Metadata: map[string]interface{}{"user_id": "sam"}},
	})
	require.NoError(t, err)

	texts, err := store.Recall(ctx, "alex", "what is alex like?", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alex: I love hiking", "alex: coffee first"}, texts)

	none, err := store.Recall(ctx, "nobody", "who?", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStoreEmbeddingStats(t *testing.T) {
	store, _, _, _ := newTestStore(t)

	_, err := store.StoreBatch(context.Background(), []Entry{{Text: "one"}, {Text: "two"}})
	require.NoError(t, err)

	stats := store.EmbeddingStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.CacheSize)
	assert.Equal(t, "hash", stats.Backend)

	bare := NewMemoryStore(NewInMemoryIndex("test", testDim), &hashEmbedder{}, NewMemorySideCache())
	assert.Nil(t, bare.EmbeddingStats())
}

func TestStoreBatchAndSearch(t *testing.T) {
	store, _, _, backend := newTestStore(t)
	ctx := context.Background()

	ids, err := store.StoreBatch(ctx, []Entry{
		{Text: "green tea is calming", Metadata: map[string]interface{}{"source": "seed"}},
		{Text: "black coffee wakes me up"},
		{Text: "tea with honey"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, Fingerprint("black coffee wakes me up"), ids[1])
	assert.Equal(t, 1, backend.calls)

	results, err := store.Search(ctx, "tea", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.NotEmpty(t, r.Text)
		assert.NotNil(t, r.Metadata)
	}

	all, err := store.Search(ctx, "tea", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, r := range all {
		if r.Text == "green tea is calming" {
			assert.Equal(t, "seed", r.Metadata["source"])
		}
	}
}

func TestSearchUnknownIDsYieldEmptyText(t *testing.T) {
	backend := &hashBackend{}
	index := NewInMemoryIndex("test", testDim)
	store := NewMemoryStore(index, NewEmbeddingService(backend, 0, 0), NewMemorySideCache())
	ctx := context.Background()

	vecs, err := backend.Embed(ctx, []string{"orphan"})
	require.NoError(t, err)
	require.NoError(t, index.Upsert(ctx, []*Point{{ID: "orphan", Vector: NormalizeVector(vecs[0]), Payload: map[string]interface{}{"text": "orphan"}}}))

	results, err := store.Search(ctx, "orphan", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "", results[0].Text)
	assert.Empty(t, results[0].Metadata)
}

func TestInMemoryIndexRejectsBadPoints(t *testing.T) {
	index := NewInMemoryIndex("test", 2)
	ctx := context.Background()

	assert.Error(t, index.Upsert(ctx, []*Point{{ID: "", Vector: []float32{1, 0}}}))
	assert.Error(t, index.Upsert(ctx, []*Point{{ID: "a", Vector: []float32{1}}}))
}

func TestMemorySideCacheConcurrentWrites(t *testing.T) {
	cache := NewMemorySideCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := Fingerprint(string(rune('a' + i%26)))
			_ = cache.PutMemory(ctx, id, &models.CachedMemory{Text: id})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, cache.Len())
}

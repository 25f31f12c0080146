package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeMemory(t *testing.T, repo *SQLStore, content string, vec []float32, at time.Time) *LongTermMemory {
	t.Helper()
	mem, err := NewLongTermMemory(content, NewEmbedding(vec, "test"), 7)
	require.NoError(t, err)
	mem.CreatedAt = at
	require.NoError(t, repo.SaveLongTerm(context.Background(), mem))
	return mem
}

func TestLongTermStoreRoundTrip(t *testing.T) {
	repo := setupStoreTest(t)
	s := NewLongTermMemoryStore(repo, testDimension, nil)
	ctx := context.Background()

	contents := []string{"gm frens", "sol to the moon", "touch grass", "the terminal speaks"}
	stored := make(map[string]Embedding)
	for i, c := range contents {
		emb := NewEmbedding(hashVector(c), "hash")
		_, err := s.Store(ctx, c, emb, 7+i%4)
		require.NoError(t, err)
		stored[c] = emb
	}

	for _, c := range contents {
		got, err := s.RetrieveRelevant(ctx, stored[c], 3)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, c, got[0].Memory.Content)
		assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	}
}

func TestLongTermStoreRetrieveIsIdempotent(t *testing.T) {
	repo := setupStoreTest(t)
	s := NewLongTermMemoryStore(repo, testDimension, nil)
	ctx := context.Background()

	for _, c := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.Store(ctx, c, NewEmbedding(hashVector(c), "hash"), 9)
		require.NoError(t, err)
	}
	query := NewEmbedding(hashVector("query"), "hash")

	first, err := s.RetrieveRelevant(ctx, query, 4)
	require.NoError(t, err)
	second, err := s.RetrieveRelevant(ctx, query, 4)
	require.NoError(t, err)

	require.Len(t, first, 4)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Memory.ID, second[i].Memory.ID)
		assert.Equal(t, first[i].Score, second[i].Score)
	}

	all, err := repo.ListLongTerm(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestLongTermStoreTiesPreferRecent(t *testing.T) {
	repo := setupStoreTest(t)
	s := NewLongTermMemoryStore(repo, 2, nil)

	storeMemory(t, repo, "older", []float32{1, 0}, testEpoch)
	storeMemory(t, repo, "newer", []float32{2, 0}, testEpoch.Add(time.Hour))
	storeMemory(t, repo, "orthogonal", []float32{0, 1}, testEpoch.Add(2*time.Hour))

	got, err := s.RetrieveRelevant(context.Background(), NewEmbedding([]float32{1, 0}, "test"), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "newer", got[0].Memory.Content)
	assert.Equal(t, "older", got[1].Memory.Content)
	assert.Equal(t, "orthogonal", got[2].Memory.Content)
}

func TestLongTermStoreDefaultK(t *testing.T) {
	repo := setupStoreTest(t)
	s := NewLongTermMemoryStore(repo, testDimension, nil)
	ctx := context.Background()

	for i := range 12 {
		c := string(rune('a' + i))
		_, err := s.Store(ctx, c, NewEmbedding(hashVector(c), "hash"), 7)
		require.NoError(t, err)
	}

	got, err := s.RetrieveRelevant(ctx, NewEmbedding(hashVector("q"), "hash"), 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultRetrieveK)
}

func TestLongTermStoreRejects(t *testing.T) {
	repo := setupStoreTest(t)
	s := NewLongTermMemoryStore(repo, testDimension, nil)
	ctx := context.Background()

	_, err := s.Store(ctx, "short", NewEmbedding([]float32{1, 2}, "x"), 8)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	for _, score := range []int{0, 11} {
		_, err = s.Store(ctx, "bad score", NewEmbedding(hashVector("x"), "x"), score)
		assert.ErrorIs(t, err, ErrInvalidScore)
	}

	_, err = s.RetrieveRelevant(ctx, NewEmbedding([]float32{1}, "x"), 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLongTermStoreSkipsForeignDimensions(t *testing.T) {
	repo := setupStoreTest(t)
	s := NewLongTermMemoryStore(repo, 2, nil)

	storeMemory(t, repo, "fits", []float32{1, 0}, testEpoch)
	storeMemory(t, repo, "legacy", []float32{1, 0, 0}, testEpoch)

	got, err := s.RetrieveRelevant(context.Background(), NewEmbedding([]float32{1, 0}, "test"), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fits", got[0].Memory.Content)
}

func TestCosineSimilarity(t *testing.T) {
	s, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, s, 1e-9)

	s, err = CosineSimilarity([]float32{1, 1}, []float32{2, 2})
	require.NoError(t, err)
	assert.InDelta(t, 1, s, 1e-9)

	s, err = CosineSimilarity([]float32{0, 0}, []float32{1, 2})
	require.NoError(t, err)
	assert.Zero(t, s)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLongTermStoreStampsWithClock(t *testing.T) {
	repo := setupStoreTest(t)
	clock := newStepClock(testEpoch)
	s := NewLongTermMemoryStore(repo, testDimension, clock)
	ctx := context.Background()

	first, err := s.Store(ctx, "earlier", NewEmbedding(hashVector("earlier"), "hash"), 8)
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(testEpoch), first.CreatedAt)

	clock.Advance(time.Hour)
	_, err = s.Store(ctx, "later", NewEmbedding(hashVector("later"), "hash"), 8)
	require.NoError(t, err)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "later", recent[0].Content)
	assert.True(t, recent[0].CreatedAt.Equal(testEpoch.Add(time.Hour)), recent[0].CreatedAt)
	assert.Equal(t, "earlier", recent[1].Content)
}

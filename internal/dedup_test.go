package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupGateMarkIsIdempotent(t *testing.T) {
	gate := NewDedupGate(setupStoreTest(t))
	ctx := context.Background()

	for range 3 {
		require.NoError(t, gate.MarkProcessed(ctx, "x-1"))
		ok, err := gate.IsProcessed(ctx, "x-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := gate.IsProcessed(ctx, "x-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDedupGateUnseen(t *testing.T) {
	gate := NewDedupGate(setupStoreTest(t))
	ctx := context.Background()
	require.NoError(t, gate.MarkProcessed(ctx, "seen"))

	unseen, err := gate.Unseen(ctx, []Notification{
		mention("seen", "sama", "old"),
		mention("new-1", "sama", "hi"),
		mention("new-1", "sama", "hi again"),
		{Text: "no id"},
		mention("new-2", "elonmusk", "yo"),
	})
	require.NoError(t, err)
	require.Len(t, unseen, 2)
	assert.Equal(t, "new-1", unseen[0].ExternalID)
	assert.Equal(t, "new-2", unseen[1].ExternalID)

	// Unseen is read-only.
	ok, err := gate.IsProcessed(ctx, "new-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

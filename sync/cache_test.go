package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_CacheListReplacesSnapshot(t *testing.T) {
	queue, _ := newTestQueue(t, &fakeRemote{})
	ctx := context.Background()

	first := []CacheItem{
		{EntityID: "d-1", Payload: json.RawMessage(`{"name":"old policy"}`)},
		{EntityID: "d-2", Payload: json.RawMessage(`{"name":"handbook"}`)},
	}
	require.NoError(t, queue.CacheList(ctx, EntityDocuments, first))

	cached, err := queue.GetCached(ctx, EntityDocuments)
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "d-1", cached[0].EntityID)
	assert.JSONEq(t, `{"name":"old policy"}`, string(cached[0].Payload))

	// full replace: d-2 disappears, d-3 appears, d-1 is updated
	second := []CacheItem{
		{EntityID: "d-1", Payload: json.RawMessage(`{"name":"new policy"}`)},
		{EntityID: "d-3", Payload: json.RawMessage(`{"name":"procedures"}`)},
	}
	require.NoError(t, queue.CacheList(ctx, EntityDocuments, second))

	cached, err = queue.GetCached(ctx, EntityDocuments)
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "d-1", cached[0].EntityID)
	assert.JSONEq(t, `{"name":"new policy"}`, string(cached[0].Payload))
	assert.Equal(t, "d-3", cached[1].EntityID)
}

func TestQueue_CacheIsolatedPerEntityType(t *testing.T) {
	queue, _ := newTestQueue(t, &fakeRemote{})
	ctx := context.Background()

	require.NoError(t, queue.CacheList(ctx, EntityDocuments, []CacheItem{
		{EntityID: "d-1", Payload: json.RawMessage(`{}`)},
	}))
	require.NoError(t, queue.CacheList(ctx, EntityIncidents, []CacheItem{
		{EntityID: "i-1", Payload: json.RawMessage(`{}`)},
		{EntityID: "i-2", Payload: json.RawMessage(`{}`)},
	}))

	// replacing documents leaves incidents untouched
	require.NoError(t, queue.CacheList(ctx, EntityDocuments, nil))

	docs, err := queue.GetCached(ctx, EntityDocuments)
	require.NoError(t, err)
	assert.Empty(t, docs)

	incidents, err := queue.GetCached(ctx, EntityIncidents)
	require.NoError(t, err)
	assert.Len(t, incidents, 2)
}

func TestQueue_CacheListStampsLastSync(t *testing.T) {
	queue, _ := newTestQueue(t, &fakeRemote{})

	last, err := queue.LastSyncAt(EntityTrainings)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, queue.CacheList(context.Background(), EntityTrainings, nil))

	last, err = queue.LastSyncAt(EntityTrainings)
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestQueue_RefreshCache(t *testing.T) {
	remote := &fakeRemote{
		listings: map[string][]CacheItem{
			EntityTasks: {
				{EntityID: "t-1", Payload: json.RawMessage(`{"title":"inspect extinguishers"}`)},
			},
		},
	}
	queue, _ := newTestQueue(t, remote)
	ctx := context.Background()

	require.NoError(t, queue.RefreshCache(ctx, EntityTasks))

	cached, err := queue.GetCached(ctx, EntityTasks)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "t-1", cached[0].EntityID)
}

func TestQueue_RefreshCache_RemoteError(t *testing.T) {
	queue, _ := newTestQueue(t, &fakeRemote{})

	err := queue.RefreshCache(context.Background(), EntityTasks)
	require.Error(t, err)

	cached, err := queue.GetCached(context.Background(), EntityTasks)
	require.NoError(t, err)
	assert.Empty(t, cached)
}

package dms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optakt/kudu-tablet/pkg/anchor"
	"github.com/optakt/kudu-tablet/pkg/deltaiter"
	"github.com/optakt/kudu-tablet/pkg/deltakey"
	"github.com/optakt/kudu-tablet/pkg/dms"
)

type recordingWriter struct {
	deltas []deltakey.Delta
}

func (w *recordingWriter) WriteDelta(delta deltakey.Delta) error {
	w.deltas = append(w.deltas, delta.Clone())
	return nil
}

func TestDeltaMemStore_UpdateAndCount(t *testing.T) {
	registry := anchor.NewRegistry()
	store := dms.New(registry, "dms-1")

	change := deltakey.EncodeUpdates([]deltakey.ColumnUpdate{{ColumnID: 1, Value: []byte("v1")}})
	_, err := store.Update(100, 42, change, deltakey.OpID{Term: 1, Index: 5})
	require.NoError(t, err)

	assert.Equal(t, int64(1), store.Count())
	assert.False(t, store.Empty())
	assert.Greater(t, store.EstimateSize(), int64(0))

	registry.UnregisterIfAnchored("dms-1")
}

func TestDeltaMemStore_CollisionGetsDisambiguators(t *testing.T) {
	// Scenario 5: two Update(ts=100, row=42, ...) calls in the same
	// tablet; both retrievable; disambiguators 0 and 1 respectively.
	registry := anchor.NewRegistry()
	store := dms.New(registry, "dms-1")
	defer registry.UnregisterIfAnchored("dms-1")

	change1 := deltakey.EncodeUpdates([]deltakey.ColumnUpdate{{ColumnID: 1, Value: []byte("first")}})
	change2 := deltakey.EncodeUpdates([]deltakey.ColumnUpdate{{ColumnID: 1, Value: []byte("second")}})

	key1, err := store.Update(100, 42, change1, deltakey.OpID{Term: 1, Index: 1})
	require.NoError(t, err)
	key2, err := store.Update(100, 42, change2, deltakey.OpID{Term: 1, Index: 2})
	require.NoError(t, err)

	assert.Equal(t, uint32(0), key1.Disambiguator)
	assert.Equal(t, uint32(1), key2.Disambiguator)
	assert.Equal(t, int64(2), store.Count())

	w := &recordingWriter{}
	require.NoError(t, store.FlushToFile(w))
	require.Len(t, w.deltas, 2)
	assert.Equal(t, change1, w.deltas[0].Change)
	assert.Equal(t, change2, w.deltas[1].Change)
}

func TestDeltaMemStore_FlushReleasesAnchor(t *testing.T) {
	registry := anchor.NewRegistry()
	store := dms.New(registry, "dms-1")

	change := deltakey.DeleteChangeList()
	_, err := store.Update(10, 1, change, deltakey.OpID{Term: 1, Index: 7})
	require.NoError(t, err)

	earliest, err := registry.GetEarliestRegisteredLogIndex()
	require.NoError(t, err)
	assert.Equal(t, int64(7), earliest)

	require.NoError(t, store.FlushToFile(&recordingWriter{}))

	_, err = registry.GetEarliestRegisteredLogIndex()
	assert.Error(t, err)
	assert.Equal(t, int64(1), store.DeletedRowCount())
}

func TestDeltaMemStore_NewDeltaIteratorOnEmptyIsNotFound(t *testing.T) {
	registry := anchor.NewRegistry()
	store := dms.New(registry, "dms-1")

	_, err := store.NewDeltaIterator(deltaiter.RowIteratorOptions{})
	assert.Error(t, err)
}

func TestDeltaMemStore_CheckRowDeletedHonorsSnapshot(t *testing.T) {
	registry := anchor.NewRegistry()
	store := dms.New(registry, "dms-1")
	defer registry.UnregisterIfAnchored("dms-1")

	_, err := store.Update(10, 5, deltakey.DeleteChangeList(), deltakey.OpID{Term: 1, Index: 1})
	require.NoError(t, err)

	deletedAt5, err := store.CheckRowDeleted(5, deltaiter.MvccSnapshot{SnapshotTimestamp: 5})
	require.NoError(t, err)
	assert.False(t, deletedAt5)

	deletedAt10, err := store.CheckRowDeleted(5, deltaiter.MvccSnapshot{SnapshotTimestamp: 10})
	require.NoError(t, err)
	assert.True(t, deletedAt10)
}

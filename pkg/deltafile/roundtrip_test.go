package deltafile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optakt/kudu-tablet/pkg/deltafile"
	"github.com/optakt/kudu-tablet/pkg/deltaiter"
	"github.com/optakt/kudu-tablet/pkg/deltakey"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	// Flushing a DMS and re-reading via the file iterator yields the
	// same multiset of (DeltaKey, RowChangeList) as was inserted.
	var buf bytes.Buffer
	w, err := deltafile.NewWriter(&buf)
	require.NoError(t, err)

	in := []deltakey.Delta{
		{Key: deltakey.DeltaKey{RowID: 0, Timestamp: 10}, Change: deltakey.EncodeUpdates([]deltakey.ColumnUpdate{{ColumnID: 1, Value: []byte("a")}})},
		{Key: deltakey.DeltaKey{RowID: 1, Timestamp: 10}, Change: deltakey.EncodeUpdates([]deltakey.ColumnUpdate{{ColumnID: 1, Value: []byte("b")}})},
		{Key: deltakey.DeltaKey{RowID: 2, Timestamp: 20}, Change: deltakey.DeleteChangeList()},
	}
	for _, d := range in {
		require.NoError(t, w.WriteDelta(d))
	}
	require.NoError(t, w.Close())

	out, err := deltafile.ReadAll(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].Key, out[i].Key)
		assert.Equal(t, in[i].Change, out[i].Change)
	}
}

func TestWriter_RejectsOutOfOrderKeys(t *testing.T) {
	var buf bytes.Buffer
	w, err := deltafile.NewWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.WriteDelta(deltakey.Delta{Key: deltakey.DeltaKey{RowID: 5, Timestamp: 1}, Change: deltakey.DeleteChangeList()}))
	err = w.WriteDelta(deltakey.Delta{Key: deltakey.DeltaKey{RowID: 1, Timestamp: 1}, Change: deltakey.DeleteChangeList()})
	assert.Error(t, err)
}

func TestIterator_HonorsSnapshotBounds(t *testing.T) {
	var buf bytes.Buffer
	w, err := deltafile.NewWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.WriteDelta(deltakey.Delta{Key: deltakey.DeltaKey{RowID: 0, Timestamp: 10}, Change: deltakey.EncodeUpdates(nil)}))
	require.NoError(t, w.WriteDelta(deltakey.Delta{Key: deltakey.DeltaKey{RowID: 1, Timestamp: 50}, Change: deltakey.EncodeUpdates(nil)}))
	require.NoError(t, w.Close())

	it, err := deltafile.NewIterator(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	require.NoError(t, it.Init(deltaiter.RowIteratorOptions{
		UpperBound: 2,
		Snapshot:   deltaiter.MvccSnapshot{SnapshotTimestamp: 10},
	}))
	require.NoError(t, it.SeekToOrdinal(0))
	require.NoError(t, it.PrepareBatch(2, deltaiter.PrepareForCollect, nil))

	var collected []deltakey.Delta
	require.NoError(t, it.CollectMutations(&collected))
	assert.Len(t, collected, 1)
	assert.Equal(t, deltakey.RowID(0), collected[0].Key.RowID)
}

func TestIterator_InitExcludedBySnapshotIsNotFound(t *testing.T) {
	var buf bytes.Buffer
	w, err := deltafile.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteDelta(deltakey.Delta{Key: deltakey.DeltaKey{RowID: 0, Timestamp: 100}, Change: deltakey.EncodeUpdates(nil)}))
	require.NoError(t, w.Close())

	it, err := deltafile.NewIterator(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	err = it.Init(deltaiter.RowIteratorOptions{Snapshot: deltaiter.MvccSnapshot{SnapshotTimestamp: 10}})
	assert.Error(t, err)
}

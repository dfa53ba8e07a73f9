package deltakey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optakt/kudu-tablet/pkg/deltakey"
)

func TestRowChangeList_DeleteMarker(t *testing.T) {
	del := deltakey.DeleteChangeList()
	assert.True(t, del.IsDelete())

	_, err := deltakey.DecodeUpdates(del)
	assert.Error(t, err)
}

func TestRowChangeList_EncodeDecodeUpdates(t *testing.T) {
	updates := []deltakey.ColumnUpdate{
		{ColumnID: 1, Value: []byte("alice")},
		{ColumnID: 2, Value: []byte{}},
		{ColumnID: 7, Value: []byte{0xde, 0xad, 0xbe, 0xef}},
	}

	encoded := deltakey.EncodeUpdates(updates)
	assert.False(t, encoded.IsDelete())

	decoded, err := deltakey.DecodeUpdates(encoded)
	require.NoError(t, err)
	require.Equal(t, updates, decoded)
}

func TestRowChangeList_EncodeDecodeEmpty(t *testing.T) {
	encoded := deltakey.EncodeUpdates(nil)
	assert.False(t, encoded.IsDelete())

	decoded, err := deltakey.DecodeUpdates(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeUpdates_Truncated(t *testing.T) {
	_, err := deltakey.DecodeUpdates(deltakey.RowChangeList([]byte{1, 2, 3}))
	assert.Error(t, err)
}

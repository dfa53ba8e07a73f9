package deltakey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optakt/kudu-tablet/pkg/deltakey"
)

func TestDelta_CloneIsIndependent(t *testing.T) {
	change := deltakey.EncodeUpdates([]deltakey.ColumnUpdate{{ColumnID: 1, Value: []byte("a")}})
	original := deltakey.Delta{
		Key:    deltakey.DeltaKey{RowID: 1, Timestamp: 1},
		Change: change,
		OpID:   deltakey.OpID{Term: 1, Index: 1},
	}

	clone := original.Clone()
	assert.Equal(t, original, clone)

	clone.Change[0] = 0xff
	assert.NotEqual(t, original.Change[0], clone.Change[0])
}

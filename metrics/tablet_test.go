// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package metrics_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optakt/kudu-tablet/pkg/anchor"
	"github.com/optakt/kudu-tablet/pkg/deltakey"
	"github.com/optakt/kudu-tablet/pkg/dms"

	"github.com/optakt/kudu-tablet/metrics"
)

func TestTabletCollector_Output(t *testing.T) {
	registry := anchor.NewRegistry()
	store := dms.New(registry, "dms-1")

	_, err := store.Update(100, 1, deltakey.DeleteChangeList(), deltakey.OpID{Term: 1, Index: 5})
	require.NoError(t, err)

	var buf bytes.Buffer
	log := zerolog.New(&buf)

	collector := metrics.NewTabletCollector("tablet-1", store, registry)
	collector.Output(log)

	out := buf.String()
	assert.Contains(t, out, `"tablet_id":"tablet-1"`)
	assert.Contains(t, out, `"dms_row_count":1`)
	assert.Contains(t, out, `"anchor_registry_min_index":5`)

	require.NoError(t, store.FlushToFile(discardWriter{}))
}

type discardWriter struct{}

func (discardWriter) WriteDelta(deltakey.Delta) error { return nil }

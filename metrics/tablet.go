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

package metrics

import (
	"github.com/rs/zerolog"

	"github.com/optakt/kudu-tablet/pkg/anchor"
	"github.com/optakt/kudu-tablet/pkg/dms"
	"github.com/optakt/kudu-tablet/pkg/kerr"
	servicemetrics "github.com/optakt/kudu-tablet/service/metrics"
)

// TabletCollector logs a tablet's DMS and anchor registry state on
// every output.Output tick and refreshes the Prometheus gauges in
// service/metrics on the same tick, so those gauges are only as
// current as the last tick.
type TabletCollector struct {
	tabletID string
	dms      *dms.DeltaMemStore
	anchors  *anchor.Registry
}

// NewTabletCollector constructs a TabletCollector for a single tablet.
func NewTabletCollector(tabletID string, store *dms.DeltaMemStore, anchors *anchor.Registry) *TabletCollector {
	return &TabletCollector{
		tabletID: tabletID,
		dms:      store,
		anchors:  anchors,
	}
}

// Output implements Collector. Alongside the human-readable log line,
// it refreshes the Prometheus gauges in service/metrics, since both
// surfaces read the same DMS/anchor state and this is the one place
// that already ticks on a timer to report it.
func (c *TabletCollector) Output(log zerolog.Logger) {
	log = log.With().
		Str("component", "tablet_metrics").
		Str("tablet_id", c.tabletID).
		Logger()

	rowCount := c.dms.Count()
	deletedCount := c.dms.DeletedRowCount()
	arenaBytes := c.dms.EstimateSize()
	depth := c.anchors.Len()

	servicemetrics.DMSRowCount.WithLabelValues(c.tabletID).Set(float64(rowCount))
	servicemetrics.DMSDeletedRowCount.WithLabelValues(c.tabletID).Set(float64(deletedCount))
	servicemetrics.DMSArenaBytes.WithLabelValues(c.tabletID).Set(float64(arenaBytes))
	servicemetrics.AnchorRegistryDepth.WithLabelValues(c.tabletID).Set(float64(depth))

	event := log.Info().
		Int64("dms_row_count", rowCount).
		Int64("dms_deleted_row_count", deletedCount).
		Int64("dms_arena_bytes", arenaBytes).
		Int("anchor_registry_depth", depth)

	earliest, err := c.anchors.GetEarliestRegisteredLogIndex()
	switch {
	case err == nil:
		event = event.Int64("anchor_registry_min_index", earliest)
		servicemetrics.AnchorRegistryMinIndex.WithLabelValues(c.tabletID).Set(float64(earliest))
	case kerr.Is(err, kerr.NotFound):
		event = event.Int64("anchor_registry_min_index", -1)
		servicemetrics.AnchorRegistryMinIndex.WithLabelValues(c.tabletID).Set(-1)
	default:
		log.Warn().Err(err).Msg("could not read earliest anchored index")
	}

	event.Msg("tablet metrics")
}

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
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Tablet metric families, registered alongside the badger expvar
// collector on the same /metrics endpoint. DMS and anchor registry
// gauges are labeled by tablet_id since a server hosts many tablets.
var (
	DMSRowCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tablet_dms_row_count",
		Help: "Number of live deltas currently held by a tablet's delta memstore.",
	}, []string{"tablet_id"})

	DMSDeletedRowCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tablet_dms_deleted_row_count",
		Help: "Number of delete deltas currently held by a tablet's delta memstore.",
	}, []string{"tablet_id"})

	DMSArenaBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tablet_dms_arena_bytes",
		Help: "Estimated arena memory used by a tablet's delta memstore.",
	}, []string{"tablet_id"})

	AnchorRegistryDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tablet_anchor_registry_depth",
		Help: "Number of anchors currently held in a tablet's log anchor registry.",
	}, []string{"tablet_id"})

	AnchorRegistryMinIndex = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tablet_anchor_registry_min_index",
		Help: "Earliest log index anchored in a tablet's log anchor registry; -1 when no anchor is held.",
	}, []string{"tablet_id"})

	ElectionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tablet_election_outcomes_total",
		Help: "Count of leader elections a tablet has run, labeled by decision.",
	}, []string{"tablet_id", "decision"})
)

// RegisterTabletMetrics registers the tablet metric families above.
func RegisterTabletMetrics() error {
	collectors := []prometheus.Collector{
		DMSRowCount,
		DMSDeletedRowCount,
		DMSArenaBytes,
		AnchorRegistryDepth,
		AnchorRegistryMinIndex,
		ElectionOutcomes,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return fmt.Errorf("could not register tablet metric: %w", err)
		}
	}
	return nil
}

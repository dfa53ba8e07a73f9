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

package deltakey

// Delta pairs a DeltaKey with the change it carries. It is the unit
// exchanged between a DMS, its iterators, the merger, and frozen delta
// files.
type Delta struct {
	Key    DeltaKey
	Change RowChangeList
	OpID   OpID
}

// Clone returns a deep copy of d, so callers may retain it past the
// lifetime of whatever arena or buffer backs its Change bytes.
func (d Delta) Clone() Delta {
	change := make(RowChangeList, len(d.Change))
	copy(change, d.Change)
	return Delta{Key: d.Key, Change: change, OpID: d.OpID}
}

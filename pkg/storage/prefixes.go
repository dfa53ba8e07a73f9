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

package storage

// Key prefixes for the tablet metadata keyspace. Each record type gets
// its own prefix byte so a badger prefix iterator can scan exactly one
// record kind without decoding keys it doesn't care about.
const (
	PrefixLastFlushedOpID   = 1
	PrefixDeltaFileManifest = 2
	PrefixTabletConfig      = 3
)

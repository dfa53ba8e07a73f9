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

// Package walsegments is an append-only, segmented write-ahead log for
// tablet operations, whose truncation is gated by the log anchor
// registry: a segment is only eligible for removal once every index it
// contains is below the earliest index any owner still anchors.
package walsegments

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	prometheusWAL "github.com/m4ksio/wal/wal"

	"github.com/optakt/kudu-tablet/pkg/anchor"
	"github.com/optakt/kudu-tablet/pkg/kerr"
)

// DefaultSegmentSize matches the teacher's ledger WAL segment size.
const DefaultSegmentSize = 32 * 1024 * 1024

// segmentBound tracks the highest log index appended to a segment, so
// TruncateBefore can decide which segments are safe to drop.
type segmentBound struct {
	segment  int
	maxIndex int64
}

// Store appends tablet operations to a segmented on-disk log and
// exposes anchor-gated truncation over it.
type Store struct {
	log zerolog.Logger
	wal *prometheusWAL.WAL

	anchors *anchor.Registry

	mu        sync.Mutex
	nextIndex int64
	bounds    []segmentBound
}

// Open creates or reopens a segmented WAL rooted at dir. anchors is
// consulted by TruncateBefore to avoid discarding a segment that still
// backs a live anchor.
func Open(log zerolog.Logger, reg prometheus.Registerer, dir string, segmentSize int, anchors *anchor.Registry) (*Store, error) {
	w, err := prometheusWAL.NewSize(log, reg, dir, segmentSize, false)
	if err != nil {
		return nil, fmt.Errorf("could not open WAL at %s: %w", dir, err)
	}
	return &Store{
		log:     log.With().Str("component", "walsegments").Logger(),
		wal:     w,
		anchors: anchors,
	}, nil
}

// Append writes entry to the log and returns the log index it was
// assigned. The index is a purely logical, monotonically increasing
// sequence number local to this Store; it is what owners anchor
// against in the log anchor registry.
func (s *Store) Append(entry []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.nextIndex
	s.nextIndex++

	if _, err := s.wal.Log(entry); err != nil {
		return 0, fmt.Errorf("could not append WAL entry: %w", err)
	}

	_, last, err := prometheusWAL.Segments(s.wal.Dir())
	if err != nil {
		return 0, fmt.Errorf("could not determine current WAL segment: %w", err)
	}

	if len(s.bounds) == 0 || s.bounds[len(s.bounds)-1].segment != last {
		s.bounds = append(s.bounds, segmentBound{segment: last, maxIndex: index})
	} else {
		s.bounds[len(s.bounds)-1].maxIndex = index
	}

	return index, nil
}

// Segments reports the first and last segment numbers currently on
// disk.
func (s *Store) Segments() (first, last int, err error) {
	return prometheusWAL.Segments(s.wal.Dir())
}

// TruncateBefore discards every segment whose entries are all below
// requestedIndex, capped by the earliest index any owner in the log
// anchor registry still holds: a segment containing an anchored index
// is never removed, regardless of requestedIndex. It returns the
// index truncation actually reached, which may be lower than
// requestedIndex when an anchor held it back.
func (s *Store) TruncateBefore(requestedIndex int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := requestedIndex
	earliest, err := s.anchors.GetEarliestRegisteredLogIndex()
	switch {
	case err == nil:
		if earliest < cutoff {
			cutoff = earliest
		}
	case kerr.Is(err, kerr.NotFound):
		// No anchors held at all; nothing constrains the cutoff.
	default:
		return 0, fmt.Errorf("could not read earliest anchored index: %w", err)
	}

	keepFrom := 0
	truncatedThrough := int64(-1)
	for i, b := range s.bounds {
		if b.maxIndex >= cutoff {
			break
		}
		keepFrom = i + 1
		truncatedThrough = b.maxIndex
	}
	if keepFrom == 0 {
		return truncatedThrough, nil
	}

	lastSegmentToDrop := s.bounds[keepFrom-1].segment
	if err := s.wal.Truncate(lastSegmentToDrop + 1); err != nil {
		return 0, fmt.Errorf("could not truncate WAL segments up to %d: %w", lastSegmentToDrop, err)
	}

	s.bounds = s.bounds[keepFrom:]
	s.log.Debug().Int64("truncated_through_index", truncatedThrough).Int("last_dropped_segment", lastSegmentToDrop).Msg("truncated WAL segments")

	return truncatedThrough, nil
}

// Close flushes and closes the underlying WAL files.
func (s *Store) Close() error {
	if err := s.wal.Close(); err != nil {
		return fmt.Errorf("could not close WAL: %w", err)
	}
	return nil
}

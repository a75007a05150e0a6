// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats accumulates the pre- and post-consensus quality metrics
// the engine reports: read/depth/edit-distance histograms before
// clustering, and molecule counts after. It plays the role of
// markduplicates' Metrics/MetricsCollection, specialized to the
// gencore consensus pipeline rather than duplicate marking.
package stats

import "sync"

// PreStats accumulates statistics over the raw input stream, before any
// clustering or consensus has happened.
type PreStats struct {
	mu sync.Mutex

	// ReadCount is the number of primary alignments observed.
	ReadCount int64
	// UnmappedReadCount is the number of primary reads with tid<0 or pos<0.
	UnmappedReadCount int64
	// LengthSum is the sum of aligned lengths over primary mapped reads.
	LengthSum int64
	// EditDistanceSum is the sum of NM tag values over primary mapped reads.
	EditDistanceSum int64

	// DepthHistogram maps a cluster's read-pair count (distinct qnames)
	// to the number of times a read arrived finding that many pairs
	// already sharing its coord_key.
	DepthHistogram map[int]int64
	// EditDistanceHistogram maps an individual read's edit distance to
	// the number of reads observed at that distance.
	EditDistanceHistogram map[int]int64
}

// NewPreStats returns an empty PreStats.
func NewPreStats() *PreStats {
	return &PreStats{
		DepthHistogram:        make(map[int]int64),
		EditDistanceHistogram: make(map[int]int64),
	}
}

// AddRead records a primary mapped read's length and edit distance.
func (s *PreStats) AddRead(length, editDistance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadCount++
	s.LengthSum += int64(length)
	s.EditDistanceSum += int64(editDistance)
	s.EditDistanceHistogram[editDistance]++
}

// AddUnmapped records a primary unmapped read.
func (s *PreStats) AddUnmapped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadCount++
	s.UnmappedReadCount++
}

// StatDepth records the number of read pairs (distinct qnames) found
// sharing a coord_key at the moment a new read joins that cluster.
func (s *PreStats) StatDepth(depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DepthHistogram[depth]++
}

// PostStats accumulates statistics over the consensus output stream.
type PostStats struct {
	mu sync.Mutex

	// MoleculeCount is the number of consensus Pairs emitted, one per
	// UMI-similarity group produced by clusterByUMI.
	MoleculeCount int64
	// PairedMoleculeCount is the subset of molecules with both mates present.
	PairedMoleculeCount int64
	// SingletonMoleculeCount is the subset of molecules with only one mate.
	SingletonMoleculeCount int64
	// WrittenReadCount is the number of consensus Records actually
	// written to the output stream.
	WrittenReadCount int64
	// UnmappedReadCount is the number of fully unmapped primary reads
	// that passed through the pipeline without clustering.
	UnmappedReadCount int64
	// GroupSizeHistogram maps UMI-group size (reads merged into one
	// molecule) to the number of molecules of that size.
	GroupSizeHistogram map[int]int64
}

// NewPostStats returns an empty PostStats.
func NewPostStats() *PostStats {
	return &PostStats{GroupSizeHistogram: make(map[int]int64)}
}

// AddMolecule records one UMI-cluster group's consensus outcome: groupSize
// is the number of reads merged, paired reports whether both mate sides
// were present in the resulting consensus Pair.
func (s *PostStats) AddMolecule(groupSize int, paired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MoleculeCount++
	s.GroupSizeHistogram[groupSize]++
	if paired {
		s.PairedMoleculeCount++
	} else {
		s.SingletonMoleculeCount++
	}
}

// AddWritten records n consensus Records handed to the writer.
func (s *PostStats) AddWritten(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WrittenReadCount += int64(n)
}

// AddUnmapped records one fully unmapped primary read passing through
// the pipeline.
func (s *PostStats) AddUnmapped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UnmappedReadCount++
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package consensus implements the streaming cluster-and-consensus engine:
// it accumulates coordinate-sorted reads into clusters, partitions each
// cluster by UMI similarity, collapses each sub-cluster into one consensus
// pair, and emits the consensus pairs back in coordinate order.
package consensus

import "github.com/grailbio/hts/sam"

// Options configures the engine: everything that is tunable without
// changing the clustering or consensus algorithm itself.
type Options struct {
	// ProperUMIThreshold is the Hamming-distance radius used when
	// clustering UMIs within the Proper index.
	ProperUMIThreshold int
	// ImproperUMIThreshold is the radius used within the Improper index.
	ImproperUMIThreshold int

	// MaxContig, when > 0, stops processing at records whose tid >= MaxContig.
	MaxContig int

	// Debug enables verbose contig-transition tracing.
	Debug bool

	// FinalizeEvery is the cadence (in proper-cluster insertions) at which
	// the engine scans the Proper index for clusters it can finalize.
	FinalizeEvery int

	// QualityCap bounds the Phred quality assigned to a consensus base.
	QualityCap byte
	// DissentPenalty is subtracted from a consensus base's quality when a
	// high-quality dissenting base was observed at that position.
	DissentPenalty byte
	// DissentQualityThreshold is the quality above which a dissenting vote
	// triggers DissentPenalty.
	DissentQualityThreshold byte

	// UMIDelimiter splits qname; the suffix after the last occurrence is
	// the UMI. Used when UMITag is empty. Defaults to ":".
	UMIDelimiter string
	// UMITag, if non-empty, names the SAM auxiliary tag holding the UMI;
	// it takes precedence over UMIDelimiter.
	UMITag string
	// KnownUMIs, if non-empty, is a newline-separated whitelist used to
	// snap-correct UMIs before clustering (see umi.SnapCorrector).
	KnownUMIs []byte
}

// DefaultOptions returns conservative tuning constants suitable for a
// typical targeted-panel UMI library.
func DefaultOptions() Options {
	return Options{
		ProperUMIThreshold:      1,
		ImproperUMIThreshold:    1,
		FinalizeEvery:           10000,
		QualityCap:              40,
		DissentPenalty:          10,
		DissentQualityThreshold: 30,
		UMIDelimiter:            ":",
	}
}

// umiTagBytes returns Options.UMITag as a sam.Tag, for looking up the UMI
// auxiliary field.
func (o *Options) umiTagBytes() sam.Tag {
	var t sam.Tag
	copy(t[:], o.UMITag)
	return t
}

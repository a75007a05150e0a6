// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

import (
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/hts/sam"

	"github.com/grailbio/gencore/encoding/bam"
)

// pair holds up to one left-mate and one right-mate Record sharing a
// qname within a single Cluster. At most one Record occupies each side;
// a pair is complete when both are present, but singletons are allowed.
type pair struct {
	qname    string
	umi      string
	umiPrint uint64 // farm.Hash64 fingerprint of umi, for fast exact-match checks
	left     *sam.Record
	right    *sam.Record
}

func newPair(qname, umi string) *pair {
	return &pair{qname: qname, umi: umi, umiPrint: farm.Hash64([]byte(umi))}
}

// isLeft reports whether record is the left mate of the cluster whose left
// coordinate is clusterLeft: a record whose leftmost position lies before
// clusterLeft is the left mate, and one after it is the right mate. Ties
// (e.g. overlapping mates at the same position) are broken by the
// read-1/read-2 flag so that the assignment is deterministic.
func isLeft(record *sam.Record, clusterLeft int) bool {
	if record.Pos != clusterLeft {
		return record.Pos < clusterLeft
	}
	return record.Flags&sam.Read1 != 0
}

// install places record into the side of p determined by clusterLeft. If
// that side is already occupied, the incoming record replaces it only
// when it carries a strictly smaller edit distance; ties keep the first
// record seen.
func (p *pair) install(record *sam.Record, clusterLeft int) {
	if isLeft(record, clusterLeft) {
		p.left = preferLowerEditDistance(p.left, record)
	} else {
		p.right = preferLowerEditDistance(p.right, record)
	}
}

func preferLowerEditDistance(held, incoming *sam.Record) *sam.Record {
	if held == nil {
		return incoming
	}
	if bam.EditDistance(incoming) < bam.EditDistance(held) {
		return incoming
	}
	return held
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

import (
	"sort"

	"github.com/grailbio/hts/sam"

	"github.com/grailbio/gencore/stats"
	"github.com/grailbio/gencore/umi"
)

// cluster is an unordered collection of pairs sharing an identical
// coord_key. It groups its pairs by UMI similarity and produces one
// consensus pair per group.
type cluster struct {
	key   coord
	pairs map[string]*pair // qname -> pair
}

func newCluster(key coord) *cluster {
	return &cluster{key: key, pairs: make(map[string]*pair)}
}

// addRead installs record into the pair matching its qname, creating the
// pair if this is the first record seen for that qname. It fails with a
// *MalformedRecordError if record has no extractable UMI.
func (c *cluster) addRead(record *sam.Record, o *Options, corrector *umiCorrector) error {
	p, ok := c.pairs[record.Name]
	if !ok {
		rawUMI := extractUMI(record, o)
		if rawUMI == "" {
			return &MalformedRecordError{Record: record}
		}
		p = newPair(record.Name, corrector.correct(rawUMI))
		c.pairs[record.Name] = p
	}
	p.install(record, c.key.left)
	return nil
}

// umiGroup is one group of pairs gathered by clusterByUMI: all its
// members' UMIs are within threshold Hamming distance of the group's
// centroid.
type umiGroup struct {
	centroid      string
	centroidPrint uint64
	members       []*pair
}

// consensusRecord pairs an emitted consensus Record with whether it is
// the left or right mate, so callers can submit it to the ReorderBuffer
// correctly without guessing from emission order.
type consensusRecord struct {
	record *sam.Record
	isLeft bool
}

// clusterByUMI partitions c's pairs into UMI-similarity groups via greedy
// single-linkage-with-centroid grouping, then computes one consensus pair
// per group, recording molecule statistics along the way.
func (c *cluster) clusterByUMI(threshold int, o *Options, post *stats.PostStats) []consensusRecord {
	ordered := make([]*pair, 0, len(c.pairs))
	for _, p := range c.pairs {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].umi != ordered[j].umi {
			return ordered[i].umi < ordered[j].umi
		}
		return ordered[i].qname < ordered[j].qname
	})

	var groups []*umiGroup
	for _, p := range ordered {
		joined := false
		for _, g := range groups {
			// Exact duplicates are the overwhelming majority of joins in a
			// real UMI library; a fingerprint match settles them without
			// touching umi.Hamming's byte-by-byte comparison.
			if p.umiPrint == g.centroidPrint && p.umi == g.centroid {
				g.members = append(g.members, p)
				joined = true
				break
			}
			if umi.Hamming(p.umi, g.centroid) <= threshold {
				g.members = append(g.members, p)
				joined = true
				break
			}
		}
		if !joined {
			groups = append(groups, &umiGroup{centroid: p.umi, centroidPrint: p.umiPrint, members: []*pair{p}})
		}
	}

	var out []consensusRecord
	for _, g := range groups {
		leftRecords, rightRecords := splitSides(g.members)
		var leftCons, rightCons *sam.Record
		if len(leftRecords) > 0 {
			leftCons = buildConsensus(leftRecords, len(g.members), o)
			out = append(out, consensusRecord{record: leftCons, isLeft: true})
		}
		if len(rightRecords) > 0 {
			rightCons = buildConsensus(rightRecords, len(g.members), o)
			out = append(out, consensusRecord{record: rightCons, isLeft: false})
		}
		if post != nil {
			post.AddMolecule(len(g.members), leftCons != nil && rightCons != nil)
		}
	}
	return out
}

func splitSides(members []*pair) (left, right []*sam.Record) {
	for _, p := range members {
		if p.left != nil {
			left = append(left, p.left)
		}
		if p.right != nil {
			right = append(right, p.right)
		}
	}
	return left, right
}

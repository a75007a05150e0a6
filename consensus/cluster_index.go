// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

import (
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/hts/sam"

	"github.com/grailbio/gencore/stats"
)

// clusterEntry is the llrb.Comparable stored in a clusterIndex's per-tid
// tree: clusters ordered by (left, right) within that tid.
type clusterEntry struct {
	left  int
	right int64
	c     *cluster
}

func (e clusterEntry) Compare(other llrb.Comparable) int {
	o := other.(clusterEntry)
	switch {
	case e.left != o.left:
		if e.left < o.left {
			return -1
		}
		return 1
	case e.right != o.right:
		if e.right < o.right {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// clusterIndex is the three-level tid -> left -> right -> cluster mapping:
// a Go map from tid to a per-tid llrb.Tree of clusterEntry, with a sorted
// slice of live tids maintained alongside for in-order tid iteration.
type clusterIndex struct {
	trees map[int]*llrb.Tree
	tids  []int // kept sorted ascending
}

func newClusterIndex() *clusterIndex {
	return &clusterIndex{trees: make(map[int]*llrb.Tree)}
}

// insert creates the Cluster for (tid, left, right) on demand and
// delegates record installation to it.
func (ci *clusterIndex) insert(tid, left int, right int64, record *sam.Record, o *Options, corrector *umiCorrector, pre *stats.PreStats) error {
	tree, ok := ci.trees[tid]
	if !ok {
		tree = &llrb.Tree{}
		ci.trees[tid] = tree
		ci.insertTid(tid)
	}
	key := clusterEntry{left: left, right: right}
	existing := tree.Get(key)
	var c *cluster
	if existing == nil {
		c = newCluster(coord{tid: tid, left: left, right: right})
		tree.Insert(clusterEntry{left: left, right: right, c: c})
	} else {
		c = existing.(clusterEntry).c
	}
	if pre != nil {
		pre.StatDepth(len(c.pairs))
	}
	return c.addRead(record, o, corrector)
}

func (ci *clusterIndex) insertTid(tid int) {
	i := sort.SearchInts(ci.tids, tid)
	ci.tids = append(ci.tids, 0)
	copy(ci.tids[i+1:], ci.tids[i:])
	ci.tids[i] = tid
}

func (ci *clusterIndex) removeTid(tid int) {
	i := sort.SearchInts(ci.tids, tid)
	if i < len(ci.tids) && ci.tids[i] == tid {
		ci.tids = append(ci.tids[:i], ci.tids[i+1:]...)
	}
}

// empty reports whether the index holds no clusters at all.
func (ci *clusterIndex) empty() bool {
	return len(ci.tids) == 0
}

// evictUpTo removes and returns every cluster strictly before
// (beforeTid, beforeLeft) in (tid, left) order: stop at the first tid >
// beforeTid, and within tid == beforeTid stop at the first left >=
// beforeLeft. Pass all=true to evict everything (end-of-stream
// finalization), ignoring beforeTid/beforeLeft.
func (ci *clusterIndex) evictUpTo(beforeTid, beforeLeft int, all bool) []*cluster {
	var evicted []*cluster
	for len(ci.tids) > 0 {
		tid := ci.tids[0]
		if !all && tid > beforeTid {
			break
		}
		tree := ci.trees[tid]
		for tree.Len() > 0 {
			min := tree.Min().(clusterEntry)
			if !all && tid == beforeTid && min.left >= beforeLeft {
				break
			}
			evicted = append(evicted, min.c)
			tree.DeleteMin()
		}
		if tree.Len() == 0 {
			delete(ci.trees, tid)
			ci.removeTid(tid)
		} else {
			break
		}
	}
	return evicted
}

// frontier returns the smallest (tid, left) still present in the index,
// which the engine uses as its processed frontier. A later mate with a
// negative isize is keyed at its mate's position and may still land below
// it. ok is false if the index is empty.
func (ci *clusterIndex) frontier() (tid, left int, ok bool) {
	if len(ci.tids) == 0 {
		return 0, 0, false
	}
	tid = ci.tids[0]
	min := ci.trees[tid].Min().(clusterEntry)
	return tid, min.left, true
}

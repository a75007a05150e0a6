// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

import (
	"github.com/biogo/store/llrb"
	"github.com/grailbio/hts/sam"

	"github.com/grailbio/gencore/encoding/bam"
	"github.com/grailbio/gencore/stats"
)

// reorderEntry is the llrb.Comparable stored in the reorderBuffer: a
// strict-weak ordering over (tid, pos, ordinal, qname) that refines
// coordinate order.
type reorderEntry struct {
	tid     int
	pos     int
	ordinal int
	qname   string
	record  *sam.Record
}

// ordinal disambiguates records at identical (tid, pos): read-1 sorts
// before read-2, and the primary flag before supplementary/secondary.
func ordinalOf(r *sam.Record) int {
	o := 0
	if r.Flags&sam.Read2 != 0 {
		o |= 1
	}
	if r.Flags&(sam.Secondary|sam.Supplementary) != 0 {
		o |= 2
	}
	return o
}

func (e reorderEntry) Compare(other llrb.Comparable) int {
	o := other.(reorderEntry)
	switch {
	case e.tid != o.tid:
		if e.tid < o.tid {
			return -1
		}
		return 1
	case e.pos != o.pos:
		if e.pos < o.pos {
			return -1
		}
		return 1
	case e.ordinal != o.ordinal:
		if e.ordinal < o.ordinal {
			return -1
		}
		return 1
	case e.qname != o.qname:
		if e.qname < o.qname {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// reorderBuffer is a small ordered set of finalized Records, flushed
// monotonically to the writer as the processed frontier advances.
type reorderBuffer struct {
	tree *llrb.Tree
	w    *bam.Writer
	post *stats.PostStats
}

func newReorderBuffer(w *bam.Writer, post *stats.PostStats) *reorderBuffer {
	return &reorderBuffer{tree: &llrb.Tree{}, w: w, post: post}
}

// submit inserts record into the ordered set. If isLeft, every buffered
// record at or before (frontierTid, frontierPos) is flushed to the
// writer in order; otherwise record merely waits for a future left
// submission or a drain.
func (b *reorderBuffer) submit(record *sam.Record, isLeft bool, frontierTid, frontierPos int, frontierOK bool) error {
	b.tree.Insert(reorderEntry{
		tid: bam.RefID(record), pos: record.Pos, ordinal: ordinalOf(record),
		qname: record.Name, record: record,
	})
	if !isLeft || !frontierOK {
		return nil
	}
	return b.flushUpTo(frontierTid, frontierPos)
}

// flushUpTo writes every buffered record with (tid, pos) <= (frontierTid,
// frontierPos), removing them from the set.
func (b *reorderBuffer) flushUpTo(frontierTid, frontierPos int) error {
	for b.tree.Len() > 0 {
		min := b.tree.Min().(reorderEntry)
		if min.tid > frontierTid || (min.tid == frontierTid && min.pos > frontierPos) {
			break
		}
		if err := b.w.Write(min.record); err != nil {
			return err
		}
		if b.post != nil {
			b.post.AddWritten(1)
		}
		b.tree.DeleteMin()
	}
	return nil
}

// drain flushes every remaining record in order and clears the buffer.
func (b *reorderBuffer) drain() error {
	for b.tree.Len() > 0 {
		min := b.tree.Min().(reorderEntry)
		if err := b.w.Write(min.record); err != nil {
			return err
		}
		if b.post != nil {
			b.post.AddWritten(1)
		}
		b.tree.DeleteMin()
	}
	return nil
}

func (b *reorderBuffer) empty() bool { return b.tree.Len() == 0 }

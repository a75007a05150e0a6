// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

import (
	"context"
	"io"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"

	gbam "github.com/grailbio/gencore/encoding/bam"
	"github.com/grailbio/gencore/stats"
)

// Engine drives the streaming cluster-and-consensus pipeline: it ingests
// records in coordinate order, dispatches them to the Proper or Improper
// cluster index, triggers periodic finalization, and emits consensus
// records through the reorder buffer to the writer.
type Engine struct {
	Options Options

	PreStats  *stats.PreStats
	PostStats *stats.PostStats

	proper    *clusterIndex
	improper  *clusterIndex
	buffer    *reorderBuffer
	corrector *umiCorrector

	properInserts int
	lastTID       int
	lastPos       int

	processedTID int
	processedPos int
	processedOK  bool

	targetLen []int
}

// NewEngine constructs an Engine ready to run Consensus.
func NewEngine(o Options) (*Engine, error) {
	corrector := newUMICorrector(o.KnownUMIs)
	return &Engine{
		Options:   o,
		PreStats:  stats.NewPreStats(),
		PostStats: stats.NewPostStats(),
		proper:    newClusterIndex(),
		improper:  newClusterIndex(),
		corrector: corrector,
		lastTID:   -1,
		lastPos:   -1,
	}, nil
}

// Consensus reads every record from inputPath in coordinate order and
// writes consensus records to outputPath. inputSAM/outputSAM select text
// SAM framing for each path; when false the stream is BGZF-compressed BAM.
func (e *Engine) Consensus(ctx context.Context, inputPath, outputPath string, inputSAM, outputSAM bool) (err error) {
	in, err := file.Open(ctx, inputPath)
	if err != nil {
		return errors.E(err, "gencore: could not open input", inputPath)
	}
	defer func() {
		if cerr := in.Close(ctx); err == nil {
			err = cerr
		}
	}()

	reader, err := gbam.NewReader(in.Reader(ctx), inputSAM)
	if err != nil {
		return errors.E(err, "gencore: could not read header from", inputPath)
	}
	header := reader.Header()
	if len(header.Refs()) == 0 {
		return errors.E("gencore: input header has no target sequences", inputPath)
	}
	e.targetLen = make([]int, len(header.Refs()))
	for i, ref := range header.Refs() {
		e.targetLen[i] = ref.Len()
	}

	out, err := file.Create(ctx, outputPath)
	if err != nil {
		return errors.E(err, "gencore: could not create output", outputPath)
	}
	defer func() {
		if cerr := out.Close(ctx); err == nil {
			err = cerr
		}
	}()

	writer, err := gbam.NewWriter(out.Writer(ctx), header, outputSAM)
	if err != nil {
		return errors.E(err, "gencore: could not open writer for", outputPath)
	}
	e.buffer = newReorderBuffer(writer, e.PostStats)

	for {
		record, rerr := reader.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errors.E(rerr, "gencore: read failure")
		}
		if e.Options.MaxContig > 0 && gbam.RefID(record) >= e.Options.MaxContig {
			break
		}
		if e.Options.Debug {
			if tid := gbam.RefID(record); tid >= 0 && record.Pos >= 0 && tid != e.lastTID {
				log.Debug.Printf("gencore: entering contig tid=%d at pos=%d (previous tid=%d)", tid, record.Pos, e.lastTID)
			}
		}
		if err := e.checkSorted(record); err != nil {
			return err
		}
		if err := e.dispatch(record); err != nil {
			return err
		}
	}

	if err := e.finalizeAll(); err != nil {
		return err
	}
	if err := e.finalizeImproper(); err != nil {
		return err
	}
	if err := e.buffer.drain(); err != nil {
		return errors.E(err, "gencore: write failure during final drain")
	}
	return writer.Close()
}

// checkSorted enforces the non-decreasing (tid, pos) input constraint for
// mapped records.
func (e *Engine) checkSorted(record *sam.Record) error {
	tid, pos := gbam.RefID(record), record.Pos
	if tid < 0 || pos < 0 {
		return nil
	}
	if tid < e.lastTID || (tid == e.lastTID && pos < e.lastPos) {
		return errors.E(&gbam.UnsortedError{GotTID: tid, GotPos: pos, LastTID: e.lastTID, LastPos: e.lastPos})
	}
	e.lastTID, e.lastPos = tid, pos
	return nil
}

// dispatch routes one record to the unmapped, Improper, or Proper path.
func (e *Engine) dispatch(record *sam.Record) error {
	mateMapped := !gbam.HasNoMappedMate(record)
	tid, pos := gbam.RefID(record), record.Pos

	if tid < 0 || pos < 0 {
		if record.MateRef == nil || record.MatePos < 0 {
			// Fully unmapped: no usable coordinate on either side.
			if gbam.IsPrimary(record) {
				e.PreStats.AddUnmapped()
				e.PostStats.AddUnmapped()
			}
			if err := e.finalizeAll(); err != nil {
				return err
			}
			return e.buffer.drain()
		}
		// Unmapped read with a mapped mate: routed to Improper, not
		// dropped.
		if !gbam.IsPrimary(record) {
			return nil
		}
		e.PreStats.AddUnmapped()
		return e.routeImproper(record)
	}

	if !gbam.IsPrimary(record) {
		return nil
	}

	length := gbam.AlignedLength(record)
	e.PreStats.AddRead(length, gbam.EditDistance(record))

	if !mateMapped && gbam.MateRefID(record) != tid {
		return e.emitUnclustered(record)
	}
	return e.routeProper(record)
}

// emitUnclustered handles the cross-contig unmapped-mate shortcut: the
// record bypasses clustering and is submitted directly as a left mate,
// forcing a flush. A same-contig mate-unmapped record is not bypassed:
// it still has a usable isize-based coordinate and is routed through
// routeProper like any other pair.
func (e *Engine) emitUnclustered(record *sam.Record) error {
	return e.buffer.submit(record, true, e.processedTID, e.processedPos, e.processedOK)
}

// routeProper computes record's Proper coordinate key and inserts it.
func (e *Engine) routeProper(record *sam.Record) error {
	left, right := e.properKey(record)
	if err := e.proper.insert(gbam.RefID(record), left, right, record, &e.Options, e.corrector, e.PreStats); err != nil {
		return errors.E(err, "gencore: could not cluster record")
	}
	e.properInserts++
	if e.Options.FinalizeEvery > 0 && e.properInserts%e.Options.FinalizeEvery == 0 {
		return e.finalizeProperUpTo(gbam.RefID(record), record.Pos)
	}
	return nil
}

// properKey computes a cluster key's (left, right) pair, including the
// cross-contig synthetic right value guarded against int64 overflow.
func (e *Engine) properKey(record *sam.Record) (left int, right int64) {
	tid := gbam.RefID(record)
	mtid := gbam.MateRefID(record)
	if mtid == tid {
		if record.TempLen >= 0 {
			return record.Pos, int64(record.Pos + record.TempLen - 1)
		}
		return record.MatePos, int64(record.MatePos - record.TempLen - 1)
	}
	// Cross-contig, mate mapped: still Proper.
	tlen := int64(0)
	if tid >= 0 && tid < len(e.targetLen) {
		tlen = int64(e.targetLen[tid])
	}
	synthetic := -tlen*int64(mtid+1) + int64(record.MatePos)
	if synthetic > 0 || synthetic < math.MinInt64+1 {
		// Clamp rather than wrap on overflow.
		synthetic = math.MinInt64 + 1
	}
	return record.Pos, synthetic
}

// routeImproper computes the Improper coordinate key and inserts
// record into the Improper index.
func (e *Engine) routeImproper(record *sam.Record) error {
	tid, left, right := improperKey(record)
	if err := e.improper.insert(tid, left, right, record, &e.Options, e.corrector, nil); err != nil {
		return errors.E(err, "gencore: could not cluster record")
	}
	return nil
}

// improperKey canonicalizes (tid,pos) vs (mtid,mpos) so the
// lexicographically smaller pair becomes (tid, left) and the other
// becomes right.
func improperKey(record *sam.Record) (tid, left int, right int64) {
	a := [2]int{gbam.RefID(record), record.Pos}
	b := [2]int{gbam.MateRefID(record), record.MatePos}
	if lexLess(a, b) {
		return a[0], a[1], int64(b[1])
	}
	return b[0], b[1], int64(a[1])
}

func lexLess(a, b [2]int) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

// finalizeProperUpTo evicts every Proper cluster strictly before
// (tid, pos), clusters each by UMI, and submits the resulting consensus
// records, updating the processed frontier and flushing the reorder
// buffer accordingly.
func (e *Engine) finalizeProperUpTo(tid, pos int) error {
	evicted := e.proper.evictUpTo(tid, pos, false)
	if err := e.emitEvicted(evicted, e.Options.ProperUMIThreshold); err != nil {
		return err
	}
	if ftid, fleft, ok := e.proper.frontier(); ok {
		e.processedTID, e.processedPos, e.processedOK = ftid, fleft, true
	} else {
		e.processedTID, e.processedPos, e.processedOK = tid, pos, true
	}
	return e.buffer.flushUpTo(e.processedTID, e.processedPos)
}

// finalizeAll evicts and emits every remaining Proper cluster. It runs
// both at end of stream and as the flush signal whenever a fully
// unmapped read is encountered mid-stream.
func (e *Engine) finalizeAll() error {
	evicted := e.proper.evictUpTo(0, 0, true)
	if err := e.emitEvicted(evicted, e.Options.ProperUMIThreshold); err != nil {
		return err
	}
	e.processedOK = false
	return nil
}

// finalizeImproper evicts and emits every remaining Improper cluster.
// It is invoked only once, at shutdown: Improper molecules can span
// arbitrarily distant coordinates, so there is no safe periodic cutoff
// for them short of end of stream.
func (e *Engine) finalizeImproper() error {
	evicted := e.improper.evictUpTo(0, 0, true)
	return e.emitEvicted(evicted, e.Options.ImproperUMIThreshold)
}

// emitEvicted clusters each evicted Cluster by UMI and submits the
// resulting consensus Records to the ReorderBuffer.
func (e *Engine) emitEvicted(evicted []*cluster, threshold int) error {
	for _, c := range evicted {
		for _, cr := range c.clusterByUMI(threshold, &e.Options, e.PostStats) {
			if err := e.buffer.submit(cr.record, cr.isLeft, e.processedTID, e.processedPos, e.processedOK); err != nil {
				return errors.E(err, "gencore: write failure")
			}
		}
	}
	return nil
}

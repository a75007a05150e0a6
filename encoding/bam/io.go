// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"io"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// Reader reads sam.Records sequentially from a BAM or SAM stream.
type Reader struct {
	header *sam.Header
	bamR   *bam.Reader
	samR   *sam.Reader
	isSAM  bool
}

// NewReader opens a sequential record reader. isSAM selects the text SAM
// format; otherwise the stream is parsed as BGZF-compressed BAM.
func NewReader(r io.Reader, isSAM bool) (*Reader, error) {
	rd := &Reader{isSAM: isSAM}
	if isSAM {
		samR, err := sam.NewReader(r)
		if err != nil {
			return nil, err
		}
		rd.samR = samR
		rd.header = samR.Header()
	} else {
		bamR, err := bam.NewReader(r, 1)
		if err != nil {
			return nil, err
		}
		rd.bamR = bamR
		rd.header = bamR.Header()
	}
	return rd, nil
}

// Header returns the SAM header copied from the input stream.
func (r *Reader) Header() *sam.Header { return r.header }

// Read returns the next record in file order, or io.EOF at end of stream.
func (r *Reader) Read() (*sam.Record, error) {
	if r.isSAM {
		return r.samR.Read()
	}
	return r.bamR.Read()
}

// Writer writes sam.Records sequentially to a BAM or SAM stream, enforcing
// the non-decreasing (tid, pos) invariant required of a BAM output.
type Writer struct {
	bamW    *bam.Writer
	samW    *sam.Writer
	isSAM   bool
	lastTID int
	lastPos int
}

// NewWriter opens a sequential record writer and immediately writes header.
// Pass isSAM=true when the output path ends in ".sam" to select the text
// format; otherwise records are BGZF-compressed BAM.
func NewWriter(w io.Writer, header *sam.Header, isSAM bool) (*Writer, error) {
	out := &Writer{isSAM: isSAM, lastTID: -1, lastPos: -1}
	if isSAM {
		samW, err := sam.NewWriter(w, header, sam.FlagDecimal)
		if err != nil {
			return nil, err
		}
		out.samW = samW
		return out, nil
	}
	bamW, err := bam.NewWriter(w, header, 1)
	if err != nil {
		return nil, err
	}
	out.bamW = bamW
	return out, nil
}

// Write emits a single record, returning an *UnsortedError if a mapped
// record's (tid, pos) precedes the previously written mapped record's.
func (w *Writer) Write(r *sam.Record) error {
	tid, pos := RefID(r), r.Pos
	if tid >= 0 && pos >= 0 {
		if tid < w.lastTID || (tid == w.lastTID && pos < w.lastPos) {
			return &UnsortedError{GotTID: tid, GotPos: pos, LastTID: w.lastTID, LastPos: w.lastPos}
		}
		w.lastTID, w.lastPos = tid, pos
	}
	if w.isSAM {
		return w.samW.Write(r)
	}
	return w.bamW.Write(r)
}

// Close finishes a BAM stream, flushing its BGZF blocks; for SAM output it
// does nothing. The io.Writer passed to NewWriter is not closed.
func (w *Writer) Close() error {
	if w.isSAM {
		return nil
	}
	return w.bamW.Close()
}

// UnsortedError reports a mapped record arriving out of coordinate order.
type UnsortedError struct {
	GotTID, GotPos   int
	LastTID, LastPos int
}

func (e *UnsortedError) Error() string {
	return fmt.Sprintf("bam: input is unsorted: found %d:%d after %d:%d",
		e.GotTID, e.GotPos, e.LastTID, e.LastPos)
}

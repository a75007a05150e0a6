// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"

	"github.com/grailbio/base/simd"
	"github.com/grailbio/hts/sam"

	"github.com/grailbio/gencore/encoding/bam"
)

// buildConsensus computes the consensus Record for one mate side of a UMI
// group. groupSize is the number of pairs merged into the owning
// umiGroup; it is appended as a qname suffix so collapsed reads stay
// distinguishable in the output.
func buildConsensus(records []*sam.Record, groupSize int, o *Options) *sam.Record {
	template := chooseTemplate(records)
	if len(records) == 1 {
		return template
	}

	cons := sam.GetFromFreePool()
	*cons = *template
	cons.Name = fmt.Sprintf("%s_%d", template.Name, groupSize)
	cons.Flags = template.Flags &^ sam.Duplicate
	cons.Cigar = template.Cigar
	cons.Pos = template.Pos
	cons.Ref = template.Ref
	cons.MatePos = template.MatePos
	cons.MateRef = template.MateRef
	cons.TempLen = template.TempLen

	// Seq/Qual must be sized and ordered by query offset, not reference
	// span: an Insertion or SoftClip consumes query without consuming
	// reference, and a Deletion/Skip consumes reference without
	// consuming query. Walk the template's own CIGAR to place each vote
	// at the right query offset, carrying reference-consuming bases
	// through voteBase and copying query-only bases straight from the
	// template (no other record's CIGAR need share their placement).
	templateSeq := template.Seq.Expand()
	bases := make([]byte, len(templateSeq))
	quals := make([]byte, len(templateSeq))
	ed := 0
	refCur := template.Pos
	queryCur := 0
	for _, op := range template.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < n; i++ {
				refPos := refCur + i
				base, qual := voteBase(records, template, refPos, o)
				bases[queryCur+i] = base
				quals[queryCur+i] = qual
				if tb, _, ok := alignedBase(template, refPos); ok && tb != base {
					ed++
				}
			}
			refCur += n
			queryCur += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			for i := 0; i < n; i++ {
				off := queryCur + i
				if off < len(templateSeq) {
					bases[off] = templateSeq[off]
				}
				if off < len(template.Qual) {
					quals[off] = template.Qual[off]
				}
			}
			queryCur += n
		case sam.CigarDeletion, sam.CigarSkipped:
			refCur += n
		case sam.CigarHardClipped, sam.CigarPadded:
			// consumes neither reference nor query
		}
	}
	cons.Seq = sam.NewSeq(bases)
	cons.Qual = quals
	cons.AuxFields = cloneAuxWithEditDistance(template.AuxFields, ed)
	return cons
}

// chooseTemplate picks the record with the longest aligned length, tying
// on smallest edit distance, tying on lexicographically smallest qname.
func chooseTemplate(records []*sam.Record) *sam.Record {
	best := records[0]
	for _, r := range records[1:] {
		switch {
		case bam.AlignedLength(r) != bam.AlignedLength(best):
			if bam.AlignedLength(r) > bam.AlignedLength(best) {
				best = r
			}
		case bam.EditDistance(r) != bam.EditDistance(best):
			if bam.EditDistance(r) < bam.EditDistance(best) {
				best = r
			}
		case r.Name < best.Name:
			best = r
		}
	}
	return best
}

// voteBase returns the quality-weighted majority base at refPos among all
// records whose CIGAR-derived alignment covers it, and its capped,
// dissent-penalized quality. The template's base wins ties.
func voteBase(records []*sam.Record, template *sam.Record, refPos int, o *Options) (byte, byte) {
	var tally [256]int
	var maxQual [256]byte
	templateBase, _, _ := alignedBase(template, refPos)

	for _, r := range records {
		base, qual, ok := alignedBase(r, refPos)
		if !ok {
			continue
		}
		tally[base] += int(qual) + 1
		if qual > maxQual[base] {
			maxQual[base] = qual
		}
	}

	winner := templateBase
	winnerScore := tally[templateBase]
	for b, score := range tally {
		if score == 0 {
			continue
		}
		if score > winnerScore {
			winner, winnerScore = byte(b), score
		}
	}

	qual := maxQual[winner]
	if qual > o.QualityCap {
		qual = o.QualityCap
	}
	if hasHighQualityDissent(records, refPos, winner, o) && qual > o.DissentPenalty {
		qual -= o.DissentPenalty
	}
	return winner, qual
}

// hasHighQualityDissent reports whether any record voted for a base other
// than winner at refPos with quality above o.DissentQualityThreshold. It
// uses simd.Accumulate8Greater over the collected dissenting qualities.
func hasHighQualityDissent(records []*sam.Record, refPos int, winner byte, o *Options) bool {
	var dissent []byte
	for _, r := range records {
		base, qual, ok := alignedBase(r, refPos)
		if !ok || base == winner {
			continue
		}
		dissent = append(dissent, qual)
	}
	if len(dissent) == 0 {
		return false
	}
	return simd.Accumulate8Greater(dissent, o.DissentQualityThreshold) > 0
}

// alignedBase returns the base and quality r contributes at 0-based
// reference coordinate refPos, walking r's CIGAR to map reference
// coordinates to query offsets. ok is false if r's alignment does not
// cover refPos (deletion, skip, or out of range).
func alignedBase(r *sam.Record, refPos int) (base, qual byte, ok bool) {
	if refPos < r.Pos {
		return 0, 0, false
	}
	seq := r.Seq.Expand()
	refCur := r.Pos
	queryCur := 0
	for _, op := range r.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if refPos >= refCur && refPos < refCur+n {
				off := queryCur + (refPos - refCur)
				if off >= len(seq) {
					return 0, 0, false
				}
				q := byte(0)
				if off < len(r.Qual) {
					q = r.Qual[off]
				}
				return seq[off], q, true
			}
			refCur += n
			queryCur += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			queryCur += n
		case sam.CigarDeletion, sam.CigarSkipped:
			if refPos >= refCur && refPos < refCur+n {
				return 0, 0, false
			}
			refCur += n
		case sam.CigarHardClipped, sam.CigarPadded:
			// consumes neither reference nor query
		}
		if refCur > refPos {
			break
		}
	}
	return 0, 0, false
}

// cloneAuxWithEditDistance copies aux, replacing (or appending) the NM
// tag with the recomputed edit distance against the consensus template.
func cloneAuxWithEditDistance(aux []sam.Aux, ed int) []sam.Aux {
	nm, err := sam.NewAux(sam.Tag{'N', 'M'}, ed)
	if err != nil {
		// ed is always a plain int; NewAux only rejects unsupported
		// value types, so this cannot happen.
		panic(err)
	}

	out := make([]sam.Aux, 0, len(aux)+1)
	replaced := false
	for _, a := range aux {
		if a.Tag() == nm.Tag() {
			out = append(out, nm)
			replaced = true
			continue
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, nm)
	}
	return out
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// newTestRecord builds a minimal mapped, paired, primary record suitable
// for feeding to the clustering and consensus machinery directly, without
// going through a Reader.
func newTestRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference, cigar sam.Cigar, seq, qual string) *sam.Record {
	if len(seq) != len(qual) {
		panic("seq and qual must be equal length")
	}
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MatePos = matePos
	r.MateRef = mateRef
	r.Flags = flags
	r.Cigar = cigar
	r.Seq = sam.NewSeq([]byte(seq))
	r.Qual = []byte(qual)
	return r
}

func newAux(name string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(name), val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", name, val, err))
	}
	return aux
}

func matchCigar(n int) sam.Cigar {
	return sam.Cigar{sam.NewCigarOp(sam.CigarMatch, n)}
}

func repeatQual(q byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = q
	}
	return string(b)
}

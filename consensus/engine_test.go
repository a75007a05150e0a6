// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"

	gbam "github.com/grailbio/gencore/encoding/bam"
)

func writeSAM(t *testing.T, path string, header *sam.Header, records []*sam.Record) {
	ctx := vcontext.Background()
	out, err := file.Create(ctx, path)
	assert.NoError(t, err)
	w, err := gbam.NewWriter(out.Writer(ctx), header, true)
	assert.NoError(t, err)
	for _, r := range records {
		assert.NoError(t, w.Write(r))
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close(ctx))
}

func readSAM(t *testing.T, path string) []*sam.Record {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	assert.NoError(t, err)
	defer func() { assert.NoError(t, in.Close(ctx)) }()
	r, err := gbam.NewReader(in.Reader(ctx), true)
	assert.NoError(t, err)
	var out []*sam.Record
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		out = append(out, rec)
	}
	return out
}

func TestEngineConsensusCollapsesDuplicateUMIPairs(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	ref, _ := sam.NewReference("chr1", "", "", 1000, nil, nil)
	header, _ := sam.NewHeader(nil, []*sam.Reference{ref})

	left1 := newTestRecord("a:AAAA", ref, 10, sam.Paired|sam.Read1|sam.ProperPair, 110, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
	right1 := newTestRecord("a:AAAA", ref, 110, sam.Paired|sam.Read2|sam.ProperPair, 10, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
	left1.TempLen = 104
	right1.TempLen = -104

	left2 := newTestRecord("b:AAAA", ref, 10, sam.Paired|sam.Read1|sam.ProperPair, 110, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
	right2 := newTestRecord("b:AAAA", ref, 110, sam.Paired|sam.Read2|sam.ProperPair, 10, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
	left2.TempLen = 104
	right2.TempLen = -104

	in := filepath.Join(tmpdir, "in.sam")
	out := filepath.Join(tmpdir, "out.sam")
	writeSAM(t, in, header, []*sam.Record{left1, left2, right1, right2})

	o := DefaultOptions()
	e, err := NewEngine(o)
	assert.NoError(t, err)
	assert.NoError(t, e.Consensus(vcontext.Background(), in, out, true, true))

	results := readSAM(t, out)
	// Both pairs share identical UMI and coordinates: they collapse into
	// one consensus molecule, i.e. one left and one right record.
	assert.Len(t, results, 2)
	assert.Equal(t, int64(1), e.PostStats.MoleculeCount)
	assert.Equal(t, int64(1), e.PostStats.PairedMoleculeCount)
}

func TestEngineConsensusSeparatesDistinctUMIs(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	ref, _ := sam.NewReference("chr1", "", "", 1000, nil, nil)
	header, _ := sam.NewHeader(nil, []*sam.Reference{ref})

	left1 := newTestRecord("a:AAAA", ref, 10, sam.Paired|sam.Read1|sam.ProperPair, 110, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
	right1 := newTestRecord("a:AAAA", ref, 110, sam.Paired|sam.Read2|sam.ProperPair, 10, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
	left1.TempLen = 104
	right1.TempLen = -104

	left2 := newTestRecord("b:TTTT", ref, 10, sam.Paired|sam.Read1|sam.ProperPair, 110, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
	right2 := newTestRecord("b:TTTT", ref, 110, sam.Paired|sam.Read2|sam.ProperPair, 10, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
	left2.TempLen = 104
	right2.TempLen = -104

	in := filepath.Join(tmpdir, "in.sam")
	out := filepath.Join(tmpdir, "out.sam")
	writeSAM(t, in, header, []*sam.Record{left1, left2, right1, right2})

	o := DefaultOptions()
	e, err := NewEngine(o)
	assert.NoError(t, err)
	assert.NoError(t, e.Consensus(vcontext.Background(), in, out, true, true))

	assert.Equal(t, int64(2), e.PostStats.MoleculeCount)
}

func TestEngineConsensusRejectsUnsortedInput(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	ref, _ := sam.NewReference("chr1", "", "", 1000, nil, nil)
	header, _ := sam.NewHeader(nil, []*sam.Reference{ref})

	first := newTestRecord("a:AAAA", ref, 200, sam.Paired|sam.Read1|sam.ProperPair, 300, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
	second := newTestRecord("b:TTTT", ref, 50, sam.Paired|sam.Read1|sam.ProperPair, 150, ref, matchCigar(4), "ACGT", repeatQual(30, 4))

	in := filepath.Join(tmpdir, "in.sam")
	out := filepath.Join(tmpdir, "out.sam")
	// writeSAM's gbam.Writer refuses out-of-order records, so the unsorted
	// input is written with a plain sam.Writer.
	ctx := vcontext.Background()
	f, err := file.Create(ctx, in)
	assert.NoError(t, err)
	w, err := sam.NewWriter(f.Writer(ctx), header, sam.FlagDecimal)
	assert.NoError(t, err)
	assert.NoError(t, w.Write(first))
	assert.NoError(t, w.Write(second))
	assert.NoError(t, f.Close(ctx))

	o := DefaultOptions()
	e, err := NewEngine(o)
	assert.NoError(t, err)
	err = e.Consensus(vcontext.Background(), in, out, true, true)
	assert.Error(t, err)
}

func TestEngineConsensusFailsOnRecordWithoutUMI(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	ref, _ := sam.NewReference("chr1", "", "", 1000, nil, nil)
	header, _ := sam.NewHeader(nil, []*sam.Reference{ref})

	// qname has no ':' delimiter and no UMI tag is configured: the
	// record cannot supply a UMI, which must be fatal.
	r := newTestRecord("noUMIhere", ref, 10, sam.Paired|sam.Read1|sam.ProperPair, 110, ref, matchCigar(4), "ACGT", repeatQual(30, 4))

	in := filepath.Join(tmpdir, "in.sam")
	out := filepath.Join(tmpdir, "out.sam")
	writeSAM(t, in, header, []*sam.Record{r})

	o := DefaultOptions()
	e, err := NewEngine(o)
	assert.NoError(t, err)
	err = e.Consensus(vcontext.Background(), in, out, true, true)
	assert.Error(t, err)
}

func TestEngineConsensusUnmappedMateCrossesContigWithoutClustering(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	chr1, _ := sam.NewReference("chr1", "", "", 1000, nil, nil)
	chr2, _ := sam.NewReference("chr2", "", "", 1000, nil, nil)
	header, _ := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})

	// Mapped on chr1 with an unmapped mate: passes straight through,
	// bypassing clustering.
	r := newTestRecord("a:AAAA", chr1, 10, sam.Paired|sam.MateUnmapped, -1, nil, matchCigar(4), "ACGT", repeatQual(30, 4))

	in := filepath.Join(tmpdir, "in.sam")
	out := filepath.Join(tmpdir, "out.sam")
	writeSAM(t, in, header, []*sam.Record{r})

	o := DefaultOptions()
	e, err := NewEngine(o)
	assert.NoError(t, err)
	assert.NoError(t, e.Consensus(vcontext.Background(), in, out, true, true))

	results := readSAM(t, out)
	assert.Len(t, results, 1)
	assert.Equal(t, int64(1), e.PreStats.ReadCount)
}

func TestEngineConsensusSameContigMateUnmappedIsClustered(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	chr1, _ := sam.NewReference("chr1", "", "", 1000, nil, nil)
	header, _ := sam.NewHeader(nil, []*sam.Reference{chr1})

	// Mate is unmapped but still reported on the same contig (the usual
	// SAM convention): this must still go through Proper clustering, not
	// the cross-contig bypass.
	r := newTestRecord("a:AAAA", chr1, 10, sam.Paired|sam.MateUnmapped|sam.Read1, 10, chr1, matchCigar(4), "ACGT", repeatQual(30, 4))
	r.TempLen = 0

	in := filepath.Join(tmpdir, "in.sam")
	out := filepath.Join(tmpdir, "out.sam")
	writeSAM(t, in, header, []*sam.Record{r})

	o := DefaultOptions()
	e, err := NewEngine(o)
	assert.NoError(t, err)
	assert.NoError(t, e.Consensus(vcontext.Background(), in, out, true, true))

	results := readSAM(t, out)
	assert.Len(t, results, 1)
	// Clustered (not bypassed): it produced a molecule via clusterByUMI,
	// unlike the genuinely cross-contig case above which never touches
	// PostStats.MoleculeCount.
	assert.Equal(t, int64(1), e.PostStats.MoleculeCount)
}

func TestEngineConsensusPeriodicFinalizationReleasesClusters(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	ref, _ := sam.NewReference("chr1", "", "", 100000, nil, nil)
	header, _ := sam.NewHeader(nil, []*sam.Reference{ref})

	var records []*sam.Record
	for i := 0; i < 10; i++ {
		pos := i * 20
		l := newTestRecord("r:AAAA", ref, pos, sam.Paired|sam.Read1|sam.ProperPair, pos+100, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
		r := newTestRecord("r:AAAA", ref, pos+100, sam.Paired|sam.Read2|sam.ProperPair, pos, ref, matchCigar(4), "ACGT", repeatQual(30, 4))
		l.TempLen = 104
		r.TempLen = -104
		records = append(records, l, r)
	}
	// Each right mate lies past the next few left mates; put the input in
	// coordinate order before writing it.
	sort.SliceStable(records, func(i, j int) bool { return records[i].Pos < records[j].Pos })

	in := filepath.Join(tmpdir, "in.sam")
	out := filepath.Join(tmpdir, "out.sam")
	writeSAM(t, in, header, records)

	o := DefaultOptions()
	o.FinalizeEvery = 2
	e, err := NewEngine(o)
	assert.NoError(t, err)
	assert.NoError(t, e.Consensus(vcontext.Background(), in, out, true, true))

	results := readSAM(t, out)
	assert.Len(t, results, 20)
	assert.True(t, e.proper.empty())
}

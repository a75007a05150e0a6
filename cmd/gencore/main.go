/*
  gencore reads a coordinate-sorted BAM or SAM file, collapses reads that
  share a UMI and alignment coordinate into a single consensus read per
  original molecule, and writes a sorted consensus BAM/SAM together with
  JSON and HTML quality reports. See package consensus for the clustering
  and consensus-calling algorithm.
*/
package main

import (
	"flag"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/gencore/consensus"
	"github.com/grailbio/gencore/report"
)

var (
	inputPath  = flag.String("input", "", "Input BAM/SAM filename")
	outputPath = flag.String("output", "", "Output BAM/SAM filename; format is inferred from the .sam/.bam suffix")

	properThreshold   = flag.Int("properReadsUmiDiffThreshold", 1, "Hamming-distance radius for clustering UMIs within a contig")
	improperThreshold = flag.Int("unproperReadsUmiDiffThreshold", 1, "Hamming-distance radius for clustering UMIs across contigs or on unmapped mates")
	maxContig         = flag.Int("maxContig", 0, "if > 0, stop processing at records whose reference index is >= this value")
	debug             = flag.Bool("debug", false, "verbose trace of contig transitions")

	qualityCap              = flag.Int("qualityCap", 40, "Phred quality ceiling assigned to a consensus base")
	dissentPenalty          = flag.Int("dissentPenalty", 10, "quality penalty applied when a high-quality dissenting base was observed")
	dissentQualityThreshold = flag.Int("dissentQualityThreshold", 30, "quality above which a dissenting base triggers dissentPenalty")

	umiDelimiter = flag.String("umiDelimiter", ":", "qname suffix delimiter identifying the UMI; ignored if -umiTag is set")
	umiTag       = flag.String("umiTag", "", "SAM auxiliary tag holding the UMI, if not embedded in qname")
	umiFile      = flag.String("umiFile", "", "optional newline-separated known-UMI whitelist used for snap correction")

	jsonReport = flag.String("jsonReport", "", "path to write the JSON quality report; empty disables it")
	htmlReport = flag.String("htmlReport", "", "path to write the HTML quality report; empty disables it")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}
	if *inputPath == "" || *outputPath == "" {
		log.Fatalf("-input and -output are required")
	}

	opts := consensus.DefaultOptions()
	opts.ProperUMIThreshold = *properThreshold
	opts.ImproperUMIThreshold = *improperThreshold
	opts.MaxContig = *maxContig
	opts.Debug = *debug
	opts.QualityCap = byte(*qualityCap)
	opts.DissentPenalty = byte(*dissentPenalty)
	opts.DissentQualityThreshold = byte(*dissentQualityThreshold)
	opts.UMIDelimiter = *umiDelimiter
	opts.UMITag = *umiTag

	ctx := vcontext.Background()
	if *umiFile != "" {
		whitelist, err := report.ReadWhitelist(ctx, *umiFile)
		if err != nil {
			log.Fatalf("could not read -umiFile %s: %v", *umiFile, err)
		}
		opts.KnownUMIs = whitelist
	}

	engine, err := consensus.NewEngine(opts)
	if err != nil {
		log.Fatalf("could not initialize engine: %v", err)
	}

	inSAM := strings.HasSuffix(*inputPath, ".sam")
	outSAM := strings.HasSuffix(*outputPath, ".sam")
	if err := engine.Consensus(ctx, *inputPath, *outputPath, inSAM, outSAM); err != nil {
		log.Fatalf("%v", err)
	}

	if *jsonReport != "" {
		if err := report.WriteJSON(ctx, *jsonReport, engine.PreStats, engine.PostStats); err != nil {
			log.Fatalf("could not write JSON report %s: %v", *jsonReport, err)
		}
	}
	if *htmlReport != "" {
		if err := report.WriteHTML(ctx, *htmlReport, engine.PreStats, engine.PostStats); err != nil {
			log.Fatalf("could not write HTML report %s: %v", *htmlReport, err)
		}
	}
	log.Debug.Printf("gencore: done, %d molecules written", engine.PostStats.MoleculeCount)
}

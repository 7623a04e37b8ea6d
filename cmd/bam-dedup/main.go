package main

/*
  bam-dedup marks or removes PCR duplicate reads in a coordinate-sorted
  BAM file, optionally recalibrating base qualities from the surviving
  reads. For more information, see github.com/grailbio/bamdedup/dedup/doc.go
*/

import (
	"flag"
	"strings"

	"github.com/grailbio/bamdedup/dedup"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
)

var (
	bamFile        = flag.String("bam", "", "Input BAM filename")
	outputPath     = flag.String("output", "", "Output BAM filename")
	metricsFile    = flag.String("metrics", "", "Output metrics file")
	minQual        = flag.Int("min-qual", dedup.DefaultMinQual, "minimum base quality counted toward a read's quality sum")
	oneChrom       = flag.Bool("one-chrom", false, "treat reads whose mate maps to a different reference as single ended")
	removeDups     = flag.Bool("remove-dups", false, "remove duplicates instead of flagging them")
	force          = flag.Bool("force", false, "accept already duplicate-marked input, clearing the existing flags first")
	recalibrate    = flag.Bool("recalibrate", false, "recalibrate base qualities from the non-duplicate reads")
	recalTable     = flag.String("recal-table", "", "recalibration table output path. By default, set to output filename + .recal")
	maxOpenRecords = flag.Int("max-open-records", dedup.DefaultMaxOpenRecords, "maximum number of records held while waiting for mates")
	noEOF          = flag.Bool("no-eof", false, "skip the bgzf EOF block check on the input")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	// Validate parameters.
	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}

	opts := dedup.Opts{
		InputPath:      *bamFile,
		OutputPath:     *outputPath,
		MetricsFile:    *metricsFile,
		RecalTablePath: *recalTable,
		MinQual:        *minQual,
		MaxOpenRecords: *maxOpenRecords,
		OneChrom:       *oneChrom,
		RemoveDups:     *removeDups,
		Force:          *force,
		Recalibrate:    *recalibrate,
		NoEOFCheck:     *noEOF,
	}

	ctx := vcontext.Background()
	if err := dedup.SetupAndMark(ctx, &opts); err != nil {
		log.Fatalf(err.Error())
	}
	log.Debug.Printf("exiting")
}

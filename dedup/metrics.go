package dedup

import (
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Metrics summarizes one marking run. Flag counts come from pass 1,
// duplicate counts from pass 2.
type Metrics struct {
	// TotalReads is the number of records read in pass 1.
	TotalReads uint64

	// PairedReads is the number of records with the paired flag set.
	PairedReads uint64

	// ProperPairs is the number of records flagged as properly paired.
	ProperPairs uint64

	// ReverseReads is the number of records mapped to the reverse strand.
	ReverseReads uint64

	// QCFailReads is the number of records flagged as QC failures.
	QCFailReads uint64

	// UnmappedReads is the number of unmapped records; these bypass
	// duplicate detection entirely.
	UnmappedReads uint64

	// MissingMates is the number of paired records whose mate was
	// expected but never observed before its window closed.
	MissingMates uint64

	// ReadPairsExamined is the number of completed pairs that reached
	// the paired map.
	ReadPairsExamined uint64

	// DistinctPairSites is the number of distinct pair keys observed.
	DistinctPairSites uint64

	// Duplicates is the length of the duplicate list after pass 1.
	Duplicates uint64

	// SingleDups and PairDups count the duplicate records written (or
	// dropped) in pass 2, split by whether the record had a mapped mate.
	// PairDups counts individual records, so the number of duplicate
	// pairs is PairDups/2.
	SingleDups uint64
	PairDups   uint64
}

func (m *Metrics) note(f sam.Flags) {
	m.TotalReads++
	if f&sam.Paired != 0 {
		m.PairedReads++
	}
	if f&sam.ProperPair != 0 {
		m.ProperPairs++
	}
	if f&sam.Reverse != 0 {
		m.ReverseReads++
	}
	if f&sam.QCFail != 0 {
		m.QCFailReads++
	}
	if f&sam.Unmapped != 0 {
		m.UnmappedReads++
	}
}

// EstimatedLibrarySize returns the Lander-Waterman estimate of the number
// of distinct molecules in the library, or 0 when the input has no
// duplicate pairs to estimate from.
func (m *Metrics) EstimatedLibrarySize() uint64 {
	size, err := estimateLibrarySize(m.ReadPairsExamined, m.DistinctPairSites)
	if err != nil {
		return 0
	}
	return size
}

func writeMetricsFile(path string, m *Metrics) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.E(err, "couldn't create metrics file:", path)
	}
	defer func() {
		if err2 := f.Close(); err == nil && err2 != nil {
			err = err2
		}
	}()

	s := "# bam-dedup\n" +
		"TOTAL_READS\tPAIRED_READS\tPROPER_PAIRS\tREVERSE_READS\tQC_FAIL_READS\t" +
		"UNMAPPED_READS\tMISSING_MATES\tREAD_PAIRS_EXAMINED\tUNPAIRED_READ_DUPLICATES\t" +
		"READ_PAIR_DUPLICATES\tESTIMATED_LIBRARY_SIZE\n" +
		fmt.Sprintf("%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			m.TotalReads, m.PairedReads, m.ProperPairs, m.ReverseReads, m.QCFailReads,
			m.UnmappedReads, m.MissingMates, m.ReadPairsExamined, m.SingleDups,
			m.PairDups/2, m.EstimatedLibrarySize())
	if _, err = f.Write([]byte(s)); err != nil {
		return errors.E(err, "error writing to metrics file:", path)
	}
	return nil
}

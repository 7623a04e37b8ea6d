package dedup

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/grailbio/bamdedup/recab"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
)

const (
	// DefaultMinQual is the phred floor below which base qualities do not
	// count toward a read's quality sum.
	DefaultMinQual = 15

	// DefaultMaxOpenRecords bounds how many records the run may hold
	// while waiting for mates or window eviction.
	DefaultMaxOpenRecords = 2 << 20

	progressInterval = 100000
)

// Opts for duplicate marking.
type Opts struct {
	// InputPath is the coordinate-sorted input BAM. Required.
	InputPath string

	// OutputPath is the output BAM, in the input's record order. Required.
	OutputPath string

	// MetricsFile, when non-empty, receives a tab-separated summary.
	MetricsFile string

	// RecalTablePath is where the recalibration model is written; empty
	// defaults to OutputPath + ".recal". Only meaningful with Recalibrate.
	RecalTablePath string

	// MinQual is the phred floor for quality sums.
	MinQual int

	// MaxOpenRecords is the record pool capacity.
	MaxOpenRecords int

	// OneChrom treats reads whose mates map to a different reference as
	// single ended.
	OneChrom bool

	// RemoveDups drops duplicates from the output instead of flagging them.
	RemoveDups bool

	// Force accepts input that is already duplicate-marked, clears the
	// existing flags, and re-marks from scratch.
	Force bool

	// Recalibrate builds a base quality recalibration table from the
	// surviving reads during pass 1 and applies it to every record
	// written in pass 2.
	Recalibrate bool

	// NoEOFCheck skips the bgzf EOF block check on the input.
	NoEOFCheck bool
}

func validate(opts *Opts) error {
	if opts.InputPath == "" {
		return fmt.Errorf("you must specify an input bam with -bam")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("you must specify an output bam with -output")
	}
	if opts.MinQual < 0 {
		return fmt.Errorf("min-qual must be non-negative")
	}
	if opts.MaxOpenRecords <= 0 {
		opts.MaxOpenRecords = DefaultMaxOpenRecords
	}
	if opts.RecalTablePath != "" && !opts.Recalibrate {
		return fmt.Errorf("recal-table is set, but recalibrate is false")
	}
	if opts.Recalibrate && opts.RecalTablePath == "" {
		opts.RecalTablePath = opts.OutputPath + ".recal"
	}
	return nil
}

// Marker marks (or removes) duplicate reads in a coordinate-sorted BAM.
// Pass 1 streams the input through the decision engine and produces a
// sorted list of duplicate record indices; pass 2 re-reads the input and
// rewrites it with the duplicate flags set.
type Marker struct {
	Opts *Opts

	pool    *recordPool
	table   *recab.Table
	metrics *Metrics
	dups    []uint64
}

// SetupAndMark validates opts and runs a complete marking pass.
func SetupAndMark(ctx context.Context, opts *Opts) error {
	if err := validate(opts); err != nil {
		return err
	}
	m := &Marker{Opts: opts}
	_, err := m.Mark(ctx)
	return err
}

// Mark runs both passes and returns the run's metrics.
func (m *Marker) Mark(ctx context.Context) (*Metrics, error) {
	m.metrics = &Metrics{}
	m.pool = newRecordPool(m.Opts.MaxOpenRecords)
	if m.Opts.Recalibrate {
		m.table = recab.NewTable(m.Opts.MinQual)
	}
	if err := m.markPass(); err != nil {
		return nil, err
	}
	if err := m.writePass(ctx); err != nil {
		return nil, err
	}
	if m.Opts.MetricsFile != "" {
		if err := writeMetricsFile(m.Opts.MetricsFile, m.metrics); err != nil {
			return nil, err
		}
	}
	return m.metrics, nil
}

func (m *Marker) openInput() (*os.File, *bam.Reader, error) {
	in, err := os.Open(m.Opts.InputPath)
	if err != nil {
		return nil, nil, errors.E(err, "couldn't open input bam:", m.Opts.InputPath)
	}
	if !m.Opts.NoEOFCheck {
		ok, err := bgzf.HasEOF(in)
		if err != nil {
			in.Close() // nolint: errcheck
			return nil, nil, errors.E(err, "checking for bgzf EOF block:", m.Opts.InputPath)
		}
		if !ok {
			in.Close() // nolint: errcheck
			return nil, nil, fmt.Errorf("%s: missing bgzf EOF block (use -no-eof to skip this check)", m.Opts.InputPath)
		}
	}
	br, err := bam.NewReader(in, 1)
	if err != nil {
		in.Close() // nolint: errcheck
		return nil, nil, errors.E(err, "couldn't read bam:", m.Opts.InputPath)
	}
	return in, br, nil
}

// markPass streams the input once through the decision engine and leaves
// the sorted duplicate list in m.dups.
func (m *Marker) markPass() error {
	in, br, err := m.openInput()
	if err != nil {
		return err
	}
	defer in.Close() // nolint: errcheck
	defer br.Close() // nolint: errcheck

	header := br.Header()
	if so := header.SortOrder; so != sam.Coordinate && so != sam.UnknownOrder {
		return fmt.Errorf("input must be coordinate sorted, header says %v", so)
	}
	libraries, err := newLibraryMap(header)
	if err != nil {
		return err
	}
	e := newEngine(m.Opts, libraries, m.pool, m.metrics)
	if m.Opts.Recalibrate {
		e.onSurvivor = m.table.BuildTable
	}

	var index uint64
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "error reading", m.Opts.InputPath)
		}
		if err := m.pool.acquire(rec); err != nil {
			return err
		}
		index++
		m.metrics.note(rec.Flags)
		if rec.Flags&sam.Duplicate != 0 && !m.Opts.Force {
			return fmt.Errorf("input contains records already duplicate marked (read %s); use -force to clear the flags and re-mark", rec.Name)
		}
		if err := e.Add(rec, index); err != nil {
			return err
		}
		if index%progressInterval == 0 {
			log.Debug.Printf("records=%d fragments=%d pairs=%d waiting mates=%d",
				index, e.frags.len(), e.pairs.len(), e.mates.len())
		}
	}
	e.Flush()

	log.Printf("total reads: %d", m.metrics.TotalReads)
	log.Printf("paired-end reads: %d", m.metrics.PairedReads)
	log.Printf("properly paired reads: %d", m.metrics.ProperPairs)
	log.Printf("unmapped reads: %d", m.metrics.UnmappedReads)
	log.Printf("reverse strand mapped reads: %d", m.metrics.ReverseReads)
	log.Printf("QC-failed reads: %d", m.metrics.QCFailReads)
	log.Printf("missing mates: %d", m.metrics.MissingMates)

	if e.frags.len() != 0 || e.pairs.len() != 0 || e.mates.len() != 0 {
		return fmt.Errorf("internal error: %d fragment, %d pair, and %d mate entries survived the final cleanup",
			e.frags.len(), e.pairs.len(), e.mates.len())
	}
	if n := m.pool.outstanding(); n != 0 {
		return fmt.Errorf("internal error: %d records still held after the final cleanup", n)
	}

	m.dups = e.dups
	sort.Slice(m.dups, func(i, j int) bool { return m.dups[i] < m.dups[j] })
	m.metrics.Duplicates = uint64(len(m.dups))
	log.Printf("sorted the indices of %d duplicate records", len(m.dups))
	return nil
}

// writePass re-reads the input, flags or drops the records named by the
// duplicate list, optionally applies the recalibration table, and writes
// the output.
func (m *Marker) writePass(ctx context.Context) (err error) {
	in, br, err := m.openInput()
	if err != nil {
		return err
	}
	defer in.Close() // nolint: errcheck
	defer br.Close() // nolint: errcheck

	out, err := file.Create(ctx, m.Opts.OutputPath)
	if err != nil {
		return errors.E(err, "couldn't create output bam:", m.Opts.OutputPath)
	}
	defer func() {
		if err2 := out.Close(ctx); err == nil && err2 != nil {
			err = err2
		}
	}()
	bw, err := bam.NewWriter(out.Writer(ctx), br.Header(), 1)
	if err != nil {
		return errors.E(err, "couldn't create bam writer for:", m.Opts.OutputPath)
	}

	if m.Opts.Recalibrate {
		if err := m.table.EmitModel(m.Opts.RecalTablePath); err != nil {
			return err
		}
	}

	log.Printf("writing %s", m.Opts.OutputPath)
	var index uint64
	cursor := 0
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "error re-reading", m.Opts.InputPath)
		}
		index++
		isDup := cursor < len(m.dups) && m.dups[cursor] == index
		if isDup {
			cursor++
			rec.Flags |= sam.Duplicate
			if rec.Flags&sam.Paired == 0 || rec.Flags&sam.MateUnmapped != 0 {
				m.metrics.SingleDups++
			} else {
				m.metrics.PairDups++
			}
		} else if m.Opts.Force {
			rec.Flags &^= sam.Duplicate
		}
		if m.Opts.Recalibrate {
			m.table.ApplyTable(rec)
		}
		if !isDup || !m.Opts.RemoveDups {
			if err := bw.Write(rec); err != nil {
				return errors.E(err, "error writing", m.Opts.OutputPath)
			}
		}
		sam.PutInFreePool(rec)
	}
	if err := bw.Close(); err != nil {
		return errors.E(err, "error closing", m.Opts.OutputPath)
	}

	verb := "marked"
	if m.Opts.RemoveDups {
		verb = "removed"
	}
	log.Printf("successfully %s %d unpaired and %d paired duplicate reads",
		verb, m.metrics.SingleDups, m.metrics.PairDups/2)
	return nil
}

// Package recab builds and applies an empirical base quality
// recalibration model. The model is aggregated from reads that survived
// duplicate marking, binned by read group, sequencing cycle, and
// reported quality. Applying the model rewrites each base quality at or
// above the phred floor to the empirical mean quality of its read group
// and cycle bin.
package recab

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	gzip "github.com/klauspost/compress/gzip"

	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// CycleBinSize is the number of sequencing cycles aggregated into one
// model bin.
const CycleBinSize = 25

var rgTag = sam.Tag{'R', 'G'}

type binKey struct {
	readGroup string
	cycleBin  int
	qual      byte
}

type cellKey struct {
	readGroup string
	cycleBin  int
}

// Table accumulates per-bin quality observations during pass 1 and, once
// sealed, maps (read group, cycle bin) to a recalibrated quality.
type Table struct {
	minQual int
	bins    map[binKey]uint64

	// model is computed lazily on the first Apply or Emit; the table must
	// not observe new reads after that.
	model map[cellKey]byte
}

// NewTable returns an empty table. Qualities below minQual are neither
// observed nor rewritten.
func NewTable(minQual int) *Table {
	return &Table{
		minQual: minQual,
		bins:    make(map[binKey]uint64),
	}
}

func readGroup(r *sam.Record) string {
	aux := r.AuxFields.Get(rgTag)
	if aux == nil {
		return ""
	}
	rg, ok := aux.Value().(string)
	if !ok {
		return ""
	}
	return rg
}

func missingQual(r *sam.Record) bool {
	return len(r.Qual) == 0 || r.Qual[0] == 0xff
}

// cycle returns the sequencing cycle of base i, counting from the 5'
// end of the original fragment.
func cycle(r *sam.Record, i int) int {
	if r.Flags&sam.Reverse != 0 {
		return len(r.Qual) - 1 - i
	}
	return i
}

// BuildTable observes one read's base qualities. The caller must stop
// calling BuildTable before the first ApplyTable or EmitModel.
func (t *Table) BuildTable(r *sam.Record) {
	if missingQual(r) {
		return
	}
	rg := readGroup(r)
	for i, q := range r.Qual {
		if int(q) < t.minQual {
			continue
		}
		t.bins[binKey{readGroup: rg, cycleBin: cycle(r, i) / CycleBinSize, qual: q}]++
	}
}

func (t *Table) seal() {
	if t.model != nil {
		return
	}
	type cellSum struct {
		count   uint64
		qualSum uint64
	}
	sums := make(map[cellKey]*cellSum)
	for k, n := range t.bins {
		cell := cellKey{readGroup: k.readGroup, cycleBin: k.cycleBin}
		s := sums[cell]
		if s == nil {
			s = &cellSum{}
			sums[cell] = s
		}
		s.count += n
		s.qualSum += uint64(k.qual) * n
	}
	t.model = make(map[cellKey]byte, len(sums))
	for cell, s := range sums {
		// Rounded mean reported quality of the cell.
		t.model[cell] = byte((s.qualSum + s.count/2) / s.count)
	}
}

// ApplyTable rewrites r's base qualities in place. Bases below the phred
// floor, reads with missing qualities, and cells the model never
// observed are left untouched.
func (t *Table) ApplyTable(r *sam.Record) {
	t.seal()
	if missingQual(r) {
		return
	}
	rg := readGroup(r)
	for i, q := range r.Qual {
		if int(q) < t.minQual {
			continue
		}
		if recal, ok := t.model[cellKey{readGroup: rg, cycleBin: cycle(r, i) / CycleBinSize}]; ok {
			r.Qual[i] = recal
		}
	}
}

// EmitModel writes the aggregated observations and the per-cell
// recalibrated qualities as a tab-separated table. A path ending in .gz
// is gzip compressed.
func (t *Table) EmitModel(path string) (err error) {
	t.seal()

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating recalibration table %s", path)
	}
	defer func() {
		if err2 := f.Close(); err == nil && err2 != nil {
			err = errors.Wrapf(err2, "closing recalibration table %s", path)
		}
	}()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	keys := make([]binKey, 0, len(t.bins))
	for k := range t.bins {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.readGroup != b.readGroup {
			return a.readGroup < b.readGroup
		}
		if a.cycleBin != b.cycleBin {
			return a.cycleBin < b.cycleBin
		}
		return a.qual < b.qual
	})

	if _, err := fmt.Fprintf(w, "read_group\tcycle_bin\tquality\tcount\trecalibrated\n"); err != nil {
		return errors.Wrapf(err, "writing recalibration table %s", path)
	}
	for _, k := range keys {
		recal := t.model[cellKey{readGroup: k.readGroup, cycleBin: k.cycleBin}]
		if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
			k.readGroup, k.cycleBin, k.qual, t.bins[k], recal); err != nil {
			return errors.Wrapf(err, "writing recalibration table %s", path)
		}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return errors.Wrapf(err, "closing gzip stream for %s", path)
		}
	}
	return nil
}

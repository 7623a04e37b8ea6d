package dedup

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func NewRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference, cigar sam.Cigar) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MatePos = matePos
	r.MateRef = mateRef
	r.Flags = flags
	r.Cigar = cigar
	return r
}

// NewRecordQual also fills in Seq so the record survives a BAM round trip.
func NewRecordQual(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference,
	cigar sam.Cigar, qual []byte) *sam.Record {
	r := NewRecord(name, ref, pos, flags, matePos, mateRef, cigar)
	r.Seq = sam.NewSeq([]byte(strings.Repeat("A", len(qual))))
	r.Qual = qual
	return r
}

func NewAux(name string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(name), val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", name, val, err))
	}
	return aux
}

func NewTestReadGroup(id, library string) *sam.ReadGroup {
	rg, err := sam.NewReadGroup(id, "", "", library, "", "", "", "sample", "", "", time.Time{}, 0)
	if err != nil {
		panic(fmt.Sprintf("error creating read group %s: %v", id, err))
	}
	return rg
}

// WriteTestBAM writes records to path as a coordinate-sorted BAM.
func WriteTestBAM(t *testing.T, path string, header *sam.Header, records []*sam.Record) {
	f, err := os.Create(path)
	require.NoError(t, err)
	header.SortOrder = sam.Coordinate
	w, err := bam.NewWriter(f, header, 1)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// ReadRecords reads the records from path and returns them as a slice, in order.
func ReadRecords(t *testing.T, path string) []*sam.Record {
	records := make([]*sam.Record, 0)
	in, err := os.Open(path)
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, in.Close())
	}()
	reader, err := bam.NewReader(in, 1)
	assert.NoError(t, err)
	for {
		r, err := reader.Read()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		records = append(records, r)
	}
	assert.NoError(t, reader.Close())
	return records
}

package dedup

import (
	"github.com/grailbio/base/simd"
	"github.com/grailbio/hts/sam"
)

var rgTag = sam.Tag{'R', 'G'}

const noRefSeen = -2

func refID(r *sam.Record) int {
	if r.Ref == nil {
		return -1
	}
	return r.Ref.ID()
}

func mateRefID(r *sam.Record) int {
	if r.MateRef == nil {
		return -1
	}
	return r.MateRef.ID()
}

// leadingClip returns the number of read bases before the first
// reference-consuming cigar operation: soft clips, hard clips, and leading
// insertions all shift the sequenced 5' end relative to the alignment start.
func leadingClip(c sam.Cigar) int {
	n := 0
	for _, op := range c {
		switch op.Type() {
		case sam.CigarSoftClipped, sam.CigarHardClipped, sam.CigarInsertion:
			n += op.Len()
		default:
			return n
		}
	}
	return n
}

func trailingClip(c sam.Cigar) int {
	n := 0
	for i := len(c) - 1; i >= 0; i-- {
		switch c[i].Type() {
		case sam.CigarSoftClipped, sam.CigarHardClipped, sam.CigarInsertion:
			n += c[i].Len()
		default:
			return n
		}
	}
	return n
}

// unclippedFivePrime returns the position the 5' end of the read would have
// had without clipping. Reads sequenced from the same fragment collapse to
// the same value regardless of per-read clipping differences.
func unclippedFivePrime(r *sam.Record) int {
	if r.Flags&sam.Reverse != 0 {
		return r.End() - 1 + trailingClip(r.Cigar)
	}
	return r.Pos - leadingClip(r.Cigar)
}

// sumBaseQuality scores a record by the sum of its base qualities at or
// above minQual. Records without stored qualities score zero.
func sumBaseQuality(r *sam.Record, minQual int) int {
	if len(r.Qual) == 0 || r.Qual[0] == 0xff {
		return 0
	}
	if minQual <= 0 {
		return simd.Accumulate8(r.Qual)
	}
	return simd.Accumulate8Greater(r.Qual, byte(minQual-1))
}

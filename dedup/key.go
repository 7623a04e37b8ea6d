package dedup

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// clipOffset is added to every key coordinate so that keys stay
// non-negative after subtracting clip lengths, and so that the cleanup
// cutoff (which omits the offset) lags the current position by a safety
// margin larger than any realistic per-read clip distance.
const clipOffset = 1000

// readKey identifies the locus a read was sequenced from: reference,
// clip-adjusted 5' coordinate, strand, and library. Reads that are PCR
// copies of the same fragment collide on this key even when their
// alignments are clipped differently.
type readKey struct {
	ref     int32
	coord   int32
	reverse bool
	library uint8
}

func makeReadKey(r *sam.Record, library uint8) readKey {
	return readKey{
		ref:     int32(refID(r)),
		coord:   int32(unclippedFivePrime(r)) + clipOffset,
		reverse: r.Flags&sam.Reverse != 0,
		library: library,
	}
}

// cleanupBoundKey returns the eviction cutoff derived from a boundary
// record. It uses the raw alignment position without clipOffset, so map
// entries within clipOffset of the boundary remain open.
func cleanupBoundKey(r *sam.Record) readKey {
	return readKey{ref: int32(r.Ref.ID()), coord: int32(r.Pos)}
}

func (k readKey) compare(o readKey) int {
	switch {
	case k.ref < o.ref:
		return -1
	case k.ref > o.ref:
		return 1
	case k.coord < o.coord:
		return -1
	case k.coord > o.coord:
		return 1
	case !k.reverse && o.reverse:
		return -1
	case k.reverse && !o.reverse:
		return 1
	case k.library < o.library:
		return -1
	case k.library > o.library:
		return 1
	}
	return 0
}

func (k readKey) String() string {
	return fmt.Sprintf("(%d,%d,%v,%d)", k.ref, k.coord, k.reverse, k.library)
}

// pairKey identifies a read-pair locus. The smaller read key is stored
// first so that (a,b) and (b,a) compare equal.
type pairKey struct {
	first  readKey
	second readKey
}

func makePairKey(a, b readKey) pairKey {
	if b.compare(a) < 0 {
		a, b = b, a
	}
	return pairKey{first: a, second: b}
}

// compare orders pair keys by the second (later) read key first. A pair
// stays open until the stream passes the position where a competing pair
// could still complete, which is the later mate's position.
func (k pairKey) compare(o pairKey) int {
	if c := k.second.compare(o.second); c != 0 {
		return c
	}
	return k.first.compare(o.first)
}

// linearPos folds a reference id and a position into a single ordered
// value, used to park reads waiting for a mate further down the stream.
func linearPos(ref int32, pos int) uint64 {
	return uint64(uint32(ref))<<32 | uint64(uint32(pos))
}

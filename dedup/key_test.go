package dedup

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
)

func TestUnclippedFivePrime(t *testing.T) {
	tests := []struct {
		name     string
		pos      int
		flags    sam.Flags
		cigar    sam.Cigar
		expected int
	}{
		{"forward no clip", 0, 0, cigar10M, 0},
		{"forward soft clips", 0, 0, cigar1S8M1S, -1},
		{"forward leading insertion", 10, 0, cigar2I8M, 8},
		{"forward hard clip", 5, 0, cigar1H9M, 4},
		{"reverse no clip", 0, sam.Reverse, cigar10M, 9},
		{"reverse soft clips", 0, sam.Reverse, cigar1S8M1S, 8},
		{"reverse mixed clips", 0, sam.Reverse, cigar2S7M1S, 7},
		{"reverse trailing insertion", 10, sam.Reverse, cigar8M2I, 19},
	}
	for _, test := range tests {
		r := NewRecord(test.name, chr1, test.pos, test.flags, -1, nil, test.cigar)
		assert.Equal(t, test.expected, unclippedFivePrime(r), test.name)
	}
}

func TestReadKeyCollision(t *testing.T) {
	// Same fragment sequenced twice, clipped differently.
	a := NewRecord("a", chr1, 100, 0, -1, nil, cigar10M)
	b := NewRecord("b", chr1, 102, 0, -1, nil, cigar2S8M)
	assert.Equal(t, 0, makeReadKey(a, 0).compare(makeReadKey(b, 0)))

	// Opposite strand at the same coordinate is a different key.
	c := NewRecord("c", chr1, 91, sam.Reverse, -1, nil, cigar10M)
	assert.Equal(t, 100, unclippedFivePrime(c))
	assert.NotEqual(t, 0, makeReadKey(a, 0).compare(makeReadKey(c, 0)))

	// Different library is a different key.
	assert.NotEqual(t, 0, makeReadKey(a, 1).compare(makeReadKey(b, 2)))
}

func TestReadKeyOrdering(t *testing.T) {
	ordered := []readKey{
		{ref: 0, coord: 100, reverse: false, library: 0},
		{ref: 0, coord: 100, reverse: false, library: 1},
		{ref: 0, coord: 100, reverse: true, library: 0},
		{ref: 0, coord: 200, reverse: false, library: 0},
		{ref: 1, coord: 50, reverse: false, library: 0},
	}
	for i := 0; i < len(ordered); i++ {
		assert.Equal(t, 0, ordered[i].compare(ordered[i]))
		for j := i + 1; j < len(ordered); j++ {
			assert.Equal(t, -1, ordered[i].compare(ordered[j]), "%v vs %v", ordered[i], ordered[j])
			assert.Equal(t, 1, ordered[j].compare(ordered[i]), "%v vs %v", ordered[j], ordered[i])
		}
	}
}

func TestPairKeyCanonical(t *testing.T) {
	a := readKey{ref: 0, coord: 1100}
	b := readKey{ref: 0, coord: 1200, reverse: true}
	assert.Equal(t, 0, makePairKey(a, b).compare(makePairKey(b, a)))
	assert.Equal(t, a, makePairKey(b, a).first)
}

func TestPairKeyOrdering(t *testing.T) {
	a := readKey{ref: 0, coord: 1100}
	b := readKey{ref: 0, coord: 1200, reverse: true}
	c := readKey{ref: 0, coord: 1300, reverse: true}

	// The later mate dominates the ordering.
	assert.Equal(t, -1, makePairKey(a, b).compare(makePairKey(a, c)))
	assert.Equal(t, -1, makePairKey(a, b).compare(makePairKey(b, c)))

	// Same later mate: the earlier mate breaks the tie.
	assert.Equal(t, -1, makePairKey(a, c).compare(makePairKey(b, c)))
}

func TestCleanupBound(t *testing.T) {
	// An open key stays open until the stream position passes its raw
	// coordinate plus the clip offset.
	r := NewRecord("r", chr1, 100, 0, -1, nil, cigar10M)
	key := makeReadKey(r, 0)

	at := NewRecord("at", chr1, 100+clipOffset, 0, -1, nil, cigar10M)
	assert.True(t, key.compare(cleanupBoundKey(at)) >= 0)

	past := NewRecord("past", chr1, 101+clipOffset, 0, -1, nil, cigar10M)
	assert.True(t, key.compare(cleanupBoundKey(past)) < 0)
}

func TestLinearPos(t *testing.T) {
	assert.True(t, linearPos(0, 500) < linearPos(0, 501))
	assert.True(t, linearPos(0, 1<<30) < linearPos(1, 0))
}

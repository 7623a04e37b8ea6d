package dedup

import (
	"fmt"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerWithReadGroups(t *testing.T, rgs ...*sam.ReadGroup) *sam.Header {
	h, err := sam.NewHeader(nil, []*sam.Reference{chr1.Clone(), chr2.Clone()})
	require.NoError(t, err)
	for _, rg := range rgs {
		require.NoError(t, h.AddReadGroup(rg.Clone()))
	}
	return h
}

func TestLibraryMapSharedLibraries(t *testing.T) {
	h := headerWithReadGroups(t,
		NewTestReadGroup("rg1", "libA"),
		NewTestReadGroup("rg2", "libA"),
		NewTestReadGroup("rg3", "libB"))
	m, err := newLibraryMap(h)
	require.NoError(t, err)

	// Read groups sharing a library name share an id.
	assert.Equal(t, m.byReadGroup["rg1"], m.byReadGroup["rg2"])
	assert.NotEqual(t, m.byReadGroup["rg1"], m.byReadGroup["rg3"])
	assert.Equal(t, 2, m.libraries)
}

func TestLibraryMapSingleLibrary(t *testing.T) {
	h := headerWithReadGroups(t, NewTestReadGroup("rg1", "libA"))
	m, err := newLibraryMap(h)
	require.NoError(t, err)

	// With one library the record's tags are never consulted.
	r := NewRecord("r", chr1, 100, 0, -1, nil, cigar10M)
	id, err := m.libraryID(r)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), id)
}

func TestLibraryMapNoReadGroups(t *testing.T) {
	m, err := newLibraryMap(headerWithReadGroups(t))
	require.NoError(t, err)
	r := NewRecord("r", chr1, 100, 0, -1, nil, cigar10M)
	id, err := m.libraryID(r)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), id)
}

func TestLibraryMapRecordResolution(t *testing.T) {
	h := headerWithReadGroups(t,
		NewTestReadGroup("rg1", "libA"),
		NewTestReadGroup("rg2", "libB"))
	m, err := newLibraryMap(h)
	require.NoError(t, err)

	r := NewRecord("r", chr1, 100, 0, -1, nil, cigar10M)
	r.AuxFields = append(r.AuxFields, NewAux("RG", "rg2"))
	id, err := m.libraryID(r)
	assert.NoError(t, err)
	assert.Equal(t, m.byReadGroup["rg2"], id)

	// A record without an RG tag cannot be resolved.
	bare := NewRecord("bare", chr1, 100, 0, -1, nil, cigar10M)
	_, err = m.libraryID(bare)
	assert.Error(t, err)

	// Nor can a record naming an undeclared read group.
	stray := NewRecord("stray", chr1, 100, 0, -1, nil, cigar10M)
	stray.AuxFields = append(stray.AuxFields, NewAux("RG", "nope"))
	_, err = m.libraryID(stray)
	assert.Error(t, err)
}

func TestLibraryMapTooManyLibraries(t *testing.T) {
	rgs := make([]*sam.ReadGroup, 0, maxLibraries+1)
	for i := 0; i <= maxLibraries; i++ {
		rgs = append(rgs, NewTestReadGroup(fmt.Sprintf("rg%d", i), fmt.Sprintf("lib%d", i)))
	}
	h := headerWithReadGroups(t, rgs[:maxLibraries]...)
	_, err := newLibraryMap(h)
	assert.NoError(t, err)

	h = headerWithReadGroups(t, rgs...)
	_, err = newLibraryMap(h)
	assert.Error(t, err)
}

package dedup

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// maxLibraries is fixed by the key encoding, which reserves one byte for
// the library id.
const maxLibraries = 255

// libraryMap resolves a record's read group to a dense library id, built
// once from the header before processing begins. Read groups that share a
// library name share an id; id 0 is returned for inputs with at most one
// library, where per-record tags need not be consulted.
type libraryMap struct {
	byReadGroup map[string]uint8
	libraries   int
}

func newLibraryMap(h *sam.Header) (*libraryMap, error) {
	m := &libraryMap{byReadGroup: make(map[string]uint8)}
	byName := make(map[string]uint8)
	for _, rg := range h.RGs() {
		id := rg.Name()
		if id == "" {
			return nil, fmt.Errorf("header contains a read group without an ID")
		}
		if _, ok := m.byReadGroup[id]; ok {
			return nil, fmt.Errorf("read group ID %q is not a unique identifier", id)
		}
		lb := rg.Library()
		if lb == "" {
			log.Error.Printf("read group %s has no library name; using the empty library name", id)
		}
		lib, ok := byName[lb]
		if !ok {
			if m.libraries >= maxLibraries {
				return nil, fmt.Errorf("more than %d library names; the key encoding allows at most %d", maxLibraries, maxLibraries)
			}
			m.libraries++
			lib = uint8(m.libraries)
			byName[lb] = lib
		}
		m.byReadGroup[id] = lib
	}
	return m, nil
}

// libraryID resolves the library for a record. With at most one library
// the answer is always 0 and the record's tags are not read.
func (m *libraryMap) libraryID(r *sam.Record) (uint8, error) {
	if m.libraries <= 1 {
		return 0, nil
	}
	aux := r.AuxFields.Get(rgTag)
	if aux == nil {
		return 0, fmt.Errorf("read %s has no RG tag but the header defines %d libraries", r.Name, m.libraries)
	}
	rg, ok := aux.Value().(string)
	if !ok {
		return 0, fmt.Errorf("RG tag on read %s is not of string type", r.Name)
	}
	lib, ok := m.byReadGroup[rg]
	if !ok {
		return 0, fmt.Errorf("read group %q on read %s does not exist in the header", rg, r.Name)
	}
	return lib, nil
}

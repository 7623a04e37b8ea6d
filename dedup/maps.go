package dedup

import (
	"github.com/biogo/store/llrb"
	"github.com/grailbio/hts/sam"
)

// readData is the tracked state of one open single-read candidate. rec is
// nil when the record's ownership lives elsewhere (the pair side of a
// paired read, or a record already released).
type readData struct {
	sumQual int
	index   uint64
	rec     *sam.Record
	paired  bool
}

// pairData is the tracked state of one open read-pair candidate. The pair
// owns both records until it is finalized or replaced.
type pairData struct {
	sumQual int
	index1  uint64
	index2  uint64
	rec1    *sam.Record
	rec2    *sam.Record
}

type fragEntry struct {
	key  readKey
	data *readData
}

func (e fragEntry) Compare(c llrb.Comparable) int {
	return e.key.compare(c.(fragEntry).key)
}

// fragmentMap holds the best open single-read candidate per read key,
// ordered by key so that entries behind the eviction bound can be flushed
// from the low end.
type fragmentMap struct {
	tree llrb.Tree
}

// upsert returns the entry for k, creating it if absent. The second
// return value reports whether the key was newly created, keeping the
// caller's replace-vs-compare branch explicit.
func (m *fragmentMap) upsert(k readKey) (*readData, bool) {
	if got := m.tree.Get(fragEntry{key: k}); got != nil {
		return got.(fragEntry).data, false
	}
	d := &readData{}
	m.tree.Insert(fragEntry{key: k, data: d})
	return d, true
}

// evictBefore removes every entry with key strictly below bound, calling
// fn on each before removal. Entries at or after bound stay open.
func (m *fragmentMap) evictBefore(bound readKey, fn func(*readData)) {
	for m.tree.Len() > 0 {
		min := m.tree.Min().(fragEntry)
		if min.key.compare(bound) >= 0 {
			return
		}
		fn(min.data)
		m.tree.DeleteMin()
	}
}

func (m *fragmentMap) evictAll(fn func(*readData)) {
	for m.tree.Len() > 0 {
		fn(m.tree.Min().(fragEntry).data)
		m.tree.DeleteMin()
	}
}

func (m *fragmentMap) len() int { return m.tree.Len() }

type pairEntry struct {
	key  pairKey
	data *pairData
}

func (e pairEntry) Compare(c llrb.Comparable) int {
	return e.key.compare(c.(pairEntry).key)
}

// pairedMap holds the best open pair candidate per pair key, ordered by
// the pair key's eviction ordering (later mate first).
type pairedMap struct {
	tree llrb.Tree
}

func (m *pairedMap) upsert(k pairKey) (*pairData, bool) {
	if got := m.tree.Get(pairEntry{key: k}); got != nil {
		return got.(pairEntry).data, false
	}
	d := &pairData{}
	m.tree.Insert(pairEntry{key: k, data: d})
	return d, true
}

func (m *pairedMap) evictBefore(bound pairKey, fn func(*pairData)) {
	for m.tree.Len() > 0 {
		min := m.tree.Min().(pairEntry)
		if min.key.compare(bound) >= 0 {
			return
		}
		fn(min.data)
		m.tree.DeleteMin()
	}
}

func (m *pairedMap) evictAll(fn func(*pairData)) {
	for m.tree.Len() > 0 {
		fn(m.tree.Min().(pairEntry).data)
		m.tree.DeleteMin()
	}
}

func (m *pairedMap) len() int { return m.tree.Len() }

// mateEntry parks one mate of a pair under the linearized position where
// its partner is expected. The record index disambiguates entries parked
// under the same position.
type mateEntry struct {
	matePos uint64
	data    *readData
}

func (e mateEntry) Compare(c llrb.Comparable) int {
	o := c.(mateEntry)
	switch {
	case e.matePos < o.matePos:
		return -1
	case e.matePos > o.matePos:
		return 1
	case e.data.index < o.data.index:
		return -1
	case e.data.index > o.data.index:
		return 1
	}
	return 0
}

// mateMap holds reads whose mates have not arrived yet, ordered by the
// expected mate position so unmatched entries become flushable once the
// stream passes them.
type mateMap struct {
	tree llrb.Tree
}

func (m *mateMap) add(matePos uint64, d *readData) {
	m.tree.Insert(mateEntry{matePos: matePos, data: d})
}

// take removes and returns the entry parked at pos whose read name
// matches, or nil if no such entry exists.
func (m *mateMap) take(pos uint64, name string) *readData {
	var found *mateEntry
	m.tree.DoRange(func(c llrb.Comparable) bool {
		e := c.(mateEntry)
		if e.data.rec != nil && e.data.rec.Name == name {
			found = &e
			return true
		}
		return false
	}, mateEntry{matePos: pos, data: &readData{}}, mateEntry{matePos: pos + 1, data: &readData{}})
	if found == nil {
		return nil
	}
	m.tree.Delete(*found)
	return found.data
}

func (m *mateMap) evictBefore(bound uint64, fn func(*readData)) {
	for m.tree.Len() > 0 {
		min := m.tree.Min().(mateEntry)
		if min.matePos >= bound {
			return
		}
		fn(min.data)
		m.tree.DeleteMin()
	}
}

func (m *mateMap) evictAll(fn func(*readData)) {
	for m.tree.Len() > 0 {
		fn(m.tree.Min().(mateEntry).data)
		m.tree.DeleteMin()
	}
}

func (m *mateMap) len() int { return m.tree.Len() }

package dedup

import (
	"fmt"
	"math"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// engine is the streaming duplicate-detection state machine. Records
// arrive in coordinate order; the engine tracks open candidates in three
// position-ordered maps, appends the index of every losing record to
// dups, and evicts entries the stream has passed. It is single threaded:
// each record's map mutations complete before the next record enters.
type engine struct {
	minQual  int
	oneChrom bool
	force    bool

	libraries *libraryMap
	pool      *recordPool
	metrics   *Metrics

	frags fragmentMap
	pairs pairedMap
	mates mateMap

	dups []uint64

	lastRef int
	lastPos int

	// onSurvivor, when set, sees every finalized non-duplicate before its
	// record is released. The driver points it at the recalibration
	// table builder.
	onSurvivor func(*sam.Record)

	warnedMissingSameRef  bool
	warnedMissingCrossRef bool
}

func newEngine(opts *Opts, libraries *libraryMap, pool *recordPool, metrics *Metrics) *engine {
	return &engine{
		minQual:   opts.MinQual,
		oneChrom:  opts.OneChrom,
		force:     opts.Force,
		libraries: libraries,
		pool:      pool,
		metrics:   metrics,
		lastRef:   noRefSeen,
		lastPos:   -1,
	}
}

// Add feeds one record, owned by the pool, through the state machine.
// index is the record's 1-based position in file order.
func (e *engine) Add(r *sam.Record, index uint64) error {
	moved, err := e.positionChanged(r)
	if err != nil {
		return err
	}
	if moved {
		e.cleanupBefore(r)
	}
	if r.Flags&sam.Unmapped != 0 {
		// Unmapped reads never enter the maps and are never duplicates.
		e.pool.release(r)
		return nil
	}
	return e.check(r, index)
}

// Flush finalizes all remaining open entries. After Flush the three maps
// must be empty; the driver verifies that.
func (e *engine) Flush() {
	e.cleanupBefore(nil)
}

func refRank(id int) int {
	if id == -1 {
		// Unmapped-without-reference records sort after every reference.
		return math.MaxInt32
	}
	return id
}

// positionChanged reports whether r starts a new coordinate, which makes
// entries behind it final. It also enforces the coordinate-sorted input
// contract.
func (e *engine) positionChanged(r *sam.Record) (bool, error) {
	ref := refID(r)
	if ref != e.lastRef {
		if e.lastRef != noRefSeen && refRank(ref) < refRank(e.lastRef) {
			return false, fmt.Errorf("input is not coordinate sorted: reference id %d follows reference id %d", ref, e.lastRef)
		}
		e.lastRef = ref
		e.lastPos = r.Pos
		log.Debug.Printf("reading reference id %d", ref)
		return true, nil
	}
	if r.Pos < e.lastPos {
		return false, fmt.Errorf("input is not coordinate sorted: position %d follows position %d on reference id %d", r.Pos, e.lastPos, ref)
	}
	if r.Pos > e.lastPos {
		e.lastPos = r.Pos
		return true, nil
	}
	return false, nil
}

// check runs the duplicate decision for one mapped record.
func (e *engine) check(r *sam.Record, index uint64) error {
	library, err := e.libraries.libraryID(r)
	if err != nil {
		return err
	}
	key := makeReadKey(r, library)

	paired := r.Flags&sam.Paired != 0 && r.Flags&sam.MateUnmapped == 0
	score := sumBaseQuality(r, e.minQual)

	ref := refID(r)
	mateRef := mateRefID(r)
	if e.oneChrom && ref != mateRef {
		// Mate on another reference: treat as single ended.
		paired = false
	}

	// Fragment step. The open entry is replaced when r is the first
	// candidate at this key, or when the entry is unpaired and r is
	// either paired or strictly better.
	data, inserted := e.frags.upsert(key)
	if inserted || (!data.paired && (paired || score > data.sumQual)) {
		if !inserted {
			e.dups = append(e.dups, data.index)
			e.pool.release(data.rec)
		}
		data.sumQual = score
		data.index = index
		data.paired = paired
		if paired {
			// The pair side will own the record.
			data.rec = nil
		} else {
			data.rec = r
		}
	} else if !paired {
		e.dups = append(e.dups, index)
		e.pool.release(r)
	}

	if !paired {
		return nil
	}

	readPos := linearPos(int32(ref), r.Pos)
	matePos := linearPos(int32(mateRef), r.MatePos)

	var mate *readData
	if matePos <= readPos {
		// The mate sorts at or before r, so it should be parked under
		// r's own position.
		mate = e.mates.take(readPos, r.Name)
	}
	if mate == nil && matePos >= readPos {
		// The mate is still ahead; park r under the mate's expected
		// position.
		e.mates.add(matePos, &readData{sumQual: score, index: index, rec: r})
		return nil
	}
	if mate == nil {
		// The mate sorted strictly before r but never arrived.
		e.missingMate(r)
		return nil
	}

	score += mate.sumQual
	mateIndex := mate.index
	mateRec := mate.rec

	mateLibrary, err := e.libraries.libraryID(mateRec)
	if err != nil {
		return err
	}
	pkey := makePairKey(key, makeReadKey(mateRec, mateLibrary))

	e.metrics.ReadPairsExamined++
	pd, freshPair := e.pairs.upsert(pkey)
	if freshPair {
		e.metrics.DistinctPairSites++
		pd.sumQual = score
		pd.index1, pd.index2 = index, mateIndex
		pd.rec1, pd.rec2 = r, mateRec
		return nil
	}

	// Higher combined quality wins; on a tie the pair whose earlier mate
	// has the smaller file index wins.
	keepStored := true
	if pd.sumQual < score {
		keepStored = false
	} else if pd.sumQual == score && mateIndex < pd.index2 {
		keepStored = false
	}
	if keepStored {
		e.dups = append(e.dups, mateIndex, index)
		e.pool.release(r)
		e.pool.release(mateRec)
	} else {
		e.dups = append(e.dups, pd.index1, pd.index2)
		e.pool.release(pd.rec1)
		e.pool.release(pd.rec2)
		pd.sumQual = score
		pd.index1, pd.index2 = index, mateIndex
		pd.rec1, pd.rec2 = r, mateRec
	}
	return nil
}

// cleanupBefore flushes every map entry strictly before r's position.
// With a nil boundary (or a boundary without a reference) all entries are
// flushed.
func (e *engine) cleanupBefore(r *sam.Record) {
	if r == nil || r.Ref == nil {
		e.frags.evictAll(e.finalizeFragment)
		e.pairs.evictAll(e.finalizePair)
		e.mates.evictAll(e.finalizeMissingMate)
		return
	}
	bound := cleanupBoundKey(r)
	e.frags.evictBefore(bound, e.finalizeFragment)
	e.pairs.evictBefore(pairKey{second: bound}, e.finalizePair)
	e.mates.evictBefore(linearPos(bound.ref, r.Pos), e.finalizeMissingMate)
}

func (e *engine) finalizeFragment(d *readData) {
	// Paired entries do not own their record; the pair map decides their
	// fate.
	if !d.paired {
		e.finalizeSurvivor(d.rec)
	}
}

func (e *engine) finalizePair(d *pairData) {
	e.finalizeSurvivor(d.rec1)
	e.finalizeSurvivor(d.rec2)
}

func (e *engine) finalizeMissingMate(d *readData) {
	e.missingMate(d.rec)
}

// finalizeSurvivor hands a finalized non-duplicate to the recalibration
// hook, then releases it. Releasing is the single point where an owned
// record leaves the engine.
func (e *engine) finalizeSurvivor(r *sam.Record) {
	if r == nil {
		return
	}
	if e.onSurvivor != nil {
		if e.force && r.Flags&sam.Duplicate != 0 {
			r.Flags &^= sam.Duplicate
		}
		e.onSurvivor(r)
	}
	e.pool.release(r)
}

// missingMate finalizes a paired record whose mate never arrived before
// its window closed. The record is counted and then treated as a
// non-duplicate.
func (e *engine) missingMate(r *sam.Record) {
	if mateRefID(r) != refID(r) {
		if !e.warnedMissingCrossRef {
			log.Error.Printf("mate on a different reference was not found; if running a single reference, consider -one-chrom to treat such reads as single ended")
			e.warnedMissingCrossRef = true
		}
	} else if !e.warnedMissingSameRef {
		log.Error.Printf("records with a missing mate cannot be checked for duplicates")
		e.warnedMissingSameRef = true
	}
	e.metrics.MissingMates++
	e.finalizeSurvivor(r)
}

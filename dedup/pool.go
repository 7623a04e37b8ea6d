package dedup

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// recordPool bounds the number of records the run may hold at once.
// Records are handed out by the bam reader from the hts free pool;
// acquire registers one against the capacity and release returns it to
// the free pool. Capacity bounds peak memory by the size of the open
// window, not by file size; running out means the input keeps loci open
// far longer than a coordinate-sorted file should.
type recordPool struct {
	capacity int
	live     int
}

func newRecordPool(capacity int) *recordPool {
	return &recordPool{capacity: capacity}
}

// acquire takes ownership of a reader-filled record. It fails when the
// pool is exhausted; the caller must treat that as fatal for the run.
func (p *recordPool) acquire(r *sam.Record) error {
	if p.live >= p.capacity {
		return fmt.Errorf("record pool exhausted: %d records in flight (raise -max-open-records, or check that the input is coordinate sorted)", p.capacity)
	}
	p.live++
	return nil
}

// release returns a record to the free pool. The record must not be used
// afterwards. A nil record is a no-op, so callers can release an entry's
// record slot without checking whether ownership was transferred away.
func (p *recordPool) release(r *sam.Record) {
	if r == nil {
		return
	}
	p.live--
	sam.PutInFreePool(r)
}

func (p *recordPool) outstanding() int { return p.live }

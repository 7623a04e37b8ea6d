package dedup

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
)

func TestRecordPool(t *testing.T) {
	p := newRecordPool(2)
	r1 := sam.GetFromFreePool()
	r2 := sam.GetFromFreePool()
	r3 := sam.GetFromFreePool()

	assert.NoError(t, p.acquire(r1))
	assert.NoError(t, p.acquire(r2))
	assert.Equal(t, 2, p.outstanding())
	assert.Error(t, p.acquire(r3))

	p.release(r1)
	assert.Equal(t, 1, p.outstanding())
	assert.NoError(t, p.acquire(r3))

	// Releasing nil must not change the accounting.
	p.release(nil)
	assert.Equal(t, 2, p.outstanding())

	p.release(r2)
	p.release(r3)
	assert.Equal(t, 0, p.outstanding())
}

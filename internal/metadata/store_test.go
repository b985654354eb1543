package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(threshold int64) *Store {
	return &Store{
		records:        make(map[string]*record),
		flushCh:        make(chan struct{}, 1),
		flushThreshold: threshold,
	}
}

func TestRecord_DrainAndRestore(t *testing.T) {
	r := newRecord("fraud")
	r.increment("total", 3)
	r.increment("total", 2)
	r.increment("blocked", 1)

	snap := r.drain()
	assert.Equal(t, int64(5), snap["total"])
	assert.Equal(t, int64(1), snap["blocked"])

	assert.Nil(t, r.drain(), "a second drain before new increments must be empty")

	r.restore(snap)
	r.increment("total", 1)
	again := r.drain()
	assert.Equal(t, int64(6), again["total"])
}

func TestStore_Increment_RejectsNegativeDelta(t *testing.T) {
	s := newTestStore(200)
	err := s.Increment("fraud", "total", -1)
	assert.Error(t, err)
}

func TestStore_Increment_AccumulatesInMemory(t *testing.T) {
	s := newTestStore(200)
	require.NoError(t, s.Increment("fraud", "total", 1))
	require.NoError(t, s.Increment("fraud", "total", 1))

	rec := s.recordFor("fraud")
	snap := rec.drain()
	assert.Equal(t, int64(2), snap["total"])
}

func TestStore_Increment_TriggersEagerFlushAboveThreshold(t *testing.T) {
	s := newTestStore(5)
	require.NoError(t, s.Increment("fraud", "amount", 10))

	select {
	case <-s.flushCh:
	default:
		t.Fatal("expected eager flush signal once threshold exceeded")
	}
}

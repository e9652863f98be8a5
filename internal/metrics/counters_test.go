package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersSnapshot(t *testing.T) {
	c := NewCounters()

	c.IncIncoming()
	c.IncIncoming()
	c.IncDelivered()
	c.IncFailed()
	c.IncRetried()
	c.IncDeadLettered()
	c.IncUnauthorized()
	c.IncUnknownCommand()
	c.IncDuplicatesSkipped()
	c.AddLeasesReclaimed(3)
	c.SetPending(7)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap["incoming"])
	assert.Equal(t, int64(1), snap["delivered"])
	assert.Equal(t, int64(1), snap["failed"])
	assert.Equal(t, int64(1), snap["retried"])
	assert.Equal(t, int64(1), snap["dead_lettered"])
	assert.Equal(t, int64(1), snap["unauthorized"])
	assert.Equal(t, int64(1), snap["unknown_command"])
	assert.Equal(t, int64(1), snap["duplicates_skipped"])
	assert.Equal(t, int64(3), snap["leases_reclaimed"])
	assert.Equal(t, int64(7), snap["pending"])
}

func TestSetPendingOverwrites(t *testing.T) {
	c := NewCounters()
	c.SetPending(10)
	c.SetPending(4)
	assert.Equal(t, int64(4), c.Snapshot()["pending"])
}

func TestCountersConcurrentIncrements(t *testing.T) {
	c := NewCounters()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncIncoming()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5000), c.Snapshot()["incoming"])
}

package lobby

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector is a SendFunc that records delivered broadcasts
type collector struct {
	mu         sync.Mutex
	broadcasts []*Broadcast
	failFirst  int
}

func (c *collector) send(b *Broadcast) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failFirst > 0 {
		c.failFirst--
		return errors.New("send failed")
	}

	c.broadcasts = append(c.broadcasts, b)
	return nil
}

func (c *collector) delivered() []*Broadcast {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Broadcast, len(c.broadcasts))
	copy(out, c.broadcasts)
	return out
}

func (c *collector) waitFor(t *testing.T, n int) []*Broadcast {
	t.Helper()

	deadline := time.Now().Add(time.Second * 2)
	for time.Now().Before(deadline) {
		if got := c.delivered(); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond * 5)
	}

	t.Fatalf("timed out waiting for %d broadcasts, have %d", n, len(c.delivered()))
	return nil
}

func snapshotOf(ids ...string) map[string]*Listing {
	m := make(map[string]*Listing, len(ids))
	for _, id := range ids {
		m[id] = testListing(id)
	}
	return m
}

func TestCoordinator_sequenceIsMonotonic(t *testing.T) {
	col := &collector{}
	c := NewCoordinator(CoordinatorConfig{BatchWindow: time.Millisecond * 5}, col.send)
	defer c.Stop()

	const n = 5
	snapshot := map[string]*Listing{}
	for i := 0; i < n; i++ {
		snapshot = CloneMap(snapshot)
		snapshot[fmt.Sprintf("t%d", i)] = testListing(fmt.Sprintf("t%d", i))
		c.Update(snapshot)
		c.Flush()
	}

	got := col.waitFor(t, n)
	for i, b := range got {
		assert.Equal(t, uint64(i+1), b.SequenceID)
	}
}

func TestCoordinator_batchesWithinWindow(t *testing.T) {
	col := &collector{}
	c := NewCoordinator(CoordinatorConfig{BatchWindow: time.Millisecond * 50}, col.send)
	defer c.Stop()

	c.Update(snapshotOf("t1"))
	c.Update(snapshotOf("t1", "t2"))
	c.Update(snapshotOf("t1", "t2", "t3"))

	got := col.waitFor(t, 1)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Changes, 3)
	assert.Equal(t, uint64(1), got[0].SequenceID)
}

func TestCoordinator_maxBatchSizeFlushesEarly(t *testing.T) {
	col := &collector{}
	c := NewCoordinator(CoordinatorConfig{
		BatchWindow:  time.Second * 10,
		MaxBatchSize: 10,
	}, col.send)
	defer c.Stop()

	snapshot := map[string]*Listing{}
	for i := 0; i < 11; i++ {
		snapshot = CloneMap(snapshot)
		id := fmt.Sprintf("t%02d", i)
		snapshot[id] = testListing(id)
		c.Update(snapshot)
	}

	// the first ten changes flush on the size threshold; the eleventh waits
	got := col.waitFor(t, 1)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Changes, 10)

	c.Flush()
	got = col.waitFor(t, 2)
	assert.Len(t, got[1].Changes, 1)
	assert.Equal(t, uint64(2), got[1].SequenceID)
}

func TestCoordinator_noChangesNoBroadcast(t *testing.T) {
	col := &collector{}
	c := NewCoordinator(CoordinatorConfig{BatchWindow: time.Millisecond * 5}, col.send)
	defer c.Stop()

	snapshot := snapshotOf("t1")
	c.Update(snapshot)
	got := col.waitFor(t, 1)
	require.Len(t, got, 1)

	// identical snapshot produces nothing
	c.Update(CloneMap(snapshot))
	c.Flush()
	time.Sleep(time.Millisecond * 50)
	assert.Len(t, col.delivered(), 1)
}

func TestCoordinator_sendImmediateSkipsWindow(t *testing.T) {
	col := &collector{}
	c := NewCoordinator(CoordinatorConfig{BatchWindow: time.Second * 10}, col.send)
	defer c.Stop()

	c.SendImmediate(Change{Type: TableRemoved, TableID: "t1"})

	got := col.waitFor(t, 1)
	require.Len(t, got, 1)
	assert.True(t, got[0].Priority)
	assert.Equal(t, uint64(1), got[0].SequenceID)
	assert.Equal(t, TableRemoved, got[0].Changes[0].Type)
}

func TestCoordinator_updatePriorityFlushesPendingFirst(t *testing.T) {
	col := &collector{}
	c := NewCoordinator(CoordinatorConfig{BatchWindow: time.Second * 10}, col.send)
	defer c.Stop()

	c.Update(snapshotOf("t1"))
	c.UpdatePriority(snapshotOf("t1", "t2"))

	got := col.waitFor(t, 2)
	require.Len(t, got, 2)

	assert.False(t, got[0].Priority)
	assert.Equal(t, "t1", got[0].Changes[0].TableID)

	assert.True(t, got[1].Priority)
	assert.Equal(t, "t2", got[1].Changes[0].TableID)
	assert.Equal(t, uint64(2), got[1].SequenceID)
}

func TestCoordinator_retriesTransientFailure(t *testing.T) {
	col := &collector{failFirst: 2}
	c := NewCoordinator(CoordinatorConfig{
		BatchWindow: time.Millisecond * 5,
		MaxRetries:  3,
		RetryBase:   time.Millisecond,
	}, col.send)
	defer c.Stop()

	c.Update(snapshotOf("t1"))

	got := col.waitFor(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].SequenceID)

	_, sent, failures := c.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Equal(t, uint64(0), failures)
}

func TestCoordinator_abandonedSendLeavesGap(t *testing.T) {
	col := &collector{failFirst: 10}
	c := NewCoordinator(CoordinatorConfig{
		BatchWindow: time.Millisecond * 5,
		MaxRetries:  1,
		RetryBase:   time.Millisecond,
	}, col.send)
	defer c.Stop()

	c.Update(snapshotOf("t1"))
	c.Flush()

	// wait out the failed delivery
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, _, failures := c.Stats(); failures > 0 {
			break
		}
		time.Sleep(time.Millisecond * 5)
	}

	col.mu.Lock()
	col.failFirst = 0
	col.mu.Unlock()

	// the next broadcast keeps counting; sequence 1 is the gap
	c.Update(snapshotOf("t1", "t2"))
	c.Flush()

	got := col.waitFor(t, 1)
	assert.Equal(t, uint64(2), got[0].SequenceID)
}

func TestCoordinator_historyIsCapped(t *testing.T) {
	col := &collector{}
	c := NewCoordinator(CoordinatorConfig{
		BatchWindow: time.Millisecond * 5,
		HistorySize: 3,
	}, col.send)
	defer c.Stop()

	snapshot := map[string]*Listing{}
	for i := 0; i < 5; i++ {
		snapshot = CloneMap(snapshot)
		id := fmt.Sprintf("t%d", i)
		snapshot[id] = testListing(id)
		c.Update(snapshot)
		c.Flush()
	}

	col.waitFor(t, 5)

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, uint64(3), history[0].SequenceID)
	assert.Equal(t, uint64(5), history[2].SequenceID)
}

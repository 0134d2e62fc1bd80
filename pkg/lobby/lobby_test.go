package lobby

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/message"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer captures outbound envelopes for assertions
type fakePeer struct {
	id       string
	playerID string

	mu       sync.Mutex
	messages []*message.Outbound
	shut     string
}

func newFakePeer(id, playerID string) *fakePeer {
	return &fakePeer{id: id, playerID: playerID}
}

func (p *fakePeer) ID() string       { return p.id }
func (p *fakePeer) PlayerID() string { return p.playerID }

func (p *fakePeer) Send(msg *message.Outbound) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return true
}

func (p *fakePeer) Shut(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shut = reason
}

func (p *fakePeer) received() []*message.Outbound {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*message.Outbound, len(p.messages))
	copy(out, p.messages)
	return out
}

func (p *fakePeer) waitForType(t *testing.T, msgType string) *message.Outbound {
	t.Helper()

	deadline := time.Now().Add(time.Second * 2)
	for time.Now().Before(deadline) {
		for _, msg := range p.received() {
			if msg.Type == msgType {
				return msg
			}
		}
		time.Sleep(time.Millisecond * 5)
	}

	t.Fatalf("timed out waiting for %s", msgType)
	return nil
}

func newTestDirectory(t *testing.T) (*Directory, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	d, err := New(mem)
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	return d, mem
}

func TestDirectory_createQueryRemove(t *testing.T) {
	d, _ := newTestDirectory(t)

	require.NoError(t, d.CreateListing(testListing("t1")))
	assert.Error(t, d.CreateListing(testListing("t1")), "duplicate id must be rejected")

	result, err := d.Query(Query{})
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "t1", result.Tables[0].TableID)

	require.NoError(t, d.RemoveListing("t1"))
	assert.Error(t, d.RemoveListing("t1"))
}

func TestDirectory_playerLocation(t *testing.T) {
	d, _ := newTestDirectory(t)

	require.NoError(t, d.CreateListing(testListing("t1")))

	tableID, err := d.PlayerLocation("p1")
	require.NoError(t, err)
	assert.Equal(t, "t1", tableID)

	_, err = d.PlayerLocation("nobody")
	assert.Error(t, err)

	// player leaves; the index entry must go with them
	updated := testListing("t1")
	updated.PlayerList = updated.PlayerList[1:]
	updated.CurrentPlayers = 2
	require.NoError(t, d.UpdateListing(updated))

	_, err = d.PlayerLocation("p1")
	assert.Error(t, err)
}

func TestDirectory_subscriberReceivesLifecycle(t *testing.T) {
	d, _ := newTestDirectory(t)

	peer := newFakePeer("c1", "p1")
	require.NoError(t, d.Connect(peer))
	peer.waitForType(t, message.LobbyState)

	require.NoError(t, d.CreateListing(testListing("t1")))
	created := peer.waitForType(t, message.TableCreated)
	assert.NotZero(t, created.SequenceID)

	b, ok := created.Payload.(*Broadcast)
	require.True(t, ok)
	require.Len(t, b.Changes, 1)
	assert.Equal(t, TableCreated, b.Changes[0].Type)
	assert.Equal(t, "t1", b.Changes[0].TableID)

	updated := testListing("t1")
	updated.CurrentPlayers = 5
	require.NoError(t, d.UpdateListing(updated))
	delta := peer.waitForType(t, message.TableDeltaUpdate)
	assert.Greater(t, delta.SequenceID, created.SequenceID)

	require.NoError(t, d.RemoveListing("t1"))
	peer.waitForType(t, message.TableRemoved)
}

func TestDirectory_filtersScopeFanOut(t *testing.T) {
	d, _ := newTestDirectory(t)

	peer := newFakePeer("c1", "p1")
	require.NoError(t, d.Connect(peer))
	peer.waitForType(t, message.LobbyState)

	filters, err := json.Marshal(Filters{GameType: "omaha"})
	require.NoError(t, err)
	require.NoError(t, d.HandleMessage(peer, &message.Envelope{
		Type:    message.SetFilters,
		Payload: filters,
	}))

	require.NoError(t, d.CreateListing(testListing("t1")))
	created := peer.waitForType(t, message.TableCreated)

	// the holdem table does not match; the envelope still ships so the
	// subscriber's sequence stays gapless
	b, ok := created.Payload.(*Broadcast)
	require.True(t, ok)
	assert.Empty(t, b.Changes)
}

func TestDirectory_handleGetTables(t *testing.T) {
	d, _ := newTestDirectory(t)
	require.NoError(t, d.CreateListing(testListing("t1")))

	peer := newFakePeer("c1", "p1")
	require.NoError(t, d.Connect(peer))

	require.NoError(t, d.HandleMessage(peer, &message.Envelope{Type: message.GetTables}))
	update := peer.waitForType(t, message.TablesUpdate)

	result, ok := update.Payload.(*QueryResult)
	require.True(t, ok)
	assert.Equal(t, 1, result.Total)
}

func TestDirectory_handleGetTableStats(t *testing.T) {
	d, _ := newTestDirectory(t)
	require.NoError(t, d.CreateListing(testListing("t1")))

	peer := newFakePeer("c1", "p1")
	require.NoError(t, d.Connect(peer))

	payload, _ := json.Marshal(map[string]string{"tableId": "t1"})
	require.NoError(t, d.HandleMessage(peer, &message.Envelope{
		Type:    message.GetTableStats,
		Payload: payload,
	}))

	stats := peer.waitForType(t, message.TableStats)
	got, ok := stats.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "t1", got["tableId"])
}

func TestDirectory_refreshShipsSnapshotsToSubscribers(t *testing.T) {
	d, _ := newTestDirectory(t)
	require.NoError(t, d.CreateListing(testListing("t1")))

	peer := newFakePeer("c1", "p1")
	require.NoError(t, d.Connect(peer))
	peer.waitForType(t, message.LobbyState)

	countStates := func() int {
		n := 0
		for _, msg := range peer.received() {
			if msg.Type == message.LobbyState {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, countStates())

	// no mutation happened; the tick alone ships a fresh snapshot
	require.NoError(t, d.call(d.refreshTick))
	assert.GreaterOrEqual(t, countStates(), 2)
}

func TestDirectory_unknownMessageType(t *testing.T) {
	d, _ := newTestDirectory(t)

	peer := newFakePeer("c1", "p1")
	require.NoError(t, d.Connect(peer))

	require.NoError(t, d.HandleMessage(peer, &message.Envelope{Type: "bogus"}))
	peer.waitForType(t, message.Error)
}

func TestDirectory_updateStats(t *testing.T) {
	d, _ := newTestDirectory(t)
	require.NoError(t, d.CreateListing(testListing("t1")))

	require.NoError(t, d.UpdateStats("t1", 250, 40))

	result, err := d.Query(Query{})
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, float64(250), result.Tables[0].AvgPot)

	assert.Error(t, d.UpdateStats("nope", 1, 1))
}

func TestDirectory_restoreFromSnapshot(t *testing.T) {
	mem := store.NewMemory()

	d, err := New(mem)
	require.NoError(t, err)
	require.NoError(t, d.CreateListing(testListing("t1")))
	d.Stop()

	restored, err := New(mem)
	require.NoError(t, err)
	defer restored.Stop()

	result, err := restored.Query(Query{})
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "t1", result.Tables[0].TableID)

	tableID, err := restored.PlayerLocation("p1")
	require.NoError(t, err)
	assert.Equal(t, "t1", tableID)
}

func TestDirectory_persistFailureReturnsErrorWithoutRollback(t *testing.T) {
	d, mem := newTestDirectory(t)

	mem.FailNext = errors.New("redis down")
	err := d.CreateListing(testListing("t1"))
	assert.Error(t, err)

	// the in-memory state keeps the listing; only the ack failed
	result, err := d.Query(Query{})
	require.NoError(t, err)
	assert.Len(t, result.Tables, 1)
}

func TestDirectory_queryUsesCache(t *testing.T) {
	d, _ := newTestDirectory(t)
	require.NoError(t, d.CreateListing(testListing("t1")))

	first, err := d.Query(Query{})
	require.NoError(t, err)

	second, err := d.Query(Query{})
	require.NoError(t, err)
	assert.Same(t, first, second, "identical query inside the TTL must hit the cache")

	// a mutation invalidates cached pages
	updated := testListing("t1")
	updated.CurrentPlayers = 9
	require.NoError(t, d.UpdateListing(updated))

	third, err := d.Query(Query{})
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 9, third.Tables[0].CurrentPlayers)
}

func TestDirectory_health(t *testing.T) {
	d, _ := newTestDirectory(t)
	require.NoError(t, d.CreateListing(testListing("t1")))

	peer := newFakePeer("c1", "p1")
	require.NoError(t, d.Connect(peer))
	peer.waitForType(t, message.LobbyState)

	health, err := d.Health()
	require.NoError(t, err)
	assert.Equal(t, 1, health.ActiveTables)
	assert.Equal(t, 3, health.TotalPlayers)
	assert.Equal(t, 1, health.Subscribers)
	assert.NotZero(t, health.Sequence)
}

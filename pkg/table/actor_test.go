package table

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/rng"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/lobby"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/message"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/store"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	id       string
	playerID string

	mu       sync.Mutex
	messages []*message.Outbound
	shut     []string
}

func newFakePeer(connID, playerID string) *fakePeer {
	return &fakePeer{id: connID, playerID: playerID}
}

func (f *fakePeer) ID() string       { return f.id }
func (f *fakePeer) PlayerID() string { return f.playerID }

func (f *fakePeer) Send(msg *message.Outbound) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return true
}

func (f *fakePeer) Shut(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shut = append(f.shut, reason)
}

// waitForType blocks until the peer has received a message of the given type
func (f *fakePeer) waitForType(t *testing.T, msgType string) *message.Outbound {
	t.Helper()

	var found *message.Outbound
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, msg := range f.messages {
			if msg.Type == msgType {
				found = msg
				return true
			}
		}
		return false
	}, time.Second*2, time.Millisecond*5, "expected a %q message", msgType)

	return found
}

type notifierStub struct {
	mu      sync.Mutex
	created int
	updated int
	removed int
}

func (n *notifierStub) CreateListing(*lobby.Listing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created++
	return nil
}

func (n *notifierStub) UpdateListing(*lobby.Listing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated++
	return nil
}

func (n *notifierStub) RemoveListing(string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removed++
	return nil
}

func (n *notifierStub) counts() (int, int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.created, n.updated, n.removed
}

func newActorFixture(t *testing.T, opts Options) (*Actor, *store.Memory, *wallet.Memory, *notifierStub) {
	t.Helper()

	if opts.SmallBlind == 0 {
		opts = Options{
			Name:       "actor test",
			MaxPlayers: 3,
			SmallBlind: 10,
			BigBlind:   20,
			MinBuyIn:   100,
			MaxBuyIn:   5000,
		}
	}

	tbl, err := NewTable(opts, rng.NewSeeded(11))
	require.NoError(t, err)

	st := store.NewMemory()
	bank := wallet.NewMemory(10000)
	notes := &notifierStub{}

	a := NewActor(tbl, st, bank, notes)
	t.Cleanup(a.Stop)

	return a, st, bank, notes
}

func balance(t *testing.T, bank *wallet.Memory, playerID string) int64 {
	t.Helper()

	amount, err := bank.Balance(context.Background(), playerID)
	require.NoError(t, err)
	return amount
}

func TestActor_joinDebitsWalletAndStartsHand(t *testing.T) {
	a, st, bank, notes := newActorFixture(t, Options{})

	p1, err := a.Join("p1", "Alice", -1, 500, "")
	require.NoError(t, err)
	assert.Equal(t, int64(500), p1.Stack)
	assert.Equal(t, int64(9500), balance(t, bank, "p1"))

	// a second player makes the table playable; the hand deals immediately
	_, err = a.Join("p2", "Bob", -1, 500, "")
	require.NoError(t, err)

	view, err := a.State("p1")
	require.NoError(t, err)
	assert.Equal(t, PhasePreFlop, view.Phase)
	assert.Len(t, view.Players, 2)

	// the snapshot and the directory saw the mutations
	_, err = st.Load(context.Background(), a.ID())
	require.NoError(t, err)
	_, updated, _ := notes.counts()
	assert.Greater(t, updated, 0)
}

func TestActor_joinValidation(t *testing.T) {
	a, _, bank, _ := newActorFixture(t, Options{})

	_, err := a.Join("p1", "Alice", -1, 50, "")
	assert.Error(t, err, "buy-in below the table minimum")
	assert.Equal(t, int64(10000), balance(t, bank, "p1"), "no debit on a rejected join")

	_, err = a.Join("p1", "Alice", 0, 500, "")
	require.NoError(t, err)

	// the seat is taken; the debit is refunded
	_, err = a.Join("p2", "Bob", 0, 500, "")
	assert.Error(t, err)
	assert.Equal(t, int64(10000), balance(t, bank, "p2"))
}

func TestActor_privateTableRequiresPassword(t *testing.T) {
	a, _, bank, _ := newActorFixture(t, Options{
		MaxPlayers: 3,
		SmallBlind: 10,
		BigBlind:   20,
		MinBuyIn:   100,
		MaxBuyIn:   5000,
		IsPrivate:  true,
		Password:   "hunter2",
	})

	_, err := a.Join("p1", "Alice", -1, 500, "wrong")
	assert.Error(t, err)
	assert.Equal(t, int64(10000), balance(t, bank, "p1"))

	_, err = a.Join("p1", "Alice", -1, 500, "hunter2")
	assert.NoError(t, err)
}

func TestActor_leaveCreditsStack(t *testing.T) {
	a, _, bank, _ := newActorFixture(t, Options{})

	_, err := a.Join("p1", "Alice", -1, 500, "")
	require.NoError(t, err)
	require.Equal(t, int64(9500), balance(t, bank, "p1"))

	require.NoError(t, a.Leave("p1"))
	assert.Equal(t, int64(10000), balance(t, bank, "p1"))

	view, err := a.State("")
	require.NoError(t, err)
	assert.Empty(t, view.Players)
}

func TestActor_leaveDuringLiveHandRejected(t *testing.T) {
	a, _, bank, _ := newActorFixture(t, Options{})

	_, err := a.Join("p1", "Alice", -1, 500, "")
	require.NoError(t, err)
	_, err = a.Join("p2", "Bob", -1, 500, "")
	require.NoError(t, err)

	// the hand dealt on the second join; both players hold live cards
	view, err := a.State("")
	require.NoError(t, err)
	require.Equal(t, PhasePreFlop, view.Phase)

	err = a.Leave("p1")
	require.Error(t, err)
	var verr apperror.Validation
	assert.True(t, errors.As(err, &verr))

	view, err = a.State("")
	require.NoError(t, err)
	assert.Len(t, view.Players, 2)
	assert.Equal(t, int64(9500), balance(t, bank, "p1"), "no refund on a rejected leave")
}

func TestActor_persistFailureSurfacesWithoutRollback(t *testing.T) {
	a, st, bank, _ := newActorFixture(t, Options{})
	st.FailNext = errors.New("disk full")

	player, err := a.Join("p1", "Alice", -1, 500, "")
	require.Error(t, err)
	require.NotNil(t, player)

	// the mutation stands: the player is seated and their debit kept
	view, verr := a.State("p1")
	require.NoError(t, verr)
	require.Len(t, view.Players, 1)
	assert.Equal(t, "p1", view.Players[0].ID)
	assert.Equal(t, int64(9500), balance(t, bank, "p1"))
}

func TestActor_reservationExpiresThroughMailbox(t *testing.T) {
	a, _, _, _ := newActorFixture(t, Options{})
	require.NoError(t, a.call(func() { a.reservationTTL = time.Millisecond * 30 }))

	res, err := a.Reserve("p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Position)

	assert.Eventually(t, func() bool {
		var held int
		if err := a.call(func() { held = len(a.table.Reservations()) }); err != nil {
			return false
		}
		return held == 0
	}, time.Second*2, time.Millisecond*10, "reservation should lapse")
}

func TestActor_disconnectGraceRemovesAndRefunds(t *testing.T) {
	a, _, bank, _ := newActorFixture(t, Options{})
	require.NoError(t, a.call(func() { a.reconnectGrace = time.Millisecond * 30 }))

	_, err := a.Join("p1", "Alice", -1, 500, "")
	require.NoError(t, err)

	peer := newFakePeer("conn-1", "p1")
	require.NoError(t, a.Connect(peer))
	require.NoError(t, a.Disconnect(peer.ID()))

	assert.Eventually(t, func() bool {
		amount, err := bank.Balance(context.Background(), "p1")
		return err == nil && amount == 10000
	}, time.Second*2, time.Millisecond*10, "stack should be refunded after the grace window")

	view, err := a.State("")
	require.NoError(t, err)
	assert.Empty(t, view.Players)
}

func TestActor_reconnectWithinGraceKeepsSeat(t *testing.T) {
	a, _, bank, _ := newActorFixture(t, Options{})
	require.NoError(t, a.call(func() { a.reconnectGrace = time.Millisecond * 100 }))

	_, err := a.Join("p1", "Alice", -1, 500, "")
	require.NoError(t, err)

	first := newFakePeer("conn-1", "p1")
	require.NoError(t, a.Connect(first))
	require.NoError(t, a.Disconnect(first.ID()))

	// a fresh connection inside the window restores the player
	second := newFakePeer("conn-2", "p1")
	require.NoError(t, a.Connect(second))
	second.waitForType(t, message.TableStateUpdate)

	// well past the original grace window the seat is still held
	time.Sleep(time.Millisecond * 200)

	view, err := a.State("p1")
	require.NoError(t, err)
	require.Len(t, view.Players, 1)
	assert.NotEqual(t, StateDisconnected, view.Players[0].State)
	assert.Equal(t, int64(9500), balance(t, bank, "p1"))
}

func TestActor_newDisconnectRestartsGrace(t *testing.T) {
	a, _, bank, _ := newActorFixture(t, Options{})
	require.NoError(t, a.call(func() { a.reconnectGrace = time.Millisecond * 150 }))

	_, err := a.Join("p1", "Alice", -1, 500, "")
	require.NoError(t, err)

	first := newFakePeer("conn-1", "p1")
	require.NoError(t, a.Connect(first))
	require.NoError(t, a.Disconnect(first.ID()))

	time.Sleep(time.Millisecond * 80)

	// a reconnect and a fresh disconnect open a new grace window
	second := newFakePeer("conn-2", "p1")
	require.NoError(t, a.Connect(second))
	second.waitForType(t, message.TableStateUpdate)
	require.NoError(t, a.Disconnect(second.ID()))

	// the first window has lapsed; its timer must not evict the player
	time.Sleep(time.Millisecond * 100)
	view, err := a.State("")
	require.NoError(t, err)
	require.Len(t, view.Players, 1)

	// the second window still runs out on its own
	assert.Eventually(t, func() bool {
		amount, err := bank.Balance(context.Background(), "p1")
		return err == nil && amount == 10000
	}, time.Second*2, time.Millisecond*10)
}

func TestActor_dropsSilentConnections(t *testing.T) {
	a, _, _, _ := newActorFixture(t, Options{})

	peer := newFakePeer("conn-1", "viewer")
	require.NoError(t, a.Connect(peer))
	peer.waitForType(t, message.TableStateUpdate)

	require.NoError(t, a.call(func() {
		a.dropSilentPeers(time.Now().Add(time.Second))
	}))

	peer.mu.Lock()
	shut := len(peer.shut)
	peer.mu.Unlock()
	assert.Equal(t, 1, shut)

	empty, err := a.Empty()
	require.NoError(t, err)
	assert.True(t, empty, "the silent connection is gone")
}

func TestActor_handleMessageJoinAndFold(t *testing.T) {
	a, _, _, _ := newActorFixture(t, Options{})

	alice := newFakePeer("conn-1", "p1")
	bob := newFakePeer("conn-2", "p2")
	require.NoError(t, a.Connect(alice))
	require.NoError(t, a.Connect(bob))

	join := func(peer *fakePeer, buyIn int64) {
		payload, _ := json.Marshal(map[string]interface{}{"name": peer.PlayerID(), "buyIn": buyIn})
		require.NoError(t, a.HandleMessage(peer, &message.Envelope{Type: message.JoinTable, Payload: payload}))
		peer.waitForType(t, message.JoinTableSuccess)
	}

	join(alice, 500)
	join(bob, 500)

	// the hand deals and each player gets their cards privately
	alice.waitForType(t, message.GameStarted)
	alice.waitForType(t, message.HoleCards)
	bob.waitForType(t, message.HoleCards)

	view, err := a.State("")
	require.NoError(t, err)
	require.Equal(t, PhasePreFlop, view.Phase)
	require.NotEmpty(t, view.CurrentTurn)

	actor := alice
	if view.CurrentTurn == "p2" {
		actor = bob
	}

	payload, _ := json.Marshal(Action{Type: ActionFold})
	require.NoError(t, a.HandleMessage(actor, &message.Envelope{Type: message.PlayerAction, Payload: payload}))

	assert.Eventually(t, func() bool {
		view, err := a.State("")
		return err == nil && view.Phase == PhaseFinished
	}, time.Second*2, time.Millisecond*10)
}

func TestActor_handleMessageActionOutOfTurn(t *testing.T) {
	a, _, _, _ := newActorFixture(t, Options{})

	alice := newFakePeer("conn-1", "p1")
	bob := newFakePeer("conn-2", "p2")
	require.NoError(t, a.Connect(alice))
	require.NoError(t, a.Connect(bob))

	_, err := a.Join("p1", "Alice", -1, 500, "")
	require.NoError(t, err)
	_, err = a.Join("p2", "Bob", -1, 500, "")
	require.NoError(t, err)

	view, err := a.State("")
	require.NoError(t, err)

	waiting := alice
	if view.CurrentTurn == "p1" {
		waiting = bob
	}

	payload, _ := json.Marshal(Action{Type: ActionCheck})
	require.NoError(t, a.HandleMessage(waiting, &message.Envelope{Type: message.PlayerAction, Payload: payload}))
	waiting.waitForType(t, message.Error)
}

func TestActor_spectators(t *testing.T) {
	a, _, _, _ := newActorFixture(t, Options{})

	_, err := a.Join("p1", "Alice", -1, 500, "")
	require.NoError(t, err)

	watcher := newFakePeer("conn-9", "viewer")
	require.NoError(t, a.Connect(watcher))
	require.NoError(t, a.HandleMessage(watcher, &message.Envelope{Type: message.SpectateTable}))

	state := watcher.waitForType(t, message.TableStateUpdate)
	view, ok := state.Payload.(*StateView)
	require.True(t, ok)
	for _, p := range view.Players {
		assert.Empty(t, p.HoleCards, "spectators never see hole cards")
	}

	watcher.waitForType(t, message.SpectatorCountUpdate)

	empty, err := a.Empty()
	require.NoError(t, err)
	assert.False(t, empty, "a watched table is not empty")
}

func TestActor_unknownMessageType(t *testing.T) {
	a, _, _, _ := newActorFixture(t, Options{})

	peer := newFakePeer("conn-1", "p1")
	require.NoError(t, a.Connect(peer))
	require.NoError(t, a.HandleMessage(peer, &message.Envelope{Type: "do_a_flip"}))
	peer.waitForType(t, message.Error)
}

func TestActor_stateSyncOnRequest(t *testing.T) {
	a, _, _, _ := newActorFixture(t, Options{})

	_, err := a.Join("p1", "Alice", -1, 500, "")
	require.NoError(t, err)

	peer := newFakePeer("conn-1", "p1")
	require.NoError(t, a.Connect(peer))
	peer.waitForType(t, message.TableStateUpdate)

	require.NoError(t, a.HandleMessage(peer, &message.Envelope{Type: message.RequestStateSync}))

	peer.mu.Lock()
	var updates int
	for _, msg := range peer.messages {
		if msg.Type == message.TableStateUpdate {
			updates++
		}
	}
	peer.mu.Unlock()
	assert.GreaterOrEqual(t, updates, 1)
}

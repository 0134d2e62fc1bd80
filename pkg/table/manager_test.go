package table

import (
	"context"
	"testing"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/rng"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/lobby"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/store"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManagerFixture(t *testing.T) (*Manager, *store.Memory, *notifierStub) {
	t.Helper()

	st := store.NewMemory()
	notes := &notifierStub{}
	m := NewManager(st, wallet.NewMemory(10000), notes, rng.NewSeeded(3))
	t.Cleanup(m.Stop)

	return m, st, notes
}

func TestManager_createListsAndPersists(t *testing.T) {
	m, st, notes := newManagerFixture(t)

	actor, err := m.Create(Options{SmallBlind: 10, BigBlind: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())

	created, _, _ := notes.counts()
	assert.Equal(t, 1, created)

	_, err = st.Load(context.Background(), actor.ID())
	assert.NoError(t, err, "new tables are snapshotted immediately")
}

func TestManager_getReturnsResidentActor(t *testing.T) {
	m, _, _ := newManagerFixture(t)

	actor, err := m.Create(Options{SmallBlind: 10, BigBlind: 20})
	require.NoError(t, err)

	got, err := m.Get(actor.ID())
	require.NoError(t, err)
	assert.Same(t, actor, got)

	_, err = m.Get("no-such-table")
	assert.Error(t, err)
}

func TestManager_getRestoresFromSnapshot(t *testing.T) {
	st := store.NewMemory()
	bank := wallet.NewMemory(10000)

	m1 := NewManager(st, bank, nil, rng.NewSeeded(3))
	actor, err := m1.Create(Options{SmallBlind: 10, BigBlind: 20, Name: "persistent"})
	require.NoError(t, err)

	_, err = actor.Join("p1", "Alice", -1, 1000, "")
	require.NoError(t, err)
	m1.Stop()

	// a fresh manager over the same store picks the table back up
	m2 := NewManager(st, bank, nil, rng.NewSeeded(4))
	t.Cleanup(m2.Stop)

	restored, err := m2.Get(actor.ID())
	require.NoError(t, err)

	view, err := restored.State("")
	require.NoError(t, err)
	assert.Equal(t, "persistent", view.Name)
	require.Len(t, view.Players, 1)
	assert.Equal(t, "p1", view.Players[0].ID)
	assert.Equal(t, int64(1000), view.Players[0].Stack)
}

func TestManager_restoreRelistsReapedTable(t *testing.T) {
	st := store.NewMemory()
	bank := wallet.NewMemory(10000)

	d1, err := lobby.New(store.NewMemory())
	require.NoError(t, err)

	m1 := NewManager(st, bank, d1, rng.NewSeeded(3))
	actor, err := m1.Create(Options{SmallBlind: 10, BigBlind: 20})
	require.NoError(t, err)
	_, err = actor.Join("p1", "Alice", -1, 1000, "")
	require.NoError(t, err)
	m1.Stop()
	d1.Stop()

	// the fresh directory never heard of the snapshotted table
	d2, err := lobby.New(store.NewMemory())
	require.NoError(t, err)
	t.Cleanup(d2.Stop)

	m2 := NewManager(st, bank, d2, rng.NewSeeded(4))
	t.Cleanup(m2.Stop)

	_, err = m2.Get(actor.ID())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		result, err := d2.Query(lobby.Query{})
		return err == nil && result.Total == 1
	}, time.Second*2, time.Millisecond*10, "the restored table relists itself")
}

func TestManager_closeDelistsAndDeletes(t *testing.T) {
	m, st, notes := newManagerFixture(t)

	actor, err := m.Create(Options{SmallBlind: 10, BigBlind: 20})
	require.NoError(t, err)

	require.NoError(t, m.Close(actor.ID()))
	assert.Zero(t, m.Count())

	_, _, removed := notes.counts()
	assert.Equal(t, 1, removed)

	_, err = st.Load(context.Background(), actor.ID())
	assert.Equal(t, store.ErrNotFound, err)
}

func TestManager_reapClosesEmptyTables(t *testing.T) {
	m, _, _ := newManagerFixture(t)

	empty, err := m.Create(Options{SmallBlind: 10, BigBlind: 20})
	require.NoError(t, err)

	occupied, err := m.Create(Options{SmallBlind: 10, BigBlind: 20})
	require.NoError(t, err)
	_, err = occupied.Join("p1", "Alice", -1, 1000, "")
	require.NoError(t, err)

	m.reap()

	assert.Equal(t, 1, m.Count())
	_, err = m.Get(empty.ID())
	assert.Error(t, err, "the empty table is gone")
	_, err = m.Get(occupied.ID())
	assert.NoError(t, err)
}

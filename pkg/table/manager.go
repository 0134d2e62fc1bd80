package table

import (
	"context"
	"sync"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/config"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/rng"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/store"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/wallet"
	"github.com/sirupsen/logrus"
)

// Manager routes table ids to their actors, creating, restoring, and
// retiring them
type Manager struct {
	mu     sync.RWMutex
	actors map[string]*Actor

	store    store.Store
	bankroll wallet.Wallet
	notifier Notifier
	rand     rng.Generator

	done chan struct{}
}

// NewManager returns a running manager that reaps abandoned tables on the
// configured cleanup interval
func NewManager(st store.Store, bankroll wallet.Wallet, notifier Notifier, rand rng.Generator) *Manager {
	m := &Manager{
		actors:   make(map[string]*Actor),
		store:    st,
		bankroll: bankroll,
		notifier: notifier,
		rand:     rand,
		done:     make(chan struct{}),
	}

	go m.reapLoop(config.Instance().Lobby.CleanupInterval)
	return m
}

// Stop terminates every actor and the reaper
func (m *Manager) Stop() {
	close(m.done)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, actor := range m.actors {
		actor.Stop()
	}
	m.actors = make(map[string]*Actor)
}

// Create builds a new table, lists it with the directory, and starts its
// actor
func (m *Manager) Create(opts Options) (*Actor, error) {
	t, err := NewTable(opts, m.rand)
	if err != nil {
		return nil, err
	}

	actor := NewActor(t, m.store, m.bankroll, m.notifier)

	var perr error
	if err := actor.call(func() {
		perr = actor.persist()
	}); err != nil {
		actor.Stop()
		return nil, err
	}
	if perr != nil {
		actor.Stop()
		return nil, perr
	}

	if m.notifier != nil {
		if err := m.notifier.CreateListing(t.Listing()); err != nil {
			logrus.WithError(err).WithField("tableId", t.ID).Warn("could not list new table")
		}
	}

	m.mu.Lock()
	m.actors[t.ID] = actor
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"tableId": t.ID,
		"name":    t.Name,
	}).Info("table created")

	return actor, nil
}

// Get returns the actor for a table, restoring it from the snapshot store
// if it is not resident
func (m *Manager) Get(tableID string) (*Actor, error) {
	m.mu.RLock()
	actor, ok := m.actors[tableID]
	m.mu.RUnlock()
	if ok {
		return actor, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	data, err := m.store.Load(ctx, tableID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperror.NotFound("table not found")
		}
		return nil, apperror.TransientIO{Op: "load table", Err: err}
	}

	t, err := RestoreTable(data, m.rand)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// lost the race to another restore
	if actor, ok := m.actors[tableID]; ok {
		return actor, nil
	}

	actor = NewActor(t, m.store, m.bankroll, m.notifier)
	m.actors[tableID] = actor

	// the directory may have reaped the listing while the table was dormant
	_ = actor.post(func() { actor.reportListing() })

	logrus.WithField("tableId", tableID).Info("table restored from snapshot")
	return actor, nil
}

// Close retires a table: the actor stops, the listing is delisted, and the
// snapshot is deleted
func (m *Manager) Close(tableID string) error {
	m.mu.Lock()
	actor, ok := m.actors[tableID]
	if ok {
		delete(m.actors, tableID)
	}
	m.mu.Unlock()

	if ok {
		actor.Stop()
	}

	if m.notifier != nil {
		if err := m.notifier.RemoveListing(tableID); err != nil {
			logrus.WithError(err).WithField("tableId", tableID).Warn("could not delist table")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := m.store.Delete(ctx, tableID); err != nil {
		return apperror.TransientIO{Op: "delete table snapshot", Err: err}
	}

	return nil
}

// Count returns the number of resident table actors
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.actors)
}

func (m *Manager) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reap()
		case <-m.done:
			return
		}
	}
}

// reap closes tables with no players, reservations, or connections
func (m *Manager) reap() {
	m.mu.RLock()
	actors := make([]*Actor, 0, len(m.actors))
	for _, actor := range m.actors {
		actors = append(actors, actor)
	}
	m.mu.RUnlock()

	for _, actor := range actors {
		empty, err := actor.Empty()
		if err != nil || !empty {
			continue
		}

		logrus.WithField("tableId", actor.ID()).Info("reaping abandoned table")
		if err := m.Close(actor.ID()); err != nil {
			logrus.WithError(err).WithField("tableId", actor.ID()).Warn("could not close table")
		}
	}
}

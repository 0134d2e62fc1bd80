package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/config"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/message"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/session"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/store"
	"github.com/sirupsen/logrus"
)

const (
	directoryActorID = "directory"
	mailboxSize      = 512
	persistTimeout   = time.Second * 5

	// staleConnectionAfter drops lobby connections without a heartbeat
	staleConnectionAfter = time.Second * 30

	// emptyListingRetention is how long an empty table stays listed
	emptyListingRetention = time.Minute * 30

	// inactiveAfter marks a quiet, non-playing table as inactive
	inactiveAfter = time.Minute * 10
)

var errMailboxFull = errors.New("mailbox full")

// Health is the directory's point-in-time health snapshot
type Health struct {
	ActiveTables      int    `json:"activeTables"`
	TotalPlayers      int    `json:"totalPlayers"`
	Subscribers       int    `json:"subscribers"`
	Sequence          uint64 `json:"sequence"`
	BroadcastsSent    uint64 `json:"broadcastsSent"`
	BroadcastFailures uint64 `json:"broadcastFailures"`
	CachedQueries     int    `json:"cachedQueries"`
	UptimeSeconds     int64  `json:"uptimeSeconds"`
}

// Directory is the global table directory. A single goroutine owns all state;
// every operation is a closure delivered through the mailbox, so no locks
// guard the maps.
type Directory struct {
	mailbox chan func()
	done    chan struct{}

	listings    map[string]*Listing
	playerIndex map[string]string
	subscribers map[string]*subscriber
	registry    *session.Registry
	coordinator *Coordinator
	cache       *queryCache
	store       store.Store

	logger  logrus.FieldLogger
	started time.Time
}

// New returns a running directory, restored from its persisted snapshot if
// one exists
func New(st store.Store) (*Directory, error) {
	cfg := config.Instance()

	d := &Directory{
		mailbox:     make(chan func(), mailboxSize),
		done:        make(chan struct{}),
		listings:    make(map[string]*Listing),
		playerIndex: make(map[string]string),
		subscribers: make(map[string]*subscriber),
		registry:    session.NewRegistry(),
		cache:       newQueryCache(cfg.Lobby.QueryCacheTTL),
		store:       st,
		logger:      logrus.WithField("actor", directoryActorID),
		started:     time.Now(),
	}

	d.coordinator = NewCoordinator(CoordinatorConfig{
		BatchWindow:  cfg.Lobby.BatchWindow,
		MaxBatchSize: cfg.Lobby.MaxBatchSize,
	}, d.fanOutAsync)

	if err := d.restore(); err != nil {
		return nil, err
	}

	go d.run(cfg.Lobby.RefreshInterval, cfg.Lobby.CleanupInterval)
	return d, nil
}

func (d *Directory) run(refreshInterval, cleanupInterval time.Duration) {
	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case fn := <-d.mailbox:
			fn()
		case <-refresh.C:
			d.refreshTick()
		case <-cleanup.C:
			d.cleanupTick()
		case <-d.done:
			return
		}
	}
}

// Stop terminates the run loop and the broadcast dispatcher
func (d *Directory) Stop() {
	close(d.done)
	d.coordinator.Stop()
}

// post delivers a closure to the run loop without waiting for it
func (d *Directory) post(fn func()) error {
	select {
	case d.mailbox <- fn:
		return nil
	case <-d.done:
		return errors.New("directory stopped")
	default:
		return apperror.TransientIO{Op: "directory mailbox", Err: errMailboxFull}
	}
}

// call runs a closure in the run loop and waits for it. Must not be invoked
// from inside the run loop.
func (d *Directory) call(fn func()) error {
	ran := make(chan struct{})
	if err := d.post(func() {
		fn()
		close(ran)
	}); err != nil {
		return err
	}

	select {
	case <-ran:
		return nil
	case <-d.done:
		return errors.New("directory stopped")
	}
}

// CreateListing registers a new table. The listing is persisted before the
// call returns, and subscribers are notified on the priority path.
func (d *Directory) CreateListing(listing *Listing) error {
	if listing == nil || listing.TableID == "" {
		return apperror.Validation("a listing requires a table id")
	}

	var err error
	if callErr := d.call(func() {
		if _, ok := d.listings[listing.TableID]; ok {
			err = apperror.Validation("a table with that id is already listed")
			return
		}

		clone := listing.Clone()
		now := time.Now()
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		if clone.LastActivity.IsZero() {
			clone.LastActivity = now
		}
		if clone.Status == "" {
			clone.Status = StatusWaiting
		}
		if clone.CurrentPlayers == 0 {
			clone.EmptySince = &now
		}

		d.listings[clone.TableID] = clone
		d.reindex(clone.TableID)
		d.cache.invalidate()

		err = d.persist()
		d.coordinator.UpdatePriority(d.listings)
	}); callErr != nil {
		return callErr
	}

	return err
}

// UpdateListing replaces the listing for an existing table
func (d *Directory) UpdateListing(listing *Listing) error {
	if listing == nil || listing.TableID == "" {
		return apperror.Validation("a listing requires a table id")
	}

	var err error
	if callErr := d.call(func() {
		prev, ok := d.listings[listing.TableID]
		if !ok {
			err = apperror.NotFound("table is not listed")
			return
		}

		clone := listing.Clone()
		clone.CreatedAt = prev.CreatedAt
		if clone.LastActivity.IsZero() {
			clone.LastActivity = time.Now()
		}

		// track when the table went empty so cleanup can reap it
		if clone.CurrentPlayers == 0 {
			if prev.EmptySince != nil {
				clone.EmptySince = prev.EmptySince
			} else {
				now := time.Now()
				clone.EmptySince = &now
			}
		} else {
			clone.EmptySince = nil
		}

		d.listings[clone.TableID] = clone
		d.reindex(clone.TableID)
		d.cache.invalidate()

		err = d.persist()
		d.coordinator.Update(d.listings)
	}); callErr != nil {
		return callErr
	}

	return err
}

// UpdateStats updates only the rolling statistics of a listing
func (d *Directory) UpdateStats(tableID string, avgPot, handsPerHour float64) error {
	var err error
	if callErr := d.call(func() {
		listing, ok := d.listings[tableID]
		if !ok {
			err = apperror.NotFound("table is not listed")
			return
		}

		listing.AvgPot = avgPot
		listing.HandsPerHour = handsPerHour
		d.cache.invalidate()

		err = d.persist()
		d.coordinator.Update(d.listings)
	}); callErr != nil {
		return callErr
	}

	return err
}

// RemoveListing delists a table and notifies subscribers on the priority path
func (d *Directory) RemoveListing(tableID string) error {
	var err error
	if callErr := d.call(func() {
		if _, ok := d.listings[tableID]; !ok {
			err = apperror.NotFound("table is not listed")
			return
		}

		delete(d.listings, tableID)
		d.reindex(tableID)
		d.cache.invalidate()

		err = d.persist()
		d.coordinator.UpdatePriority(d.listings)
	}); callErr != nil {
		return callErr
	}

	return err
}

// Query runs a filtered, sorted, paged listing query. Identical queries
// within the cache TTL are served from cache.
func (d *Directory) Query(q Query) (*QueryResult, error) {
	var result *QueryResult
	if err := d.call(func() {
		result = d.queryLocked(q)
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// must run in the run loop
func (d *Directory) queryLocked(q Query) *QueryResult {
	key := q.cacheKey()
	if cached, ok := d.cache.get(key); ok {
		return cached
	}

	result := runQuery(d.listings, q)
	d.cache.put(key, result)

	return result
}

// PlayerLocation returns the table a player is seated at
func (d *Directory) PlayerLocation(playerID string) (string, error) {
	var tableID string
	var err error
	if callErr := d.call(func() {
		id, ok := d.playerIndex[playerID]
		if !ok {
			err = apperror.NotFound("player is not seated at any table")
			return
		}
		tableID = id
	}); callErr != nil {
		return "", callErr
	}

	return tableID, err
}

// Health returns the directory's health snapshot
func (d *Directory) Health() (Health, error) {
	var health Health
	if err := d.call(func() {
		sequence, sent, failures := d.coordinator.Stats()
		health = Health{
			ActiveTables:      len(d.listings),
			TotalPlayers:      len(d.playerIndex),
			Subscribers:       len(d.subscribers),
			Sequence:          sequence,
			BroadcastsSent:    sent,
			BroadcastFailures: failures,
			CachedQueries:     d.cache.len(),
			UptimeSeconds:     int64(time.Since(d.started).Seconds()),
		}
	}); err != nil {
		return Health{}, err
	}

	return health, nil
}

// Connect attaches a lobby connection. The peer immediately receives the
// current lobby state with the broadcast sequence it is synced to.
func (d *Directory) Connect(peer session.Peer) error {
	return d.post(func() {
		d.registry.Add(peer)
		d.subscribers[peer.ID()] = &subscriber{peer: peer}
		d.sendState(peer, Query{})
	})
}

// Disconnect detaches a lobby connection
func (d *Directory) Disconnect(connID string) error {
	return d.post(func() {
		d.registry.Remove(connID)
		delete(d.subscribers, connID)
	})
}

// HandleMessage dispatches one inbound envelope from a lobby connection
func (d *Directory) HandleMessage(peer session.Peer, env *message.Envelope) error {
	return d.post(func() {
		d.registry.Heartbeat(peer.ID())

		switch env.Type {
		case message.Heartbeat:
			// the heartbeat above is the whole point

		case message.SetFilters:
			var filters Filters
			if err := json.Unmarshal(env.Payload, &filters); err != nil {
				peer.Send(message.NewError(apperror.Protocol("could not parse filters"), env.Type))
				return
			}

			sub, ok := d.subscribers[peer.ID()]
			if !ok {
				return
			}

			sub.filters = filters
			d.sendState(peer, Query{Filters: filters})

		case message.GetTables:
			var q Query
			if len(env.Payload) > 0 {
				if err := json.Unmarshal(env.Payload, &q); err != nil {
					peer.Send(message.NewError(apperror.Protocol("could not parse query"), env.Type))
					return
				}
			}

			peer.Send(message.New(message.TablesUpdate, d.queryLocked(q)))

		case message.GetTableStats:
			var payload struct {
				TableID string `json:"tableId"`
			}
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				peer.Send(message.NewError(apperror.Protocol("could not parse request"), env.Type))
				return
			}

			listing, ok := d.listings[payload.TableID]
			if !ok {
				peer.Send(message.NewError(apperror.NotFound("table is not listed"), env.Type))
				return
			}

			peer.Send(message.New(message.TableStats, statsPayload(listing)))

		case message.RequestStateSync:
			q := Query{}
			if sub, ok := d.subscribers[peer.ID()]; ok {
				q.Filters = sub.filters
			}
			d.sendState(peer, q)

		default:
			peer.Send(message.NewError(apperror.Protocol("unknown message type"), env.Type))
		}
	})
}

// sendState ships a full lobby snapshot stamped with the current sequence so
// the client can resume delta tracking from it
func (d *Directory) sendState(peer session.Peer, q Query) {
	sequence, _, _ := d.coordinator.Stats()
	peer.Send(message.NewSequenced(message.LobbyState, d.queryLocked(q), sequence))
}

func statsPayload(l *Listing) map[string]interface{} {
	return map[string]interface{}{
		"tableId":        l.TableID,
		"avgPot":         l.AvgPot,
		"handsPerHour":   l.HandsPerHour,
		"currentPlayers": l.CurrentPlayers,
		"waitingList":    l.WaitingList,
		"status":         l.Status,
	}
}

// fanOutAsync hands a broadcast back to the run loop, which owns the
// subscriber map. Called from the coordinator's dispatch goroutine.
func (d *Directory) fanOutAsync(b *Broadcast) error {
	return d.post(func() {
		d.fanOut(b)
	})
}

// must run in the run loop
func (d *Directory) fanOut(b *Broadcast) {
	msgType := message.TableDeltaUpdate
	if b.Priority && len(b.Changes) == 1 {
		switch b.Changes[0].Type {
		case TableCreated:
			msgType = message.TableCreated
		case TableRemoved:
			msgType = message.TableRemoved
		default:
			msgType = message.TableUpdated
		}
	}

	for _, sub := range d.subscribers {
		scoped := sub.scope(b, d.listings)
		if !sub.peer.Send(message.NewSequenced(msgType, scoped, b.SequenceID)) {
			d.logger.WithField("connId", sub.peer.ID()).Warn("slow lobby subscriber, dropped broadcast")
		}
	}
}

// reindex rebuilds the player index entries for one table
func (d *Directory) reindex(tableID string) {
	listing := d.listings[tableID]

	seated := make(map[string]bool)
	if listing != nil {
		for _, player := range listing.PlayerList {
			seated[player.PlayerID] = true
			d.playerIndex[player.PlayerID] = tableID
		}
	}

	for playerID, id := range d.playerIndex {
		if id == tableID && !seated[playerID] {
			delete(d.playerIndex, playerID)
		}
	}
}

// refreshTick recomputes derived listing state, flushes pending deltas, and
// ships every subscriber a fresh snapshot so a client that missed deltas
// converges without asking
func (d *Directory) refreshTick() {
	changed := false
	cutoff := time.Now().Add(-inactiveAfter)

	for _, listing := range d.listings {
		if listing.Status != StatusPlaying && listing.Status != StatusInactive && listing.LastActivity.Before(cutoff) {
			listing.Status = StatusInactive
			changed = true
		}
	}

	if changed {
		d.cache.invalidate()
		if err := d.persist(); err != nil {
			d.logger.WithError(err).Error("could not persist directory snapshot")
		}
	}

	d.coordinator.Update(d.listings)

	for _, sub := range d.subscribers {
		d.sendState(sub.peer, Query{Filters: sub.filters})
	}

	d.cache.prune()
}

// cleanupTick reaps long-empty listings and stale lobby connections
func (d *Directory) cleanupTick() {
	now := time.Now()

	var reap []string
	for id, listing := range d.listings {
		if listing.EmptySince != nil && now.Sub(*listing.EmptySince) > emptyListingRetention {
			reap = append(reap, id)
		}
	}

	for _, id := range reap {
		d.logger.WithField("tableId", id).Info("removing empty table listing")
		delete(d.listings, id)
		d.reindex(id)
	}

	if len(reap) > 0 {
		d.cache.invalidate()
		if err := d.persist(); err != nil {
			d.logger.WithError(err).Error("could not persist directory snapshot")
		}
		d.coordinator.UpdatePriority(d.listings)
	}

	for _, peer := range d.registry.SilentSince(now.Add(-staleConnectionAfter)) {
		d.logger.WithField("connId", peer.ID()).Info("dropping stale lobby connection")
		peer.Shut("heartbeat timeout")
		d.registry.Remove(peer.ID())
		delete(d.subscribers, peer.ID())
	}
}

// directoryDocument is the persisted form of the directory. Maps are
// flattened into pair lists; connections are never persisted.
type directoryDocument struct {
	Listings []listingPair `json:"listings"`
	Players  []playerPair  `json:"playerIndex"`
	SavedAt  time.Time     `json:"savedAt"`
}

type listingPair struct {
	Key   string   `json:"key"`
	Value *Listing `json:"value"`
}

type playerPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// must run in the run loop
func (d *Directory) persist() error {
	doc := directoryDocument{
		Listings: make([]listingPair, 0, len(d.listings)),
		Players:  make([]playerPair, 0, len(d.playerIndex)),
		SavedAt:  time.Now(),
	}

	for id, listing := range d.listings {
		doc.Listings = append(doc.Listings, listingPair{Key: id, Value: listing})
	}
	for playerID, tableID := range d.playerIndex {
		doc.Players = append(doc.Players, playerPair{Key: playerID, Value: tableID})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := d.store.Save(ctx, directoryActorID, data); err != nil {
		return apperror.TransientIO{Op: "persist directory", Err: err}
	}

	return nil
}

func (d *Directory) restore() error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	data, err := d.store.Load(ctx, directoryActorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return apperror.TransientIO{Op: "restore directory", Err: err}
	}

	var doc directoryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	for _, pair := range doc.Listings {
		d.listings[pair.Key] = pair.Value
	}
	for _, pair := range doc.Players {
		d.playerIndex[pair.Key] = pair.Value
	}

	d.logger.WithField("tables", len(d.listings)).Info("restored directory snapshot")
	return nil
}

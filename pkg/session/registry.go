package session

import "time"

// Registry tracks the connections owned by one actor, binding connection ids
// to player ids and heartbeat times. It is not safe for concurrent use; each
// actor mutates its registry only from its own run loop.
type Registry struct {
	peers      map[string]Peer
	byPlayer   map[string]string
	heartbeats map[string]time.Time
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		peers:      make(map[string]Peer),
		byPlayer:   make(map[string]string),
		heartbeats: make(map[string]time.Time),
	}
}

// Add registers a peer, replacing any prior connection for the same player
func (r *Registry) Add(peer Peer) {
	if prev, ok := r.byPlayer[peer.PlayerID()]; ok && prev != peer.ID() {
		r.Remove(prev)
	}

	r.peers[peer.ID()] = peer
	r.byPlayer[peer.PlayerID()] = peer.ID()
	r.heartbeats[peer.ID()] = time.Now()
}

// Remove forgets a connection by id
func (r *Registry) Remove(connID string) {
	peer, ok := r.peers[connID]
	if !ok {
		return
	}

	if r.byPlayer[peer.PlayerID()] == connID {
		delete(r.byPlayer, peer.PlayerID())
	}

	delete(r.peers, connID)
	delete(r.heartbeats, connID)
}

// Get returns the peer for a connection id
func (r *Registry) Get(connID string) (Peer, bool) {
	peer, ok := r.peers[connID]
	return peer, ok
}

// ByPlayer returns the player's current connection, if any
func (r *Registry) ByPlayer(playerID string) (Peer, bool) {
	connID, ok := r.byPlayer[playerID]
	if !ok {
		return nil, false
	}

	return r.Get(connID)
}

// Heartbeat records activity on a connection
func (r *Registry) Heartbeat(connID string) {
	if _, ok := r.peers[connID]; ok {
		r.heartbeats[connID] = time.Now()
	}
}

// SilentSince returns connections without a heartbeat since the cutoff
func (r *Registry) SilentSince(cutoff time.Time) []Peer {
	var silent []Peer
	for connID, at := range r.heartbeats {
		if at.Before(cutoff) {
			silent = append(silent, r.peers[connID])
		}
	}

	return silent
}

// Each invokes fn for every registered peer
func (r *Registry) Each(fn func(Peer)) {
	for _, peer := range r.peers {
		fn(peer)
	}
}

// Len returns the number of registered connections
func (r *Registry) Len() int {
	return len(r.peers)
}

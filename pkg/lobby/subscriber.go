package lobby

import (
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/session"
)

// subscriber is one lobby connection plus the filters it asked for. Owned by
// the directory run loop.
type subscriber struct {
	peer    session.Peer
	filters Filters
}

func (s *subscriber) unfiltered() bool {
	return s.filters == Filters{}
}

// visible reports whether a change should reach this subscriber. Removals
// always ship so a client that saw the table can drop it; remove of an
// unknown table is a no-op on their side.
func (s *subscriber) visible(change Change, listings map[string]*Listing) bool {
	switch change.Type {
	case TableRemoved:
		return true
	case TableCreated:
		return s.filters.Match(change.Listing)
	default:
		if listing, ok := listings[change.TableID]; ok {
			return s.filters.Match(listing)
		}
		return true
	}
}

// scope narrows a broadcast to the subscriber's filters. The envelope ships
// even when nothing matched so the subscriber's sequence stays gapless.
func (s *subscriber) scope(b *Broadcast, listings map[string]*Listing) *Broadcast {
	if s.unfiltered() {
		return b
	}

	changes := make([]Change, 0, len(b.Changes))
	for _, change := range b.Changes {
		if s.visible(change, listings) {
			changes = append(changes, change)
		}
	}

	if len(changes) == len(b.Changes) {
		return b
	}

	patch, err := GeneratePatch(changes)
	if err != nil {
		// the full patch already validated; narrowing cannot add paths
		patch = nil
	}

	return &Broadcast{
		Changes:    changes,
		Patch:      patch,
		SequenceID: b.SequenceID,
		Timestamp:  b.Timestamp,
		Priority:   b.Priority,
	}
}

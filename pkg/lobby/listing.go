package lobby

import "time"

// listing status constants
const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusInactive = "inactive"
)

// Stakes is the blind structure of a table
type Stakes struct {
	SmallBlind int64 `json:"smallBlind"`
	BigBlind   int64 `json:"bigBlind"`
}

// ListedPlayer is one seat in a listing's ordered player list
type ListedPlayer struct {
	Position int    `json:"position"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Stack    int64  `json:"stack"`
	Active   bool   `json:"active"`
}

// Listing is the public, denormalized summary of one table. The directory
// owns these; they are a cache of table state, never a source of truth.
type Listing struct {
	TableID          string         `json:"tableId"`
	Name             string         `json:"name"`
	GameType         string         `json:"gameType"`
	CurrentPlayers   int            `json:"currentPlayers"`
	MaxPlayers       int            `json:"maxPlayers"`
	IsPrivate        bool           `json:"isPrivate"`
	RequiresPassword bool           `json:"requiresPassword"`
	AvgPot           float64        `json:"avgPot"`
	HandsPerHour     float64        `json:"handsPerHour"`
	WaitingList      int            `json:"waitingList"`
	Status           string         `json:"status"`
	Stakes           Stakes         `json:"stakes"`
	PlayerList       []ListedPlayer `json:"playerList"`

	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`

	// EmptySince is set while the table has no players; the cleanup pass
	// removes listings empty past the retention window
	EmptySince *time.Time `json:"emptySince,omitempty"`
}

// HasOpenSeat returns true if another player can sit
func (l *Listing) HasOpenSeat() bool {
	return l.CurrentPlayers < l.MaxPlayers
}

// Clone returns a deep copy of the listing
func (l *Listing) Clone() *Listing {
	cp := *l

	if l.PlayerList != nil {
		cp.PlayerList = make([]ListedPlayer, len(l.PlayerList))
		copy(cp.PlayerList, l.PlayerList)
	}

	if l.EmptySince != nil {
		at := *l.EmptySince
		cp.EmptySince = &at
	}

	return &cp
}

// CloneMap returns a deep copy of a listing map
func CloneMap(listings map[string]*Listing) map[string]*Listing {
	cp := make(map[string]*Listing, len(listings))
	for id, listing := range listings {
		cp[id] = listing.Clone()
	}

	return cp
}

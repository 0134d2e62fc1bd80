package table

import (
	"fmt"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/rng"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/util"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/deck"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/lobby"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/poker"
	"github.com/google/uuid"
)

// Phase is the table's position in the hand lifecycle
type Phase string

// hand lifecycle phases
const (
	PhaseWaiting  Phase = "WAITING"
	PhasePreFlop  Phase = "PRE_FLOP"
	PhaseFlop     Phase = "FLOP"
	PhaseTurn     Phase = "TURN"
	PhaseRiver    Phase = "RIVER"
	PhaseShowdown Phase = "SHOWDOWN"
	PhaseFinished Phase = "FINISHED"
)

// Options configures a new table
type Options struct {
	Name       string `json:"name"`
	GameType   string `json:"gameType"`
	MaxPlayers int    `json:"maxPlayers"`
	IsPrivate  bool   `json:"isPrivate"`
	Password   string `json:"password"`
	SmallBlind int64  `json:"smallBlind"`
	BigBlind   int64  `json:"bigBlind"`
	MinBuyIn   int64  `json:"minBuyIn"`
	MaxBuyIn   int64  `json:"maxBuyIn"`
}

func (o *Options) validate() error {
	if o.GameType == "" {
		o.GameType = "texas-holdem"
	}

	if o.MaxPlayers == 0 {
		o.MaxPlayers = 9
	}
	if o.MaxPlayers < 2 || o.MaxPlayers > 10 {
		return apperror.Validation("table must seat between 2 and 10 players")
	}

	if o.SmallBlind <= 0 || o.BigBlind <= 0 {
		return apperror.Validation("blinds must be positive")
	}
	if o.SmallBlind > o.BigBlind {
		return apperror.Validation("small blind cannot exceed the big blind")
	}

	if o.MinBuyIn == 0 {
		o.MinBuyIn = o.BigBlind * 20
	}
	if o.MaxBuyIn == 0 {
		o.MaxBuyIn = o.BigBlind * 100
	}
	if o.MinBuyIn > o.MaxBuyIn {
		return apperror.Validation("minimum buy-in cannot exceed the maximum")
	}

	return nil
}

// Table is the authoritative state of one poker table. It is a plain state
// machine; the actor serializes access and handles timing.
type Table struct {
	ID         string
	Name       string
	GameType   string
	MaxPlayers int
	IsPrivate  bool
	Stakes     lobby.Stakes
	MinBuyIn   int64
	MaxBuyIn   int64

	CreatedAt    time.Time
	LastActivity time.Time

	password string

	seats        []*Player
	reservations map[int]*Reservation

	button    int
	buttonSet bool
	phase     Phase

	// per-hand state
	handNumber uint64
	deck       *deck.Deck
	community  []*deck.Card
	currentBet int64
	minRaise   int64
	turnPos    int
	forfeited  map[string]int64

	// LastResults holds the outcome of the most recent completed hand
	LastResults []PotResult

	handsPlayed int
	totalPots   int64
	firstHandAt time.Time

	rand      rng.Generator
	evaluator poker.Evaluator
}

// NewTable returns an empty table
func NewTable(opts Options, rand rng.Generator) (*Table, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = util.RandomTableName(rand)
	}

	now := time.Now()
	return &Table{
		ID:           uuid.New().String(),
		Name:         name,
		GameType:     opts.GameType,
		MaxPlayers:   opts.MaxPlayers,
		IsPrivate:    opts.IsPrivate,
		Stakes:       lobby.Stakes{SmallBlind: opts.SmallBlind, BigBlind: opts.BigBlind},
		MinBuyIn:     opts.MinBuyIn,
		MaxBuyIn:     opts.MaxBuyIn,
		CreatedAt:    now,
		LastActivity: now,
		password:     opts.Password,
		seats:        make([]*Player, opts.MaxPlayers),
		reservations: make(map[int]*Reservation),
		phase:        PhaseWaiting,
		rand:         rand,
		evaluator:    poker.HighHand{},
	}, nil
}

// Phase returns the current hand phase
func (t *Table) Phase() Phase {
	return t.phase
}

// Community returns the dealt community cards
func (t *Table) Community() []*deck.Card {
	return t.community
}

// CheckPassword verifies the join password for private tables
func (t *Table) CheckPassword(password string) bool {
	return t.password == "" || t.password == password
}

// Player returns the seated player by id
func (t *Table) Player(playerID string) (*Player, bool) {
	for _, p := range t.seats {
		if p != nil && p.ID == playerID {
			return p, true
		}
	}

	return nil, false
}

// Players returns seated players in position order
func (t *Table) Players() []*Player {
	players := make([]*Player, 0, len(t.seats))
	for _, p := range t.seats {
		if p != nil {
			players = append(players, p)
		}
	}

	return players
}

// PlayerCount returns the number of seated players
func (t *Table) PlayerCount() int {
	return len(t.Players())
}

// seatOpen returns true if the position is neither occupied nor held for
// someone else
func (t *Table) seatOpen(position int, playerID string) bool {
	if position < 0 || position >= t.MaxPlayers {
		return false
	}

	if t.seats[position] != nil {
		return false
	}

	if res, ok := t.reservations[position]; ok && res.PlayerID != playerID {
		return false
	}

	return true
}

// Reserve holds a seat for a player while they buy in. Position -1 picks the
// first open seat. Reserving again refreshes the player's existing hold.
func (t *Table) Reserve(playerID string, position int, ttl time.Duration) (*Reservation, error) {
	if _, seated := t.Player(playerID); seated {
		return nil, apperror.Validation("you are already seated at this table")
	}

	// a player holds at most one seat
	for pos, res := range t.reservations {
		if res.PlayerID == playerID && pos != position {
			delete(t.reservations, pos)
		}
	}

	if position == -1 {
		for pos := range t.seats {
			if t.seatOpen(pos, playerID) {
				position = pos
				break
			}
		}
		if position == -1 {
			return nil, apperror.Validation("no open seats")
		}
	}

	if !t.seatOpen(position, playerID) {
		return nil, apperror.Validation(fmt.Sprintf("seat %d is not available", position))
	}

	now := time.Now()
	res := &Reservation{
		PlayerID:   playerID,
		Position:   position,
		ReservedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	t.reservations[position] = res
	t.touch()

	return res, nil
}

// ReleaseReservation drops the player's seat hold, if any
func (t *Table) ReleaseReservation(playerID string) {
	for pos, res := range t.reservations {
		if res.PlayerID == playerID {
			delete(t.reservations, pos)
		}
	}
}

// ExpireReservations removes lapsed holds and returns them
func (t *Table) ExpireReservations(now time.Time) []*Reservation {
	var expired []*Reservation
	for pos, res := range t.reservations {
		if res.Expired(now) {
			expired = append(expired, res)
			delete(t.reservations, pos)
		}
	}

	return expired
}

// Reservations returns the active seat holds
func (t *Table) Reservations() []*Reservation {
	out := make([]*Reservation, 0, len(t.reservations))
	for _, res := range t.reservations {
		out = append(out, res)
	}

	return out
}

// Sit seats a player with their buy-in. Position -1 picks the first open
// seat. A player joining mid-hand waits for the next deal.
func (t *Table) Sit(playerID, name string, position int, buyIn int64) (*Player, error) {
	if _, seated := t.Player(playerID); seated {
		return nil, apperror.Validation("you are already seated at this table")
	}

	if buyIn < t.MinBuyIn || buyIn > t.MaxBuyIn {
		return nil, apperror.Validation(fmt.Sprintf("buy-in must be between %d and %d", t.MinBuyIn, t.MaxBuyIn))
	}

	if position == -1 {
		for pos := range t.seats {
			if t.seatOpen(pos, playerID) {
				position = pos
				break
			}
		}
		if position == -1 {
			return nil, apperror.Validation("no open seats")
		}
	}

	if res, ok := t.reservations[position]; ok {
		if res.PlayerID != playerID {
			return nil, apperror.Validation(fmt.Sprintf("seat %d is reserved", position))
		}
		delete(t.reservations, position)
	}

	if position < 0 || position >= t.MaxPlayers || t.seats[position] != nil {
		return nil, apperror.Validation(fmt.Sprintf("seat %d is not available", position))
	}

	player := &Player{
		ID:       playerID,
		Name:     name,
		Position: position,
		Stack:    buyIn,
		State:    StateSittingOut,
	}
	t.seats[position] = player
	t.touch()

	return player, nil
}

// Unseat removes a player from the table. A player still holding live cards
// cannot leave mid-hand; they must fold first. The returned player carries
// the stack to refund.
func (t *Table) Unseat(playerID string) (*Player, error) {
	player, ok := t.Player(playerID)
	if !ok {
		return nil, apperror.NotFound("you are not seated at this table")
	}

	if t.HandInProgress() && player.InHand() {
		return nil, apperror.Validation("cannot leave during a live hand; fold first")
	}

	return t.remove(player), nil
}

// remove forcibly unseats a player, folding them out of any live hand.
// Chips already committed to the hand stay in the pot.
func (t *Table) remove(player *Player) *Player {
	wasLive := t.HandInProgress() && player.InHand()
	wasTurn := false
	if current, ok := t.CurrentTurn(); ok && current.ID == player.ID {
		wasTurn = true
	}

	if wasLive {
		t.foldOut(player)
	}
	if t.HandInProgress() && player.BetThisHand > 0 {
		t.forfeited[player.ID] += player.BetThisHand
	}

	t.seats[player.Position] = nil
	t.touch()

	if wasLive {
		t.resolveTable(wasTurn)
	}

	return player
}

// HandInProgress returns true while a hand is being played
func (t *Table) HandInProgress() bool {
	switch t.phase {
	case PhasePreFlop, PhaseFlop, PhaseTurn, PhaseRiver:
		return true
	}

	return false
}

// Empty returns true when no players are seated
func (t *Table) Empty() bool {
	return t.PlayerCount() == 0
}

// AvgPot returns the mean pot size across completed hands
func (t *Table) AvgPot() float64 {
	if t.handsPlayed == 0 {
		return 0
	}

	return float64(t.totalPots) / float64(t.handsPlayed)
}

// HandsPerHour returns the observed hand rate
func (t *Table) HandsPerHour() float64 {
	if t.handsPlayed == 0 {
		return 0
	}

	hours := time.Since(t.firstHandAt).Hours()
	if hours <= 0 {
		return 0
	}

	return float64(t.handsPlayed) / hours
}

// Status maps the phase onto the directory's listing status
func (t *Table) Status() string {
	if t.HandInProgress() || t.phase == PhaseShowdown {
		return lobby.StatusPlaying
	}

	return lobby.StatusWaiting
}

// Listing builds the directory's denormalized view of this table
func (t *Table) Listing() *lobby.Listing {
	players := make([]lobby.ListedPlayer, 0, t.PlayerCount())
	for _, p := range t.Players() {
		players = append(players, lobby.ListedPlayer{
			Position: p.Position,
			PlayerID: p.ID,
			Name:     p.Name,
			Stack:    p.Stack,
			Active:   p.State == StateActive || p.State == StateAllIn,
		})
	}

	return &lobby.Listing{
		TableID:          t.ID,
		Name:             t.Name,
		GameType:         t.GameType,
		CurrentPlayers:   t.PlayerCount(),
		MaxPlayers:       t.MaxPlayers,
		WaitingList:      len(t.reservations),
		IsPrivate:        t.IsPrivate,
		RequiresPassword: t.password != "",
		AvgPot:           t.AvgPot(),
		HandsPerHour:     t.HandsPerHour(),
		Status:           t.Status(),
		Stakes:           t.Stakes,
		PlayerList:       players,
		CreatedAt:        t.CreatedAt,
		LastActivity:     t.LastActivity,
	}
}

func (t *Table) touch() {
	t.LastActivity = time.Now()
}

// nextSeat walks clockwise from the given position (exclusive) to the first
// seat whose player satisfies the predicate. Returns -1 if none do.
func (t *Table) nextSeat(from int, ok func(*Player) bool) int {
	n := t.MaxPlayers
	for i := 1; i <= n; i++ {
		pos := (from + i) % n
		if p := t.seats[pos]; p != nil && ok(p) {
			return pos
		}
	}

	return -1
}

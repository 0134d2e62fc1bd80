package table

import (
	"encoding/json"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/rng"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/deck"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/lobby"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/poker"
)

// playerDoc is the persisted form of a seated player. Hole cards and the
// parked disconnect state are hidden fields on Player, so they are carried
// explicitly here.
type playerDoc struct {
	Player
	HoleCards  []*deck.Card `json:"holeCards,omitempty"`
	PriorState string       `json:"priorState,omitempty"`
}

type seatEntry struct {
	Position int        `json:"position"`
	Player   *playerDoc `json:"player"`
}

type forfeitEntry struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

// tableDocument is the persisted form of a table. Seat and forfeit maps are
// flattened into entry lists; connections and spectators are never persisted.
type tableDocument struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	GameType   string       `json:"gameType"`
	MaxPlayers int          `json:"maxPlayers"`
	IsPrivate  bool         `json:"isPrivate"`
	Password   string       `json:"password,omitempty"`
	Stakes     lobby.Stakes `json:"stakes"`
	MinBuyIn   int64        `json:"minBuyIn"`
	MaxBuyIn   int64        `json:"maxBuyIn"`

	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`

	Phase      Phase  `json:"phase"`
	HandNumber uint64 `json:"handNumber"`
	Button     int    `json:"button"`
	ButtonSet  bool   `json:"buttonSet"`
	TurnPos    int    `json:"turnPos"`
	CurrentBet int64  `json:"currentBet"`
	MinRaise   int64  `json:"minRaise"`

	Community []*deck.Card `json:"community,omitempty"`
	DeckCards []*deck.Card `json:"deckCards,omitempty"`

	Seats        []seatEntry    `json:"seats"`
	Reservations []*Reservation `json:"reservations,omitempty"`
	Forfeited    []forfeitEntry `json:"forfeited,omitempty"`

	HandsPlayed int         `json:"handsPlayed"`
	TotalPots   int64       `json:"totalPots"`
	FirstHandAt time.Time   `json:"firstHandAt"`
	LastResults []PotResult `json:"lastResults,omitempty"`

	SavedAt time.Time `json:"savedAt"`
}

// Snapshot serializes the table for the snapshot store
func (t *Table) Snapshot() ([]byte, error) {
	doc := tableDocument{
		ID:           t.ID,
		Name:         t.Name,
		GameType:     t.GameType,
		MaxPlayers:   t.MaxPlayers,
		IsPrivate:    t.IsPrivate,
		Password:     t.password,
		Stakes:       t.Stakes,
		MinBuyIn:     t.MinBuyIn,
		MaxBuyIn:     t.MaxBuyIn,
		CreatedAt:    t.CreatedAt,
		LastActivity: t.LastActivity,
		Phase:        t.phase,
		HandNumber:   t.handNumber,
		Button:       t.button,
		ButtonSet:    t.buttonSet,
		TurnPos:      t.turnPos,
		CurrentBet:   t.currentBet,
		MinRaise:     t.minRaise,
		Community:    t.community,
		HandsPlayed:  t.handsPlayed,
		TotalPots:    t.totalPots,
		FirstHandAt:  t.firstHandAt,
		LastResults:  t.LastResults,
		SavedAt:      time.Now(),
	}

	if t.deck != nil {
		doc.DeckCards = t.deck.Cards
	}

	for pos, p := range t.seats {
		if p == nil {
			continue
		}
		doc.Seats = append(doc.Seats, seatEntry{
			Position: pos,
			Player: &playerDoc{
				Player:     *p,
				HoleCards:  p.HoleCards,
				PriorState: p.priorState,
			},
		})
	}

	doc.Reservations = t.Reservations()

	for id, amount := range t.forfeited {
		doc.Forfeited = append(doc.Forfeited, forfeitEntry{Key: id, Value: amount})
	}

	return json.Marshal(doc)
}

// RestoreTable rebuilds a table from a stored snapshot
func RestoreTable(data []byte, rand rng.Generator) (*Table, error) {
	var doc tableDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	t := &Table{
		ID:           doc.ID,
		Name:         doc.Name,
		GameType:     doc.GameType,
		MaxPlayers:   doc.MaxPlayers,
		IsPrivate:    doc.IsPrivate,
		Stakes:       doc.Stakes,
		MinBuyIn:     doc.MinBuyIn,
		MaxBuyIn:     doc.MaxBuyIn,
		CreatedAt:    doc.CreatedAt,
		LastActivity: doc.LastActivity,
		password:     doc.Password,
		seats:        make([]*Player, doc.MaxPlayers),
		reservations: make(map[int]*Reservation),
		button:       doc.Button,
		buttonSet:    doc.ButtonSet,
		phase:        doc.Phase,
		handNumber:   doc.HandNumber,
		community:    doc.Community,
		currentBet:   doc.CurrentBet,
		minRaise:     doc.MinRaise,
		turnPos:      doc.TurnPos,
		forfeited:    make(map[string]int64),
		handsPlayed:  doc.HandsPlayed,
		totalPots:    doc.TotalPots,
		firstHandAt:  doc.FirstHandAt,
		LastResults:  doc.LastResults,
		rand:         rand,
		evaluator:    poker.HighHand{},
	}

	if doc.DeckCards != nil {
		d := deck.New(rand)
		d.Cards = doc.DeckCards
		t.deck = d
	}

	for _, entry := range doc.Seats {
		p := entry.Player.Player
		p.HoleCards = entry.Player.HoleCards
		p.priorState = entry.Player.PriorState
		t.seats[entry.Position] = &p
	}

	for _, res := range doc.Reservations {
		t.reservations[res.Position] = res
	}

	for _, entry := range doc.Forfeited {
		t.forfeited[entry.Key] = entry.Value
	}

	return t, nil
}

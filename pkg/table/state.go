package table

import (
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/deck"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/lobby"
)

// PlayerView is one seat as seen by a particular viewer. HoleCards is only
// populated for the viewer's own seat, or for contenders at showdown.
type PlayerView struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Position     int          `json:"position"`
	Stack        int64        `json:"stack"`
	State        string       `json:"state"`
	BetThisRound int64        `json:"betThisRound"`
	IsButton     bool         `json:"isButton"`
	IsTurn       bool         `json:"isTurn"`
	HoleCards    []*deck.Card `json:"holeCards,omitempty"`
}

// StateView is a viewer-scoped snapshot of the table
type StateView struct {
	TableID     string         `json:"tableId"`
	Name        string         `json:"name"`
	GameType    string         `json:"gameType"`
	Phase       Phase          `json:"phase"`
	HandNumber  uint64         `json:"handNumber"`
	MaxPlayers  int            `json:"maxPlayers"`
	Stakes      lobby.Stakes   `json:"stakes"`
	MinBuyIn    int64          `json:"minBuyIn"`
	MaxBuyIn    int64          `json:"maxBuyIn"`
	Community   []*deck.Card   `json:"community"`
	Pot         int64          `json:"pot"`
	CurrentBet  int64          `json:"currentBet"`
	Button      int            `json:"button"`
	CurrentTurn string         `json:"currentTurn,omitempty"`
	Players     []PlayerView   `json:"players"`
	Reserved    []*Reservation `json:"reserved,omitempty"`
	Results     []PotResult    `json:"results,omitempty"`
	Spectators  int            `json:"spectators"`
	Timestamp   time.Time      `json:"timestamp"`
}

// StateView renders the table for one viewer. Pass an empty viewerID for the
// spectator view.
func (t *Table) StateView(viewerID string, spectators int) *StateView {
	view := &StateView{
		TableID:    t.ID,
		Name:       t.Name,
		GameType:   t.GameType,
		Phase:      t.phase,
		HandNumber: t.handNumber,
		MaxPlayers: t.MaxPlayers,
		Stakes:     t.Stakes,
		MinBuyIn:   t.MinBuyIn,
		MaxBuyIn:   t.MaxBuyIn,
		Community:  t.community,
		Pot:        t.Pot(),
		CurrentBet: t.currentBet,
		Button:     t.button,
		Reserved:   t.Reservations(),
		Results:    t.LastResults,
		Spectators: spectators,
		Timestamp:  time.Now(),
	}

	if current, ok := t.CurrentTurn(); ok {
		view.CurrentTurn = current.ID
	}

	showdown := t.phase == PhaseShowdown
	for _, p := range t.Players() {
		pv := PlayerView{
			ID:           p.ID,
			Name:         p.Name,
			Position:     p.Position,
			Stack:        p.Stack,
			State:        p.State,
			BetThisRound: p.BetThisRound,
			IsButton:     p.Position == t.button && t.buttonSet,
			IsTurn:       view.CurrentTurn == p.ID,
		}

		if p.ID == viewerID || (showdown && p.InHand()) {
			pv.HoleCards = p.HoleCards
		}

		view.Players = append(view.Players, pv)
	}

	return view
}

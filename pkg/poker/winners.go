package poker

import (
	"sort"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/deck"
)

// Showdown is one player's cards at showdown
type Showdown struct {
	PlayerID  string
	HoleCards []*deck.Card
}

// Result is one player's evaluated hand, strongest first in the slice
// returned by DetermineWinners
type Result struct {
	PlayerID string     `json:"playerId"`
	Value    *HandValue `json:"value"`
}

// Evaluator determines showdown winners over hole and board cards.
// The game engine treats this as an opaque collaborator.
type Evaluator interface {
	// DetermineWinners returns tiers of players ordered best hand first.
	// Players within a tier have equal hands and split any pot they
	// are both eligible for.
	DetermineWinners(players []Showdown, board []*deck.Card) [][]Result
}

// HighHand is the standard high-hand Evaluator
type HighHand struct{}

// DetermineWinners evaluates each player's best five-card hand and groups
// equal hands into tiers, strongest tier first
func (HighHand) DetermineWinners(players []Showdown, board []*deck.Card) [][]Result {
	results := make([]Result, 0, len(players))
	for _, p := range players {
		cards := make([]*deck.Card, 0, len(p.HoleCards)+len(board))
		cards = append(cards, p.HoleCards...)
		cards = append(cards, board...)

		results = append(results, Result{
			PlayerID: p.PlayerID,
			Value:    Evaluate(cards),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Value.Compare(results[j].Value) > 0
	})

	tiers := make([][]Result, 0, len(results))
	for _, r := range results {
		n := len(tiers)
		if n > 0 && tiers[n-1][0].Value.Compare(r.Value) == 0 {
			tiers[n-1] = append(tiers[n-1], r)
			continue
		}

		tiers = append(tiers, []Result{r})
	}

	return tiers
}

package poker

import (
	"testing"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighHand_DetermineWinners(t *testing.T) {
	board := deck.CardsFromString("Kc,8d,8h,4s,2c")
	tiers := HighHand{}.DetermineWinners([]Showdown{
		{PlayerID: "trips", HoleCards: deck.CardsFromString("8s,3c")},
		{PlayerID: "kings-up", HoleCards: deck.CardsFromString("Kh,Qd")},
		{PlayerID: "ace-kicker", HoleCards: deck.CardsFromString("Ad,5h")},
	}, board)

	require.Len(t, tiers, 3)
	assert.Equal(t, "trips", tiers[0][0].PlayerID)
	assert.Equal(t, ThreeOfAKind, tiers[0][0].Value.Category)
	assert.Equal(t, "kings-up", tiers[1][0].PlayerID)
	assert.Equal(t, "ace-kicker", tiers[2][0].PlayerID)
}

func TestHighHand_DetermineWinners_splitPot(t *testing.T) {
	// both players play the board
	board := deck.CardsFromString("Ac,Kd,Qh,Js,10c")
	tiers := HighHand{}.DetermineWinners([]Showdown{
		{PlayerID: "p1", HoleCards: deck.CardsFromString("2c,3d")},
		{PlayerID: "p2", HoleCards: deck.CardsFromString("2h,3s")},
	}, board)

	require.Len(t, tiers, 1)
	require.Len(t, tiers[0], 2)
	assert.Equal(t, Straight, tiers[0][0].Value.Category)
}

package util

import (
	"fmt"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/rng"
)

var adjectives = []string{
	"Lucky", "Loose", "Tight", "Wild", "Slow", "Fast", "Golden", "Velvet", "Midnight",
	"High", "Deep", "Crooked", "Smoky", "Neon", "Silent", "Rowdy", "Rusty", "Marble",
}

var rooms = []string{
	"River", "Felt", "Button", "Flop", "Turn", "Kicker", "Boat", "Wheel", "Gutshot",
	"Blind", "Stack", "Ante", "Muck", "Cooler", "Runner", "Nut", "Bluff", "Showdown",
}

// RandomTableName returns a display name for tables created without one
func RandomTableName(rand rng.Generator) string {
	return fmt.Sprintf("%s %s", adjectives[rand.Intn(len(adjectives))], rooms[rand.Intn(len(rooms))])
}

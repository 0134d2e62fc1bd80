package deck

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Suit represents a card suit
type Suit string

// suit constants
const (
	Hearts   Suit = "hearts"
	Clubs    Suit = "clubs"
	Diamonds Suit = "diamonds"
	Spades   Suit = "spades"
)

// face cards
const (
	Jack  = 11
	Queen = 12
	King  = 13
	Ace   = 14
)

// Card is an individual playing card
type Card struct {
	Rank int  `json:"rank"`
	Suit Suit `json:"suit"`
}

func (c *Card) String() string {
	var rank string
	switch c.Rank {
	case Jack:
		rank = "J"
	case Queen:
		rank = "Q"
	case King:
		rank = "K"
	case Ace:
		rank = "A"
	default:
		rank = strconv.Itoa(c.Rank)
	}

	var suit string
	switch c.Suit {
	case Clubs:
		suit = "c"
	case Diamonds:
		suit = "d"
	case Hearts:
		suit = "h"
	case Spades:
		suit = "s"
	default:
		panic("unknown suit")
	}

	return rank + suit
}

// Equal returns true if the cards match on suit and rank
func (c *Card) Equal(card *Card) bool {
	return c.Suit == card.Suit && c.Rank == card.Rank
}

var cardRx = regexp.MustCompile(`(?i)^([2-9]|1[0-4]|[jqka])([cdhs])\z`)

// CardFromString returns a Card from a string like "14s" or "As".
// It panics on a bad string, so it's only appropriate for tests and fixtures.
func CardFromString(s string) *Card {
	match := cardRx.FindStringSubmatch(s)
	if match == nil {
		panic(fmt.Sprintf("could not parse card: %s", s))
	}

	var rank int
	switch strings.ToLower(match[1]) {
	case "j":
		rank = Jack
	case "q":
		rank = Queen
	case "k":
		rank = King
	case "a":
		rank = Ace
	default:
		rank, _ = strconv.Atoi(match[1])
	}

	var suit Suit
	switch strings.ToLower(match[2]) {
	case "c":
		suit = Clubs
	case "d":
		suit = Diamonds
	case "h":
		suit = Hearts
	case "s":
		suit = Spades
	}

	return &Card{Rank: rank, Suit: suit}
}

// CardsFromString returns a slice of cards from a comma-separated string
func CardsFromString(s string) []*Card {
	if s == "" {
		return []*Card{}
	}

	parts := strings.Split(s, ",")
	cards := make([]*Card, len(parts))
	for i, part := range parts {
		cards[i] = CardFromString(strings.TrimSpace(part))
	}

	return cards
}

// CardsToString returns a comma-separated string of the cards
func CardsToString(cards []*Card) string {
	parts := make([]string, len(cards))
	for i, card := range cards {
		parts[i] = card.String()
	}

	return strings.Join(parts, ",")
}

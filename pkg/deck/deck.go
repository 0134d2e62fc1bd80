package deck

import (
	"errors"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/rng"
)

// ErrEndOfDeck is returned by Draw() when there are no more cards
var ErrEndOfDeck = errors.New("end of deck reached")

// Deck is a standard 52-card deck
type Deck struct {
	Cards []*Card `json:"cards"`
	rand  rng.Generator
}

// New returns an unshuffled deck. Call Shuffle() before dealing.
func New(rand rng.Generator) *Deck {
	d := &Deck{rand: rand}
	d.buildDeck()
	return d
}

func (d *Deck) buildDeck() {
	cards := make([]*Card, 0, 52)
	for _, suit := range []Suit{Clubs, Diamonds, Hearts, Spades} {
		for rank := 2; rank <= Ace; rank++ {
			cards = append(cards, &Card{
				Rank: rank,
				Suit: suit,
			})
		}
	}

	d.Cards = cards
}

// Shuffle rebuilds and shuffles the deck
func (d *Deck) Shuffle() {
	d.buildDeck()

	for j := len(d.Cards) - 1; j > 0; j-- {
		i := d.rand.Intn(j + 1)
		d.Cards[i], d.Cards[j] = d.Cards[j], d.Cards[i]
	}
}

// Draw will draw the next card
func (d *Deck) Draw() (*Card, error) {
	if len(d.Cards) == 0 {
		return nil, ErrEndOfDeck
	}

	card := d.Cards[0]
	d.Cards = d.Cards[1:]

	return card, nil
}

// MustDraw draws the next card and panics at the end of the deck.
// A 52-card deck always covers a nine-handed hand, so running out mid-hand
// is a programming error, not a runtime condition.
func (d *Deck) MustDraw() *Card {
	card, err := d.Draw()
	if err != nil {
		panic(err)
	}

	return card
}

// CanDraw returns true if there are at least {want} cards left
func (d *Deck) CanDraw(want int) bool {
	return len(d.Cards) >= want
}

// CardsLeft returns the number of cards left in the deck
func (d *Deck) CardsLeft() int {
	return len(d.Cards)
}

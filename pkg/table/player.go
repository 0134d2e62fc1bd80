package table

import (
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/deck"
)

// player lifecycle states
const (
	StateActive       = "ACTIVE"
	StateFolded       = "FOLDED"
	StateAllIn        = "ALL_IN"
	StateSittingOut   = "SITTING_OUT"
	StateDisconnected = "DISCONNECTED"
)

// Player is a seated player. The table owns these; hole cards never leave
// this struct except through the private state view.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Stack    int64  `json:"stack"`
	State    string `json:"state"`

	HoleCards []*deck.Card `json:"-"`

	// BetThisRound is the player's contribution to the current betting round
	BetThisRound int64 `json:"betThisRound"`

	// BetThisHand is the player's total contribution to the hand, used for
	// side pot construction
	BetThisHand int64 `json:"betThisHand"`

	// HasActed clears whenever a raise reopens the round
	HasActed bool `json:"hasActed"`

	// DisconnectedAt starts the reconnect grace period
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`

	// priorState is restored when a disconnected player comes back inside
	// the grace window
	priorState string
}

// InHand returns true if the player still holds cards this hand
func (p *Player) InHand() bool {
	switch p.State {
	case StateActive, StateAllIn:
		return true
	case StateDisconnected:
		return p.priorState == StateActive || p.priorState == StateAllIn
	}

	return false
}

// CanAct returns true if the player can make a betting decision
func (p *Player) CanAct() bool {
	return p.State == StateActive
}

// commit moves chips from the stack into the current bet. The amount is
// capped at the stack; committing the whole stack puts the player all-in.
func (p *Player) commit(amount int64) int64 {
	if amount > p.Stack {
		amount = p.Stack
	}

	p.Stack -= amount
	p.BetThisRound += amount
	p.BetThisHand += amount

	if p.Stack == 0 && p.State == StateActive {
		p.State = StateAllIn
	}

	return amount
}

// newHand resets per-hand bookkeeping. Players without chips sit out.
func (p *Player) newHand() {
	p.HoleCards = nil
	p.BetThisRound = 0
	p.BetThisHand = 0
	p.HasActed = false

	if p.State == StateDisconnected {
		return
	}

	if p.Stack == 0 {
		p.State = StateSittingOut
	} else {
		p.State = StateActive
	}
}

// newRound resets per-round bookkeeping
func (p *Player) newRound() {
	p.BetThisRound = 0
	p.HasActed = false
}

// disconnect marks the player disconnected, remembering the state to restore
// on a timely reconnect
func (p *Player) disconnect(at time.Time) {
	if p.State == StateDisconnected {
		return
	}

	p.priorState = p.State
	p.State = StateDisconnected
	p.DisconnectedAt = &at
}

// reconnect restores the player's pre-disconnect state
func (p *Player) reconnect() {
	if p.State != StateDisconnected {
		return
	}

	p.State = p.priorState
	p.priorState = ""
	p.DisconnectedAt = nil
}

package table

import (
	"fmt"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/deck"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/poker"
)

// Action is one betting decision. Raise amounts are "raise to": the total
// the player's bet for the round becomes.
type Action struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount,omitempty"`
}

// betting action types
const (
	ActionFold  = "fold"
	ActionCheck = "check"
	ActionCall  = "call"
	ActionBet   = "bet"
	ActionRaise = "raise"
)

// HandNumber returns the sequence number of the current or most recent hand
func (t *Table) HandNumber() uint64 {
	return t.handNumber
}

// CurrentBet returns the amount to match this betting round
func (t *Table) CurrentBet() int64 {
	return t.currentBet
}

// Button returns the dealer button position
func (t *Table) Button() int {
	return t.button
}

// Pot returns the total chips committed to the current hand
func (t *Table) Pot() int64 {
	var pot int64
	for _, p := range t.Players() {
		pot += p.BetThisHand
	}
	for _, amount := range t.forfeited {
		pot += amount
	}

	return pot
}

// CurrentTurn returns the player whose action it is
func (t *Table) CurrentTurn() (*Player, bool) {
	if !t.HandInProgress() {
		return nil, false
	}

	p := t.seats[t.turnPos]
	if p == nil || !p.CanAct() {
		return nil, false
	}

	return p, true
}

// CanStartHand returns true if a new hand can be dealt
func (t *Table) CanStartHand() bool {
	return !t.HandInProgress() && t.countEligible() >= 2
}

func (t *Table) countEligible() int {
	n := 0
	for _, p := range t.Players() {
		if p.Stack > 0 && p.State != StateDisconnected {
			n++
		}
	}

	return n
}

// StartHand deals a new hand: moves the button, posts blinds, and deals two
// hole cards to every eligible player. The first button is drawn at random;
// afterwards it moves clockwise. Heads-up, the button posts the small blind
// and acts first pre-flop.
func (t *Table) StartHand() error {
	if t.HandInProgress() {
		return apperror.Validation("a hand is already in progress")
	}

	if t.countEligible() < 2 {
		return apperror.Validation("at least two players with chips are required")
	}

	t.LastResults = nil
	t.forfeited = make(map[string]int64)
	t.community = nil

	for _, p := range t.Players() {
		p.newHand()
	}

	canDeal := func(p *Player) bool { return p.State == StateActive }

	if !t.buttonSet {
		eligible := make([]int, 0, t.MaxPlayers)
		for pos, p := range t.seats {
			if p != nil && canDeal(p) {
				eligible = append(eligible, pos)
			}
		}
		t.button = eligible[t.rand.Intn(len(eligible))]
		t.buttonSet = true
	} else {
		t.button = t.nextSeat(t.button, canDeal)
	}

	t.handNumber++
	t.phase = PhasePreFlop
	t.deck = deck.New(t.rand)
	t.deck.Shuffle()

	// blinds; heads-up the button is the small blind
	headsUp := t.countActive() == 2
	var sbPos, bbPos int
	if headsUp {
		sbPos = t.button
		bbPos = t.nextSeat(t.button, canDeal)
	} else {
		sbPos = t.nextSeat(t.button, canDeal)
		bbPos = t.nextSeat(sbPos, canDeal)
	}

	t.seats[sbPos].commit(t.Stakes.SmallBlind)
	t.seats[bbPos].commit(t.Stakes.BigBlind)
	t.currentBet = t.Stakes.BigBlind
	t.minRaise = t.Stakes.BigBlind

	// two rounds of one card each, starting left of the button
	order := make([]*Player, 0, t.MaxPlayers)
	for i := 1; i <= t.MaxPlayers; i++ {
		if p := t.seats[(t.button+i)%t.MaxPlayers]; p != nil && p.InHand() {
			order = append(order, p)
		}
	}
	for round := 0; round < 2; round++ {
		for _, p := range order {
			p.HoleCards = append(p.HoleCards, t.deck.MustDraw())
		}
	}

	// first to act: heads-up it is the small blind, otherwise left of the
	// big blind
	if headsUp {
		t.turnPos = sbPos
	} else {
		t.turnPos = t.nextSeat(bbPos, func(p *Player) bool { return p.CanAct() })
	}

	// blinds can leave nobody with a decision; run the board out
	if t.turnPos == -1 || !t.seats[t.turnPos].CanAct() {
		t.advancePhase()
	}

	if t.firstHandAt.IsZero() {
		t.firstHandAt = time.Now()
	}
	t.touch()

	return nil
}

func (t *Table) countActive() int {
	n := 0
	for _, p := range t.Players() {
		if p.State == StateActive || p.State == StateAllIn {
			n++
		}
	}

	return n
}

// Act applies one betting decision for the player whose turn it is
func (t *Table) Act(playerID string, action Action) error {
	current, ok := t.CurrentTurn()
	if !ok {
		return apperror.Validation("no action is pending")
	}
	if current.ID != playerID {
		return apperror.Validation("it is not your turn")
	}

	switch action.Type {
	case ActionFold:
		current.State = StateFolded

	case ActionCheck:
		if current.BetThisRound != t.currentBet {
			return apperror.Validation("cannot check facing a bet")
		}

	case ActionCall:
		owed := t.currentBet - current.BetThisRound
		if owed <= 0 {
			return apperror.Validation("there is nothing to call")
		}
		current.commit(owed)

	case ActionBet:
		if t.currentBet != 0 {
			return apperror.Validation("there is already a bet; raise instead")
		}
		if action.Amount <= 0 {
			return apperror.Validation("bet amount is required")
		}
		if action.Amount > current.Stack {
			return apperror.Validation("bet exceeds your stack")
		}
		if action.Amount < t.Stakes.BigBlind && action.Amount < current.Stack {
			return apperror.Validation(fmt.Sprintf("minimum bet is %d", t.Stakes.BigBlind))
		}

		current.commit(action.Amount)
		t.currentBet = current.BetThisRound
		t.minRaise = action.Amount
		t.reopen(current)

	case ActionRaise:
		if t.currentBet == 0 {
			return apperror.Validation("there is nothing to raise; bet instead")
		}

		owed := action.Amount - current.BetThisRound
		if owed <= 0 {
			return apperror.Validation("raise must exceed your current bet")
		}
		if owed > current.Stack {
			return apperror.Validation("raise exceeds your stack")
		}

		fullRaise := action.Amount >= t.currentBet+t.minRaise
		allIn := owed == current.Stack
		if !fullRaise && !allIn {
			return apperror.Validation(fmt.Sprintf("minimum raise is to %d", t.currentBet+t.minRaise))
		}

		current.commit(owed)
		if current.BetThisRound > t.currentBet {
			// a short all-in raise does not reopen the action
			if fullRaise {
				t.minRaise = current.BetThisRound - t.currentBet
				t.reopen(current)
			}
			t.currentBet = current.BetThisRound
		}

	default:
		return apperror.Validation(fmt.Sprintf("unknown action: %s", action.Type))
	}

	current.HasActed = true
	t.touch()
	t.afterAction()

	return nil
}

// AutoAct checks when legal, otherwise folds. Used for action timeouts and
// expired reconnect grace.
func (t *Table) AutoAct(playerID string) (Action, error) {
	current, ok := t.CurrentTurn()
	if !ok || current.ID != playerID {
		return Action{}, apperror.Validation("no action is pending for this player")
	}

	action := Action{Type: ActionFold}
	if current.BetThisRound == t.currentBet {
		action = Action{Type: ActionCheck}
	}

	return action, t.Act(playerID, action)
}

// reopen clears acted flags so remaining players face the new bet
func (t *Table) reopen(raiser *Player) {
	for _, p := range t.Players() {
		if p != raiser && p.CanAct() {
			p.HasActed = false
		}
	}
}

// foldOut folds a player out of the hand, including disconnected players
// whose live state is parked in priorState
func (t *Table) foldOut(p *Player) {
	if p.State == StateDisconnected {
		p.priorState = StateFolded
		return
	}

	p.State = StateFolded
}

func (t *Table) remainingInHand() []*Player {
	var in []*Player
	for _, p := range t.Players() {
		if p.InHand() {
			in = append(in, p)
		}
	}

	return in
}

func (t *Table) countCanAct() int {
	n := 0
	for _, p := range t.Players() {
		if p.CanAct() {
			n++
		}
	}

	return n
}

func (t *Table) roundComplete() bool {
	for _, p := range t.Players() {
		if p.CanAct() && (!p.HasActed || p.BetThisRound != t.currentBet) {
			return false
		}
	}

	return true
}

func (t *Table) afterAction() {
	t.resolveTable(true)
}

// resolveTable settles, advances the street, or moves the turn after any
// event that can end a betting round. wasTurn is true when the event
// consumed the current player's action.
func (t *Table) resolveTable(wasTurn bool) {
	t.resolveDisconnected()

	if len(t.remainingInHand()) <= 1 {
		t.settleFoldWin()
		return
	}

	if t.roundComplete() {
		t.advancePhase()
		return
	}

	if wasTurn {
		t.advanceTurn()
	}
}

// resolveDisconnected auto-folds disconnected players who owe chips to
// continue; ones with a matched bet ride along like all-in players
func (t *Table) resolveDisconnected() {
	for _, p := range t.Players() {
		if p.State == StateDisconnected && p.priorState == StateActive && p.BetThisRound < t.currentBet {
			p.priorState = StateFolded
		}
	}
}

func (t *Table) advanceTurn() {
	next := t.nextSeat(t.turnPos, func(p *Player) bool { return p.CanAct() })
	if next == -1 {
		// nobody can act; the streets run out
		t.advancePhase()
		return
	}

	t.turnPos = next
}

func (t *Table) advancePhase() {
	for _, p := range t.Players() {
		p.newRound()
	}
	t.currentBet = 0
	t.minRaise = t.Stakes.BigBlind

	switch t.phase {
	case PhasePreFlop:
		t.phase = PhaseFlop
		t.dealCommunity(3)
	case PhaseFlop:
		t.phase = PhaseTurn
		t.dealCommunity(1)
	case PhaseTurn:
		t.phase = PhaseRiver
		t.dealCommunity(1)
	case PhaseRiver:
		t.settleShowdown()
		return
	}

	if t.countCanAct() < 2 {
		t.runOut()
		return
	}

	t.turnPos = t.nextSeat(t.button, func(p *Player) bool { return p.CanAct() })
}

func (t *Table) dealCommunity(n int) {
	for i := 0; i < n; i++ {
		t.community = append(t.community, t.deck.MustDraw())
	}
}

// runOut deals the remaining streets when no more betting is possible
func (t *Table) runOut() {
	for t.phase != PhaseRiver {
		switch t.phase {
		case PhaseFlop:
			t.phase = PhaseTurn
		case PhaseTurn:
			t.phase = PhaseRiver
		}
		t.dealCommunity(1)
	}

	t.settleShowdown()
}

// contributions returns every player's total stake in the hand, including
// chips left behind by players who quit mid-hand
func (t *Table) contributions() map[string]int64 {
	m := make(map[string]int64)
	for _, p := range t.Players() {
		if p.BetThisHand > 0 {
			m[p.ID] = p.BetThisHand
		}
	}
	for id, amount := range t.forfeited {
		m[id] += amount
	}

	return m
}

// refundUncalled returns the portion of the top contender's stake nobody
// matched
func (t *Table) refundUncalled(contenders []*Player) {
	contribs := t.contributions()

	var top *Player
	for _, p := range contenders {
		if top == nil || contribs[p.ID] > contribs[top.ID] {
			top = p
		}
	}
	if top == nil {
		return
	}

	var maxOther int64
	for id, amount := range contribs {
		if id != top.ID && amount > maxOther {
			maxOther = amount
		}
	}

	if excess := contribs[top.ID] - maxOther; excess > 0 {
		top.Stack += excess
		top.BetThisHand -= excess
	}
}

// settleFoldWin awards the pot to the last player holding cards
func (t *Table) settleFoldWin() {
	contenders := t.remainingInHand()
	t.refundUncalled(contenders)

	pot := t.Pot()
	var winners []Winner
	if len(contenders) == 1 {
		winner := contenders[0]
		winner.Stack += pot
		winners = append(winners, Winner{PlayerID: winner.ID, Amount: pot})
	}

	t.LastResults = []PotResult{{Amount: pot, Winners: winners}}
	t.finishHand(pot, PhaseFinished)
}

// settleShowdown builds the pots, evaluates the contenders, and pays out.
// Odd chips go to the earliest position left of the button.
func (t *Table) settleShowdown() {
	contenders := t.remainingInHand()
	t.refundUncalled(contenders)

	contribs := t.contributions()
	inHand := make(map[string]bool, len(contenders))
	showdowns := make([]poker.Showdown, 0, len(contenders))
	byID := make(map[string]*Player, len(contenders))
	for _, p := range contenders {
		inHand[p.ID] = true
		byID[p.ID] = p
		showdowns = append(showdowns, poker.Showdown{PlayerID: p.ID, HoleCards: p.HoleCards})
	}

	tiers := t.evaluator.DetermineWinners(showdowns, t.community)
	handName := make(map[string]string, len(contenders))
	for _, tier := range tiers {
		for _, result := range tier {
			handName[result.PlayerID] = result.Value.Category.String()
		}
	}

	pots := buildPots(contribs, inHand)
	results := make([]PotResult, 0, len(pots))
	var total int64

	for _, pot := range pots {
		total += pot.Amount
		eligible := make(map[string]bool, len(pot.Eligible))
		for _, id := range pot.Eligible {
			eligible[id] = true
		}

		var potWinners []string
		for _, tier := range tiers {
			for _, result := range tier {
				if eligible[result.PlayerID] {
					potWinners = append(potWinners, result.PlayerID)
				}
			}
			if len(potWinners) > 0 {
				break
			}
		}

		results = append(results, t.payPot(pot, potWinners, byID, handName))
	}

	t.LastResults = results
	t.finishHand(total, PhaseShowdown)
}

// payPot splits one pot among its winners, ordering odd chips by distance
// from the button
func (t *Table) payPot(pot Pot, winnerIDs []string, byID map[string]*Player, handName map[string]string) PotResult {
	result := PotResult{Amount: pot.Amount}
	if len(winnerIDs) == 0 {
		return result
	}

	// closest to the button's left gets any remainder
	ordered := make([]*Player, 0, len(winnerIDs))
	for _, id := range winnerIDs {
		ordered = append(ordered, byID[id])
	}
	n := t.MaxPlayers
	distance := func(pos int) int { return ((pos - t.button) + n) % n }
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && distance(ordered[j].Position) < distance(ordered[j-1].Position); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	share := pot.Amount / int64(len(ordered))
	remainder := pot.Amount % int64(len(ordered))

	for _, winner := range ordered {
		amount := share
		if remainder > 0 {
			amount++
			remainder--
		}

		winner.Stack += amount
		result.Winners = append(result.Winners, Winner{
			PlayerID: winner.ID,
			Amount:   amount,
			Hand:     handName[winner.ID],
		})
	}

	return result
}

func (t *Table) finishHand(pot int64, phase Phase) {
	t.phase = phase
	t.handsPlayed++
	t.totalPots += pot
	t.currentBet = 0

	// the pot has been paid out; committed stakes are spent
	t.forfeited = make(map[string]int64)
	for _, p := range t.Players() {
		p.BetThisRound = 0
		p.BetThisHand = 0
	}

	t.touch()
}

// Disconnect marks a seated player disconnected, starting their reconnect
// grace. If it was their turn, the action resolves immediately.
func (t *Table) Disconnect(playerID string) (*Player, error) {
	p, ok := t.Player(playerID)
	if !ok {
		return nil, apperror.NotFound("player is not seated")
	}

	wasTurn := false
	if current, ok := t.CurrentTurn(); ok && current.ID == playerID {
		wasTurn = true
	}

	wasLive := t.HandInProgress() && p.InHand()
	p.disconnect(time.Now())
	t.touch()

	if wasLive {
		t.resolveTable(wasTurn)
	}

	return p, nil
}

// Reconnect restores a disconnected player inside the grace window
func (t *Table) Reconnect(playerID string) (*Player, error) {
	p, ok := t.Player(playerID)
	if !ok {
		return nil, apperror.NotFound("player is not seated")
	}

	if p.State != StateDisconnected {
		return p, nil
	}

	p.reconnect()
	t.touch()

	return p, nil
}

// RemoveAfterGrace unseats a player whose reconnect grace expired, folding
// them out of any live hand. The returned player carries the stack to refund.
func (t *Table) RemoveAfterGrace(playerID string) (*Player, error) {
	p, ok := t.Player(playerID)
	if !ok {
		return nil, apperror.NotFound("player is not seated")
	}

	if p.State != StateDisconnected {
		return nil, apperror.Validation("player is connected")
	}

	return t.remove(p), nil
}

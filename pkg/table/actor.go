package table

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/config"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/lobby"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/message"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/session"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/store"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/wallet"
	"github.com/sirupsen/logrus"
)

const (
	mailboxSize    = 256
	persistTimeout = time.Second * 5

	// actionTimeout auto-checks or folds a player who sits on their turn
	actionTimeout = time.Second * 30

	// staleConnectionAfter drops table connections without a heartbeat
	staleConnectionAfter = time.Second * 30
	sweepInterval        = time.Second * 15
)

var errMailboxFull = errors.New("mailbox full")

// Notifier receives listing updates for the directory. Satisfied by
// lobby.Directory.
type Notifier interface {
	CreateListing(listing *lobby.Listing) error
	UpdateListing(listing *lobby.Listing) error
	RemoveListing(tableID string) error
}

// Actor owns one table. A single goroutine serializes every mutation; timers
// deliver their work through the same mailbox, so expirations and client
// messages can never interleave mid-operation.
type Actor struct {
	mailbox chan func()
	done    chan struct{}

	table      *Table
	registry   *session.Registry
	spectators map[string]session.Peer

	store    store.Store
	bankroll wallet.Wallet
	notifier Notifier

	// turnSerial stamps each turn; stale action-timeout timers no-op
	turnSerial uint64

	reservationTTL time.Duration
	reconnectGrace time.Duration
	newHandDelay   time.Duration

	logger logrus.FieldLogger
}

// NewActor starts the run loop for a table
func NewActor(t *Table, st store.Store, bankroll wallet.Wallet, notifier Notifier) *Actor {
	cfg := config.Instance()

	a := &Actor{
		mailbox:        make(chan func(), mailboxSize),
		done:           make(chan struct{}),
		table:          t,
		registry:       session.NewRegistry(),
		spectators:     make(map[string]session.Peer),
		store:          st,
		bankroll:       bankroll,
		notifier:       notifier,
		reservationTTL: cfg.Game.ReservationTTL,
		reconnectGrace: cfg.Game.ReconnectGrace,
		newHandDelay:   cfg.Game.NewHandDelay,
		logger: logrus.WithFields(logrus.Fields{
			"actor":   "table",
			"tableId": t.ID,
		}),
	}

	go a.run()
	return a
}

// ID returns the table id
func (a *Actor) ID() string {
	return a.table.ID
}

func (a *Actor) run() {
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case fn := <-a.mailbox:
			fn()
		case <-sweep.C:
			a.dropSilentPeers(time.Now().Add(-staleConnectionAfter))
		case <-a.done:
			return
		}
	}
}

// dropSilentPeers shuts table connections without a recent heartbeat. A
// seated owner goes through the normal disconnect path, reconnect grace
// included.
func (a *Actor) dropSilentPeers(cutoff time.Time) {
	for _, peer := range a.registry.SilentSince(cutoff) {
		a.logger.WithField("connId", peer.ID()).Info("dropping stale table connection")
		peer.Shut("heartbeat timeout")
		a.disconnectInLoop(peer.ID())
	}
}

// Stop terminates the run loop
func (a *Actor) Stop() {
	close(a.done)
}

func (a *Actor) post(fn func()) error {
	select {
	case a.mailbox <- fn:
		return nil
	case <-a.done:
		return errors.New("table closed")
	default:
		return apperror.TransientIO{Op: "table mailbox", Err: errMailboxFull}
	}
}

// call runs fn on the run loop and waits. Must not be invoked from the run
// loop itself.
func (a *Actor) call(fn func()) error {
	ran := make(chan struct{})
	if err := a.post(func() {
		fn()
		close(ran)
	}); err != nil {
		return err
	}

	select {
	case <-ran:
		return nil
	case <-a.done:
		return errors.New("table closed")
	}
}

// after schedules work back onto the run loop
func (a *Actor) after(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		// the closure may fire after shutdown; post ignores that
		_ = a.post(fn)
	})
}

// persist saves the table snapshot. Mutations are not rolled back on
// failure; the caller surfaces the error and the client retries.
func (a *Actor) persist() error {
	data, err := a.table.Snapshot()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := a.store.Save(ctx, a.table.ID, data); err != nil {
		return apperror.TransientIO{Op: "persist table", Err: err}
	}

	return nil
}

// reportListing pushes the current listing to the directory. A table whose
// listing was reaped while it sat dormant gets relisted.
func (a *Actor) reportListing() {
	if a.notifier == nil {
		return
	}

	listing := a.table.Listing()
	err := a.notifier.UpdateListing(listing)

	var notFound apperror.NotFound
	if errors.As(err, &notFound) {
		err = a.notifier.CreateListing(listing)
	}

	if err != nil {
		a.logger.WithError(err).Warn("could not update directory listing")
	}
}

// broadcastState sends every connected player their own view and every
// spectator the public view
func (a *Actor) broadcastState() {
	a.registry.Each(func(peer session.Peer) {
		view := a.table.StateView(peer.PlayerID(), len(a.spectators))
		peer.Send(message.New(message.TableStateUpdate, view))
	})

	public := a.table.StateView("", len(a.spectators))
	for _, peer := range a.spectators {
		peer.Send(message.New(message.TableStateUpdate, public))
	}
}

func (a *Actor) broadcast(msg *message.Outbound) {
	a.registry.Each(func(peer session.Peer) {
		peer.Send(msg)
	})
	for _, peer := range a.spectators {
		peer.Send(msg)
	}
}

// afterMutation persists, refreshes the directory, and rebroadcasts.
// Returns the persistence error so request handlers can surface it.
func (a *Actor) afterMutation() error {
	err := a.persist()
	if err != nil {
		a.logger.WithError(err).Error("could not persist table snapshot")
	}

	a.reportListing()
	a.broadcastState()
	a.scheduleGameTimers()

	return err
}

// scheduleGameTimers arms the timers the current table state calls for
func (a *Actor) scheduleGameTimers() {
	if current, ok := a.table.CurrentTurn(); ok {
		a.turnSerial++
		serial := a.turnSerial
		playerID := current.ID

		a.after(actionTimeout, func() {
			if a.turnSerial != serial {
				return
			}

			a.logger.WithField("playerId", playerID).Info("action timeout")
			if action, err := a.table.AutoAct(playerID); err == nil {
				a.broadcast(message.New(message.PlayerAction, actionPayload(playerID, action, true)))
				_ = a.afterMutation()
			}
		})
		return
	}

	if a.table.Phase() == PhaseFinished || a.table.Phase() == PhaseShowdown {
		hand := a.table.HandNumber()
		a.after(a.newHandDelay, func() {
			if a.table.HandNumber() != hand {
				return
			}
			a.maybeStartHand()
		})
	}
}

// maybeStartHand deals a new hand if the table can support one
func (a *Actor) maybeStartHand() {
	if !a.table.CanStartHand() {
		return
	}

	if err := a.table.StartHand(); err != nil {
		a.logger.WithError(err).Warn("could not start hand")
		return
	}

	a.broadcast(message.New(message.GameStarted, map[string]interface{}{
		"tableId":    a.table.ID,
		"handNumber": a.table.HandNumber(),
		"button":     a.table.Button(),
	}))

	// hole cards go to each player privately, never in shared state
	for _, p := range a.table.Players() {
		if len(p.HoleCards) == 0 {
			continue
		}
		if peer, ok := a.registry.ByPlayer(p.ID); ok {
			peer.Send(message.New(message.HoleCards, map[string]interface{}{
				"tableId":    a.table.ID,
				"handNumber": a.table.HandNumber(),
				"cards":      p.HoleCards,
			}))
		}
	}

	_ = a.afterMutation()
}

func transitionPayload(playerID, to string) map[string]interface{} {
	return map[string]interface{}{
		"playerId": playerID,
		"to":       to,
	}
}

// Reserve holds a seat for a player. The expiry is delivered through the
// mailbox like any other message.
func (a *Actor) Reserve(playerID string, position int) (*Reservation, error) {
	var res *Reservation
	var err error
	if callErr := a.call(func() {
		res, err = a.reserveInLoop(playerID, position)
	}); callErr != nil {
		return nil, callErr
	}

	return res, err
}

// must run in the run loop
func (a *Actor) reserveInLoop(playerID string, position int) (*Reservation, error) {
	res, err := a.table.Reserve(playerID, position, a.reservationTTL)
	if err != nil {
		return nil, err
	}

	a.broadcast(message.New(message.SeatReservationUpdate, res))

	a.after(a.reservationTTL, func() {
		expired := a.table.ExpireReservations(time.Now())
		if len(expired) == 0 {
			return
		}

		for _, res := range expired {
			a.broadcast(message.New(message.SeatReservationExpired, res))
			a.logger.WithFields(logrus.Fields{
				"playerId": res.PlayerID,
				"position": res.Position,
			}).Info("seat reservation expired")
		}

		if perr := a.persist(); perr != nil {
			a.logger.WithError(perr).Error("could not persist table snapshot")
		}
		a.reportListing()
		a.broadcastState()
	})

	if perr := a.persist(); perr != nil {
		return res, perr
	}

	return res, nil
}

// Join seats a player. The buy-in is debited from their bankroll first; the
// seat is only taken once the debit clears.
func (a *Actor) Join(playerID, name string, position int, buyIn int64, password string) (*Player, error) {
	var player *Player
	var err error
	if callErr := a.call(func() {
		player, err = a.joinInLoop(playerID, name, position, buyIn, password)
	}); callErr != nil {
		return nil, callErr
	}

	return player, err
}

// must run in the run loop
func (a *Actor) joinInLoop(playerID, name string, position int, buyIn int64, password string) (*Player, error) {
	if !a.table.CheckPassword(password) {
		return nil, apperror.Authorization("incorrect table password")
	}

	if buyIn < a.table.MinBuyIn || buyIn > a.table.MaxBuyIn {
		return nil, apperror.Validation("buy-in is outside the table limits")
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := a.bankroll.Debit(ctx, playerID, buyIn); err != nil {
		return nil, err
	}

	player, err := a.table.Sit(playerID, name, position, buyIn)
	if err != nil {
		// seat fell through after the debit; give the chips back
		if cerr := a.bankroll.Credit(ctx, playerID, buyIn); cerr != nil {
			a.logger.WithError(cerr).WithField("playerId", playerID).
				Error("could not refund buy-in after failed join")
		}
		return nil, err
	}

	a.broadcast(message.New(message.PlayerStateTransition, transitionPayload(playerID, player.State)))
	err = a.afterMutation()

	if !a.table.HandInProgress() {
		a.maybeStartHand()
	}

	return player, err
}

// Leave unseats a player and credits their remaining stack back to their
// bankroll. A player still holding live cards cannot leave; they fold first.
func (a *Actor) Leave(playerID string) error {
	var err error
	if callErr := a.call(func() {
		err = a.unseatAndRefund(playerID)
	}); callErr != nil {
		return callErr
	}

	return err
}

// must run in the run loop
func (a *Actor) unseatAndRefund(playerID string) error {
	player, err := a.table.Unseat(playerID)
	if err != nil {
		return err
	}

	return a.refundAndAnnounce(player)
}

// refundAndAnnounce settles a player who has already been unseated: their
// stack goes back to their bankroll and the table learns they left.
// Must run in the run loop.
func (a *Actor) refundAndAnnounce(player *Player) error {
	if player.Stack > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if cerr := a.bankroll.Credit(ctx, player.ID, player.Stack); cerr != nil {
			a.logger.WithError(cerr).WithFields(logrus.Fields{
				"playerId": player.ID,
				"amount":   player.Stack,
			}).Error("could not credit stack on leave")
		}
	}

	a.broadcast(message.New(message.PlayerStateTransition, transitionPayload(player.ID, "LEFT")))
	return a.afterMutation()
}

// Act applies a betting action for the player whose turn it is
func (a *Actor) Act(playerID string, action Action) error {
	var err error
	if callErr := a.call(func() {
		err = a.actInLoop(playerID, action)
	}); callErr != nil {
		return callErr
	}

	return err
}

// must run in the run loop
func (a *Actor) actInLoop(playerID string, action Action) error {
	if err := a.table.Act(playerID, action); err != nil {
		return err
	}

	a.broadcast(message.New(message.PlayerAction, actionPayload(playerID, action, false)))
	return a.afterMutation()
}

func actionPayload(playerID string, action Action, timedOut bool) map[string]interface{} {
	payload := map[string]interface{}{
		"playerId": playerID,
		"action":   action.Type,
		"amount":   action.Amount,
	}
	if timedOut {
		payload["timedOut"] = true
	}

	return payload
}

// State returns the viewer-scoped table state
func (a *Actor) State(viewerID string) (*StateView, error) {
	var view *StateView
	if err := a.call(func() {
		view = a.table.StateView(viewerID, len(a.spectators))
	}); err != nil {
		return nil, err
	}

	return view, nil
}

// Listing returns the directory listing for this table
func (a *Actor) Listing() (*lobby.Listing, error) {
	var listing *lobby.Listing
	if err := a.call(func() {
		listing = a.table.Listing()
	}); err != nil {
		return nil, err
	}

	return listing, nil
}

// Empty reports whether the table has no players, reservations, or viewers
func (a *Actor) Empty() (bool, error) {
	var empty bool
	if err := a.call(func() {
		empty = a.table.Empty() &&
			len(a.table.Reservations()) == 0 &&
			a.registry.Len() == 0 &&
			len(a.spectators) == 0
	}); err != nil {
		return false, err
	}

	return empty, nil
}

// Connect attaches a websocket peer. A seated player reconnecting inside
// their grace window picks up where they left off.
func (a *Actor) Connect(peer session.Peer) error {
	return a.post(func() {
		a.registry.Add(peer)

		playerID := peer.PlayerID()
		if p, ok := a.table.Player(playerID); ok && p.State == StateDisconnected {
			if _, err := a.table.Reconnect(playerID); err == nil {
				a.logger.WithField("playerId", playerID).Info("player reconnected")
				a.broadcast(message.New(message.PlayerStateTransition, transitionPayload(playerID, p.State)))
			}
		}

		// catch the new connection up, including their own hole cards
		if p, ok := a.table.Player(playerID); ok && len(p.HoleCards) > 0 {
			peer.Send(message.New(message.HoleCards, map[string]interface{}{
				"tableId":    a.table.ID,
				"handNumber": a.table.HandNumber(),
				"cards":      p.HoleCards,
			}))
		}
		peer.Send(message.New(message.TableStateUpdate, a.table.StateView(playerID, len(a.spectators))))
	})
}

// Disconnect detaches a peer. A seated player gets a grace window to come
// back before they are folded out and unseated.
func (a *Actor) Disconnect(connID string) error {
	return a.post(func() {
		a.disconnectInLoop(connID)
	})
}

// must run in the run loop
func (a *Actor) disconnectInLoop(connID string) {
	peer, ok := a.registry.Get(connID)
	if !ok {
		if _, spectating := a.spectators[connID]; spectating {
			delete(a.spectators, connID)
			a.broadcastSpectators()
		}
		return
	}

	playerID := peer.PlayerID()
	a.registry.Remove(connID)

	if _, seated := a.table.Player(playerID); !seated {
		return
	}

	p, err := a.table.Disconnect(playerID)
	if err != nil {
		return
	}

	// stamp the timer with this disconnect; a reconnect followed by a new
	// disconnect restarts the grace, and the old timer must not fire
	var since time.Time
	if p.DisconnectedAt != nil {
		since = *p.DisconnectedAt
	}

	a.logger.WithField("playerId", playerID).Info("player disconnected, grace period started")
	a.broadcast(message.New(message.PlayerStateTransition, transitionPayload(playerID, StateDisconnected)))
	_ = a.afterMutation()

	a.after(a.reconnectGrace, func() {
		p, ok := a.table.Player(playerID)
		if !ok || p.State != StateDisconnected {
			return
		}
		if p.DisconnectedAt == nil || !p.DisconnectedAt.Equal(since) {
			return
		}

		a.logger.WithField("playerId", playerID).Info("reconnect grace expired, removing player")
		removed, err := a.table.RemoveAfterGrace(playerID)
		if err != nil {
			a.logger.WithError(err).Warn("could not remove player after grace")
			return
		}

		if err := a.refundAndAnnounce(removed); err != nil {
			a.logger.WithError(err).Warn("could not settle removed player")
		}
	})
}

// HandleMessage dispatches one inbound envelope from a table connection
func (a *Actor) HandleMessage(peer session.Peer, env *message.Envelope) error {
	return a.post(func() {
		a.registry.Heartbeat(peer.ID())

		switch env.Type {
		case message.Heartbeat:

		case message.JoinTable:
			var payload struct {
				Name     string `json:"name"`
				Position int    `json:"position"`
				BuyIn    int64  `json:"buyIn"`
				Password string `json:"password"`
			}
			payload.Position = -1
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				peer.Send(message.NewError(apperror.Protocol("could not parse join request"), env.Type))
				return
			}

			player, err := a.joinInLoop(peer.PlayerID(), payload.Name, payload.Position, payload.BuyIn, payload.Password)
			if err != nil {
				peer.Send(message.NewError(err, env.Type))
				return
			}

			peer.Send(message.New(message.JoinTableSuccess, map[string]interface{}{
				"tableId":  a.table.ID,
				"position": player.Position,
				"stack":    player.Stack,
			}))

		case message.LeaveTable:
			if err := a.unseatAndRefund(peer.PlayerID()); err != nil {
				peer.Send(message.NewError(err, env.Type))
			}

		case message.StandUp:
			// stand up keeps the connection as a spectator
			if err := a.unseatAndRefund(peer.PlayerID()); err != nil {
				peer.Send(message.NewError(err, env.Type))
				return
			}
			a.registry.Remove(peer.ID())
			a.spectators[peer.ID()] = peer
			a.broadcastSpectators()

		case message.PlayerAction:
			var action Action
			if err := json.Unmarshal(env.Payload, &action); err != nil {
				peer.Send(message.NewError(apperror.Protocol("could not parse action"), env.Type))
				return
			}

			if err := a.actInLoop(peer.PlayerID(), action); err != nil {
				peer.Send(message.NewError(err, env.Type))
			}

		case message.ReserveSeat:
			var payload struct {
				SeatIndex int `json:"seatIndex"`
			}
			payload.SeatIndex = -1
			if len(env.Payload) > 0 {
				if err := json.Unmarshal(env.Payload, &payload); err != nil {
					peer.Send(message.NewError(apperror.Protocol("could not parse reservation"), env.Type))
					return
				}
			}

			res, err := a.reserveInLoop(peer.PlayerID(), payload.SeatIndex)
			if err != nil {
				peer.Send(message.NewError(err, env.Type))
				return
			}

			peer.Send(message.New(message.SeatReservationUpdate, res))

		case message.SpectateTable:
			a.registry.Remove(peer.ID())
			a.spectators[peer.ID()] = peer
			peer.Send(message.New(message.TableStateUpdate, a.table.StateView("", len(a.spectators))))
			a.broadcastSpectators()

		case message.LeaveSpectator:
			delete(a.spectators, peer.ID())
			a.broadcastSpectators()

		case message.ChatMessage:
			var payload struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.Message == "" {
				peer.Send(message.NewError(apperror.Protocol("could not parse chat message"), env.Type))
				return
			}

			a.broadcast(message.New(message.Chat, map[string]interface{}{
				"playerId": peer.PlayerID(),
				"message":  payload.Message,
			}))

		case message.RequestStateSync:
			view := a.table.StateView(peer.PlayerID(), len(a.spectators))
			peer.Send(message.New(message.TableStateUpdate, view))

		default:
			peer.Send(message.NewError(apperror.Protocol("unknown message type"), env.Type))
		}
	})
}

func (a *Actor) broadcastSpectators() {
	a.broadcast(message.New(message.SpectatorCountUpdate, map[string]interface{}{
		"tableId":    a.table.ID,
		"spectators": len(a.spectators),
	}))
}

package session

import (
	"fmt"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Peer is the actor-facing side of a connected client. Actors only queue
// outbound envelopes and ask who the peer claims to be; the websocket pumps
// live in the HTTP layer.
type Peer interface {
	// ID is the ephemeral connection id
	ID() string

	// PlayerID is the authenticated player bound to the connection
	PlayerID() string

	// Send queues an envelope without blocking. It reports false when the
	// peer's buffer is full; the message is dropped and the client is
	// expected to request a state sync.
	Send(msg *message.Outbound) bool

	// Shut asks the write pump to close the connection
	Shut(reason string)
}

// Client is a player connected over a websocket
type Client struct {
	// Conn is the underlying websocket connection
	Conn *websocket.Conn

	// CloseError contains the reason why the connection was closed
	CloseError error

	id       string
	playerID string
	send     chan *message.Outbound
	close    chan string
}

// NewClient returns a client bound to the authenticated player
func NewClient(conn *websocket.Conn, playerID string) *Client {
	return &Client{
		Conn:     conn,
		id:       uuid.New().String(),
		playerID: playerID,
		send:     make(chan *message.Outbound, 256),
		close:    make(chan string, 1),
	}
}

// ID returns the ephemeral connection id
func (c *Client) ID() string {
	return c.id
}

// PlayerID returns the player bound to the connection
func (c *Client) PlayerID() string {
	return c.playerID
}

// Send queues a message for the write pump. Returns false if the client
// cannot keep up.
func (c *Client) Send(msg *message.Outbound) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SendChan returns the channel drained by the write pump
func (c *Client) SendChan() <-chan *message.Outbound {
	return c.send
}

// Shut asks the write pump to close the connection with a reason
func (c *Client) Shut(reason string) {
	select {
	case c.close <- reason:
	default:
	}
}

// CloseChan returns the channel signaling a server-initiated close
func (c *Client) CloseChan() <-chan string {
	return c.close
}

// String returns a traceable identifier for the connection
func (c *Client) String() string {
	return fmt.Sprintf("%s:%s", c.playerID, c.id[:8])
}

package mux

import (
	"net/http"
	"time"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/message"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = time.Second * 10
const pongWait = time.Second * 60
const pingPeriod = pongWait * 9 / 10

// wsEndpoint is an actor a websocket connection can be attached to. Both the
// table actors and the lobby directory satisfy it.
type wsEndpoint interface {
	Connect(peer session.Peer) error
	Disconnect(connID string) error
	HandleMessage(peer session.Peer, env *message.Envelope) error
}

var upgrader = &websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (m *Mux) getTableUUIDWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.serveWS(w, r, tableActor(r))
	}
}

func (m *Mux) getLobbyWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.serveWS(w, r, m.directory)
	}
}

func (m *Mux) serveWS(w http.ResponseWriter, r *http.Request, endpoint wsEndpoint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Error("could not upgrade connection")
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	client := session.NewClient(conn, playerID(r))

	if err := endpoint.Connect(client); err != nil {
		logrus.WithError(err).WithField("client", client.String()).Error("could not attach connection")
		_ = conn.Close()
		return
	}

	waitForCloseFrame := make(chan bool)
	defer func() {
		if err := endpoint.Disconnect(client.ID()); err != nil {
			logrus.WithError(err).WithField("client", client.String()).Warn("could not detach connection")
		}
		_ = conn.Close()
		close(waitForCloseFrame)
	}()

	go m.webSocketWriteLoop(client, waitForCloseFrame)
	m.webSocketReadLoop(client, endpoint)
}

func (m *Mux) webSocketWriteLoop(client *session.Client, waitForCloseFrame chan bool) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.Conn.Close()
	}()

	for {
		select {
		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case reason := <-client.CloseChan():
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = client.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))

			// wait for the close frame
			select {
			case <-waitForCloseFrame:
			case <-time.After(time.Second):
			}
			return
		case msg, ok := <-client.SendChan():
			if !ok {
				return
			}

			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(msg); err != nil {
				logrus.WithError(err).WithField("client", client.String()).Error("could not write message")
				return
			}
		}
	}
}

func (m *Mux) webSocketReadLoop(client *session.Client, endpoint wsEndpoint) {
	for {
		var env message.Envelope
		if err := client.Conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithError(err).WithField("client", client.String()).Debug("connection closed unexpectedly")
			}

			client.CloseError = err
			return
		}

		if err := endpoint.HandleMessage(client, &env); err != nil {
			logrus.WithError(err).WithField("client", client.String()).Warn("could not deliver message")
		}
	}
}

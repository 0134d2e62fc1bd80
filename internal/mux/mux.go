package mux

import (
	"context"
	"net/http"
	"strings"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/auth"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/lobby"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/table"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/wallet"
	gmux "github.com/gorilla/mux"
)

type ctxKey int

const (
	ctxPlayerKey ctxKey = iota
	ctxTableKey
)

// Mux handles HTTP requests
type Mux struct {
	*gmux.Router
	version   string
	manager   *table.Manager
	directory *lobby.Directory
	bankroll  wallet.Wallet

	// store for testing purposes
	authRouter *gmux.Router
}

// NewMux returns a new HTTP mux over the table manager and lobby directory
func NewMux(version string, manager *table.Manager, directory *lobby.Directory, bankroll wallet.Wallet) *Mux {
	this := &Mux{
		Router:    gmux.NewRouter(),
		version:   version,
		manager:   manager,
		directory: directory,
		bankroll:  bankroll,
	}

	this.authRouter = this.Router.NewRoute().Subrouter()
	this.authRouter.Use(this.authMiddleware)

	// unauthorized endpoints
	{
		r := this.Router
		r.Methods(http.MethodGet).Path("/health").Handler(this.getHealth())
		r.Methods(http.MethodPost).Path("/auth/guest").Handler(this.postAuthGuest())
	}

	// requires bearer authorization
	{
		r := this.authRouter

		r.Methods(http.MethodGet).Path("/tables").Handler(this.getTables())
		r.Methods(http.MethodPost).Path("/tables").Handler(this.postTables())

		r.Methods(http.MethodGet).Path("/players/{id}/table").Handler(this.getPlayerIDTable())
		r.Methods(http.MethodGet).Path("/wallet").Handler(this.getWallet())

		r.Methods(http.MethodGet).Path("/lobby/ws").Handler(this.getLobbyWS())

		tr := r.PathPrefix("/tables/{uuid:(?i)[a-f0-9]{8}(?:-[a-f0-9]{4}){3}-[a-f0-9]{12}}").Subrouter()
		tr.Use(this.tableMiddleware)

		tr.Methods(http.MethodGet).Path("").Handler(this.getTableUUID())
		tr.Methods(http.MethodDelete).Path("").Handler(this.deleteTableUUID())
		tr.Methods(http.MethodPost).Path("/join").Handler(this.postTableUUIDJoin())
		tr.Methods(http.MethodPost).Path("/leave").Handler(this.postTableUUIDLeave())
		tr.Methods(http.MethodPost).Path("/action").Handler(this.postTableUUIDAction())
		tr.Methods(http.MethodPost).Path("/reservations").Handler(this.postTableUUIDReservations())
		tr.Methods(http.MethodGet).Path("/ws").Handler(this.getTableUUIDWS())
	}

	return this
}

// authMiddleware binds the authenticated player id to the request context.
// Websocket clients cannot set headers, so access_token is also accepted.
func (m *Mux) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.FormValue("access_token")
		if token == "" {
			authHeader := strings.Split(r.Header.Get("Authorization"), " ")
			if len(authHeader) != 2 || strings.ToLower(authHeader[0]) != "bearer" {
				writeJSONError(w, http.StatusUnauthorized, nil)
				return
			}

			token = authHeader[1]
		}

		playerID, err := auth.Verify(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, nil)
			return
		}

		newCtx := context.WithValue(r.Context(), ctxPlayerKey, playerID)
		next.ServeHTTP(w, r.WithContext(newCtx))
	})
}

// tableMiddleware resolves the table actor for {uuid} routes, restoring it
// from the snapshot store if needed
func (m *Mux) tableMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := m.manager.Get(strings.ToLower(gmux.Vars(r)["uuid"]))
		if err != nil {
			writeAppError(w, err)
			return
		}

		newCtx := context.WithValue(r.Context(), ctxTableKey, actor)
		next.ServeHTTP(w, r.WithContext(newCtx))
	})
}

func playerID(r *http.Request) string {
	return r.Context().Value(ctxPlayerKey).(string)
}

func tableActor(r *http.Request) *table.Actor {
	return r.Context().Value(ctxTableKey).(*table.Actor)
}

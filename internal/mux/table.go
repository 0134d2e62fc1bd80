package mux

import (
	"net/http"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/table"
)

func (m *Mux) postTables() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var opts table.Options
		if !decodeRequest(w, r, &opts) {
			return
		}

		actor, err := m.manager.Create(opts)
		if err != nil {
			writeAppError(w, err)
			return
		}

		listing, err := actor.Listing()
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, listing)
	}
}

func (m *Mux) getTableUUID() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := tableActor(r).State(playerID(r))
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

func (m *Mux) deleteTableUUID() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.manager.Close(tableActor(r).ID()); err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{Status: "OK"})
	}
}

func (m *Mux) postTableUUIDJoin() http.HandlerFunc {
	type payload struct {
		Name     string `json:"name"`
		Position int    `json:"position"`
		BuyIn    int64  `json:"buyIn"`
		Password string `json:"password"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		p := payload{Position: -1}
		if !decodeRequest(w, r, &p) {
			return
		}

		player, err := tableActor(r).Join(playerID(r), p.Name, p.Position, p.BuyIn, p.Password)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, player)
	}
}

func (m *Mux) postTableUUIDLeave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := tableActor(r).Leave(playerID(r)); err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{Status: "OK"})
	}
}

func (m *Mux) postTableUUIDAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var action table.Action
		if !decodeRequest(w, r, &action) {
			return
		}

		actor := tableActor(r)
		if err := actor.Act(playerID(r), action); err != nil {
			writeAppError(w, err)
			return
		}

		view, err := actor.State(playerID(r))
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

func (m *Mux) postTableUUIDReservations() http.HandlerFunc {
	type payload struct {
		Position int `json:"position"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		p := payload{Position: -1}
		if r.ContentLength > 0 && !decodeRequest(w, r, &p) {
			return
		}

		res, err := tableActor(r).Reserve(playerID(r), p.Position)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, res)
	}
}

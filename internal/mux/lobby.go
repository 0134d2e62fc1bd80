package mux

import (
	"net/http"
	"strconv"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/internal/auth"
	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/lobby"
	gmux "github.com/gorilla/mux"
	"github.com/google/uuid"
)

func (m *Mux) postAuthGuest() http.HandlerFunc {
	type payload struct {
		Name string `json:"name"`
	}

	type response struct {
		PlayerID string `json:"playerId"`
		Name     string `json:"name"`
		Token    string `json:"token"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if !decodeRequest(w, r, &p) {
			return
		}

		id := uuid.New().String()
		token, err := auth.Sign(id)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}

		writeJSON(w, http.StatusCreated, response{
			PlayerID: id,
			Name:     p.Name,
			Token:    token,
		})
	}
}

func (m *Mux) getTables() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := queryFromRequest(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}

		result, err := m.directory.Query(query)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func (m *Mux) getPlayerIDTable() http.HandlerFunc {
	type response struct {
		PlayerID string `json:"playerId"`
		TableID  string `json:"tableId"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id := gmux.Vars(r)["id"]

		tableID, err := m.directory.PlayerLocation(id)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, response{PlayerID: id, TableID: tableID})
	}
}

func (m *Mux) getWallet() http.HandlerFunc {
	type response struct {
		PlayerID string `json:"playerId"`
		Balance  int64  `json:"balance"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id := playerID(r)

		balance, err := m.bankroll.Balance(r.Context(), id)
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, response{PlayerID: id, Balance: balance})
	}
}

// queryFromRequest builds a directory query from the request's query string
func queryFromRequest(r *http.Request) (lobby.Query, error) {
	q := lobby.Query{
		SortBy: r.FormValue("sort"),
		Cursor: r.FormValue("cursor"),
		Filters: lobby.Filters{
			GameType: r.FormValue("gameType"),
			Status:   r.FormValue("status"),
		},
	}

	var err error
	if q.Filters.HideFull, err = boolParam(r, "hideFull"); err != nil {
		return q, err
	}
	if q.Filters.HidePrivate, err = boolParam(r, "hidePrivate"); err != nil {
		return q, err
	}
	if q.Filters.MinBigBlind, err = int64Param(r, "minBigBlind"); err != nil {
		return q, err
	}
	if q.Filters.MaxBigBlind, err = int64Param(r, "maxBigBlind"); err != nil {
		return q, err
	}

	limit, err := int64Param(r, "limit")
	if err != nil {
		return q, err
	}
	q.Limit = int(limit)

	return q, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	val := r.FormValue(name)
	if val == "" {
		return false, nil
	}

	return strconv.ParseBool(val)
}

func int64Param(r *http.Request, name string) (int64, error) {
	val := r.FormValue(name)
	if val == "" {
		return 0, nil
	}

	return strconv.ParseInt(val, 10, 64)
}

package mux

import "net/http"

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`

	ActiveTables      int    `json:"activeTables"`
	TotalPlayers      int    `json:"totalPlayers"`
	Subscribers       int    `json:"subscribers"`
	Sequence          uint64 `json:"sequence"`
	BroadcastsSent    uint64 `json:"broadcastsSent"`
	BroadcastFailures uint64 `json:"broadcastFailures"`
	UptimeSeconds     int64  `json:"uptimeSeconds"`
}

func (m *Mux) getHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health, err := m.directory.Health()
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, healthResponse{
			Status:            "OK",
			Version:           m.version,
			ActiveTables:      health.ActiveTables,
			TotalPlayers:      health.TotalPlayers,
			Subscribers:       health.Subscribers,
			Sequence:          health.Sequence,
			BroadcastsSent:    health.BroadcastsSent,
			BroadcastFailures: health.BroadcastFailures,
			UptimeSeconds:     health.UptimeSeconds,
		})
	}
}

package table

import "time"

// Reservation holds a seat for a player while they complete their buy-in.
// Expired reservations free the seat.
type Reservation struct {
	PlayerID   string    `json:"playerId"`
	Position   int       `json:"position"`
	ReservedAt time.Time `json:"reservedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired returns true once the hold has lapsed
func (r *Reservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

package message

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format exchanged with web clients. Payload stays raw
// on the inbound side so each actor can decode only the types it handles.
type Envelope struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	SequenceID uint64          `json:"sequenceId,omitempty"`
}

// Outbound is an envelope whose payload has not been serialized yet
type Outbound struct {
	Type       string      `json:"type"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	SequenceID uint64      `json:"sequenceId,omitempty"`
}

// table actor inbound message types
const (
	JoinTable        = "join_table"
	LeaveTable       = "leave_table"
	PlayerAction     = "player_action"
	SpectateTable    = "spectate_table"
	LeaveSpectator   = "leave_spectator"
	ReserveSeat      = "reserve_seat"
	StandUp          = "stand_up"
	Heartbeat        = "heartbeat"
	ChatMessage      = "chat_message"
	RequestStateSync = "request_state_sync"
)

// table actor outbound message types
const (
	JoinTableSuccess       = "join_table_success"
	TableStateUpdate       = "table_state_update"
	GameStarted            = "game_started"
	HoleCards              = "hole_cards"
	PlayerStateTransition  = "player_state_transition"
	SeatReservationUpdate  = "seat_reservation_update"
	SeatReservationExpired = "seat_reservation_expired"
	SpectatorCountUpdate   = "spectator_count_update"
	Chat                   = "chat"
	Error                  = "error"
)

// directory inbound message types
const (
	SetFilters    = "set_filters"
	GetTables     = "get_tables"
	GetTableStats = "get_table_stats"
)

// directory outbound message types
const (
	LobbyState       = "lobby_state"
	TablesUpdate     = "tables_update"
	TableDeltaUpdate = "table_delta_update"
	TableCreated     = "table_created"
	TableUpdated     = "table_updated"
	TableRemoved     = "table_removed"
	TableStats       = "table_stats"
)

// New returns an outbound envelope stamped with the current time
func New(msgType string, payload interface{}) *Outbound {
	return &Outbound{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewSequenced returns an outbound envelope carrying a broadcast sequence number
func NewSequenced(msgType string, payload interface{}, seq uint64) *Outbound {
	out := New(msgType, payload)
	out.SequenceID = seq
	return out
}

// ErrorPayload is the payload of an error envelope
type ErrorPayload struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// NewError returns an error envelope safe to show the offending connection
func NewError(err error, ctx string) *Outbound {
	return New(Error, &ErrorPayload{
		Message: err.Error(),
		Context: ctx,
	})
}

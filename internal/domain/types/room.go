package types

import "time"

// RoomRecord tracks the encryption state of a room. Encrypted never goes back
// to false once set.
type RoomRecord struct {
	RoomID    RoomID    `json:"room_id"`
	Encrypted bool      `json:"encrypted"`
	Algorithm string    `json:"algorithm"`
	EnabledAt time.Time `json:"enabled_at"`
}

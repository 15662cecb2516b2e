package types

import "time"

// Direction records which side initiated a pairwise session.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// PreKeyBootstrap holds the handshake parameters an initiator repeats on every
// prekey message until the peer has replied.
type PreKeyBootstrap struct {
	IdentityKey  X25519Public `json:"identity_key"`
	BaseKey      X25519Public `json:"base_key"`
	OneTimeKeyID PrekeyID     `json:"one_time_key_id"`
	OneTimeKey   X25519Public `json:"one_time_key"`
}

// PairwiseSession is one Double Ratchet session with a remote device.
//
// Ratchet is an opaque blob produced by the ratchet package. Sessions are
// never deleted automatically; a desync only sets NeedsReset.
type PairwiseSession struct {
	SessionID       SessionID        `json:"session_id"`
	LocalDeviceID   DeviceID         `json:"local_device_id"`
	RemoteUserID    UserID           `json:"remote_user_id"`
	RemoteDeviceID  DeviceID         `json:"remote_device_id"`
	RemoteIdentity  DeviceIdentity   `json:"remote_identity"`
	Direction       Direction        `json:"direction"`
	Ratchet         []byte           `json:"ratchet"`
	Bootstrap       *PreKeyBootstrap `json:"bootstrap,omitempty"`
	ReceivedMessage bool             `json:"received_message"`
	NeedsReset      bool             `json:"needs_reset,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	LastUsedAt      time.Time        `json:"last_used_at"`
}

// Remote returns the address of the remote device.
func (s PairwiseSession) Remote() DeviceKey {
	return DeviceKey{UserID: s.RemoteUserID, DeviceID: s.RemoteDeviceID}
}

// Recency is the timestamp used to order sessions for selection.
func (s PairwiseSession) Recency() time.Time {
	if s.LastUsedAt.After(s.CreatedAt) {
		return s.LastUsedAt
	}
	return s.CreatedAt
}

package types

// UserID identifies an account on the federation, e.g. "@alice:example.org".
type UserID string

// String returns the string form of the user id.
func (u UserID) String() string { return string(u) }

// DeviceID identifies one device of a user.
type DeviceID string

// String returns the string form of the device id.
func (d DeviceID) String() string { return string(d) }

// RoomID identifies a room.
type RoomID string

// String returns the string form of the room id.
func (r RoomID) String() string { return string(r) }

// SessionID identifies a pairwise or group session.
type SessionID string

// String returns the string form of the session id.
func (s SessionID) String() string { return string(s) }

// PrekeyID uniquely identifies a one-time or fallback prekey.
type PrekeyID string

// String returns the string form of the prekey id.
func (id PrekeyID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// DeviceKey addresses a single device of a single user.
type DeviceKey struct {
	UserID   UserID   `json:"user_id"`
	DeviceID DeviceID `json:"device_id"`
}

// String returns "user|device", suitable as a map key.
func (k DeviceKey) String() string { return string(k.UserID) + "|" + string(k.DeviceID) }

package types

import "time"

// RotationReason explains why an outbound group session was replaced.
type RotationReason string

const (
	RotationMembershipChange  RotationReason = "membership_change"
	RotationThresholdExceeded RotationReason = "threshold_exceeded"
	RotationManual            RotationReason = "manual"
)

// Valid reports whether r is one of the known reasons.
func (r RotationReason) Valid() bool {
	switch r {
	case RotationMembershipChange, RotationThresholdExceeded, RotationManual:
		return true
	}
	return false
}

// SharedDevice records a device that received an outbound session key and
// the index the key was exported at.
type SharedDevice struct {
	Device DeviceIdentity `json:"device"`
	Index  uint32         `json:"index"`
}

// OutboundGroupSession is the current encrypting session of a room.
//
// Ratchet is the opaque group ratchet blob; its counter is MessageIndex, the
// index the next message will carry.
type OutboundGroupSession struct {
	SessionID    SessionID               `json:"session_id"`
	RoomID       RoomID                  `json:"room_id"`
	Ratchet      []byte                  `json:"ratchet"`
	SigningKey   Ed25519Private          `json:"signing_key"`
	MessageIndex uint32                  `json:"message_index"`
	MessageCount uint32                  `json:"message_count"`
	CreatedAt    time.Time               `json:"created_at"`
	SharedWith   map[string]SharedDevice `json:"shared_with"`
	Rotated      bool                    `json:"rotated,omitempty"`
}

// SharedWithDevice reports whether the key went to dev already.
func (s OutboundGroupSession) SharedWithDevice(dev DeviceKey) bool {
	_, ok := s.SharedWith[dev.String()]
	return ok
}

// InboundGroupSession decrypts one sender's messages in one room.
//
// Initial is the ratchet at FirstKnownIndex and is never advanced; Latest is
// the furthest ratchet reached so far.
type InboundGroupSession struct {
	SessionID       SessionID      `json:"session_id"`
	RoomID          RoomID         `json:"room_id"`
	Sender          DeviceIdentity `json:"sender"`
	SigningKey      Ed25519Public  `json:"signing_key"`
	Initial         []byte         `json:"initial"`
	Latest          []byte         `json:"latest"`
	FirstKnownIndex uint32         `json:"first_known_index"`
	ImportedAt      time.Time      `json:"imported_at"`
}

// GroupCiphertext is the output of a group encrypt.
type GroupCiphertext struct {
	SessionID    SessionID `json:"session_id"`
	MessageIndex uint32    `json:"message_index"`
	Ciphertext   []byte    `json:"ciphertext"`
}

// GroupPlaintext is the output of a group decrypt.
type GroupPlaintext struct {
	Plaintext    []byte         `json:"plaintext"`
	Sender       DeviceIdentity `json:"sender"`
	MessageIndex uint32         `json:"message_index"`
}

// KeyShareResult reports what a key share produced.
type KeyShareResult struct {
	SessionID SessionID          `json:"session_id"`
	Shares    []OutboundKeyShare `json:"shares"`
	// Withheld devices were excluded by trust policy.
	Withheld []DeviceIdentity `json:"withheld,omitempty"`
	// Missing devices have no pairwise session and no claimed prekey.
	Missing []DeviceIdentity `json:"missing,omitempty"`
	// Departed devices held the previous key and were dropped from the
	// recipients, which forced a rotation.
	Departed []DeviceIdentity `json:"departed,omitempty"`
}

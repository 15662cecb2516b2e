package types

import "time"

// OneTimePrekey is the public half of a prekey, as published for key claims.
// Signature is the owner's Ed25519 signature over Curve25519.
type OneTimePrekey struct {
	KeyID      PrekeyID     `json:"key_id"`
	Curve25519 X25519Public `json:"curve25519"`
	Signature  []byte       `json:"signature"`
	Published  bool         `json:"published"`
	Fallback   bool         `json:"fallback,omitempty"`
}

// PrekeyRecord is the full prekey kept by the local keyring.
//
// A consumed one-time prekey keeps its record as a tombstone with the private
// half wiped, so a replayed prekey message is told apart from an unknown id.
// A retired fallback key is no longer published but is still accepted until
// the next fallback rotation wipes it.
type PrekeyRecord struct {
	OneTimePrekey
	Priv       X25519Private `json:"priv"`
	Consumed   bool          `json:"consumed,omitempty"`
	Retired    bool          `json:"retired,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	ConsumedAt *time.Time    `json:"consumed_at,omitempty"`
}

// Usable reports whether the private half may still establish a session.
func (r PrekeyRecord) Usable() bool { return !r.Consumed }

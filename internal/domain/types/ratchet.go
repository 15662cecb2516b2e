package types

// RatchetHeader accompanies each Double Ratchet ciphertext.
type RatchetHeader struct {
	DHPub X25519Public `json:"dh"`
	PN    uint32       `json:"pn"`
	N     uint32       `json:"n"`
}

// SkippedKey is a cached message key for a message not yet received.
type SkippedKey struct {
	DHPub X25519Public `json:"dh"`
	N     uint32       `json:"n"`
	Key   []byte       `json:"key"`
}

// RatchetState holds Double Ratchet state for one pairwise session.
//
// Skipped is ordered oldest first; eviction drops from the front.
type RatchetState struct {
	RootKey []byte        `json:"root_key"`
	DHPriv  X25519Private `json:"dh_priv"`
	DHPub   X25519Public  `json:"dh_pub"`

	PeerDHPub X25519Public `json:"peer_dh_pub"`

	SendCK []byte `json:"send_ck,omitempty"`
	RecvCK []byte `json:"recv_ck,omitempty"`

	Ns uint32 `json:"ns"`
	Nr uint32 `json:"nr"`
	PN uint32 `json:"pn"`

	Skipped []SkippedKey `json:"skipped,omitempty"`
}

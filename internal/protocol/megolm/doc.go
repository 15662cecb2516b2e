// Package megolm implements the group hash ratchet used for room messages.
//
// A Ratchet is four 32-byte parts R0..R3 and a counter. Advancing by one
// rehashes the parts that change at that counter value; AdvanceTo skips
// ahead in at most 4*255 hash steps. The ratchet is forward-only: a holder of
// the state at index i can derive every key from i onward and none before.
//
// Each message key is derived with HKDF-SHA256 from the full ratchet and
// used with ChaCha20-Poly1305. Messages are signed with the session's Ed25519
// key, whose public half is the session id.
//
// Session keys are exported as
//
//	version(1) | index(4) | R0..R3(128) | signing public key(32) | signature(64)
//
// and travel base64-encoded inside pairwise-encrypted key shares.
package megolm

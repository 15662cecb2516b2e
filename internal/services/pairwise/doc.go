// Package pairwise runs one Double Ratchet session lifecycle per remote
// device.
//
// Sessions are bootstrapped with the x3dh handshake over a signed one-time
// (or fallback) prekey. Until the peer replies, an outbound session keeps
// sending prekey messages (type 0) so the peer can establish its side from
// any of them; afterwards plain ratchet messages (type 1) are sent.
//
// Every encrypt and decrypt works on a copy of the persisted ratchet state
// and commits it only after the store accepted the advanced copy.
package pairwise

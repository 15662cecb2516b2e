// Package x3dh implements the triple Diffie-Hellman handshake that bootstraps
// a Double Ratchet session between two devices.
//
// # Overview
//
// The responder publishes a self-signed device identity and a pool of signed
// one-time prekeys. The initiator claims one prekey and derives a 32-byte
// shared secret without the responder being online.
//
// # Flows
//
// Initiator:
//  1. Verify the responder's device self-signature and the prekey signature.
//  2. Generate an ephemeral X25519 base key.
//  3. Compute DH(IKa, OTKb), DH(EKa, IKb), DH(EKa, OTKb).
//  4. HKDF over the concatenated DH transcript to produce the shared secret.
//
// Responder:
//  1. Receive the prekey message (initiator IK, base key EK, prekey id).
//  2. Look up and consume the one-time prekey.
//  3. Compute the mirrored DH set and derive the identical secret.
//
// # Errors
//
// ErrBadDevice and ErrBadPrekey are returned when a signature fails
// verification. Low-order points surface as ErrBadPoint.
//
// # Security notes
//
// The one-time prekey doubles as the responder's first ratchet key, so the
// handshake only mixes in key material that is deleted after first use.
package x3dh

// Package crypto exposes the primitives the session layer is built on.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie-Hellman (GenerateX25519,
//     DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Device self-signatures and prekey signatures (SignDevice,
//     VerifyDevice, SignPrekey, VerifyPrekey)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//   - Unpadded base64 helpers (B64, UnB64)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and wipe them with util/memzero when practical.
package crypto

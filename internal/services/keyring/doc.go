// Package keyring owns the local device identity and its prekey pool.
//
// It generates the X25519 and Ed25519 identity pairs exactly once, signs
// one-time and fallback prekeys, and tracks their publication and
// consumption. Consumed one-time prekeys stay behind as wiped tombstones so
// a replayed prekey message is reported as such.
package keyring

// Package store provides persistence for the session layer's state.
//
// Storage engines implement the small KV interface: an in-memory map, one
// file per record on disk, Redis, or PostgreSQL. SealedKV wraps any of them
// and encrypts every value at rest with a passphrase-derived key.
//
// On top of KV the package implements the typed domain stores, serialising
// records as JSON under the fixed key layout:
//
//	identity
//	prekeys/{keyId}
//	pairwise_sessions/{userId}/{deviceId}/{sessionId}
//	group_outbound/{roomId}
//	group_inbound/{roomId}/{sessionId}
//	trust/{userId}/{deviceId}
//	devices/{userId}/{deviceId}
//	rooms/{roomId}
//
// Path segments are URL-path-escaped so ids may contain '/'.
package store

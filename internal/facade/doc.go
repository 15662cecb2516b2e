// Package facade is the single entry point of the crypto core.
//
// A Facade composes the keyring, pairwise sessions, group sessions and the
// trust registry for one local device. Its methods take and return the wire
// structures a transport exchanges; the facade itself never performs a
// network call.
//
// There is no plaintext fallback: a room event that cannot be decrypted is
// returned with Undecryptable set together with the error, and renders as
// UndecryptablePlaceholder.
package facade

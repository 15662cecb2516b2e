// Package group manages per-room group ratchet sessions.
//
// Each encrypted room has at most one outbound session used for sending. Its
// key is exported at the current index and wrapped for every eligible device
// over pairwise sessions. Inbound sessions, one per (room, session id),
// decrypt any message at or after the index they were imported at, in any
// order.
//
// Rotation never deletes anything: the replaced outbound session is only
// marked, and the local device keeps an inbound copy of every session it
// created so its own history stays readable.
package group

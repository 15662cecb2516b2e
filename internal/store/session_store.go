package store

import (
	"context"

	"roomcrypt/internal/domain"
)

const sessionsRoot = "pairwise_sessions"

// SessionKVStore persists pairwise sessions per remote device.
type SessionKVStore struct {
	kv KV
}

// NewSessionKVStore returns a SessionKVStore over kv.
func NewSessionKVStore(kv KV) *SessionKVStore { return &SessionKVStore{kv: kv} }

func sessionKey(remote domain.DeviceKey, id domain.SessionID) string {
	return Key(sessionsRoot, string(remote.UserID), string(remote.DeviceID), string(id))
}

func (s *SessionKVStore) SaveSession(ctx context.Context, session domain.PairwiseSession) error {
	return putJSON(ctx, s.kv, sessionKey(session.Remote(), session.SessionID), session)
}

func (s *SessionKVStore) LoadSession(
	ctx context.Context,
	remote domain.DeviceKey,
	id domain.SessionID,
) (domain.PairwiseSession, bool, error) {
	return getJSON[domain.PairwiseSession](ctx, s.kv, sessionKey(remote, id))
}

// ListSessions returns every session with remote, unordered.
func (s *SessionKVStore) ListSessions(ctx context.Context, remote domain.DeviceKey) ([]domain.PairwiseSession, error) {
	return listJSON[domain.PairwiseSession](ctx, s.kv,
		Prefix(sessionsRoot, string(remote.UserID), string(remote.DeviceID)))
}

// DeleteSessions removes every session with remote. It backs manual reset.
func (s *SessionKVStore) DeleteSessions(ctx context.Context, remote domain.DeviceKey) error {
	keys, err := s.kv.List(ctx, Prefix(sessionsRoot, string(remote.UserID), string(remote.DeviceID)))
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

var _ domain.SessionStore = (*SessionKVStore)(nil)

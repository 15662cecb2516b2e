package store

import (
	"context"

	"roomcrypt/internal/domain"
)

const (
	outboundRoot = "group_outbound"
	inboundRoot  = "group_inbound"
)

// GroupKVStore persists outbound sessions per room and inbound sessions per
// (room, session id).
type GroupKVStore struct {
	kv KV
}

// NewGroupKVStore returns a GroupKVStore over kv.
func NewGroupKVStore(kv KV) *GroupKVStore { return &GroupKVStore{kv: kv} }

func (s *GroupKVStore) SaveOutbound(ctx context.Context, session domain.OutboundGroupSession) error {
	return putJSON(ctx, s.kv, Key(outboundRoot, string(session.RoomID)), session)
}

func (s *GroupKVStore) LoadOutbound(ctx context.Context, room domain.RoomID) (domain.OutboundGroupSession, bool, error) {
	return getJSON[domain.OutboundGroupSession](ctx, s.kv, Key(outboundRoot, string(room)))
}

func (s *GroupKVStore) ListOutbound(ctx context.Context) ([]domain.OutboundGroupSession, error) {
	return listJSON[domain.OutboundGroupSession](ctx, s.kv, Prefix(outboundRoot))
}

func (s *GroupKVStore) SaveInbound(ctx context.Context, session domain.InboundGroupSession) error {
	return putJSON(ctx, s.kv, Key(inboundRoot, string(session.RoomID), string(session.SessionID)), session)
}

func (s *GroupKVStore) LoadInbound(
	ctx context.Context,
	room domain.RoomID,
	id domain.SessionID,
) (domain.InboundGroupSession, bool, error) {
	return getJSON[domain.InboundGroupSession](ctx, s.kv, Key(inboundRoot, string(room), string(id)))
}

var _ domain.GroupSessionStore = (*GroupKVStore)(nil)

package store

import (
	"context"

	"roomcrypt/internal/domain"
)

const roomsRoot = "rooms"

// RoomKVStore persists per-room encryption state.
type RoomKVStore struct {
	kv KV
}

func NewRoomKVStore(kv KV) *RoomKVStore { return &RoomKVStore{kv: kv} }

func (s *RoomKVStore) SaveRoom(ctx context.Context, room domain.RoomRecord) error {
	return putJSON(ctx, s.kv, Key(roomsRoot, string(room.RoomID)), room)
}

func (s *RoomKVStore) LoadRoom(ctx context.Context, room domain.RoomID) (domain.RoomRecord, bool, error) {
	return getJSON[domain.RoomRecord](ctx, s.kv, Key(roomsRoot, string(room)))
}

var _ domain.RoomStore = (*RoomKVStore)(nil)

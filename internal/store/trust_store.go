package store

import (
	"context"

	"roomcrypt/internal/domain"
)

const trustRoot = "trust"

// TrustKVStore persists device trust records.
type TrustKVStore struct {
	kv KV
}

func NewTrustKVStore(kv KV) *TrustKVStore { return &TrustKVStore{kv: kv} }

func (s *TrustKVStore) SaveTrust(ctx context.Context, rec domain.TrustRecord) error {
	return putJSON(ctx, s.kv, Key(trustRoot, string(rec.UserID), string(rec.DeviceID)), rec)
}

func (s *TrustKVStore) LoadTrust(ctx context.Context, dev domain.DeviceKey) (domain.TrustRecord, bool, error) {
	return getJSON[domain.TrustRecord](ctx, s.kv, Key(trustRoot, string(dev.UserID), string(dev.DeviceID)))
}

var _ domain.TrustStore = (*TrustKVStore)(nil)

package store

import (
	"context"

	"roomcrypt/internal/domain"
)

const prekeysRoot = "prekeys"

// PrekeyKVStore persists one prekey record per key id.
type PrekeyKVStore struct {
	kv KV
}

// NewPrekeyKVStore returns a PrekeyKVStore over kv.
func NewPrekeyKVStore(kv KV) *PrekeyKVStore { return &PrekeyKVStore{kv: kv} }

func (s *PrekeyKVStore) SavePrekeys(ctx context.Context, records []domain.PrekeyRecord) error {
	for _, rec := range records {
		if err := s.SavePrekey(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *PrekeyKVStore) SavePrekey(ctx context.Context, rec domain.PrekeyRecord) error {
	return putJSON(ctx, s.kv, Key(prekeysRoot, string(rec.KeyID)), rec)
}

func (s *PrekeyKVStore) LoadPrekey(ctx context.Context, id domain.PrekeyID) (domain.PrekeyRecord, bool, error) {
	return getJSON[domain.PrekeyRecord](ctx, s.kv, Key(prekeysRoot, string(id)))
}

func (s *PrekeyKVStore) ListPrekeys(ctx context.Context) ([]domain.PrekeyRecord, error) {
	return listJSON[domain.PrekeyRecord](ctx, s.kv, Prefix(prekeysRoot))
}

var _ domain.PrekeyStore = (*PrekeyKVStore)(nil)

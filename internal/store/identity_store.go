package store

import (
	"context"

	"roomcrypt/internal/domain"
)

const identityKey = "identity"

// IdentityKVStore persists the local identity under the "identity" key.
type IdentityKVStore struct {
	kv KV
}

// NewIdentityKVStore returns an IdentityKVStore over kv.
func NewIdentityKVStore(kv KV) *IdentityKVStore { return &IdentityKVStore{kv: kv} }

// SaveIdentity writes the identity record.
func (s *IdentityKVStore) SaveIdentity(ctx context.Context, id domain.Identity) error {
	return putJSON(ctx, s.kv, identityKey, id)
}

// LoadIdentity reads the identity record; ok is false before the first save.
func (s *IdentityKVStore) LoadIdentity(ctx context.Context) (domain.Identity, bool, error) {
	return getJSON[domain.Identity](ctx, s.kv, identityKey)
}

// Compile-time assertion that IdentityKVStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityKVStore)(nil)

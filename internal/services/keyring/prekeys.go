package keyring

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
	"roomcrypt/internal/util/memzero"
	cryptoerrors "roomcrypt/pkg/errors"
)

// GeneratePrekeys creates count signed one-time prekeys and persists them
// unpublished.
func (s *Service) GeneratePrekeys(ctx context.Context, count int) ([]domain.OneTimePrekey, error) {
	const op = "keyring.GeneratePrekeys"
	if count <= 0 {
		return nil, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op,
			fmt.Sprintf("count must be positive, got %d", count))
	}
	id, err := s.LocalIdentity(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]domain.PrekeyRecord, 0, count)
	for i := 0; i < count; i++ {
		rec, err := s.newPrekey(id, false)
		if err != nil {
			return nil, cryptoerrors.Wrap(cryptoerrors.KindKeyGeneration, op, err)
		}
		records = append(records, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ps.SavePrekeys(ctx, records); err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Debug("prekeys generated", "count", count)
	return publics(records), nil
}

// GenerateFallbackKey creates a new fallback prekey. The previous fallback key
// is retired (still accepted, no longer published) and the one before it is
// wiped.
func (s *Service) GenerateFallbackKey(ctx context.Context) (domain.OneTimePrekey, error) {
	const op = "keyring.GenerateFallbackKey"
	id, err := s.LocalIdentity(ctx)
	if err != nil {
		return domain.OneTimePrekey{}, err
	}
	rec, err := s.newPrekey(id, true)
	if err != nil {
		return domain.OneTimePrekey{}, cryptoerrors.Wrap(cryptoerrors.KindKeyGeneration, op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.ps.ListPrekeys(ctx)
	if err != nil {
		return domain.OneTimePrekey{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	changed := []domain.PrekeyRecord{rec}
	for _, old := range all {
		old := old
		if !old.Fallback || old.Consumed {
			continue
		}
		if old.Retired {
			s.tombstone(&old)
		} else {
			old.Retired = true
		}
		changed = append(changed, old)
	}
	if err := s.ps.SavePrekeys(ctx, changed); err != nil {
		return domain.OneTimePrekey{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Info("fallback key rotated", "key_id", rec.KeyID)
	return rec.OneTimePrekey, nil
}

// UnpublishedPrekeys lists usable prekeys that have not been uploaded yet.
func (s *Service) UnpublishedPrekeys(ctx context.Context) ([]domain.OneTimePrekey, error) {
	all, err := s.ps.ListPrekeys(ctx)
	if err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, "keyring.UnpublishedPrekeys", err)
	}
	var out []domain.PrekeyRecord
	for _, rec := range all {
		if rec.Usable() && !rec.Retired && !rec.Published {
			out = append(out, rec)
		}
	}
	return publics(out), nil
}

// MarkPrekeysPublished records that the transport uploaded ids.
func (s *Service) MarkPrekeysPublished(ctx context.Context, ids []domain.PrekeyID) error {
	const op = "keyring.MarkPrekeysPublished"
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make([]domain.PrekeyRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := s.ps.LoadPrekey(ctx, id)
		if err != nil {
			return cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
		}
		if !ok {
			return cryptoerrors.New(cryptoerrors.KindPrekeyNotFound, op, "unknown prekey "+string(id))
		}
		rec.Published = true
		changed = append(changed, rec)
	}
	if err := s.ps.SavePrekeys(ctx, changed); err != nil {
		return cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	return nil
}

// LookupPrekey returns a usable prekey record. A tombstone yields
// PrekeyAlreadyConsumed, an unknown id PrekeyNotFound.
func (s *Service) LookupPrekey(ctx context.Context, id domain.PrekeyID) (domain.PrekeyRecord, error) {
	const op = "keyring.LookupPrekey"
	rec, ok, err := s.ps.LoadPrekey(ctx, id)
	if err != nil {
		return domain.PrekeyRecord{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if !ok {
		return domain.PrekeyRecord{}, cryptoerrors.New(cryptoerrors.KindPrekeyNotFound, op, "unknown prekey "+string(id))
	}
	if !rec.Usable() {
		return domain.PrekeyRecord{}, cryptoerrors.New(cryptoerrors.KindPrekeyAlreadyConsumed, op, "prekey "+string(id)+" already used")
	}
	return rec, nil
}

// MarkPrekeyConsumed wipes a one-time prekey after it established a session.
// Unknown and already-consumed ids fail with PrekeyNotFound. Fallback keys are
// never consumed.
func (s *Service) MarkPrekeyConsumed(ctx context.Context, id domain.PrekeyID) error {
	const op = "keyring.MarkPrekeyConsumed"
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.ps.LoadPrekey(ctx, id)
	if err != nil {
		return cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if !ok || rec.Consumed {
		return cryptoerrors.New(cryptoerrors.KindPrekeyNotFound, op, "no usable prekey "+string(id))
	}
	if rec.Fallback {
		return nil
	}
	s.tombstone(&rec)
	if err := s.ps.SavePrekeys(ctx, []domain.PrekeyRecord{rec}); err != nil {
		return cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Debug("prekey consumed", "key_id", id)
	return nil
}

func (s *Service) newPrekey(id domain.Identity, fallback bool) (domain.PrekeyRecord, error) {
	priv, pub, err := crypto.GenerateX25519From(s.rand)
	if err != nil {
		return domain.PrekeyRecord{}, err
	}
	keyID := domain.PrekeyID(uuid.NewString())
	return domain.PrekeyRecord{
		OneTimePrekey: domain.OneTimePrekey{
			KeyID:      keyID,
			Curve25519: pub,
			Signature:  crypto.SignPrekey(id.EdPriv, keyID, pub),
			Fallback:   fallback,
		},
		Priv:      priv,
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *Service) tombstone(rec *domain.PrekeyRecord) {
	memzero.Zero(rec.Priv[:])
	now := s.now().UTC()
	rec.Consumed = true
	rec.ConsumedAt = &now
}

func publics(records []domain.PrekeyRecord) []domain.OneTimePrekey {
	out := make([]domain.OneTimePrekey, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.OneTimePrekey)
	}
	return out
}

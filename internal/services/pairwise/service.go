package pairwise

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
	"roomcrypt/internal/protocol/ratchet"
	"roomcrypt/internal/protocol/x3dh"
	"roomcrypt/internal/util/keylock"
	"roomcrypt/internal/util/memzero"
	cryptoerrors "roomcrypt/pkg/errors"
)

// Service manages pairwise sessions with remote devices.
//
// All operations on sessions with the same remote device are serialised, so
// a ratchet never advances twice from the same persisted state.
type Service struct {
	kr    domain.IdentityKeyring
	store domain.SessionStore
	log   *slog.Logger
	locks keylock.Map
	now   func() time.Time
}

// New constructs a pairwise Service.
func New(kr domain.IdentityKeyring, store domain.SessionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		kr:    kr,
		store: store,
		log:   logger.With("component", "pairwise"),
		now:   time.Now,
	}
}

// EstablishOutbound runs the handshake against remote's claimed prekey and
// persists the new session.
func (s *Service) EstablishOutbound(
	ctx context.Context,
	remote domain.DeviceIdentity,
	prekey domain.OneTimePrekey,
) (domain.PairwiseSession, error) {
	defer s.locks.Lock(remote.Key().String())()
	return s.establishOutbound(ctx, remote, prekey)
}

func (s *Service) establishOutbound(
	ctx context.Context,
	remote domain.DeviceIdentity,
	prekey domain.OneTimePrekey,
) (domain.PairwiseSession, error) {
	const op = "pairwise.EstablishOutbound"
	local, err := s.kr.LocalIdentity(ctx)
	if err != nil {
		return domain.PairwiseSession{}, err
	}

	// 1) Verify remote keys and derive the shared secret.
	res, err := x3dh.Initiate(local, remote, prekey)
	if err != nil {
		return domain.PairwiseSession{}, cryptoerrors.Wrapf(cryptoerrors.KindHandshake, op, err,
			"handshake with %s", remote.Key())
	}
	defer memzero.Zero(res.SharedSecret)
	defer memzero.Zero(res.BaseKeyPriv[:])

	// 2) Seed the ratchet; the prekey doubles as the responder's first ratchet key.
	st, err := ratchet.InitAsInitiator(res.SharedSecret, prekey.Curve25519)
	if err != nil {
		return domain.PairwiseSession{}, cryptoerrors.Wrap(cryptoerrors.KindHandshake, op, err)
	}
	blob, err := ratchet.Marshal(st)
	ratchet.Wipe(&st)
	if err != nil {
		return domain.PairwiseSession{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}

	// 3) Persist with the bootstrap parameters echoed until the peer replies.
	now := s.now().UTC()
	sess := domain.PairwiseSession{
		SessionID:      res.SessionID,
		LocalDeviceID:  local.DeviceID,
		RemoteUserID:   remote.UserID,
		RemoteDeviceID: remote.DeviceID,
		RemoteIdentity: remote,
		Direction:      domain.DirectionOutbound,
		Ratchet:        blob,
		Bootstrap: &domain.PreKeyBootstrap{
			IdentityKey:  local.XPub,
			BaseKey:      res.BaseKey,
			OneTimeKeyID: prekey.KeyID,
			OneTimeKey:   prekey.Curve25519,
		},
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return domain.PairwiseSession{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Info("pairwise session created", "remote", remote.Key().String(),
		"session_id", sess.SessionID, "direction", sess.Direction)
	return sess, nil
}

// EstablishInbound creates the responder side of a session from a prekey
// message and consumes the one-time prekey it used. The message itself is not
// decrypted; pass it to Decrypt afterwards.
func (s *Service) EstablishInbound(
	ctx context.Context,
	remote domain.DeviceIdentity,
	msg domain.PreKeyMessage,
) (domain.PairwiseSession, error) {
	const op = "pairwise.EstablishInbound"
	defer s.locks.Lock(remote.Key().String())()

	sess, st, err := s.prepareInbound(ctx, remote, msg)
	if err != nil {
		return domain.PairwiseSession{}, err
	}
	defer ratchet.Wipe(&st)
	if err := s.consumePrekey(ctx, msg.OneTimeKeyID); err != nil {
		return domain.PairwiseSession{}, err
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return domain.PairwiseSession{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Info("pairwise session created", "remote", remote.Key().String(),
		"session_id", sess.SessionID, "direction", sess.Direction)
	return sess, nil
}

// prepareInbound verifies msg against remote and derives the responder
// state without touching any store.
func (s *Service) prepareInbound(
	ctx context.Context,
	remote domain.DeviceIdentity,
	msg domain.PreKeyMessage,
) (domain.PairwiseSession, domain.RatchetState, error) {
	const op = "pairwise.EstablishInbound"
	if !crypto.VerifyDevice(remote) {
		return domain.PairwiseSession{}, domain.RatchetState{}, cryptoerrors.New(cryptoerrors.KindHandshake, op,
			"device signature of "+remote.Key().String()+" does not verify")
	}
	if msg.IdentityKey != remote.Curve25519 {
		return domain.PairwiseSession{}, domain.RatchetState{}, cryptoerrors.New(cryptoerrors.KindHandshake, op,
			"prekey message identity key does not belong to "+remote.Key().String())
	}

	local, err := s.kr.LocalIdentity(ctx)
	if err != nil {
		return domain.PairwiseSession{}, domain.RatchetState{}, err
	}
	rec, err := s.kr.LookupPrekey(ctx, msg.OneTimeKeyID)
	if err != nil {
		return domain.PairwiseSession{}, domain.RatchetState{}, err
	}
	if rec.Curve25519 != msg.OneTimeKey {
		return domain.PairwiseSession{}, domain.RatchetState{}, cryptoerrors.New(cryptoerrors.KindHandshake, op,
			"prekey "+string(msg.OneTimeKeyID)+" does not match its id")
	}

	secret, err := x3dh.Respond(local, rec.Priv, msg.IdentityKey, msg.BaseKey)
	if err != nil {
		return domain.PairwiseSession{}, domain.RatchetState{}, cryptoerrors.Wrap(cryptoerrors.KindHandshake, op, err)
	}
	st := ratchet.InitAsResponder(secret, rec.Priv, rec.Curve25519)
	memzero.Zero(secret)
	blob, err := ratchet.Marshal(st)
	if err != nil {
		return domain.PairwiseSession{}, domain.RatchetState{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}

	now := s.now().UTC()
	return domain.PairwiseSession{
		SessionID:      x3dh.SessionID(msg.IdentityKey, msg.BaseKey, msg.OneTimeKey),
		LocalDeviceID:  local.DeviceID,
		RemoteUserID:   remote.UserID,
		RemoteDeviceID: remote.DeviceID,
		RemoteIdentity: remote,
		Direction:      domain.DirectionInbound,
		Ratchet:        blob,
		CreatedAt:      now,
		LastUsedAt:     now,
	}, st, nil
}

// consumePrekey reports a prekey consumed by a concurrent handshake as
// already consumed rather than unknown.
func (s *Service) consumePrekey(ctx context.Context, id domain.PrekeyID) error {
	err := s.kr.MarkPrekeyConsumed(ctx, id)
	if cryptoerrors.KindOf(err) == cryptoerrors.KindPrekeyNotFound {
		return cryptoerrors.Wrap(cryptoerrors.KindPrekeyAlreadyConsumed, "pairwise.EstablishInbound", err)
	}
	return err
}

// Sessions lists every session with remote, most recently used first.
func (s *Service) Sessions(ctx context.Context, remote domain.DeviceKey) ([]domain.PairwiseSession, error) {
	sessions, err := s.store.ListSessions(ctx, remote)
	if err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, "pairwise.Sessions", err)
	}
	sortByRecency(sessions)
	return sessions, nil
}

// Current returns the most recently used session with remote that is not
// flagged for reset.
func (s *Service) Current(ctx context.Context, remote domain.DeviceKey) (domain.PairwiseSession, bool, error) {
	sessions, err := s.Sessions(ctx, remote)
	if err != nil {
		return domain.PairwiseSession{}, false, err
	}
	for _, sess := range sessions {
		if !sess.NeedsReset {
			return sess, true, nil
		}
	}
	return domain.PairwiseSession{}, false, nil
}

// HasSession reports whether a usable session with remote exists.
func (s *Service) HasSession(ctx context.Context, remote domain.DeviceKey) (bool, error) {
	_, ok, err := s.Current(ctx, remote)
	return ok, err
}

// Reset drops every session with remote. The next EncryptTo needs a freshly
// claimed prekey.
func (s *Service) Reset(ctx context.Context, remote domain.DeviceKey) error {
	defer s.locks.Lock(remote.String())()
	if err := s.store.DeleteSessions(ctx, remote); err != nil {
		return cryptoerrors.Wrap(cryptoerrors.KindPersistence, "pairwise.Reset", err)
	}
	s.log.Warn("pairwise sessions reset", "remote", remote.String())
	return nil
}

func sortByRecency(sessions []domain.PairwiseSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		ri, rj := sessions[i].Recency(), sessions[j].Recency()
		if !ri.Equal(rj) {
			return ri.After(rj)
		}
		return sessions[i].SessionID < sessions[j].SessionID
	})
}

// Compile-time assertion that Service implements domain.PairwiseSessions.
var _ domain.PairwiseSessions = (*Service)(nil)

package group

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
	"roomcrypt/internal/protocol/megolm"
	"roomcrypt/internal/util/keylock"
	cryptoerrors "roomcrypt/pkg/errors"
)

const (
	// DefaultRotationPeriod is the age at which an outbound session is replaced.
	DefaultRotationPeriod = 7 * 24 * time.Hour
	// DefaultRotationMessages is the message count at which an outbound
	// session is replaced.
	DefaultRotationMessages = 100

	shareParallelism = 8
)

// Config tunes rotation and key sharing.
type Config struct {
	RotationPeriod   time.Duration
	RotationMessages uint32
	Policy           domain.SharePolicy
}

func (c Config) withDefaults() Config {
	if c.RotationPeriod <= 0 {
		c.RotationPeriod = DefaultRotationPeriod
	}
	if c.RotationMessages == 0 {
		c.RotationMessages = DefaultRotationMessages
	}
	return c
}

// Service is the group session manager.
type Service struct {
	kr       domain.IdentityKeyring
	pairwise domain.PairwiseSessions
	trust    domain.TrustRegistry
	store    domain.GroupSessionStore
	cfg      Config
	log      *slog.Logger

	rooms    keylock.Map // outbound session per room
	inbounds keylock.Map // inbound session per room and session id

	// issued holds, per outbound session, the next index this process may
	// hand out. It outlives any persisted state so a rolled back store
	// cannot make an index repeat.
	issuedMu sync.Mutex
	issued   map[domain.SessionID]uint32

	now func() time.Time
}

// New constructs a group Service.
func New(
	kr domain.IdentityKeyring,
	pairwise domain.PairwiseSessions,
	trust domain.TrustRegistry,
	store domain.GroupSessionStore,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		kr:       kr,
		pairwise: pairwise,
		trust:    trust,
		store:    store,
		cfg:      cfg.withDefaults(),
		log:      logger.With("component", "group"),
		issued:   make(map[domain.SessionID]uint32),
		now:      time.Now,
	}
}

// GetOrCreateOutbound returns the room's outbound session, creating a new
// one when there is none, the current one was rotated, or it reached its
// age or message threshold.
func (s *Service) GetOrCreateOutbound(ctx context.Context, room domain.RoomID) (domain.OutboundGroupSession, error) {
	defer s.rooms.Lock(string(room))()
	return s.getOrCreate(ctx, room, true)
}

func (s *Service) getOrCreate(ctx context.Context, room domain.RoomID, checkThreshold bool) (domain.OutboundGroupSession, error) {
	const op = "group.GetOrCreateOutbound"
	sess, ok, err := s.store.LoadOutbound(ctx, room)
	if err != nil {
		return domain.OutboundGroupSession{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if ok && !sess.Rotated {
		if !checkThreshold || !s.exhausted(sess) {
			return sess, nil
		}
		s.log.Info("outbound group session rotated", "room", room, "session_id", sess.SessionID,
			"reason", domain.RotationThresholdExceeded, "messages", sess.MessageCount)
	}
	return s.create(ctx, room)
}

func (s *Service) exhausted(sess domain.OutboundGroupSession) bool {
	return sess.MessageCount >= s.cfg.RotationMessages ||
		s.now().Sub(sess.CreatedAt) >= s.cfg.RotationPeriod
}

// create starts a new outbound session and stores the local inbound copy
// before the outbound record, so no outbound session exists that this device
// cannot read back.
func (s *Service) create(ctx context.Context, room domain.RoomID) (domain.OutboundGroupSession, error) {
	const op = "group.create"
	local, err := s.kr.LocalDevice(ctx)
	if err != nil {
		return domain.OutboundGroupSession{}, err
	}
	r, err := megolm.NewRatchet()
	if err != nil {
		return domain.OutboundGroupSession{}, cryptoerrors.Wrap(cryptoerrors.KindKeyGeneration, op, err)
	}
	defer r.Wipe()
	signPriv, signPub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.OutboundGroupSession{}, cryptoerrors.Wrap(cryptoerrors.KindKeyGeneration, op, err)
	}

	now := s.now().UTC()
	sess := domain.OutboundGroupSession{
		SessionID:    megolm.SessionID(signPub),
		RoomID:       room,
		Ratchet:      megolm.Encode(r),
		SigningKey:   signPriv,
		MessageIndex: r.Index(),
		CreatedAt:    now,
		SharedWith:   make(map[string]domain.SharedDevice),
	}
	in := domain.InboundGroupSession{
		SessionID:       sess.SessionID,
		RoomID:          room,
		Sender:          local,
		SigningKey:      signPub,
		Initial:         megolm.Encode(r),
		Latest:          megolm.Encode(r),
		FirstKnownIndex: r.Index(),
		ImportedAt:      now,
	}
	if err := s.store.SaveInbound(ctx, in); err != nil {
		return domain.OutboundGroupSession{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if err := s.store.SaveOutbound(ctx, sess); err != nil {
		return domain.OutboundGroupSession{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Info("outbound group session created", "room", room, "session_id", sess.SessionID)
	return sess, nil
}

// RotateOutbound retires the room's outbound session. The next encrypt or
// share creates a fresh one. Rotating a room without a session is a no-op.
func (s *Service) RotateOutbound(ctx context.Context, room domain.RoomID, reason domain.RotationReason) error {
	const op = "group.RotateOutbound"
	if !reason.Valid() {
		return cryptoerrors.New(cryptoerrors.KindInvalidArgument, op, "unknown rotation reason "+string(reason))
	}
	defer s.rooms.Lock(string(room))()

	sess, ok, err := s.store.LoadOutbound(ctx, room)
	if err != nil {
		return cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if !ok || sess.Rotated {
		return nil
	}
	return s.retire(ctx, sess, reason)
}

// retire marks sess rotated. The caller holds the room lock.
func (s *Service) retire(ctx context.Context, sess domain.OutboundGroupSession, reason domain.RotationReason) error {
	sess.Rotated = true
	if err := s.store.SaveOutbound(ctx, sess); err != nil {
		return cryptoerrors.Wrap(cryptoerrors.KindPersistence, "group.RotateOutbound", err)
	}
	s.log.Info("outbound group session rotated", "room", sess.RoomID, "session_id", sess.SessionID,
		"reason", reason, "messages", sess.MessageCount)
	return nil
}

// OutboundSession returns the stored outbound session of room without
// creating one.
func (s *Service) OutboundSession(ctx context.Context, room domain.RoomID) (domain.OutboundGroupSession, bool, error) {
	sess, ok, err := s.store.LoadOutbound(ctx, room)
	if err != nil {
		return domain.OutboundGroupSession{}, false, cryptoerrors.Wrap(cryptoerrors.KindPersistence, "group.OutboundSession", err)
	}
	return sess, ok, nil
}

// ListOutbound returns the outbound sessions of every room.
func (s *Service) ListOutbound(ctx context.Context) ([]domain.OutboundGroupSession, error) {
	out, err := s.store.ListOutbound(ctx)
	if err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, "group.ListOutbound", err)
	}
	return out, nil
}

// InboundSession returns an imported session.
func (s *Service) InboundSession(
	ctx context.Context,
	room domain.RoomID,
	id domain.SessionID,
) (domain.InboundGroupSession, bool, error) {
	in, ok, err := s.store.LoadInbound(ctx, room, id)
	if err != nil {
		return domain.InboundGroupSession{}, false, cryptoerrors.Wrap(cryptoerrors.KindPersistence, "group.InboundSession", err)
	}
	return in, ok, nil
}

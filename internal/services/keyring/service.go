package keyring

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"time"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
	cryptoerrors "roomcrypt/pkg/errors"
)

// Service manages identity key creation and the prekey pool.
//
// The identity contains:
//   - X25519 key pair for Diffie-Hellman (handshakes and ratchets).
//   - Ed25519 key pair for signing (device self-signature, prekeys, payloads).
type Service struct {
	ids   domain.IdentityStore
	ps    domain.PrekeyStore
	owner domain.DeviceKey
	log   *slog.Logger

	// mu serialises identity creation and prekey state changes.
	mu   sync.Mutex
	rand io.Reader
	now  func() time.Time
}

// New returns a keyring for owner backed by the given stores.
func New(ids domain.IdentityStore, ps domain.PrekeyStore, owner domain.DeviceKey, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ids:   ids,
		ps:    ps,
		owner: owner,
		log:   logger.With("component", "keyring"),
		rand:  rand.Reader,
		now:   time.Now,
	}
}

// GenerateIdentity creates and persists the identity on first use and
// returns the stored one on every later call.
func (s *Service) GenerateIdentity(ctx context.Context) (domain.DeviceIdentity, error) {
	const op = "keyring.GenerateIdentity"
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok, err := s.ids.LoadIdentity(ctx)
	if err != nil {
		return domain.DeviceIdentity{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if ok {
		if existing.Key() != s.owner {
			return domain.DeviceIdentity{}, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op,
				"stored identity belongs to "+existing.Key().String())
		}
		return crypto.PublicDevice(existing), nil
	}

	xPriv, xPub, err := crypto.GenerateX25519From(s.rand)
	if err != nil {
		return domain.DeviceIdentity{}, cryptoerrors.Wrap(cryptoerrors.KindKeyGeneration, op, err)
	}
	edPriv, edPub, err := crypto.GenerateEd25519From(s.rand)
	if err != nil {
		return domain.DeviceIdentity{}, cryptoerrors.Wrap(cryptoerrors.KindKeyGeneration, op, err)
	}

	id := domain.Identity{
		UserID:    s.owner.UserID,
		DeviceID:  s.owner.DeviceID,
		XPub:      xPub,
		XPriv:     xPriv,
		EdPub:     edPub,
		EdPriv:    edPriv,
		CreatedAt: s.now().UTC(),
	}
	if err := s.ids.SaveIdentity(ctx, id); err != nil {
		return domain.DeviceIdentity{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Info("identity created", "user", id.UserID, "device", id.DeviceID,
		"fingerprint", crypto.Fingerprint(id.XPub.Slice()))
	return crypto.PublicDevice(id), nil
}

// LocalIdentity returns the full local identity, private keys included.
func (s *Service) LocalIdentity(ctx context.Context) (domain.Identity, error) {
	const op = "keyring.LocalIdentity"
	id, ok, err := s.ids.LoadIdentity(ctx)
	if err != nil {
		return domain.Identity{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if !ok {
		return domain.Identity{}, cryptoerrors.New(cryptoerrors.KindUnknownDevice, op, "identity not generated")
	}
	return id, nil
}

// LocalDevice returns the signed public identity of this device.
func (s *Service) LocalDevice(ctx context.Context) (domain.DeviceIdentity, error) {
	id, err := s.LocalIdentity(ctx)
	if err != nil {
		return domain.DeviceIdentity{}, err
	}
	return crypto.PublicDevice(id), nil
}

// Fingerprint returns a short fingerprint of the identity X25519 key.
func (s *Service) Fingerprint(ctx context.Context) (domain.Fingerprint, error) {
	id, err := s.LocalIdentity(ctx)
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(id.XPub.Slice()), nil
}

// SignPayload signs payload with the identity Ed25519 key.
func (s *Service) SignPayload(ctx context.Context, payload []byte) ([]byte, error) {
	id, err := s.LocalIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return crypto.SignEd25519(id.EdPriv, payload), nil
}

// Compile-time assertion that Service implements domain.IdentityKeyring.
var _ domain.IdentityKeyring = (*Service)(nil)

package trust

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
	cryptoerrors "roomcrypt/pkg/errors"
)

// Service is the device trust registry.
type Service struct {
	trust   domain.TrustStore
	devices domain.DeviceStore
	log     *slog.Logger
	now     func() time.Time
}

// New constructs a trust Service.
func New(trust domain.TrustStore, devices domain.DeviceStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		trust:   trust,
		devices: devices,
		log:     logger.With("component", "trust"),
		now:     time.Now,
	}
}

// Eligible reports whether a device in state may receive room keys under
// policy. Blocked devices never do; unverified ones only when the policy
// does not require verification.
func Eligible(state domain.TrustState, policy domain.SharePolicy) bool {
	switch state {
	case domain.TrustVerified:
		return true
	case domain.TrustBlocked:
		return false
	default:
		return !policy.RequireVerification
	}
}

// SetTrust records the verification state of a device.
func (s *Service) SetTrust(ctx context.Context, dev domain.DeviceKey, state domain.TrustState) (domain.TrustRecord, error) {
	const op = "trust.SetTrust"
	if !state.Valid() {
		return domain.TrustRecord{}, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op,
			"unknown trust state "+string(state))
	}
	if dev.UserID == "" || dev.DeviceID == "" {
		return domain.TrustRecord{}, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op, "empty device address")
	}
	rec := domain.TrustRecord{
		UserID:    dev.UserID,
		DeviceID:  dev.DeviceID,
		State:     state,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.trust.SaveTrust(ctx, rec); err != nil {
		return domain.TrustRecord{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Info("device trust changed", "device", dev.String(), "state", state)
	return rec, nil
}

// Trust returns the state of dev, unverified when nothing was recorded.
func (s *Service) Trust(ctx context.Context, dev domain.DeviceKey) (domain.TrustState, error) {
	rec, ok, err := s.trust.LoadTrust(ctx, dev)
	if err != nil {
		return "", cryptoerrors.Wrap(cryptoerrors.KindPersistence, "trust.Trust", err)
	}
	if !ok {
		return domain.TrustUnverified, nil
	}
	return rec.State, nil
}

// IsEligibleForKeyShare combines the stored state of dev with policy.
func (s *Service) IsEligibleForKeyShare(ctx context.Context, dev domain.DeviceKey, policy domain.SharePolicy) (bool, error) {
	state, err := s.Trust(ctx, dev)
	if err != nil {
		return false, err
	}
	return Eligible(state, policy), nil
}

// TrackDevices verifies and stores a device list update. Every device must
// carry a valid self-signature, and a known device must keep its keys; the
// whole update is rejected otherwise.
func (s *Service) TrackDevices(ctx context.Context, devs []domain.DeviceIdentity) ([]domain.DeviceIdentity, error) {
	const op = "trust.TrackDevices"
	added := make([]domain.DeviceIdentity, 0, len(devs))
	for _, dev := range devs {
		if !crypto.VerifyDevice(dev) {
			return nil, cryptoerrors.New(cryptoerrors.KindHandshake, op,
				"self-signature of "+dev.Key().String()+" does not verify")
		}
		known, ok, err := s.devices.LoadDevice(ctx, dev.Key())
		if err != nil {
			return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
		}
		if !ok {
			added = append(added, dev)
			continue
		}
		if !known.SameKeys(dev) {
			s.log.Warn("device keys changed", "device", dev.Key().String())
			return nil, cryptoerrors.New(cryptoerrors.KindIdentityChanged, op,
				"keys of "+dev.Key().String()+" changed")
		}
	}
	for _, dev := range added {
		if err := s.devices.SaveDevice(ctx, dev); err != nil {
			return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
		}
		s.log.Debug("device tracked", "device", dev.Key().String(),
			"fingerprint", crypto.Fingerprint(dev.Curve25519.Slice()))
	}
	return added, nil
}

// Device returns a tracked device identity.
func (s *Service) Device(ctx context.Context, key domain.DeviceKey) (domain.DeviceIdentity, error) {
	const op = "trust.Device"
	dev, ok, err := s.devices.LoadDevice(ctx, key)
	if err != nil {
		return domain.DeviceIdentity{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if !ok {
		return domain.DeviceIdentity{}, cryptoerrors.New(cryptoerrors.KindUnknownDevice, op,
			"device "+key.String()+" is not tracked")
	}
	return dev, nil
}

// Devices lists the tracked devices of user ordered by device id.
func (s *Service) Devices(ctx context.Context, user domain.UserID) ([]domain.DeviceIdentity, error) {
	devs, err := s.devices.ListDevices(ctx, user)
	if err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, "trust.Devices", err)
	}
	sort.Slice(devs, func(i, j int) bool { return devs[i].DeviceID < devs[j].DeviceID })
	return devs, nil
}

var _ domain.TrustRegistry = (*Service)(nil)

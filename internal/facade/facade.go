package facade

import (
	"context"
	"log/slog"
	"time"

	"roomcrypt/internal/domain"
	"roomcrypt/internal/pending"
	"roomcrypt/internal/services/group"
	"roomcrypt/internal/services/keyring"
	"roomcrypt/internal/services/pairwise"
	"roomcrypt/internal/services/trust"
	"roomcrypt/internal/util/keylock"
	cryptoerrors "roomcrypt/pkg/errors"
)

const (
	// DefaultUndecryptableWindow is how long a room event waits for its key.
	DefaultUndecryptableWindow = 5 * time.Minute
	// DefaultPendingLimit bounds the number of events waiting for keys.
	DefaultPendingLimit = 1000
)

// Stores are the record stores a Facade persists to.
type Stores struct {
	Identity domain.IdentityStore
	Prekeys  domain.PrekeyStore
	Sessions domain.SessionStore
	Groups   domain.GroupSessionStore
	Trust    domain.TrustStore
	Devices  domain.DeviceStore
	Rooms    domain.RoomStore
}

func (s Stores) validate() error {
	if s.Identity == nil || s.Prekeys == nil || s.Sessions == nil || s.Groups == nil ||
		s.Trust == nil || s.Devices == nil || s.Rooms == nil {
		return cryptoerrors.New(cryptoerrors.KindInvalidArgument, "facade.New", "every store is required")
	}
	return nil
}

// Options configure a Facade.
type Options struct {
	UserID   domain.UserID
	DeviceID domain.DeviceID

	SharePolicy      domain.SharePolicy
	RotationPeriod   time.Duration
	RotationMessages uint32

	UndecryptableWindow time.Duration
	PendingLimit        int

	Logger *slog.Logger
}

// Facade is the crypto core of one local device.
type Facade struct {
	local    domain.DeviceKey
	keyring  *keyring.Service
	pairwise *pairwise.Service
	trust    *trust.Service
	group    *group.Service
	rooms    domain.RoomStore
	pending  *pending.Queue
	locks    keylock.Map
	log      *slog.Logger
	now      func() time.Time
}

// New builds a Facade and makes sure the local identity exists. It fails
// instead of returning a facade that cannot encrypt.
func New(ctx context.Context, st Stores, opts Options) (*Facade, error) {
	const op = "facade.New"
	if opts.UserID == "" || opts.DeviceID == "" {
		return nil, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op, "user id and device id are required")
	}
	if err := st.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UndecryptableWindow <= 0 {
		opts.UndecryptableWindow = DefaultUndecryptableWindow
	}
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = DefaultPendingLimit
	}

	local := domain.DeviceKey{UserID: opts.UserID, DeviceID: opts.DeviceID}
	kr := keyring.New(st.Identity, st.Prekeys, local, logger)
	pw := pairwise.New(kr, st.Sessions, logger)
	tr := trust.New(st.Trust, st.Devices, logger)
	gr := group.New(kr, pw, tr, st.Groups, group.Config{
		RotationPeriod:   opts.RotationPeriod,
		RotationMessages: opts.RotationMessages,
		Policy:           opts.SharePolicy,
	}, logger)

	dev, err := kr.GenerateIdentity(ctx)
	if err != nil {
		return nil, err
	}
	f := &Facade{
		local:    local,
		keyring:  kr,
		pairwise: pw,
		trust:    tr,
		group:    gr,
		rooms:    st.Rooms,
		pending:  pending.New(opts.UndecryptableWindow, opts.PendingLimit),
		log:      logger.With("component", "facade", "device", local.String()),
		now:      time.Now,
	}
	f.log.Info("crypto core ready", "ed25519", dev.Ed25519)
	return f, nil
}

// LocalDevice returns the signed public identity of this device.
func (f *Facade) LocalDevice(ctx context.Context) (domain.DeviceIdentity, error) {
	return f.keyring.LocalDevice(ctx)
}

// Fingerprint returns the short fingerprint users compare when verifying.
func (f *Facade) Fingerprint(ctx context.Context) (domain.Fingerprint, error) {
	return f.keyring.Fingerprint(ctx)
}

// GeneratePrekeys adds count one-time prekeys to the pool.
func (f *Facade) GeneratePrekeys(ctx context.Context, count int) ([]domain.OneTimePrekey, error) {
	return f.keyring.GeneratePrekeys(ctx, count)
}

// GenerateFallbackKey rotates the fallback prekey.
func (f *Facade) GenerateFallbackKey(ctx context.Context) (domain.OneTimePrekey, error) {
	return f.keyring.GenerateFallbackKey(ctx)
}

// UnpublishedPrekeys lists prekeys waiting for upload.
func (f *Facade) UnpublishedPrekeys(ctx context.Context) ([]domain.OneTimePrekey, error) {
	return f.keyring.UnpublishedPrekeys(ctx)
}

// MarkPrekeysPublished records an upload.
func (f *Facade) MarkPrekeysPublished(ctx context.Context, ids []domain.PrekeyID) error {
	return f.keyring.MarkPrekeysPublished(ctx, ids)
}

// SignPayload signs payload with the device key.
func (f *Facade) SignPayload(ctx context.Context, payload []byte) ([]byte, error) {
	return f.keyring.SignPayload(ctx, payload)
}

// TrackDevices records a device list update from the transport.
func (f *Facade) TrackDevices(ctx context.Context, devs []domain.DeviceIdentity) ([]domain.DeviceIdentity, error) {
	return f.trust.TrackDevices(ctx, devs)
}

// Devices lists the tracked devices of user.
func (f *Facade) Devices(ctx context.Context, user domain.UserID) ([]domain.DeviceIdentity, error) {
	return f.trust.Devices(ctx, user)
}

// DeviceTrust returns the trust state of dev.
func (f *Facade) DeviceTrust(ctx context.Context, dev domain.DeviceKey) (domain.TrustState, error) {
	return f.trust.Trust(ctx, dev)
}

// SetDeviceTrust changes the trust state of dev. Blocking a device retires
// every outbound session it holds a key for, so it cannot read what follows.
func (f *Facade) SetDeviceTrust(ctx context.Context, dev domain.DeviceKey, state domain.TrustState) (domain.TrustRecord, error) {
	rec, err := f.trust.SetTrust(ctx, dev, state)
	if err != nil {
		return domain.TrustRecord{}, err
	}
	if state != domain.TrustBlocked {
		return rec, nil
	}
	sessions, err := f.group.ListOutbound(ctx)
	if err != nil {
		return rec, err
	}
	for _, sess := range sessions {
		if sess.Rotated || !sess.SharedWithDevice(dev) {
			continue
		}
		if err := f.RotateOutboundSession(ctx, sess.RoomID, domain.RotationManual); err != nil {
			return rec, err
		}
		f.log.Info("rotated room after blocking device", "room", sess.RoomID, "blocked", dev.String())
	}
	return rec, nil
}

// ResetPairwiseSession drops every session with dev.
func (f *Facade) ResetPairwiseSession(ctx context.Context, dev domain.DeviceKey) error {
	return f.pairwise.Reset(ctx, dev)
}

// ExpirePending drops room events that waited longer than the
// undecryptable window for their key. They stay undecryptable.
func (f *Facade) ExpirePending() []domain.RoomEvent {
	expired := f.pending.Expire()
	if len(expired) > 0 {
		f.log.Warn("room events stayed undecryptable", "count", len(expired))
	}
	return expired
}

// PendingEvents reports how many room events wait for keys.
func (f *Facade) PendingEvents() int { return f.pending.Len() }

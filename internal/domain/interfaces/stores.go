package interfaces

import (
	"context"

	domaintypes "roomcrypt/internal/domain/types"
)

// IdentityStore persists the local device identity.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, id domaintypes.Identity) error
	LoadIdentity(ctx context.Context) (domaintypes.Identity, bool, error)
}

// PrekeyStore persists one-time and fallback prekeys, including tombstones of
// consumed keys.
type PrekeyStore interface {
	SavePrekeys(ctx context.Context, records []domaintypes.PrekeyRecord) error
	LoadPrekey(ctx context.Context, id domaintypes.PrekeyID) (domaintypes.PrekeyRecord, bool, error)
	ListPrekeys(ctx context.Context) ([]domaintypes.PrekeyRecord, error)
}

// SessionStore persists pairwise Double Ratchet sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, session domaintypes.PairwiseSession) error
	LoadSession(
		ctx context.Context,
		remote domaintypes.DeviceKey,
		id domaintypes.SessionID,
	) (domaintypes.PairwiseSession, bool, error)
	ListSessions(ctx context.Context, remote domaintypes.DeviceKey) ([]domaintypes.PairwiseSession, error)
	DeleteSessions(ctx context.Context, remote domaintypes.DeviceKey) error
}

// GroupSessionStore persists outbound and inbound group sessions.
type GroupSessionStore interface {
	SaveOutbound(ctx context.Context, session domaintypes.OutboundGroupSession) error
	LoadOutbound(ctx context.Context, room domaintypes.RoomID) (domaintypes.OutboundGroupSession, bool, error)
	ListOutbound(ctx context.Context) ([]domaintypes.OutboundGroupSession, error)

	SaveInbound(ctx context.Context, session domaintypes.InboundGroupSession) error
	LoadInbound(
		ctx context.Context,
		room domaintypes.RoomID,
		id domaintypes.SessionID,
	) (domaintypes.InboundGroupSession, bool, error)
}

// TrustStore persists device trust records.
type TrustStore interface {
	SaveTrust(ctx context.Context, record domaintypes.TrustRecord) error
	LoadTrust(ctx context.Context, device domaintypes.DeviceKey) (domaintypes.TrustRecord, bool, error)
}

// DeviceStore caches the verified identities of remote devices.
type DeviceStore interface {
	SaveDevice(ctx context.Context, device domaintypes.DeviceIdentity) error
	LoadDevice(ctx context.Context, device domaintypes.DeviceKey) (domaintypes.DeviceIdentity, bool, error)
	ListDevices(ctx context.Context, user domaintypes.UserID) ([]domaintypes.DeviceIdentity, error)
}

// RoomStore persists per-room encryption state.
type RoomStore interface {
	SaveRoom(ctx context.Context, room domaintypes.RoomRecord) error
	LoadRoom(ctx context.Context, room domaintypes.RoomID) (domaintypes.RoomRecord, bool, error)
}

package interfaces

import (
	"context"

	domaintypes "roomcrypt/internal/domain/types"
)

// IdentityKeyring owns the local identity and the prekey pool.
type IdentityKeyring interface {
	GenerateIdentity(ctx context.Context) (domaintypes.DeviceIdentity, error)
	LocalIdentity(ctx context.Context) (domaintypes.Identity, error)
	LocalDevice(ctx context.Context) (domaintypes.DeviceIdentity, error)
	GeneratePrekeys(ctx context.Context, count int) ([]domaintypes.OneTimePrekey, error)
	LookupPrekey(ctx context.Context, id domaintypes.PrekeyID) (domaintypes.PrekeyRecord, error)
	MarkPrekeyConsumed(ctx context.Context, id domaintypes.PrekeyID) error
	SignPayload(ctx context.Context, payload []byte) ([]byte, error)
}

// PairwiseSessions encrypts and decrypts over per-device Double Ratchet sessions.
type PairwiseSessions interface {
	EncryptTo(
		ctx context.Context,
		recipient domaintypes.Recipient,
		plaintext []byte,
	) (domaintypes.CipherMessage, error)
	DecryptFrom(
		ctx context.Context,
		remote domaintypes.DeviceIdentity,
		msg domaintypes.CipherMessage,
	) ([]byte, error)
	HasSession(ctx context.Context, remote domaintypes.DeviceKey) (bool, error)
}

// TrustRegistry answers key-share eligibility questions.
type TrustRegistry interface {
	IsEligibleForKeyShare(
		ctx context.Context,
		device domaintypes.DeviceKey,
		policy domaintypes.SharePolicy,
	) (bool, error)
}

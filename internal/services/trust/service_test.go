package trust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
	"roomcrypt/internal/store"
	cryptoerrors "roomcrypt/pkg/errors"
)

func newTestRegistry(t *testing.T) *Service {
	t.Helper()
	st := store.NewStores(store.NewMemoryKV())
	return New(st.Trust, st.Devices, nil)
}

func newDevice(t *testing.T, user domain.UserID, device domain.DeviceID) domain.DeviceIdentity {
	t.Helper()
	xPriv, xPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	edPriv, edPub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	return crypto.PublicDevice(domain.Identity{
		UserID: user, DeviceID: device,
		XPub: xPub, XPriv: xPriv, EdPub: edPub, EdPriv: edPriv,
	})
}

func TestEligible(t *testing.T) {
	strict := domain.SharePolicy{RequireVerification: true}
	lax := domain.SharePolicy{}

	tests := []struct {
		state  domain.TrustState
		policy domain.SharePolicy
		want   bool
	}{
		{domain.TrustVerified, lax, true},
		{domain.TrustVerified, strict, true},
		{domain.TrustUnverified, lax, true},
		{domain.TrustUnverified, strict, false},
		{domain.TrustBlocked, lax, false},
		{domain.TrustBlocked, strict, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(tt.state, tt.policy))
		})
	}
}

func TestSetTrust(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	dev := domain.DeviceKey{UserID: "@bob:example.org", DeviceID: "B1"}

	state, err := reg.Trust(ctx, dev)
	require.NoError(t, err)
	assert.Equal(t, domain.TrustUnverified, state, "unknown devices default to unverified")

	_, err = reg.SetTrust(ctx, dev, "trusted")
	require.ErrorIs(t, err, cryptoerrors.ErrInvalidArgument)

	rec, err := reg.SetTrust(ctx, dev, domain.TrustBlocked)
	require.NoError(t, err)
	assert.Equal(t, domain.TrustBlocked, rec.State)

	ok, err := reg.IsEligibleForKeyShare(ctx, dev, domain.SharePolicy{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = reg.SetTrust(ctx, dev, domain.TrustVerified)
	require.NoError(t, err)
	ok, err = reg.IsEligibleForKeyShare(ctx, dev, domain.SharePolicy{RequireVerification: true})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTrackDevices(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	b1 := newDevice(t, "@bob:example.org", "B1")
	b2 := newDevice(t, "@bob:example.org", "B2")

	added, err := reg.TrackDevices(ctx, []domain.DeviceIdentity{b2, b1})
	require.NoError(t, err)
	assert.Len(t, added, 2)

	added, err = reg.TrackDevices(ctx, []domain.DeviceIdentity{b1})
	require.NoError(t, err)
	assert.Empty(t, added, "known devices are not re-added")

	devs, err := reg.Devices(ctx, "@bob:example.org")
	require.NoError(t, err)
	require.Len(t, devs, 2)
	assert.Equal(t, domain.DeviceID("B1"), devs[0].DeviceID)

	got, err := reg.Device(ctx, b2.Key())
	require.NoError(t, err)
	assert.True(t, got.SameKeys(b2))

	_, err = reg.Device(ctx, domain.DeviceKey{UserID: "@bob:example.org", DeviceID: "B3"})
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownDevice)
}

func TestTrackDevices_Rejects(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	b1 := newDevice(t, "@bob:example.org", "B1")
	_, err := reg.TrackDevices(ctx, []domain.DeviceIdentity{b1})
	require.NoError(t, err)

	t.Run("changed keys", func(t *testing.T) {
		replaced := newDevice(t, "@bob:example.org", "B1")
		_, err := reg.TrackDevices(ctx, []domain.DeviceIdentity{replaced})
		require.ErrorIs(t, err, cryptoerrors.ErrIdentityChanged)

		got, err := reg.Device(ctx, b1.Key())
		require.NoError(t, err)
		assert.True(t, got.SameKeys(b1), "the original keys stay pinned")
	})

	t.Run("bad signature rejects the whole update", func(t *testing.T) {
		good := newDevice(t, "@bob:example.org", "B5")
		forged := newDevice(t, "@bob:example.org", "B6")
		forged.Signature = append([]byte(nil), forged.Signature...)
		forged.Signature[3] ^= 0x10

		_, err := reg.TrackDevices(ctx, []domain.DeviceIdentity{good, forged})
		require.ErrorIs(t, err, cryptoerrors.ErrHandshake)
		_, err = reg.Device(ctx, good.Key())
		require.ErrorIs(t, err, cryptoerrors.ErrUnknownDevice)
	})
}

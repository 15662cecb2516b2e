package group

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcrypt/internal/domain"
	"roomcrypt/internal/protocol/megolm"
	"roomcrypt/internal/services/keyring"
	"roomcrypt/internal/services/pairwise"
	"roomcrypt/internal/services/trust"
	"roomcrypt/internal/store"
	cryptoerrors "roomcrypt/pkg/errors"
)

const room = domain.RoomID("!room:example.org")

type flakyGroupStore struct {
	domain.GroupSessionStore
	fail atomic.Bool
}

func (f *flakyGroupStore) SaveOutbound(ctx context.Context, s domain.OutboundGroupSession) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.GroupSessionStore.SaveOutbound(ctx, s)
}

type member struct {
	dev    domain.DeviceIdentity
	kr     *keyring.Service
	pw     *pairwise.Service
	trust  *trust.Service
	groups *flakyGroupStore
	svc    *Service
}

func newMember(t *testing.T, user domain.UserID, device domain.DeviceID, cfg Config) *member {
	t.Helper()
	st := store.NewStores(store.NewMemoryKV())
	kr := keyring.New(st.Identity, st.Prekeys, domain.DeviceKey{UserID: user, DeviceID: device}, nil)
	dev, err := kr.GenerateIdentity(context.Background())
	require.NoError(t, err)
	pw := pairwise.New(kr, st.Sessions, nil)
	tr := trust.New(st.Trust, st.Devices, nil)
	groups := &flakyGroupStore{GroupSessionStore: st.Groups}
	return &member{
		dev: dev, kr: kr, pw: pw, trust: tr, groups: groups,
		svc: New(kr, pw, tr, groups, cfg, nil),
	}
}

func (m *member) recipient(t *testing.T) domain.Recipient {
	t.Helper()
	keys, err := m.kr.GeneratePrekeys(context.Background(), 1)
	require.NoError(t, err)
	return domain.Recipient{Device: m.dev, Prekey: &keys[0]}
}

// receive delivers the shares addressed to m and imports the room keys.
func (m *member) receive(t *testing.T, from *member, res domain.KeyShareResult) int {
	t.Helper()
	ctx := context.Background()
	n := 0
	for _, share := range res.Shares {
		if share.RecipientUserID != m.dev.UserID || share.RecipientDeviceID != m.dev.DeviceID {
			continue
		}
		body, err := base64.StdEncoding.DecodeString(share.Event.EncryptedSessionKey.Ciphertext)
		require.NoError(t, err)
		pt, err := m.pw.DecryptFrom(ctx, from.dev, domain.CipherMessage{
			Type: share.Event.EncryptedSessionKey.Type,
			Body: body,
		})
		require.NoError(t, err)
		payload, err := pairwise.OpenPayload(pt, from.dev, m.dev)
		require.NoError(t, err)
		require.Equal(t, domain.PayloadTypeRoomKey, payload.Type)

		var content domain.RoomKeyContent
		require.NoError(t, json.Unmarshal(payload.Content, &content))
		_, err = m.svc.ImportInbound(ctx, content.RoomID, from.dev, content.SessionID, content.SessionKey, content.ChainIndex)
		require.NoError(t, err)
		n++
	}
	return n
}

func encryptN(t *testing.T, m *member, texts ...string) []domain.GroupCiphertext {
	t.Helper()
	out := make([]domain.GroupCiphertext, 0, len(texts))
	for _, text := range texts {
		ct, err := m.svc.Encrypt(context.Background(), room, []byte(text))
		require.NoError(t, err)
		out = append(out, ct)
	}
	return out
}

func TestEncrypt_SequentialIndices(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})

	cts := encryptN(t, alice, "m0", "m1", "m2")
	for i, ct := range cts {
		assert.Equal(t, uint32(i), ct.MessageIndex)
		assert.Equal(t, cts[0].SessionID, ct.SessionID)
	}

	// The sender reads its own messages through its inbound copy.
	for i, ct := range cts {
		pt, err := alice.svc.Decrypt(ctx, room, ct.SessionID, ct.Ciphertext, ct.MessageIndex)
		require.NoError(t, err)
		assert.Equal(t, []string{"m0", "m1", "m2"}[i], string(pt.Plaintext))
		assert.True(t, pt.Sender.SameKeys(alice.dev))
	}

	sess, ok, err := alice.svc.OutboundSession(ctx, room)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(3), sess.MessageIndex)
	assert.Equal(t, uint32(3), sess.MessageCount)
}

func TestShareAndDecrypt(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})
	bob := newMember(t, "@bob:example.org", "B1", Config{})

	res, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{bob.recipient(t), {Device: alice.dev}})
	require.NoError(t, err)
	require.Len(t, res.Shares, 1, "the local device is never a recipient")
	assert.Equal(t, 1, bob.receive(t, alice, res))

	cts := encryptN(t, alice, "hello", "room")
	// Out of order on purpose.
	for _, i := range []int{1, 0} {
		pt, err := bob.svc.Decrypt(ctx, room, cts[i].SessionID, cts[i].Ciphertext, cts[i].MessageIndex)
		require.NoError(t, err)
		assert.Equal(t, []string{"hello", "room"}[i], string(pt.Plaintext))
		assert.Equal(t, alice.dev.Key(), pt.Sender.Key())
	}

	again, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{{Device: bob.dev}})
	require.NoError(t, err)
	assert.Empty(t, again.Shares, "devices holding the key are skipped")
	assert.Equal(t, res.SessionID, again.SessionID)
}

func TestImportInbound_Idempotent(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})
	bob := newMember(t, "@bob:example.org", "B1", Config{})

	res, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{bob.recipient(t)})
	require.NoError(t, err)
	require.Equal(t, 1, bob.receive(t, alice, res))

	sess, _, err := alice.svc.OutboundSession(ctx, room)
	require.NoError(t, err)
	r, err := megolm.Decode(sess.Ratchet)
	require.NoError(t, err)
	key := megolm.ExportSessionKey(r, sess.SigningKey)

	first, err := bob.svc.ImportInbound(ctx, room, alice.dev, sess.SessionID, key, 0)
	require.NoError(t, err)
	second, err := bob.svc.ImportInbound(ctx, room, alice.dev, sess.SessionID, key, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	carol := newMember(t, "@carol:example.org", "C1", Config{})
	_, err = bob.svc.ImportInbound(ctx, room, carol.dev, sess.SessionID, key, 0)
	require.ErrorIs(t, err, cryptoerrors.ErrInvalidArgument, "a known session cannot change sender")

	_, err = bob.svc.ImportInbound(ctx, room, alice.dev, "not-this-session", key, 0)
	require.ErrorIs(t, err, cryptoerrors.ErrInvalidArgument)

	_, err = bob.svc.ImportInbound(ctx, room, alice.dev, sess.SessionID, "garbage", 0)
	require.ErrorIs(t, err, cryptoerrors.ErrInvalidArgument)
}

func TestDecrypt_BeforeFirstKnownIndex(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})
	bob := newMember(t, "@bob:example.org", "B1", Config{})

	early := encryptN(t, alice, "m0", "m1", "m2")
	res, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{bob.recipient(t)})
	require.NoError(t, err)
	require.Equal(t, 1, bob.receive(t, alice, res))
	late := encryptN(t, alice, "m3")

	_, err = bob.svc.Decrypt(ctx, room, early[1].SessionID, early[1].Ciphertext, early[1].MessageIndex)
	require.ErrorIs(t, err, cryptoerrors.ErrReplayOrOutOfOrder)
	assert.True(t, cryptoerrors.IsRecoverable(err))

	pt, err := bob.svc.Decrypt(ctx, room, late[0].SessionID, late[0].Ciphertext, late[0].MessageIndex)
	require.NoError(t, err)
	assert.Equal(t, "m3", string(pt.Plaintext))
	assert.Equal(t, uint32(3), pt.MessageIndex)
}

func TestRotation(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})
	bob := newMember(t, "@bob:example.org", "B1", Config{})

	res, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{bob.recipient(t)})
	require.NoError(t, err)
	require.Equal(t, 1, bob.receive(t, alice, res))
	s1 := encryptN(t, alice, "a", "b", "c")

	// ACT: bob leaves; alice rotates and keeps talking.
	require.NoError(t, alice.svc.RotateOutbound(ctx, room, domain.RotationMembershipChange))
	s2 := encryptN(t, alice, "secret")

	// ASSERT
	require.NotEqual(t, s1[0].SessionID, s2[0].SessionID)
	assert.Equal(t, uint32(0), s2[0].MessageIndex, "a new session starts at index zero")

	for _, ct := range s1 {
		_, err := bob.svc.Decrypt(ctx, room, ct.SessionID, ct.Ciphertext, ct.MessageIndex)
		require.NoError(t, err, "old messages stay readable")
	}
	_, err = bob.svc.Decrypt(ctx, room, s2[0].SessionID, s2[0].Ciphertext, s2[0].MessageIndex)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownSession)

	pt, err := alice.svc.Decrypt(ctx, room, s1[2].SessionID, s1[2].Ciphertext, s1[2].MessageIndex)
	require.NoError(t, err, "the sender keeps its rotated sessions")
	assert.Equal(t, "c", string(pt.Plaintext))
}

func TestShareRoomKey_RotatesWhenHolderLeaves(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})
	bob := newMember(t, "@bob:example.org", "B1", Config{})
	carol := newMember(t, "@carol:example.org", "C1", Config{})

	res, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{bob.recipient(t), carol.recipient(t)})
	require.NoError(t, err)
	require.Equal(t, 1, bob.receive(t, alice, res))
	require.Equal(t, 1, carol.receive(t, alice, res))
	assert.Empty(t, res.Departed)

	// ACT: bob is no longer in the member list.
	next, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{{Device: carol.dev}})
	require.NoError(t, err)

	// ASSERT
	require.Len(t, next.Departed, 1)
	assert.Equal(t, bob.dev.Key(), next.Departed[0].Key())
	assert.NotEqual(t, res.SessionID, next.SessionID)
	require.Len(t, next.Shares, 1)
	assert.Equal(t, domain.DeviceID("C1"), next.Shares[0].RecipientDeviceID)
	require.Equal(t, 1, carol.receive(t, alice, next))

	ct := encryptN(t, alice, "secret without bob")[0]
	assert.Equal(t, next.SessionID, ct.SessionID)
	_, err = bob.svc.Decrypt(ctx, room, ct.SessionID, ct.Ciphertext, ct.MessageIndex)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownSession)
	pt, err := carol.svc.Decrypt(ctx, room, ct.SessionID, ct.Ciphertext, ct.MessageIndex)
	require.NoError(t, err)
	assert.Equal(t, "secret without bob", string(pt.Plaintext))

	again, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{{Device: carol.dev}})
	require.NoError(t, err)
	assert.Empty(t, again.Departed, "an unchanged member list keeps the session")
	assert.Equal(t, next.SessionID, again.SessionID)
}

func TestShareRoomKey_RotatesWhenHolderBlocked(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})
	bob := newMember(t, "@bob:example.org", "B1", Config{})

	res, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{bob.recipient(t)})
	require.NoError(t, err)
	require.Len(t, res.Shares, 1)

	_, err = alice.trust.SetTrust(ctx, bob.dev.Key(), domain.TrustBlocked)
	require.NoError(t, err)

	next, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{{Device: bob.dev}})
	require.NoError(t, err)
	assert.NotEqual(t, res.SessionID, next.SessionID)
	require.Len(t, next.Departed, 1)
	require.Len(t, next.Withheld, 1)
	assert.Empty(t, next.Shares)
}

func TestRotateOutbound_Validation(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})

	err := alice.svc.RotateOutbound(ctx, room, "bored")
	require.ErrorIs(t, err, cryptoerrors.ErrInvalidArgument)

	require.NoError(t, alice.svc.RotateOutbound(ctx, room, domain.RotationManual), "nothing to rotate")
}

func TestThresholdRotation(t *testing.T) {
	ctx := context.Background()

	t.Run("messages", func(t *testing.T) {
		alice := newMember(t, "@alice:example.org", "A1", Config{RotationMessages: 2})
		first, err := alice.svc.GetOrCreateOutbound(ctx, room)
		require.NoError(t, err)
		encryptN(t, alice, "1", "2")

		next, err := alice.svc.GetOrCreateOutbound(ctx, room)
		require.NoError(t, err)
		assert.NotEqual(t, first.SessionID, next.SessionID)
	})

	t.Run("age", func(t *testing.T) {
		alice := newMember(t, "@alice:example.org", "A1", Config{RotationPeriod: time.Hour})
		first, err := alice.svc.GetOrCreateOutbound(ctx, room)
		require.NoError(t, err)

		same, err := alice.svc.GetOrCreateOutbound(ctx, room)
		require.NoError(t, err)
		assert.Equal(t, first.SessionID, same.SessionID)

		alice.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		next, err := alice.svc.GetOrCreateOutbound(ctx, room)
		require.NoError(t, err)
		assert.NotEqual(t, first.SessionID, next.SessionID)
	})
}

func TestShareRoomKey_TrustPolicy(t *testing.T) {
	ctx := context.Background()
	bob1 := newMember(t, "@bob:example.org", "B1", Config{})
	bob2 := newMember(t, "@bob:example.org", "B2", Config{})
	bob3 := newMember(t, "@bob:example.org", "B3", Config{})

	t.Run("blocked device is withheld", func(t *testing.T) {
		alice := newMember(t, "@alice:example.org", "A1", Config{})
		_, err := alice.trust.SetTrust(ctx, bob1.dev.Key(), domain.TrustBlocked)
		require.NoError(t, err)

		res, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{bob1.recipient(t), bob2.recipient(t)})
		require.NoError(t, err)
		require.Len(t, res.Shares, 1)
		assert.Equal(t, domain.DeviceID("B2"), res.Shares[0].RecipientDeviceID)
		require.Len(t, res.Withheld, 1)
		assert.Equal(t, domain.DeviceID("B1"), res.Withheld[0].DeviceID)
	})

	t.Run("verification required", func(t *testing.T) {
		alice := newMember(t, "@alice:example.org", "A1",
			Config{Policy: domain.SharePolicy{RequireVerification: true}})
		_, err := alice.trust.SetTrust(ctx, bob3.dev.Key(), domain.TrustVerified)
		require.NoError(t, err)

		res, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{bob2.recipient(t), bob3.recipient(t)})
		require.NoError(t, err)
		require.Len(t, res.Shares, 1)
		assert.Equal(t, domain.DeviceID("B3"), res.Shares[0].RecipientDeviceID)
		assert.Len(t, res.Withheld, 1)
	})

	t.Run("unreachable device is missing", func(t *testing.T) {
		alice := newMember(t, "@alice:example.org", "A1", Config{})
		res, err := alice.svc.ShareRoomKey(ctx, room, []domain.Recipient{{Device: bob2.dev}})
		require.NoError(t, err)
		assert.Empty(t, res.Shares)
		require.Len(t, res.Missing, 1)

		sess, _, err := alice.svc.OutboundSession(ctx, room)
		require.NoError(t, err)
		assert.False(t, sess.SharedWithDevice(bob2.dev.Key()))
	})
}

func TestDecrypt_Failures(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})
	ct := encryptN(t, alice, "hello")[0]

	_, err := alice.svc.Decrypt(ctx, room, "unknown", ct.Ciphertext, 0)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownSession)

	tampered := append([]byte(nil), ct.Ciphertext...)
	tampered[0] ^= 0x01
	_, err = alice.svc.Decrypt(ctx, room, ct.SessionID, tampered, ct.MessageIndex)
	require.ErrorIs(t, err, cryptoerrors.ErrDecryption)

	_, err = alice.svc.Decrypt(ctx, room, ct.SessionID, ct.Ciphertext, ct.MessageIndex+1)
	require.ErrorIs(t, err, cryptoerrors.ErrDecryption, "a message is bound to its index")
}

func TestEncrypt_ConcurrentIndicesAreUnique(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{RotationMessages: 1000})
	first, err := alice.svc.GetOrCreateOutbound(ctx, room)
	require.NoError(t, err)

	const n = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		indices []int
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ct, err := alice.svc.Encrypt(ctx, room, []byte("burst"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ct.SessionID != first.SessionID {
				errs = append(errs, errors.New("session changed mid burst"))
				return
			}
			indices = append(indices, int(ct.MessageIndex))
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	sort.Ints(indices)
	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, indices, "indices are gap free and never repeat")

	sess, _, err := alice.svc.OutboundSession(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, uint32(n), sess.MessageIndex)
	assert.Equal(t, uint32(n), sess.MessageCount)
}

func TestEncrypt_PersistenceFailureKeepsIndex(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})
	_, err := alice.svc.GetOrCreateOutbound(ctx, room)
	require.NoError(t, err)

	alice.groups.fail.Store(true)
	_, err = alice.svc.Encrypt(ctx, room, []byte("lost"))
	require.ErrorIs(t, err, cryptoerrors.ErrPersistence)
	alice.groups.fail.Store(false)

	ct := encryptN(t, alice, "kept")[0]
	assert.Equal(t, uint32(0), ct.MessageIndex)
}

func TestEncrypt_IndexReusePanics(t *testing.T) {
	ctx := context.Background()
	alice := newMember(t, "@alice:example.org", "A1", Config{})
	snapshot, err := alice.svc.GetOrCreateOutbound(ctx, room)
	require.NoError(t, err)
	encryptN(t, alice, "first")

	// Roll the store back to before the first message.
	require.NoError(t, alice.groups.SaveOutbound(ctx, snapshot))

	assert.Panics(t, func() {
		_, _ = alice.svc.Encrypt(ctx, room, []byte("second"))
	})
}

package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcrypt/internal/domain"
	"roomcrypt/internal/store"
	cryptoerrors "roomcrypt/pkg/errors"
)

const room = domain.RoomID("!lounge:example.org")

func storesOf(st *store.Stores) Stores {
	return Stores{
		Identity: st.Identity,
		Prekeys:  st.Prekeys,
		Sessions: st.Sessions,
		Groups:   st.Groups,
		Trust:    st.Trust,
		Devices:  st.Devices,
		Rooms:    st.Rooms,
	}
}

type client struct {
	*Facade
	dev domain.DeviceIdentity
}

func newClient(t *testing.T, user domain.UserID, device domain.DeviceID, opts Options) *client {
	t.Helper()
	ctx := context.Background()
	opts.UserID, opts.DeviceID = user, device
	f, err := New(ctx, storesOf(store.NewStores(store.NewMemoryKV())), opts)
	require.NoError(t, err)
	dev, err := f.LocalDevice(ctx)
	require.NoError(t, err)
	_, err = f.EnableRoomEncryption(ctx, room)
	require.NoError(t, err)
	return &client{Facade: f, dev: dev}
}

// claim plays the transport: it fetches a one-time prekey of c.
func (c *client) claim(t *testing.T) domain.Recipient {
	t.Helper()
	keys, err := c.GeneratePrekeys(context.Background(), 1)
	require.NoError(t, err)
	return domain.Recipient{Device: c.dev, Prekey: &keys[0]}
}

func (c *client) know(t *testing.T, others ...*client) {
	t.Helper()
	devs := make([]domain.DeviceIdentity, 0, len(others))
	for _, o := range others {
		devs = append(devs, o.dev)
	}
	_, err := c.TrackDevices(context.Background(), devs)
	require.NoError(t, err)
}

func (c *client) deliver(t *testing.T, msg RoomMessage) {
	t.Helper()
	for _, share := range msg.Shares {
		if share.RecipientUserID == c.dev.UserID && share.RecipientDeviceID == c.dev.DeviceID {
			_, err := c.ImportRoomKeyShare(context.Background(), share.Event)
			require.NoError(t, err)
		}
	}
}

func TestNew_FailsLoudly(t *testing.T) {
	ctx := context.Background()
	st := storesOf(store.NewStores(store.NewMemoryKV()))

	_, err := New(ctx, st, Options{UserID: "@alice:example.org"})
	require.ErrorIs(t, err, cryptoerrors.ErrInvalidArgument)

	broken := st
	broken.Rooms = nil
	_, err = New(ctx, broken, Options{UserID: "@alice:example.org", DeviceID: "A1"})
	require.ErrorIs(t, err, cryptoerrors.ErrInvalidArgument)

	first, err := New(ctx, st, Options{UserID: "@alice:example.org", DeviceID: "A1"})
	require.NoError(t, err)
	second, err := New(ctx, st, Options{UserID: "@alice:example.org", DeviceID: "A1"})
	require.NoError(t, err)
	fp1, err := first.Fingerprint(ctx)
	require.NoError(t, err)
	fp2, err := second.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2, "restarting keeps the identity")
}

func TestRoomMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	bob := newClient(t, "@bob:example.org", "B1", Options{})
	bob.know(t, alice)

	msg, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{bob.claim(t)}, []byte("hello"))
	require.NoError(t, err)
	require.Len(t, msg.Shares, 1)
	assert.Equal(t, domain.AlgorithmGroupV1, msg.Event.Algorithm)
	bob.deliver(t, msg)

	dec, err := bob.DecryptRoomEvent(ctx, msg.Event)
	require.NoError(t, err)
	assert.False(t, dec.Undecryptable)
	assert.Equal(t, "hello", dec.Text())
	assert.Equal(t, alice.dev.Key(), dec.Sender.Key())

	// Later messages need no new share.
	next, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{{Device: bob.dev}}, []byte("again"))
	require.NoError(t, err)
	assert.Empty(t, next.Shares)
	assert.Equal(t, msg.Event.MessageIndex+1, next.Event.MessageIndex)
	dec, err = bob.DecryptRoomEvent(ctx, next.Event)
	require.NoError(t, err)
	assert.Equal(t, "again", dec.Text())
}

func TestLateRoomKeyIsRetried(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	bob := newClient(t, "@bob:example.org", "B1", Options{})
	bob.know(t, alice)

	msg, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{bob.claim(t)}, []byte("early bird"))
	require.NoError(t, err)

	// The event overtakes its key share.
	dec, err := bob.DecryptRoomEvent(ctx, msg.Event)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownSession)
	assert.True(t, dec.Undecryptable)
	assert.Equal(t, UndecryptablePlaceholder, dec.Text())
	assert.Empty(t, dec.Plaintext, "ciphertext is never passed off as plaintext")
	assert.Equal(t, 1, bob.PendingEvents())

	retried, err := bob.ImportRoomKeyShare(ctx, msg.Shares[0].Event)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, "early bird", retried[0].Text())
	assert.Equal(t, 0, bob.PendingEvents())
}

func TestExpirePending(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	bob := newClient(t, "@bob:example.org", "B1", Options{UndecryptableWindow: time.Nanosecond})

	msg, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{bob.claim(t)}, []byte("lost"))
	require.NoError(t, err)
	_, err = bob.DecryptRoomEvent(ctx, msg.Event)
	require.Error(t, err)

	time.Sleep(time.Millisecond)
	expired := bob.ExpirePending()
	require.Len(t, expired, 1)
	assert.Equal(t, msg.Event.SessionID, expired[0].SessionID)
	assert.Equal(t, 0, bob.PendingEvents())
}

func TestUnencryptedRoom(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	const plain = domain.RoomID("!plain:example.org")

	ok, err := alice.IsRoomEncrypted(ctx, plain)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = alice.EncryptForRoom(ctx, plain, nil, []byte("x"))
	require.ErrorIs(t, err, cryptoerrors.ErrRoomNotEncrypted)

	dec, err := alice.DecryptRoomEvent(ctx, domain.RoomEvent{RoomID: plain, Ciphertext: "aGVsbG8="})
	require.ErrorIs(t, err, cryptoerrors.ErrRoomNotEncrypted)
	assert.True(t, dec.Undecryptable)

	first, err := alice.EnableRoomEncryption(ctx, plain)
	require.NoError(t, err)
	second, err := alice.EnableRoomEncryption(ctx, plain)
	require.NoError(t, err)
	assert.True(t, first.EnabledAt.Equal(second.EnabledAt), "enabling twice changes nothing")

	status, err := alice.RoomStatus(ctx, plain)
	require.NoError(t, err)
	assert.True(t, status.Room.Encrypted)
	assert.NotEmpty(t, status.SessionID, "enabling creates the first outbound session")
}

func TestBlockingDeviceRotatesRoom(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	bob := newClient(t, "@bob:example.org", "B1", Options{})
	bob.know(t, alice)

	msg, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{bob.claim(t)}, []byte("before"))
	require.NoError(t, err)
	bob.deliver(t, msg)

	_, err = alice.SetDeviceTrust(ctx, bob.dev.Key(), domain.TrustBlocked)
	require.NoError(t, err)
	status, err := alice.RoomStatus(ctx, room)
	require.NoError(t, err)
	assert.True(t, status.Rotated)

	after, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{{Device: bob.dev}}, []byte("after"))
	require.NoError(t, err)
	assert.NotEqual(t, msg.Event.SessionID, after.Event.SessionID)
	assert.Empty(t, after.Shares)
	require.Len(t, after.Withheld, 1)

	_, err = bob.DecryptRoomEvent(ctx, after.Event)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownSession)
	dec, err := bob.DecryptRoomEvent(ctx, msg.Event)
	require.NoError(t, err)
	assert.Equal(t, "before", dec.Text())
}

func TestRemoveRoomMember(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	bob := newClient(t, "@bob:example.org", "B1", Options{})
	carol := newClient(t, "@carol:example.org", "C1", Options{})
	bob.know(t, alice)
	carol.know(t, alice)

	msg, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{bob.claim(t), carol.claim(t)}, []byte("all"))
	require.NoError(t, err)
	require.Len(t, msg.Shares, 2)
	bob.deliver(t, msg)
	carol.deliver(t, msg)

	require.NoError(t, alice.RemoveRoomMember(ctx, room, "@bob:example.org"))
	after, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{{Device: carol.dev}}, []byte("without bob"))
	require.NoError(t, err)
	require.Len(t, after.Shares, 1, "the new key goes to the remaining member over the existing session")
	carol.deliver(t, after)

	dec, err := carol.DecryptRoomEvent(ctx, after.Event)
	require.NoError(t, err)
	assert.Equal(t, "without bob", dec.Text())
	_, err = bob.DecryptRoomEvent(ctx, after.Event)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownSession)
}

func TestEncryptForRoom_RotatesWhenHolderLeaves(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	bob := newClient(t, "@bob:example.org", "B1", Options{})
	carol := newClient(t, "@carol:example.org", "C1", Options{})
	bob.know(t, alice)
	carol.know(t, alice)

	msg, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{bob.claim(t), carol.claim(t)}, []byte("all"))
	require.NoError(t, err)
	bob.deliver(t, msg)
	carol.deliver(t, msg)

	// bob drops out of the member list without an explicit removal.
	after, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{{Device: carol.dev}}, []byte("secret without bob"))
	require.NoError(t, err)
	assert.NotEqual(t, msg.Event.SessionID, after.Event.SessionID)
	require.Len(t, after.Departed, 1)
	assert.Equal(t, bob.dev.Key(), after.Departed[0].Key())
	require.Len(t, after.Shares, 1)
	carol.deliver(t, after)

	_, err = bob.DecryptRoomEvent(ctx, after.Event)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownSession)
	dec, err := carol.DecryptRoomEvent(ctx, after.Event)
	require.NoError(t, err)
	assert.Equal(t, "secret without bob", dec.Text())

	status, err := alice.RoomStatus(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, after.Event.SessionID, status.SessionID)
	assert.Equal(t, 1, status.SharedWith)
}

func TestImportRoomKeyShare_EnvelopeMismatch(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	bob := newClient(t, "@bob:example.org", "B1", Options{})
	bob.know(t, alice)

	msg, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{bob.claim(t)}, []byte("waiting"))
	require.NoError(t, err)
	_, err = bob.DecryptRoomEvent(ctx, msg.Event)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownSession)
	require.Equal(t, 1, bob.PendingEvents())

	forged := msg.Shares[0].Event
	forged.SessionID = "some-other-session"
	retried, err := bob.ImportRoomKeyShare(ctx, forged)
	require.ErrorIs(t, err, cryptoerrors.ErrDecryption)
	assert.Empty(t, retried)
	assert.Equal(t, 1, bob.PendingEvents(), "pending events are not retried")

	_, err = bob.DecryptRoomEvent(ctx, msg.Event)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownSession, "the wrapped key was not imported")
}

func TestDeviceMessages(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	bob := newClient(t, "@bob:example.org", "B1", Options{})

	type ping struct {
		Seq int `json:"seq"`
	}
	out, err := alice.EncryptForDevice(ctx, bob.claim(t), "org.example.ping", ping{Seq: 7})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypePreKey, out.Type)

	in := domain.DeviceMessage{
		SenderUserID:   out.SenderUserID,
		SenderDeviceID: out.SenderDeviceID,
		Type:           out.Type,
		Ciphertext:     out.Ciphertext,
	}
	_, err = bob.DecryptDeviceMessage(ctx, in)
	require.ErrorIs(t, err, cryptoerrors.ErrUnknownDevice, "senders must be tracked first")

	bob.know(t, alice)
	res, err := bob.DecryptDeviceMessage(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "org.example.ping", res.Payload.Type)
	assert.JSONEq(t, `{"seq":7}`, string(res.Payload.Content))

	reply, err := bob.EncryptForDevice(ctx, domain.Recipient{Device: alice.dev}, "org.example.pong", ping{Seq: 8})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeMessage, reply.Type)
	alice.know(t, bob)
	res, err = alice.DecryptDeviceMessage(ctx, domain.DeviceMessage{
		SenderUserID: reply.SenderUserID, SenderDeviceID: reply.SenderDeviceID,
		Type: reply.Type, Ciphertext: reply.Ciphertext,
	})
	require.NoError(t, err)
	assert.Equal(t, "org.example.pong", res.Payload.Type)
}

func TestDecryptRoomEvent_SenderMismatch(t *testing.T) {
	ctx := context.Background()
	alice := newClient(t, "@alice:example.org", "A1", Options{})
	bob := newClient(t, "@bob:example.org", "B1", Options{})
	bob.know(t, alice)

	msg, err := alice.EncryptForRoom(ctx, room, []domain.Recipient{bob.claim(t)}, []byte("mine"))
	require.NoError(t, err)
	bob.deliver(t, msg)

	forged := msg.Event
	forged.SenderUserID = "@mallory:example.org"
	dec, err := bob.DecryptRoomEvent(ctx, forged)
	require.ErrorIs(t, err, cryptoerrors.ErrDecryption)
	assert.True(t, dec.Undecryptable)
}

package facade

import (
	"context"
	"encoding/base64"

	"roomcrypt/internal/domain"
	cryptoerrors "roomcrypt/pkg/errors"
)

// UndecryptablePlaceholder is what an undecryptable room event renders as.
const UndecryptablePlaceholder = "** Unable to decrypt message **"

// RoomMessage is an encrypted room event plus the key shares the transport
// must deliver before it.
type RoomMessage struct {
	Event    domain.RoomEvent          `json:"event"`
	Shares   []domain.OutboundKeyShare `json:"shares,omitempty"`
	Withheld []domain.DeviceIdentity   `json:"withheld,omitempty"`
	Missing  []domain.DeviceIdentity   `json:"missing,omitempty"`
	// Departed devices held the previous room key and are no longer
	// recipients; the key was rotated before encrypting.
	Departed []domain.DeviceIdentity `json:"departed,omitempty"`
}

// DecryptedEvent is the result of decrypting a room event.
type DecryptedEvent struct {
	Event         domain.RoomEvent      `json:"event"`
	Plaintext     []byte                `json:"plaintext,omitempty"`
	Sender        domain.DeviceIdentity `json:"sender"`
	Undecryptable bool                  `json:"undecryptable"`
}

// Text returns the plaintext, or the placeholder for an undecryptable event.
func (e DecryptedEvent) Text() string {
	if e.Undecryptable {
		return UndecryptablePlaceholder
	}
	return string(e.Plaintext)
}

// RoomStatus summarises the encryption state of a room.
type RoomStatus struct {
	Room         domain.RoomRecord `json:"room"`
	SessionID    domain.SessionID  `json:"session_id,omitempty"`
	MessageIndex uint32            `json:"message_index"`
	MessageCount uint32            `json:"message_count"`
	SharedWith   int               `json:"shared_with"`
	Rotated      bool              `json:"rotated"`
}

// EnableRoomEncryption turns encryption on for room and creates its first
// outbound session. It is idempotent and cannot be undone.
func (f *Facade) EnableRoomEncryption(ctx context.Context, room domain.RoomID) (domain.RoomRecord, error) {
	const op = "facade.EnableRoomEncryption"
	if room == "" {
		return domain.RoomRecord{}, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op, "empty room id")
	}
	defer f.locks.Lock(string(room))()

	rec, ok, err := f.rooms.LoadRoom(ctx, room)
	if err != nil {
		return domain.RoomRecord{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if ok && rec.Encrypted {
		return rec, nil
	}
	rec = domain.RoomRecord{
		RoomID:    room,
		Encrypted: true,
		Algorithm: domain.AlgorithmGroupV1,
		EnabledAt: f.now().UTC(),
	}
	if err := f.rooms.SaveRoom(ctx, rec); err != nil {
		return domain.RoomRecord{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if _, err := f.group.GetOrCreateOutbound(ctx, room); err != nil {
		return domain.RoomRecord{}, err
	}
	f.log.Info("room encryption enabled", "room", room)
	return rec, nil
}

// IsRoomEncrypted reports whether encryption was enabled for room.
func (f *Facade) IsRoomEncrypted(ctx context.Context, room domain.RoomID) (bool, error) {
	rec, ok, err := f.rooms.LoadRoom(ctx, room)
	if err != nil {
		return false, cryptoerrors.Wrap(cryptoerrors.KindPersistence, "facade.IsRoomEncrypted", err)
	}
	return ok && rec.Encrypted, nil
}

func (f *Facade) requireEncrypted(ctx context.Context, op string, room domain.RoomID) error {
	ok, err := f.IsRoomEncrypted(ctx, room)
	if err != nil {
		return err
	}
	if !ok {
		return cryptoerrors.New(cryptoerrors.KindRoomNotEncrypted, op, "room "+string(room)+" is not encrypted")
	}
	return nil
}

// RoomStatus reports the room record and its current outbound session.
func (f *Facade) RoomStatus(ctx context.Context, room domain.RoomID) (RoomStatus, error) {
	const op = "facade.RoomStatus"
	rec, ok, err := f.rooms.LoadRoom(ctx, room)
	if err != nil {
		return RoomStatus{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if !ok {
		return RoomStatus{Room: domain.RoomRecord{RoomID: room}}, nil
	}
	st := RoomStatus{Room: rec}
	sess, ok, err := f.group.OutboundSession(ctx, room)
	if err != nil {
		return RoomStatus{}, err
	}
	if ok {
		st.SessionID = sess.SessionID
		st.MessageIndex = sess.MessageIndex
		st.MessageCount = sess.MessageCount
		st.SharedWith = len(sess.SharedWith)
		st.Rotated = sess.Rotated
	}
	return st, nil
}

// EncryptForRoom encrypts plaintext for room. The room key is shared first
// with every eligible recipient that does not hold it yet; the returned
// shares must be delivered before the event. recipients is the room's full
// membership: a key holder left out of it forces a new room key.
func (f *Facade) EncryptForRoom(
	ctx context.Context,
	room domain.RoomID,
	recipients []domain.Recipient,
	plaintext []byte,
) (RoomMessage, error) {
	const op = "facade.EncryptForRoom"
	defer f.locks.Lock(string(room))()
	if err := f.requireEncrypted(ctx, op, room); err != nil {
		return RoomMessage{}, err
	}

	res, err := f.share(ctx, room, recipients)
	if err != nil {
		return RoomMessage{}, err
	}
	ct, err := f.group.Encrypt(ctx, room, plaintext)
	if err != nil {
		return RoomMessage{}, err
	}
	if ct.SessionID != res.SessionID {
		f.log.Warn("room key changed between share and encrypt", "room", room,
			"shared", res.SessionID, "used", ct.SessionID)
	}
	return RoomMessage{
		Event: domain.RoomEvent{
			RoomID:         room,
			SenderUserID:   f.local.UserID,
			SenderDeviceID: f.local.DeviceID,
			SessionID:      ct.SessionID,
			Algorithm:      domain.AlgorithmGroupV1,
			Ciphertext:     base64.StdEncoding.EncodeToString(ct.Ciphertext),
			MessageIndex:   ct.MessageIndex,
		},
		Shares:   res.Shares,
		Withheld: res.Withheld,
		Missing:  res.Missing,
		Departed: res.Departed,
	}, nil
}

// ShareRoomKey shares the room's current key with recipients without
// sending a message. As with EncryptForRoom, recipients is the full
// membership.
func (f *Facade) ShareRoomKey(ctx context.Context, room domain.RoomID, recipients []domain.Recipient) (domain.KeyShareResult, error) {
	defer f.locks.Lock(string(room))()
	if err := f.requireEncrypted(ctx, "facade.ShareRoomKey", room); err != nil {
		return domain.KeyShareResult{}, err
	}
	return f.share(ctx, room, recipients)
}

func (f *Facade) share(ctx context.Context, room domain.RoomID, recipients []domain.Recipient) (domain.KeyShareResult, error) {
	devs := make([]domain.DeviceIdentity, 0, len(recipients))
	for _, r := range recipients {
		if r.Device.Key() != f.local {
			devs = append(devs, r.Device)
		}
	}
	if _, err := f.trust.TrackDevices(ctx, devs); err != nil {
		return domain.KeyShareResult{}, err
	}
	return f.group.ShareRoomKey(ctx, room, recipients)
}

// DecryptRoomEvent decrypts a room event. On failure the event comes back
// marked undecryptable together with the error; events whose key has not
// arrived yet are kept and retried when it does.
func (f *Facade) DecryptRoomEvent(ctx context.Context, ev domain.RoomEvent) (DecryptedEvent, error) {
	const op = "facade.DecryptRoomEvent"
	out := DecryptedEvent{Event: ev, Undecryptable: true}
	if err := f.requireEncrypted(ctx, op, ev.RoomID); err != nil {
		return out, err
	}
	if ev.Algorithm != "" && ev.Algorithm != domain.AlgorithmGroupV1 {
		return out, cryptoerrors.New(cryptoerrors.KindDecryption, op, "unsupported algorithm "+ev.Algorithm)
	}
	ct, err := base64.StdEncoding.DecodeString(ev.Ciphertext)
	if err != nil {
		return out, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
	}

	pt, err := f.group.Decrypt(ctx, ev.RoomID, ev.SessionID, ct, ev.MessageIndex)
	if err != nil {
		if cryptoerrors.KindOf(err) == cryptoerrors.KindUnknownSession {
			if dropped := f.pending.Add(ev); dropped != nil {
				f.log.Warn("pending queue full, dropped room event", "room", dropped.RoomID,
					"session_id", dropped.SessionID, "index", dropped.MessageIndex)
			}
		}
		f.log.Debug("room event undecryptable", "room", ev.RoomID, "session_id", ev.SessionID,
			"index", ev.MessageIndex, "err", err)
		return out, err
	}
	if pt.Sender.UserID != ev.SenderUserID || pt.Sender.DeviceID != ev.SenderDeviceID {
		return out, cryptoerrors.New(cryptoerrors.KindDecryption, op,
			"session "+string(ev.SessionID)+" does not belong to the event sender")
	}
	return DecryptedEvent{Event: ev, Plaintext: pt.Plaintext, Sender: pt.Sender}, nil
}

// RotateOutboundSession retires the room's outbound session.
func (f *Facade) RotateOutboundSession(ctx context.Context, room domain.RoomID, reason domain.RotationReason) error {
	defer f.locks.Lock(string(room))()
	return f.group.RotateOutbound(ctx, room, reason)
}

// RemoveRoomMember rotates the room's session after user left, so the
// departed member cannot read later messages.
func (f *Facade) RemoveRoomMember(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if err := f.RotateOutboundSession(ctx, room, domain.RotationMembershipChange); err != nil {
		return err
	}
	f.log.Info("member left, room key rotated", "room", room, "user", user)
	return nil
}

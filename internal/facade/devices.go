package facade

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"roomcrypt/internal/domain"
	"roomcrypt/internal/services/pairwise"
	cryptoerrors "roomcrypt/pkg/errors"
)

// DeviceMessageResult is a decrypted device message. Retried holds the room
// events that became readable because the message carried their key.
type DeviceMessageResult struct {
	Payload domain.DevicePayload `json:"payload"`
	Retried []DecryptedEvent     `json:"retried,omitempty"`
}

// EncryptForDevice wraps content of the given type for one device over its
// pairwise session, establishing the session from a claimed prekey when
// needed.
func (f *Facade) EncryptForDevice(
	ctx context.Context,
	recipient domain.Recipient,
	typ string,
	content any,
) (domain.OutboundDeviceMessage, error) {
	if _, err := f.trust.TrackDevices(ctx, []domain.DeviceIdentity{recipient.Device}); err != nil {
		return domain.OutboundDeviceMessage{}, err
	}
	local, err := f.keyring.LocalDevice(ctx)
	if err != nil {
		return domain.OutboundDeviceMessage{}, err
	}
	payload, err := pairwise.SealPayload(local, recipient.Device, typ, content)
	if err != nil {
		return domain.OutboundDeviceMessage{}, err
	}
	msg, err := f.pairwise.EncryptTo(ctx, recipient, payload)
	if err != nil {
		return domain.OutboundDeviceMessage{}, err
	}
	return domain.OutboundDeviceMessage{
		RecipientUserID:   recipient.Device.UserID,
		RecipientDeviceID: recipient.Device.DeviceID,
		SenderUserID:      local.UserID,
		SenderDeviceID:    local.DeviceID,
		Type:              msg.Type,
		Ciphertext:        base64.StdEncoding.EncodeToString(msg.Body),
	}, nil
}

// DecryptDeviceMessage decrypts a device message from a tracked device.
// Room keys it carries are imported right away.
func (f *Facade) DecryptDeviceMessage(ctx context.Context, msg domain.DeviceMessage) (DeviceMessageResult, error) {
	const op = "facade.DecryptDeviceMessage"
	sender, payload, err := f.openDeviceMessage(ctx, op, msg)
	if err != nil {
		return DeviceMessageResult{}, err
	}
	res := DeviceMessageResult{Payload: payload}
	if payload.Type != domain.PayloadTypeRoomKey {
		return res, nil
	}
	var content domain.RoomKeyContent
	if err := json.Unmarshal(payload.Content, &content); err != nil {
		return res, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
	}
	res.Retried, err = f.importRoomKey(ctx, sender, content)
	return res, err
}

// ImportRoomKeyShare unwraps a key share event and imports the room key.
// The wrapped key must name the room and session of its envelope; nothing is
// imported otherwise.
func (f *Facade) ImportRoomKeyShare(ctx context.Context, ev domain.RoomKeyShareEvent) ([]DecryptedEvent, error) {
	const op = "facade.ImportRoomKeyShare"
	sender, payload, err := f.openDeviceMessage(ctx, op, domain.DeviceMessage{
		SenderUserID:   ev.SenderUserID,
		SenderDeviceID: ev.SenderDeviceID,
		Type:           ev.EncryptedSessionKey.Type,
		Ciphertext:     ev.EncryptedSessionKey.Ciphertext,
	})
	if err != nil {
		return nil, err
	}
	if payload.Type != domain.PayloadTypeRoomKey {
		return nil, cryptoerrors.New(cryptoerrors.KindDecryption, op, "key share carries a "+payload.Type+" payload")
	}
	var content domain.RoomKeyContent
	if err := json.Unmarshal(payload.Content, &content); err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
	}
	if content.RoomID != ev.RoomID || content.SessionID != ev.SessionID {
		return nil, cryptoerrors.New(cryptoerrors.KindDecryption, op, "key share does not match its envelope")
	}
	return f.importRoomKey(ctx, sender, content)
}

// openDeviceMessage decrypts msg and checks the payload binding. It imports
// nothing.
func (f *Facade) openDeviceMessage(ctx context.Context, op string, msg domain.DeviceMessage) (domain.DeviceIdentity, domain.DevicePayload, error) {
	sender, err := f.trust.Device(ctx, domain.DeviceKey{UserID: msg.SenderUserID, DeviceID: msg.SenderDeviceID})
	if err != nil {
		return domain.DeviceIdentity{}, domain.DevicePayload{}, err
	}
	body, err := base64.StdEncoding.DecodeString(msg.Ciphertext)
	if err != nil {
		return domain.DeviceIdentity{}, domain.DevicePayload{}, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
	}
	pt, err := f.pairwise.DecryptFrom(ctx, sender, domain.CipherMessage{Type: msg.Type, Body: body})
	if err != nil {
		return domain.DeviceIdentity{}, domain.DevicePayload{}, err
	}
	local, err := f.keyring.LocalDevice(ctx)
	if err != nil {
		return domain.DeviceIdentity{}, domain.DevicePayload{}, err
	}
	payload, err := pairwise.OpenPayload(pt, sender, local)
	if err != nil {
		return domain.DeviceIdentity{}, domain.DevicePayload{}, err
	}
	return sender, payload, nil
}

// importRoomKey stores a received room key and retries the events that were
// waiting for it.
func (f *Facade) importRoomKey(ctx context.Context, sender domain.DeviceIdentity, content domain.RoomKeyContent) ([]DecryptedEvent, error) {
	const op = "facade.importRoomKey"
	if content.Algorithm != domain.AlgorithmGroupV1 {
		return nil, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op, "unsupported algorithm "+content.Algorithm)
	}
	if _, err := f.group.ImportInbound(ctx, content.RoomID, sender,
		content.SessionID, content.SessionKey, content.ChainIndex); err != nil {
		return nil, err
	}

	waiting := f.pending.Take(content.RoomID, content.SessionID)
	out := make([]DecryptedEvent, 0, len(waiting))
	for _, ev := range waiting {
		dec, err := f.DecryptRoomEvent(ctx, ev)
		if err != nil {
			f.log.Warn("retried room event still undecryptable", "room", ev.RoomID,
				"session_id", ev.SessionID, "index", ev.MessageIndex, "err", err)
		}
		out = append(out, dec)
	}
	return out, nil
}

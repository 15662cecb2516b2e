package pairwise

import (
	"encoding/json"

	"roomcrypt/internal/domain"
	cryptoerrors "roomcrypt/pkg/errors"
)

// SealPayload builds the plaintext of a device message: content of the given
// type with both endpoints bound in.
func SealPayload(sender, recipient domain.DeviceIdentity, typ string, content any) ([]byte, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindInvalidArgument, "pairwise.SealPayload", err)
	}
	return json.Marshal(domain.DevicePayload{
		Type:            typ,
		Sender:          sender.UserID,
		SenderDevice:    sender.DeviceID,
		SenderKey:       sender.Ed25519,
		Recipient:       recipient.UserID,
		RecipientDevice: recipient.DeviceID,
		RecipientKey:    recipient.Ed25519,
		Content:         raw,
	})
}

// OpenPayload parses a decrypted device message and checks that it was
// written by sender for local.
func OpenPayload(plaintext []byte, sender, local domain.DeviceIdentity) (domain.DevicePayload, error) {
	const op = "pairwise.OpenPayload"
	var p domain.DevicePayload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return domain.DevicePayload{}, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
	}
	switch {
	case p.Sender != sender.UserID || p.SenderDevice != sender.DeviceID || p.SenderKey != sender.Ed25519:
		return domain.DevicePayload{}, cryptoerrors.New(cryptoerrors.KindDecryption, op,
			"payload sender does not match "+sender.Key().String())
	case p.Recipient != local.UserID || p.RecipientDevice != local.DeviceID || p.RecipientKey != local.Ed25519:
		return domain.DevicePayload{}, cryptoerrors.New(cryptoerrors.KindDecryption, op,
			"payload was addressed to another device")
	}
	return p, nil
}

package megolm

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
)

const (
	sessionKeyVersion byte = 2
	sessionKeyBody         = 1 + 4 + RatchetSize + 32
	sessionKeySize         = sessionKeyBody + ed25519.SignatureSize
)

var ErrBadSessionKey = errors.New("megolm: malformed or forged session key")

// ExportSessionKey serializes r and the session's public signing key, signed
// by the session key itself, as unpadded base64.
func ExportSessionKey(r Ratchet, signing domain.Ed25519Private) string {
	pub := crypto.Ed25519PublicFromPrivate(signing)
	out := make([]byte, 0, sessionKeySize)
	out = append(out, sessionKeyVersion)
	out = binary.BigEndian.AppendUint32(out, r.counter)
	out = append(out, r.bytes()...)
	out = append(out, pub[:]...)
	out = append(out, crypto.SignEd25519(signing, out)...)
	return crypto.B64(out)
}

// ParseSessionKey decodes and verifies an exported session key.
func ParseSessionKey(s string) (Ratchet, domain.Ed25519Public, error) {
	var pub domain.Ed25519Public
	raw, err := crypto.UnB64(s)
	if err != nil || len(raw) != sessionKeySize || raw[0] != sessionKeyVersion {
		return Ratchet{}, pub, ErrBadSessionKey
	}
	copy(pub[:], raw[5+RatchetSize:sessionKeyBody])
	if !crypto.VerifyEd25519(pub, raw[:sessionKeyBody], raw[sessionKeyBody:]) {
		return Ratchet{}, pub, ErrBadSessionKey
	}

	var r Ratchet
	r.counter = binary.BigEndian.Uint32(raw[1:5])
	r.setBytes(raw[5 : 5+RatchetSize])
	return r, pub, nil
}

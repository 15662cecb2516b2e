package megolm

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
	"roomcrypt/internal/util/memzero"
)

var (
	ErrAuth         = errors.New("megolm: message authentication failed")
	ErrBadSignature = errors.New("megolm: message signature does not verify")
	ErrTooShort     = errors.New("megolm: ciphertext too short")
)

var keyInfo = []byte("MEGOLM_KEYS")

// SessionID is the unpadded base64 of the session signing key.
func SessionID(pub domain.Ed25519Public) domain.SessionID {
	return domain.SessionID(crypto.B64(pub[:]))
}

// AssociatedData binds a ciphertext to its room, session and index.
func AssociatedData(room domain.RoomID, session domain.SessionID, index uint32) []byte {
	out := make([]byte, 0, len(room)+len(session)+16)
	out = binary.BigEndian.AppendUint32(out, uint32(len(room)))
	out = append(out, room...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(session)))
	out = append(out, session...)
	out = binary.BigEndian.AppendUint32(out, index)
	return out
}

// Seal encrypts plaintext with the key at r's current index and signs the
// result. It does not advance r.
func Seal(r *Ratchet, signing domain.Ed25519Private, ad, plaintext []byte) ([]byte, error) {
	key, nonce := messageKeys(r)
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, ad)
	sig := crypto.SignEd25519(signing, signedBytes(ad, ct))
	return append(ct, sig...), nil
}

// Open verifies and decrypts a message sealed at r's current index.
func Open(r *Ratchet, signer domain.Ed25519Public, ad, sealed []byte) ([]byte, error) {
	if len(sealed) < ed25519.SignatureSize+chacha20poly1305.Overhead {
		return nil, ErrTooShort
	}
	split := len(sealed) - ed25519.SignatureSize
	ct, sig := sealed[:split], sealed[split:]
	if !crypto.VerifyEd25519(signer, signedBytes(ad, ct), sig) {
		return nil, ErrBadSignature
	}

	key, nonce := messageKeys(r)
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ct, ad)
	if err != nil {
		return nil, ErrAuth
	}
	return pt, nil
}

func signedBytes(ad, ct []byte) []byte {
	out := make([]byte, 0, len(ad)+len(ct))
	out = append(out, ad...)
	return append(out, ct...)
}

func messageKeys(r *Ratchet) (key, nonce []byte) {
	secret := r.bytes()
	defer memzero.Zero(secret)

	kdf := hkdf.New(sha256.New, secret, make([]byte, sha256.Size), keyInfo)
	key = make([]byte, chacha20poly1305.KeySize)
	nonce = make([]byte, chacha20poly1305.NonceSize)
	_, _ = io.ReadFull(kdf, key)
	_, _ = io.ReadFull(kdf, nonce)
	return key, nonce
}

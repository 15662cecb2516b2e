package ratchet

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
	"roomcrypt/internal/util/memzero"
)

const (
	aeadKeySize = 32
	nonceSize   = chacha20poly1305.NonceSize

	// MaxSkip bounds how far one message may jump ahead in a chain.
	MaxSkip = 1000
	// maxSkippedMK bounds the cache of skipped message keys across chains.
	maxSkippedMK = 1000
)

var (
	// ErrDesync reports a message behind the receiving chain whose key is
	// no longer cached.
	ErrDesync = errors.New("ratchet: message key already used or evicted")
	// ErrTooManySkipped reports a gap larger than MaxSkip.
	ErrTooManySkipped = errors.New("ratchet: too many skipped messages")
	// ErrAuth reports an authentication failure.
	ErrAuth = errors.New("ratchet: message authentication failed")

	errChainUninitialised = errors.New("ratchet: chain key is uninitialised")
)

// InitAsInitiator seeds the sending chain from the handshake secret, a fresh
// ratchet key, and the responder's first ratchet key (its one-time prekey).
func InitAsInitiator(sharedSecret []byte, peerRatchetKey domain.X25519Public) (domain.RatchetState, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.RatchetState{}, err
	}
	dh, err := crypto.DH(priv, peerRatchetKey)
	if err != nil {
		return domain.RatchetState{}, err
	}
	rk, sendCK := kdfRK(sharedSecret, dh[:])
	memzero.Zero(dh[:])

	return domain.RatchetState{
		RootKey:   rk,
		DHPriv:    priv,
		DHPub:     pub,
		PeerDHPub: peerRatchetKey,
		SendCK:    sendCK,
	}, nil
}

// InitAsResponder seeds the state from the handshake secret and our one-time
// prekey pair. The chains start on the first received message.
func InitAsResponder(sharedSecret []byte, ourPriv domain.X25519Private, ourPub domain.X25519Public) domain.RatchetState {
	return domain.RatchetState{
		RootKey: bytes.Clone(sharedSecret),
		DHPriv:  ourPriv,
		DHPub:   ourPub,
	}
}

// Encrypt produces a header and ciphertext and advances the sending chain.
func Encrypt(st *domain.RatchetState, ad, plaintext []byte) (domain.RatchetHeader, []byte, error) {
	next := Clone(*st)
	if len(next.SendCK) == 0 {
		return domain.RatchetHeader{}, nil, errChainUninitialised
	}

	nextCK, mk := kdfCK(next.SendCK)
	next.SendCK = nextCK
	h := domain.RatchetHeader{DHPub: next.DHPub, PN: next.PN, N: next.Ns}

	ct, err := seal(mk, h, ad, plaintext)
	memzero.Zero(mk)
	if err != nil {
		return domain.RatchetHeader{}, nil, err
	}
	next.Ns++
	*st = next
	return h, ct, nil
}

// Decrypt handles skipped keys, does a DH ratchet step on a new remote
// ratchet key, then opens the message.
func Decrypt(st *domain.RatchetState, ad []byte, header domain.RatchetHeader, ciphertext []byte) ([]byte, error) {
	next := Clone(*st)

	if i := findSkipped(next.Skipped, header.DHPub, header.N); i >= 0 {
		pt, err := open(next.Skipped[i].Key, header, ad, ciphertext)
		if err != nil {
			return nil, ErrAuth
		}
		memzero.Zero(next.Skipped[i].Key)
		next.Skipped = append(next.Skipped[:i], next.Skipped[i+1:]...)
		*st = next
		return pt, nil
	}

	if header.DHPub != next.PeerDHPub || len(next.RecvCK) == 0 {
		if len(next.RecvCK) > 0 {
			if err := skipUntil(&next, header.PN); err != nil {
				return nil, err
			}
		}
		if err := dhRatchet(&next, header.DHPub); err != nil {
			return nil, err
		}
	}

	if err := skipUntil(&next, header.N); err != nil {
		return nil, err
	}

	nextCK, mk := kdfCK(next.RecvCK)
	next.RecvCK = nextCK
	pt, err := open(mk, header, ad, ciphertext)
	memzero.Zero(mk)
	if err != nil {
		return nil, ErrAuth
	}
	next.Nr++
	*st = next
	return pt, nil
}

// Clone returns a deep copy of st.
func Clone(st domain.RatchetState) domain.RatchetState {
	out := st
	out.RootKey = bytes.Clone(st.RootKey)
	out.SendCK = bytes.Clone(st.SendCK)
	out.RecvCK = bytes.Clone(st.RecvCK)
	if st.Skipped != nil {
		out.Skipped = make([]domain.SkippedKey, len(st.Skipped))
		for i, sk := range st.Skipped {
			out.Skipped[i] = domain.SkippedKey{DHPub: sk.DHPub, N: sk.N, Key: bytes.Clone(sk.Key)}
		}
	}
	return out
}

// Wipe zeroes the secrets held by st.
func Wipe(st *domain.RatchetState) {
	memzero.Zero(st.RootKey)
	memzero.Zero(st.SendCK)
	memzero.Zero(st.RecvCK)
	memzero.Zero(st.DHPriv[:])
	for _, sk := range st.Skipped {
		memzero.Zero(sk.Key)
	}
}

// --- helpers ---

func dhRatchet(st *domain.RatchetState, peer domain.X25519Public) error {
	dh, err := crypto.DH(st.DHPriv, peer)
	if err != nil {
		return ErrAuth
	}
	rk, recvCK := kdfRK(st.RootKey, dh[:])
	memzero.Zero(dh[:])

	newPriv, newPub, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	dh2, err := crypto.DH(newPriv, peer)
	if err != nil {
		return ErrAuth
	}
	rk2, sendCK := kdfRK(rk, dh2[:])
	memzero.Zero(dh2[:])

	st.PN = st.Ns
	st.Ns, st.Nr = 0, 0
	st.RootKey = rk2
	st.DHPriv, st.DHPub = newPriv, newPub
	st.PeerDHPub = peer
	st.SendCK, st.RecvCK = sendCK, recvCK
	return nil
}

// skipUntil derives and caches receiving keys up to n, evicting the oldest
// cached keys beyond the cap.
func skipUntil(st *domain.RatchetState, n uint32) error {
	if n < st.Nr {
		return ErrDesync
	}
	if n-st.Nr > MaxSkip {
		return ErrTooManySkipped
	}
	for st.Nr < n {
		nextCK, mk := kdfCK(st.RecvCK)
		st.RecvCK = nextCK
		st.Skipped = append(st.Skipped, domain.SkippedKey{DHPub: st.PeerDHPub, N: st.Nr, Key: mk})
		st.Nr++
	}
	if over := len(st.Skipped) - maxSkippedMK; over > 0 {
		for _, sk := range st.Skipped[:over] {
			memzero.Zero(sk.Key)
		}
		st.Skipped = append([]domain.SkippedKey(nil), st.Skipped[over:]...)
	}
	return nil
}

func findSkipped(skipped []domain.SkippedKey, dh domain.X25519Public, n uint32) int {
	for i := range skipped {
		if skipped[i].N == n && subtle.ConstantTimeCompare(skipped[i].DHPub[:], dh[:]) == 1 {
			return i
		}
	}
	return -1
}

func seal(mk []byte, header domain.RatchetHeader, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce(header), plaintext, associated(ad, header)), nil
}

func open(mk []byte, header domain.RatchetHeader, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce(header), ciphertext, associated(ad, header))
}

func nonce(h domain.RatchetHeader) []byte {
	n := make([]byte, nonceSize)
	binary.BigEndian.PutUint32(n[nonceSize-4:], h.N)
	return n
}

func associated(ad []byte, h domain.RatchetHeader) []byte {
	out := make([]byte, 0, len(ad)+len(h.DHPub)+8)
	out = append(out, ad...)
	out = append(out, h.DHPub[:]...)
	out = binary.BigEndian.AppendUint32(out, h.PN)
	out = binary.BigEndian.AppendUint32(out, h.N)
	return out
}

// HKDF-based KDFs with labels.
func kdfRK(rk, dh []byte) (newRK, ck []byte) {
	r := hkdf.New(sha256.New, dh, rk, []byte("DR|rk"))
	newRK = make([]byte, 32)
	ck = make([]byte, 32)
	_, _ = io.ReadFull(r, newRK)
	_, _ = io.ReadFull(r, ck)
	return
}

func kdfCK(ck []byte) (nextCK, mk []byte) {
	r := hkdf.New(sha256.New, ck, nil, []byte("DR|ck"))
	nextCK = make([]byte, 32)
	mk = make([]byte, 32)
	_, _ = io.ReadFull(r, nextCK)
	_, _ = io.ReadFull(r, mk)
	return
}

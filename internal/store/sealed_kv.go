package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"roomcrypt/internal/util/memzero"
)

const (
	// The current supported version of the sealed record format.
	sealedFormatVersion = 1

	sealedMetaKey = "meta/sealed"
	sealedCheck   = "roomcrypt sealed store"
)

// ErrWrongPassphrase is returned when the passphrase is incorrect or a record
// has been modified / corrupted.
var ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted record")

// KDF names the passphrase key derivation of a sealed keyspace.
type KDF string

const (
	KDFScrypt   KDF = "scrypt"
	KDFArgon2id KDF = "argon2id"
)

// sealedMeta is stored in the clear next to the records and holds the KDF
// parameters plus a check value sealed under the derived key. An empty KDF
// means scrypt.
type sealedMeta struct {
	V       int    `json:"v"`
	KDF     KDF    `json:"kdf,omitempty"`
	Salt    []byte `json:"salt"`
	N       int    `json:"scrypt_N,omitempty"`
	R       int    `json:"scrypt_r,omitempty"`
	P       int    `json:"scrypt_p,omitempty"`
	Time    uint32 `json:"argon2_time,omitempty"`
	Memory  uint32 `json:"argon2_memory,omitempty"`
	Threads uint8  `json:"argon2_threads,omitempty"`
	Check   []byte `json:"check"`
}

func (m sealedMeta) deriveKey(passphrase string) ([]byte, error) {
	switch m.KDF {
	case "", KDFScrypt:
		key, err := scrypt.Key([]byte(passphrase), m.Salt, m.N, m.R, m.P, chacha20poly1305.KeySize)
		return key, errors.Wrap(err, "derive key")
	case KDFArgon2id:
		if m.Time == 0 || m.Memory == 0 || m.Threads == 0 {
			return nil, errors.New("store: bad argon2id parameters")
		}
		return argon2.IDKey([]byte(passphrase), m.Salt, m.Time, m.Memory, m.Threads, chacha20poly1305.KeySize), nil
	}
	return nil, fmt.Errorf("store: unknown kdf %q", m.KDF)
}

// sealedRecord is the stored form of one value.
type sealedRecord struct {
	V      int    `json:"v"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// SealedKV encrypts every value of an inner KV with ChaCha20-Poly1305 under a
// key derived once from a passphrase. The record key is bound as associated
// data so ciphertexts cannot be swapped between records.
type SealedKV struct {
	inner KV
	key   []byte
}

// kdfDefaults are the parameters new keyspaces are created with.
func kdfDefaults(kdf KDF) (sealedMeta, error) {
	switch kdf {
	case "", KDFScrypt:
		return sealedMeta{KDF: KDFScrypt, N: 1 << 15, R: 8, P: 1}, nil
	case KDFArgon2id:
		return sealedMeta{KDF: KDFArgon2id, Time: 1, Memory: 64 * 1024, Threads: 4}, nil
	}
	return sealedMeta{}, fmt.Errorf("store: unknown kdf %q", kdf)
}

// NewSealedKV opens (or initialises) the sealed keyspace of inner. kdf only
// applies to a new keyspace; an existing one keeps the KDF it was created
// with.
func NewSealedKV(ctx context.Context, inner KV, passphrase string, kdf KDF) (*SealedKV, error) {
	params, err := kdfDefaults(kdf)
	if err != nil {
		return nil, err
	}
	return newSealedKV(ctx, inner, passphrase, params)
}

func newSealedKV(ctx context.Context, inner KV, passphrase string, params sealedMeta) (*SealedKV, error) {
	if passphrase == "" {
		return nil, errors.New("store: empty passphrase")
	}

	raw, err := inner.Get(ctx, sealedMetaKey)
	switch {
	case errors.Is(err, ErrNotFound):
		return initSealed(ctx, inner, passphrase, params)
	case err != nil:
		return nil, err
	}

	var meta sealedMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(err, "decode sealed metadata")
	}
	if meta.V > sealedFormatVersion {
		return nil, fmt.Errorf("unsupported sealed store version %d", meta.V)
	}
	key, err := meta.deriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	s := &SealedKV{inner: inner, key: key}
	var rec sealedRecord
	if err := json.Unmarshal(meta.Check, &rec); err != nil {
		return nil, errors.Wrap(err, "decode sealed check")
	}
	if _, err := s.open(sealedMetaKey, rec); err != nil {
		memzero.Zero(key)
		return nil, ErrWrongPassphrase
	}
	return s, nil
}

func initSealed(ctx context.Context, inner KV, passphrase string, meta sealedMeta) (*SealedKV, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	meta.V = sealedFormatVersion
	meta.Salt = salt[:]
	key, err := meta.deriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	s := &SealedKV{inner: inner, key: key}
	if meta.Check, err = s.seal(sealedMetaKey, []byte(sealedCheck)); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := inner.Put(ctx, sealedMetaKey, raw); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SealedKV) seal(key string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(sealedRecord{
		V:      sealedFormatVersion,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, plaintext, []byte(key)),
	})
}

func (s *SealedKV) open(key string, rec sealedRecord) ([]byte, error) {
	if rec.V > sealedFormatVersion {
		return nil, fmt.Errorf("unsupported sealed record version %d", rec.V)
	}
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, err
	}
	if len(rec.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	pt, err := aead.Open(nil, rec.Nonce, rec.Cipher, []byte(key))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

func (s *SealedKV) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var rec sealedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrapf(err, "decode sealed %s", key)
	}
	return s.open(key, rec)
}

func (s *SealedKV) Put(ctx context.Context, key string, value []byte) error {
	b, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, key, b)
}

func (s *SealedKV) Delete(ctx context.Context, key string) error { return s.inner.Delete(ctx, key) }

func (s *SealedKV) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Close wipes the derived key and closes the inner store.
func (s *SealedKV) Close() error {
	memzero.Zero(s.key)
	return s.inner.Close()
}

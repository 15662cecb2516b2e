package types

import (
	"encoding/base64"
	"fmt"
)

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is unset.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

func (p X25519Public) MarshalText() ([]byte, error) { return encodeKey(p[:]), nil }

func (p *X25519Public) UnmarshalText(text []byte) error {
	return decodeKey(p[:], text, "x25519 public")
}

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

func (k X25519Private) MarshalText() ([]byte, error) { return encodeKey(k[:]), nil }

func (k *X25519Private) UnmarshalText(text []byte) error {
	return decodeKey(k[:], text, "x25519 private")
}

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is unset.
func (p Ed25519Public) IsZero() bool { return p == Ed25519Public{} }

func (p Ed25519Public) MarshalText() ([]byte, error) { return encodeKey(p[:]), nil }

func (p *Ed25519Public) UnmarshalText(text []byte) error {
	return decodeKey(p[:], text, "ed25519 public")
}

// Ed25519Private is an Ed25519 signing private key (ed25519.PrivateKey layout).
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

func (k Ed25519Private) MarshalText() ([]byte, error) { return encodeKey(k[:]), nil }

func (k *Ed25519Private) UnmarshalText(text []byte) error {
	return decodeKey(k[:], text, "ed25519 private")
}

// Keys travel as unpadded standard base64, the encoding Matrix uses for keys.
func encodeKey(b []byte) []byte {
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(b)))
	base64.RawStdEncoding.Encode(out, b)
	return out
}

func decodeKey(dst, text []byte, name string) error {
	buf := make([]byte, base64.RawStdEncoding.DecodedLen(len(text)))
	n, err := base64.RawStdEncoding.Decode(buf, text)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if n != len(dst) {
		return fmt.Errorf("%s: want %d bytes, got %d", name, len(dst), n)
	}
	copy(dst, buf[:n])
	return nil
}

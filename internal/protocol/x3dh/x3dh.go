package x3dh

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/domain"
	"roomcrypt/internal/util/memzero"
)

const sharedSecretSize = 32

var (
	ErrBadDevice = errors.New("x3dh: device self-signature does not verify")
	ErrBadPrekey = errors.New("x3dh: prekey signature does not verify")
	ErrBadPoint  = errors.New("x3dh: low-order public key")
)

var info = []byte("roomcrypt-x3dh-v1")

// Initiation is the initiator's view of a completed handshake.
type Initiation struct {
	SharedSecret []byte
	BaseKeyPriv  domain.X25519Private
	BaseKey      domain.X25519Public
	SessionID    domain.SessionID
}

// Initiate verifies the responder's identity and prekey, then derives the
// shared secret with a fresh base key.
func Initiate(
	local domain.Identity,
	remote domain.DeviceIdentity,
	prekey domain.OneTimePrekey,
) (Initiation, error) {
	if !crypto.VerifyDevice(remote) {
		return Initiation{}, ErrBadDevice
	}
	if !crypto.VerifyPrekey(remote.Ed25519, prekey) {
		return Initiation{}, ErrBadPrekey
	}

	ekPriv, ekPub, err := crypto.GenerateX25519()
	if err != nil {
		return Initiation{}, err
	}

	dh1, err := crypto.DH(local.XPriv, prekey.Curve25519) // DH(IKA, OTKB)
	if err != nil {
		return Initiation{}, ErrBadPoint
	}
	dh2, err := crypto.DH(ekPriv, remote.Curve25519) // DH(EKA, IKB)
	if err != nil {
		return Initiation{}, ErrBadPoint
	}
	dh3, err := crypto.DH(ekPriv, prekey.Curve25519) // DH(EKA, OTKB)
	if err != nil {
		return Initiation{}, ErrBadPoint
	}

	return Initiation{
		SharedSecret: derive(dh1, dh2, dh3),
		BaseKeyPriv:  ekPriv,
		BaseKey:      ekPub,
		SessionID:    SessionID(local.XPub, ekPub, prekey.Curve25519),
	}, nil
}

// Respond derives the shared secret on the responder side from the
// initiator's identity key, its base key and our one-time prekey.
func Respond(
	local domain.Identity,
	prekeyPriv domain.X25519Private,
	initiatorIdentity domain.X25519Public,
	baseKey domain.X25519Public,
) ([]byte, error) {
	dh1, err := crypto.DH(prekeyPriv, initiatorIdentity)
	if err != nil {
		return nil, ErrBadPoint
	}
	dh2, err := crypto.DH(local.XPriv, baseKey)
	if err != nil {
		return nil, ErrBadPoint
	}
	dh3, err := crypto.DH(prekeyPriv, baseKey)
	if err != nil {
		return nil, ErrBadPoint
	}
	return derive(dh1, dh2, dh3), nil
}

// SessionID names a pairwise session identically on both sides:
// unpadded base64 of SHA-256(IK_initiator | EK | OTK).
func SessionID(initiatorIdentity, baseKey, prekey domain.X25519Public) domain.SessionID {
	h := sha256.New()
	h.Write(initiatorIdentity[:])
	h.Write(baseKey[:])
	h.Write(prekey[:])
	return domain.SessionID(crypto.B64(h.Sum(nil)))
}

func derive(dhs ...[32]byte) []byte {
	transcript := make([]byte, 0, 32*len(dhs))
	for i := range dhs {
		transcript = append(transcript, dhs[i][:]...)
		memzero.Zero(dhs[i][:])
	}
	defer memzero.Zero(transcript)

	out := make([]byte, sharedSecretSize)
	r := hkdf.New(sha256.New, transcript, make([]byte, sha256.Size), info)
	_, _ = io.ReadFull(r, out)
	return out
}

package types

import (
	"encoding/binary"
	"time"
)

// deviceSignaturePrefix domain-separates device self-signatures.
const deviceSignaturePrefix = "roomcrypt-device-v1"

// Identity holds the local device's long-term X25519 and Ed25519 keys.
type Identity struct {
	UserID    UserID         `json:"user_id"`
	DeviceID  DeviceID       `json:"device_id"`
	XPub      X25519Public   `json:"xpub"`
	XPriv     X25519Private  `json:"xpriv"`
	EdPub     Ed25519Public  `json:"edpub"`
	EdPriv    Ed25519Private `json:"edpriv"`
	CreatedAt time.Time      `json:"created_at"`
}

// Key returns the device address of the identity.
func (id Identity) Key() DeviceKey { return DeviceKey{UserID: id.UserID, DeviceID: id.DeviceID} }

// DeviceIdentity is the public, self-signed identity of a device.
type DeviceIdentity struct {
	UserID     UserID        `json:"user_id"`
	DeviceID   DeviceID      `json:"device_id"`
	Curve25519 X25519Public  `json:"curve25519"`
	Ed25519    Ed25519Public `json:"ed25519"`
	Signature  []byte        `json:"signature"`
}

// Key returns the device address.
func (d DeviceIdentity) Key() DeviceKey { return DeviceKey{UserID: d.UserID, DeviceID: d.DeviceID} }

// SameKeys reports whether d and o carry the same long-term keys.
func (d DeviceIdentity) SameKeys(o DeviceIdentity) bool {
	return d.Curve25519 == o.Curve25519 && d.Ed25519 == o.Ed25519
}

// SignedBytes is the canonical encoding covered by Signature.
func (d DeviceIdentity) SignedBytes() []byte {
	out := make([]byte, 0, len(deviceSignaturePrefix)+8+len(d.UserID)+len(d.DeviceID)+64)
	out = append(out, deviceSignaturePrefix...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(d.UserID)))
	out = append(out, d.UserID...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(d.DeviceID)))
	out = append(out, d.DeviceID...)
	out = append(out, d.Curve25519[:]...)
	out = append(out, d.Ed25519[:]...)
	return out
}

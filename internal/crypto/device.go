package crypto

import (
	"roomcrypt/internal/domain"
)

const prekeySignaturePrefix = "roomcrypt-prekey-v1"

// PublicDevice returns the signed public identity of a local identity.
func PublicDevice(id domain.Identity) domain.DeviceIdentity {
	dev := domain.DeviceIdentity{
		UserID:     id.UserID,
		DeviceID:   id.DeviceID,
		Curve25519: id.XPub,
		Ed25519:    id.EdPub,
	}
	dev.Signature = SignEd25519(id.EdPriv, dev.SignedBytes())
	return dev
}

// VerifyDevice checks the self-signature of a device identity.
func VerifyDevice(dev domain.DeviceIdentity) bool {
	if dev.Curve25519.IsZero() || dev.Ed25519.IsZero() {
		return false
	}
	return VerifyEd25519(dev.Ed25519, dev.SignedBytes(), dev.Signature)
}

func prekeySignedBytes(id domain.PrekeyID, pub domain.X25519Public) []byte {
	out := make([]byte, 0, len(prekeySignaturePrefix)+len(id)+1+len(pub))
	out = append(out, prekeySignaturePrefix...)
	out = append(out, id...)
	out = append(out, 0)
	out = append(out, pub[:]...)
	return out
}

// SignPrekey signs a prekey's id and public key with the identity key.
func SignPrekey(priv domain.Ed25519Private, id domain.PrekeyID, pub domain.X25519Public) []byte {
	return SignEd25519(priv, prekeySignedBytes(id, pub))
}

// VerifyPrekey checks a prekey signature against the owner's signing key.
func VerifyPrekey(owner domain.Ed25519Public, pk domain.OneTimePrekey) bool {
	return VerifyEd25519(owner, prekeySignedBytes(pk.KeyID, pk.Curve25519), pk.Signature)
}

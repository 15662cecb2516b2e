package types

import "time"

// TrustState is the verification state of a remote device.
type TrustState string

const (
	TrustUnverified TrustState = "unverified"
	TrustVerified   TrustState = "verified"
	TrustBlocked    TrustState = "blocked"
)

// Valid reports whether s is one of the known states.
func (s TrustState) Valid() bool {
	switch s {
	case TrustUnverified, TrustVerified, TrustBlocked:
		return true
	}
	return false
}

// TrustRecord is the persisted trust state of one device.
type TrustRecord struct {
	UserID    UserID     `json:"user_id"`
	DeviceID  DeviceID   `json:"device_id"`
	State     TrustState `json:"trust_state"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SharePolicy is the caller-supplied key sharing policy.
type SharePolicy struct {
	RequireVerification bool `json:"require_verification"`
}

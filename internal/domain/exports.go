package domain

import (
	interfaces "roomcrypt/internal/domain/interfaces"
	types "roomcrypt/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID                = types.UserID
	DeviceID              = types.DeviceID
	RoomID                = types.RoomID
	SessionID             = types.SessionID
	PrekeyID              = types.PrekeyID
	Fingerprint           = types.Fingerprint
	DeviceKey             = types.DeviceKey
	X25519Public          = types.X25519Public
	X25519Private         = types.X25519Private
	Ed25519Public         = types.Ed25519Public
	Ed25519Private        = types.Ed25519Private
	Identity              = types.Identity
	DeviceIdentity        = types.DeviceIdentity
	OneTimePrekey         = types.OneTimePrekey
	PrekeyRecord          = types.PrekeyRecord
	RatchetHeader         = types.RatchetHeader
	RatchetState          = types.RatchetState
	SkippedKey            = types.SkippedKey
	Direction             = types.Direction
	PreKeyBootstrap       = types.PreKeyBootstrap
	PairwiseSession       = types.PairwiseSession
	MessageType           = types.MessageType
	CipherMessage         = types.CipherMessage
	RatchetMessage        = types.RatchetMessage
	PreKeyMessage         = types.PreKeyMessage
	Recipient             = types.Recipient
	DeviceMessage         = types.DeviceMessage
	OutboundDeviceMessage = types.OutboundDeviceMessage
	RoomEvent             = types.RoomEvent
	EncryptedKey          = types.EncryptedKey
	RoomKeyShareEvent     = types.RoomKeyShareEvent
	OutboundKeyShare      = types.OutboundKeyShare
	DevicePayload         = types.DevicePayload
	RoomKeyContent        = types.RoomKeyContent
	RotationReason        = types.RotationReason
	SharedDevice          = types.SharedDevice
	OutboundGroupSession  = types.OutboundGroupSession
	InboundGroupSession   = types.InboundGroupSession
	GroupCiphertext       = types.GroupCiphertext
	GroupPlaintext        = types.GroupPlaintext
	KeyShareResult        = types.KeyShareResult
	TrustState            = types.TrustState
	TrustRecord           = types.TrustRecord
	SharePolicy           = types.SharePolicy
	RoomRecord            = types.RoomRecord
)

// Constants re-exported from the types subpackage.
const (
	DirectionInbound  = types.DirectionInbound
	DirectionOutbound = types.DirectionOutbound

	MessageTypePreKey  = types.MessageTypePreKey
	MessageTypeMessage = types.MessageTypeMessage

	PayloadTypeRoomKey = types.PayloadTypeRoomKey

	RotationMembershipChange  = types.RotationMembershipChange
	RotationThresholdExceeded = types.RotationThresholdExceeded
	RotationManual            = types.RotationManual

	TrustUnverified = types.TrustUnverified
	TrustVerified   = types.TrustVerified
	TrustBlocked    = types.TrustBlocked
)

// Algorithm names carried in room events and key shares.
const (
	AlgorithmPairwiseV1 = "roomcrypt.olm.v1.curve25519-chacha20poly1305-sha2"
	AlgorithmGroupV1    = "roomcrypt.megolm.v1.chacha20poly1305-sha2"
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityStore     = interfaces.IdentityStore
	PrekeyStore       = interfaces.PrekeyStore
	SessionStore      = interfaces.SessionStore
	GroupSessionStore = interfaces.GroupSessionStore
	TrustStore        = interfaces.TrustStore
	DeviceStore       = interfaces.DeviceStore
	RoomStore         = interfaces.RoomStore
	IdentityKeyring   = interfaces.IdentityKeyring
	PairwiseSessions  = interfaces.PairwiseSessions
	TrustRegistry     = interfaces.TrustRegistry
)

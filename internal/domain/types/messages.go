package types

import "encoding/json"

// MessageType tags a pairwise ciphertext.
type MessageType int

const (
	// MessageTypePreKey carries the handshake parameters alongside the ratchet message.
	MessageTypePreKey MessageType = 0
	// MessageTypeMessage is a plain ratchet message.
	MessageTypeMessage MessageType = 1
)

// CipherMessage is the output of a pairwise encrypt.
type CipherMessage struct {
	Type MessageType `json:"type"`
	Body []byte      `json:"body"`
}

// RatchetMessage is the encoded body of a type 1 message.
type RatchetMessage struct {
	Header     RatchetHeader `json:"header"`
	Ciphertext []byte        `json:"ciphertext"`
}

// PreKeyMessage is the encoded body of a type 0 message.
type PreKeyMessage struct {
	IdentityKey  X25519Public   `json:"identity_key"`
	BaseKey      X25519Public   `json:"base_key"`
	OneTimeKeyID PrekeyID       `json:"one_time_key_id"`
	OneTimeKey   X25519Public   `json:"one_time_key"`
	Message      RatchetMessage `json:"message"`
}

// Recipient is a device to encrypt for, optionally with a freshly claimed
// prekey for devices we have no session with yet.
type Recipient struct {
	Device DeviceIdentity `json:"device"`
	Prekey *OneTimePrekey `json:"prekey,omitempty"`
}

// DeviceMessage is an inbound device-to-device message from the transport.
type DeviceMessage struct {
	SenderUserID   UserID      `json:"sender_user_id"`
	SenderDeviceID DeviceID    `json:"sender_device_id"`
	Type           MessageType `json:"type"`
	Ciphertext     string      `json:"ciphertext"`
}

// OutboundDeviceMessage is a device-to-device message for the transport to deliver.
type OutboundDeviceMessage struct {
	RecipientUserID   UserID      `json:"recipient_user_id"`
	RecipientDeviceID DeviceID    `json:"recipient_device_id"`
	SenderUserID      UserID      `json:"sender_user_id"`
	SenderDeviceID    DeviceID    `json:"sender_device_id"`
	Type              MessageType `json:"type"`
	Ciphertext        string      `json:"ciphertext"`
}

// RoomEvent is an encrypted room message, inbound or outbound.
type RoomEvent struct {
	RoomID         RoomID    `json:"room_id"`
	SenderUserID   UserID    `json:"sender_user_id"`
	SenderDeviceID DeviceID  `json:"sender_device_id"`
	SessionID      SessionID `json:"session_id"`
	Algorithm      string    `json:"algorithm,omitempty"`
	Ciphertext     string    `json:"ciphertext"`
	MessageIndex   uint32    `json:"message_index"`
}

// EncryptedKey is a pairwise ciphertext wrapping a room key.
type EncryptedKey struct {
	Type       MessageType `json:"type"`
	Ciphertext string      `json:"ciphertext"`
}

// RoomKeyShareEvent delivers a group session key to one device.
type RoomKeyShareEvent struct {
	RoomID              RoomID       `json:"room_id"`
	SessionID           SessionID    `json:"session_id"`
	SenderUserID        UserID       `json:"sender_user_id"`
	SenderDeviceID      DeviceID     `json:"sender_device_id"`
	EncryptedSessionKey EncryptedKey `json:"encrypted_session_key"`
}

// OutboundKeyShare addresses a RoomKeyShareEvent to its recipient.
type OutboundKeyShare struct {
	RecipientUserID   UserID            `json:"recipient_user_id"`
	RecipientDeviceID DeviceID          `json:"recipient_device_id"`
	Event             RoomKeyShareEvent `json:"event"`
}

// PayloadTypeRoomKey marks a DevicePayload carrying a RoomKeyContent.
const PayloadTypeRoomKey = "m.room_key"

// DevicePayload is the plaintext of every pairwise message. Sender and
// recipient keys are bound inside the ciphertext so a payload cannot be
// replayed to, or claimed from, another device.
type DevicePayload struct {
	Type            string          `json:"type"`
	Sender          UserID          `json:"sender"`
	SenderDevice    DeviceID        `json:"sender_device"`
	SenderKey       Ed25519Public   `json:"sender_ed25519"`
	Recipient       UserID          `json:"recipient"`
	RecipientDevice DeviceID        `json:"recipient_device"`
	RecipientKey    Ed25519Public   `json:"recipient_ed25519"`
	Content         json.RawMessage `json:"content"`
}

// RoomKeyContent is the key-share payload for one group session.
type RoomKeyContent struct {
	Algorithm  string    `json:"algorithm"`
	RoomID     RoomID    `json:"room_id"`
	SessionID  SessionID `json:"session_id"`
	SessionKey string    `json:"session_key"`
	ChainIndex uint32    `json:"chain_index"`
}

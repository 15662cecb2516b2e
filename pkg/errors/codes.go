package errors

// Kind classifies a failure of the crypto core.
type Kind string

const (
	KindUnknown               Kind = "UNKNOWN"
	KindKeyGeneration         Kind = "KEY_GENERATION"
	KindInvalidArgument       Kind = "INVALID_ARGUMENT"
	KindPrekeyNotFound        Kind = "PREKEY_NOT_FOUND"
	KindPrekeyAlreadyConsumed Kind = "PREKEY_ALREADY_CONSUMED"
	KindHandshake             Kind = "HANDSHAKE"
	KindDecryption            Kind = "DECRYPTION"
	KindRatchetDesync         Kind = "RATCHET_DESYNC"
	KindUnknownSession        Kind = "UNKNOWN_SESSION"
	KindReplayOrOutOfOrder    Kind = "REPLAY_OR_OUT_OF_ORDER"
	KindPersistence           Kind = "PERSISTENCE"
	KindRoomNotEncrypted      Kind = "ROOM_NOT_ENCRYPTED"
	KindUnknownDevice         Kind = "UNKNOWN_DEVICE"
	KindIdentityChanged       Kind = "IDENTITY_CHANGED"
)

package errors

var (
	ErrKeyGeneration         = &Error{Kind: KindKeyGeneration, Message: "key generation failed"}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrPrekeyNotFound        = &Error{Kind: KindPrekeyNotFound, Message: "prekey not found"}
	ErrPrekeyAlreadyConsumed = &Error{Kind: KindPrekeyAlreadyConsumed, Message: "one-time prekey already consumed"}
	ErrHandshake             = &Error{Kind: KindHandshake, Message: "handshake failed"}
	ErrDecryption            = &Error{Kind: KindDecryption, Message: "message could not be decrypted"}
	ErrRatchetDesync         = &Error{Kind: KindRatchetDesync, Message: "ratchet state diverged"}
	ErrUnknownSession        = &Error{Kind: KindUnknownSession, Message: "unknown group session"}
	ErrReplayOrOutOfOrder    = &Error{Kind: KindReplayOrOutOfOrder, Message: "message index is before the first known index"}
	ErrPersistence           = &Error{Kind: KindPersistence, Message: "persistence failed"}
	ErrRoomNotEncrypted      = &Error{Kind: KindRoomNotEncrypted, Message: "room encryption is not enabled"}
	ErrUnknownDevice         = &Error{Kind: KindUnknownDevice, Message: "unknown device"}
	ErrIdentityChanged       = &Error{Kind: KindIdentityChanged, Message: "device identity keys changed"}
)

package ratchet

import (
	"encoding/json"
	"errors"
	"fmt"

	"roomcrypt/internal/domain"
)

// blobVersion prefixes every persisted ratchet state.
const blobVersion byte = 1

// ErrBadBlob reports an unreadable persisted state.
var ErrBadBlob = errors.New("ratchet: malformed state blob")

// Marshal encodes st as a versioned opaque blob.
func Marshal(st domain.RatchetState) ([]byte, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return append([]byte{blobVersion}, body...), nil
}

// Unmarshal decodes a blob produced by Marshal.
func Unmarshal(blob []byte) (domain.RatchetState, error) {
	if len(blob) < 2 {
		return domain.RatchetState{}, ErrBadBlob
	}
	if blob[0] != blobVersion {
		return domain.RatchetState{}, fmt.Errorf("%w: version %d", ErrBadBlob, blob[0])
	}
	var st domain.RatchetState
	if err := json.Unmarshal(blob[1:], &st); err != nil {
		return domain.RatchetState{}, fmt.Errorf("%w: %v", ErrBadBlob, err)
	}
	return st, nil
}

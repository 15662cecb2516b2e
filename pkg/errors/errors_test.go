package errors_test

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	cryptoerrors "roomcrypt/pkg/errors"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := cryptoerrors.Wrap(cryptoerrors.KindPersistence, "group.Encrypt", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("encrypt for room: %w", err)

	assert.ErrorIs(t, wrapped, cryptoerrors.ErrPersistence)
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, wrapped, cryptoerrors.ErrDecryption)
	assert.Equal(t, cryptoerrors.KindPersistence, cryptoerrors.KindOf(wrapped))
}

func TestError_Message(t *testing.T) {
	err := cryptoerrors.New(cryptoerrors.KindInvalidArgument, "keyring.GeneratePrekeys", "count must be positive")
	assert.Equal(t, "keyring.GeneratePrekeys: count must be positive", err.Error())

	err = cryptoerrors.Wrap(cryptoerrors.KindPersistence, "store.Put", stderrors.New("disk full"))
	assert.Equal(t, "store.Put: PERSISTENCE: disk full", err.Error())
}

func TestClassification(t *testing.T) {
	assert.True(t, cryptoerrors.IsRecoverable(cryptoerrors.ErrUnknownSession))
	assert.True(t, cryptoerrors.IsRecoverable(cryptoerrors.ErrPrekeyAlreadyConsumed))
	assert.True(t, cryptoerrors.IsRecoverable(cryptoerrors.ErrReplayOrOutOfOrder))
	assert.False(t, cryptoerrors.IsRecoverable(cryptoerrors.ErrRatchetDesync))
	assert.False(t, cryptoerrors.IsRecoverable(cryptoerrors.ErrDecryption))
	assert.False(t, cryptoerrors.IsFatal(cryptoerrors.ErrDecryption))

	assert.True(t, cryptoerrors.IsFatal(cryptoerrors.ErrRatchetDesync))
	assert.True(t, cryptoerrors.IsFatal(fmt.Errorf("x: %w", cryptoerrors.ErrHandshake)))
	assert.False(t, cryptoerrors.IsFatal(stderrors.New("plain")))
}

// Package errors is the error taxonomy of the crypto core.
//
// Every failure surfaced by the services and the facade is an *Error carrying
// a Kind. Callers match with the standard library:
//
//	if errors.Is(err, cryptoerrors.ErrUnknownSession) { queue and retry }
//
// Is compares kinds only, so a wrapped error with extra context still matches
// its sentinel.
package errors

import (
	stderrors "errors"
	"fmt"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Constructors
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, cause error) error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

func Wrapf(kind Kind, op string, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRecoverable reports failures that affect a single message only; the
// session that produced them stays usable. KindDecryption is an integrity
// failure and is not included: the ciphertext was tampered with or forged
// and retrying cannot help.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindUnknownSession, KindPrekeyAlreadyConsumed, KindReplayOrOutOfOrder:
		return true
	}
	return false
}

// IsFatal reports protocol failures where retrying the same operation cannot
// succeed and the session needs a manual reset.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindRatchetDesync, KindHandshake:
		return true
	}
	return false
}

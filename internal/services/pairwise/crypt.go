package pairwise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"roomcrypt/internal/domain"
	"roomcrypt/internal/protocol/ratchet"
	"roomcrypt/internal/protocol/x3dh"
	cryptoerrors "roomcrypt/pkg/errors"
)

// Encrypt seals plaintext with sess. Outbound sessions send prekey messages
// until the peer has replied. On a store failure nothing is returned and the
// session stays where it was.
func (s *Service) Encrypt(ctx context.Context, sess domain.PairwiseSession, plaintext []byte) (domain.CipherMessage, error) {
	defer s.locks.Lock(sess.Remote().String())()
	return s.encrypt(ctx, sess, plaintext)
}

func (s *Service) encrypt(ctx context.Context, sess domain.PairwiseSession, plaintext []byte) (domain.CipherMessage, error) {
	const op = "pairwise.Encrypt"
	cur, st, err := s.reload(ctx, op, sess)
	if err != nil {
		return domain.CipherMessage{}, err
	}
	defer ratchet.Wipe(&st)
	if cur.NeedsReset {
		return domain.CipherMessage{}, cryptoerrors.New(cryptoerrors.KindRatchetDesync, op,
			"session "+string(cur.SessionID)+" needs a reset")
	}
	local, err := s.kr.LocalIdentity(ctx)
	if err != nil {
		return domain.CipherMessage{}, err
	}

	header, ct, err := ratchet.Encrypt(&st, associatedData(local, cur), plaintext)
	if err != nil {
		// Only an inbound session that never decrypted its first message
		// lacks a sending chain.
		return domain.CipherMessage{}, cryptoerrors.Wrap(cryptoerrors.KindInvalidArgument, op, err)
	}

	out, err := encodeMessage(cur, domain.RatchetMessage{Header: header, Ciphertext: ct})
	if err != nil {
		return domain.CipherMessage{}, cryptoerrors.Wrap(cryptoerrors.KindInvalidArgument, op, err)
	}

	if cur.Ratchet, err = ratchet.Marshal(st); err != nil {
		return domain.CipherMessage{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	cur.LastUsedAt = s.now().UTC()
	if err := s.store.SaveSession(ctx, cur); err != nil {
		return domain.CipherMessage{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	return out, nil
}

// Decrypt opens a message addressed to sess. A desync flags the session for
// reset, except for a replayed prekey message which is reported as
// PrekeyAlreadyConsumed.
func (s *Service) Decrypt(
	ctx context.Context,
	sess domain.PairwiseSession,
	msgType domain.MessageType,
	body []byte,
) ([]byte, error) {
	defer s.locks.Lock(sess.Remote().String())()
	rm, _, err := decodeMessage(msgType, body)
	if err != nil {
		return nil, err
	}
	return s.decrypt(ctx, sess, msgType, rm, true)
}

// decrypt opens rm with the persisted state of sess. When owner is false a
// desync is returned without flagging, for callers probing several sessions.
func (s *Service) decrypt(
	ctx context.Context,
	sess domain.PairwiseSession,
	msgType domain.MessageType,
	rm domain.RatchetMessage,
	owner bool,
) ([]byte, error) {
	const op = "pairwise.Decrypt"
	cur, st, err := s.reload(ctx, op, sess)
	if err != nil {
		return nil, err
	}
	defer ratchet.Wipe(&st)
	local, err := s.kr.LocalIdentity(ctx)
	if err != nil {
		return nil, err
	}
	owner = owner || ownsHeader(st, rm.Header)

	pt, err := ratchet.Decrypt(&st, associatedData(local, cur), rm.Header, rm.Ciphertext)
	switch {
	case err == nil:
	case msgType == domain.MessageTypePreKey && errors.Is(err, ratchet.ErrDesync):
		return nil, cryptoerrors.Wrapf(cryptoerrors.KindPrekeyAlreadyConsumed, op, err,
			"prekey message for session %s was already processed", cur.SessionID)
	case errors.Is(err, ratchet.ErrDesync), errors.Is(err, ratchet.ErrTooManySkipped):
		if owner {
			s.flagReset(ctx, cur)
		}
		return nil, cryptoerrors.Wrap(cryptoerrors.KindRatchetDesync, op, err)
	default:
		return nil, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
	}

	if cur.Ratchet, err = ratchet.Marshal(st); err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	cur.ReceivedMessage = true
	cur.LastUsedAt = s.now().UTC()
	if err := s.store.SaveSession(ctx, cur); err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	return pt, nil
}

// EncryptTo encrypts for recipient with its current session, establishing
// one from the claimed prekey when there is none.
func (s *Service) EncryptTo(ctx context.Context, recipient domain.Recipient, plaintext []byte) (domain.CipherMessage, error) {
	const op = "pairwise.EncryptTo"
	remote := recipient.Device.Key()
	defer s.locks.Lock(remote.String())()

	sess, ok, err := s.Current(ctx, remote)
	if err != nil {
		return domain.CipherMessage{}, err
	}
	if !ok {
		if recipient.Prekey == nil {
			return domain.CipherMessage{}, cryptoerrors.New(cryptoerrors.KindUnknownSession, op,
				"no session with "+remote.String()+" and no claimed prekey")
		}
		if sess, err = s.establishOutbound(ctx, recipient.Device, *recipient.Prekey); err != nil {
			return domain.CipherMessage{}, err
		}
	}
	return s.encrypt(ctx, sess, plaintext)
}

// DecryptFrom decrypts a message from remote. Prekey messages go to the
// session they name, or establish it; ratchet messages are tried against
// every session, most recent first.
func (s *Service) DecryptFrom(ctx context.Context, remote domain.DeviceIdentity, msg domain.CipherMessage) ([]byte, error) {
	const op = "pairwise.DecryptFrom"
	defer s.locks.Lock(remote.Key().String())()

	rm, pre, err := decodeMessage(msg.Type, msg.Body)
	if err != nil {
		return nil, err
	}

	if pre != nil {
		if pre.IdentityKey != remote.Curve25519 {
			return nil, cryptoerrors.New(cryptoerrors.KindHandshake, op,
				"prekey message identity key does not belong to "+remote.Key().String())
		}
		sid := x3dh.SessionID(pre.IdentityKey, pre.BaseKey, pre.OneTimeKey)
		sess, ok, err := s.store.LoadSession(ctx, remote.Key(), sid)
		if err != nil {
			return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
		}
		if ok {
			return s.decrypt(ctx, sess, msg.Type, rm, true)
		}
		return s.acceptPrekeyMessage(ctx, remote, *pre)
	}

	sessions, err := s.Sessions(ctx, remote.Key())
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, cryptoerrors.New(cryptoerrors.KindUnknownSession, op,
			"no pairwise session with "+remote.Key().String())
	}
	var first error
	for _, sess := range sessions {
		pt, err := s.decrypt(ctx, sess, msg.Type, rm, len(sessions) == 1)
		if err == nil {
			return pt, nil
		}
		// A persistence failure after a successful open must not be masked
		// by trying the next session.
		if cryptoerrors.KindOf(err) == cryptoerrors.KindPersistence {
			return nil, err
		}
		if first == nil || cryptoerrors.KindOf(err) == cryptoerrors.KindRatchetDesync {
			first = err
		}
	}
	return nil, first
}

// acceptPrekeyMessage establishes an inbound session and decrypts its first
// message. The prekey is consumed only after the message authenticated, and
// the session is stored only after the prekey was consumed.
func (s *Service) acceptPrekeyMessage(
	ctx context.Context,
	remote domain.DeviceIdentity,
	pre domain.PreKeyMessage,
) ([]byte, error) {
	const op = "pairwise.DecryptFrom"
	sess, st, err := s.prepareInbound(ctx, remote, pre)
	if err != nil {
		return nil, err
	}
	defer ratchet.Wipe(&st)
	local, err := s.kr.LocalIdentity(ctx)
	if err != nil {
		return nil, err
	}

	pt, err := ratchet.Decrypt(&st, associatedData(local, sess), pre.Message.Header, pre.Message.Ciphertext)
	if err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
	}
	if err := s.consumePrekey(ctx, pre.OneTimeKeyID); err != nil {
		return nil, err
	}

	if sess.Ratchet, err = ratchet.Marshal(st); err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	sess.ReceivedMessage = true
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Info("pairwise session created", "remote", remote.Key().String(),
		"session_id", sess.SessionID, "direction", sess.Direction)
	return pt, nil
}

// reload fetches the persisted copy of sess so callers never advance from a
// stale in-memory value.
func (s *Service) reload(ctx context.Context, op string, sess domain.PairwiseSession) (domain.PairwiseSession, domain.RatchetState, error) {
	cur, ok, err := s.store.LoadSession(ctx, sess.Remote(), sess.SessionID)
	if err != nil {
		return domain.PairwiseSession{}, domain.RatchetState{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if !ok {
		return domain.PairwiseSession{}, domain.RatchetState{}, cryptoerrors.New(cryptoerrors.KindUnknownSession, op,
			"pairwise session "+string(sess.SessionID)+" not found")
	}
	st, err := ratchet.Unmarshal(cur.Ratchet)
	if err != nil {
		return domain.PairwiseSession{}, domain.RatchetState{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	return cur, st, nil
}

func (s *Service) flagReset(ctx context.Context, sess domain.PairwiseSession) {
	sess.NeedsReset = true
	if err := s.store.SaveSession(ctx, sess); err != nil {
		s.log.Error("flag session for reset", "session_id", sess.SessionID, "err", err)
		return
	}
	s.log.Warn("pairwise session desynchronised", "remote", sess.Remote().String(),
		"session_id", sess.SessionID)
}

// ownsHeader reports whether header continues a chain st already knows.
func ownsHeader(st domain.RatchetState, header domain.RatchetHeader) bool {
	if header.DHPub == st.PeerDHPub {
		return true
	}
	for _, sk := range st.Skipped {
		if sk.DHPub == header.DHPub {
			return true
		}
	}
	return false
}

// associatedData binds both identity keys, initiator first.
func associatedData(local domain.Identity, sess domain.PairwiseSession) []byte {
	ad := make([]byte, 0, 64)
	if sess.Direction == domain.DirectionOutbound {
		ad = append(ad, local.XPub[:]...)
		return append(ad, sess.RemoteIdentity.Curve25519[:]...)
	}
	ad = append(ad, sess.RemoteIdentity.Curve25519[:]...)
	return append(ad, local.XPub[:]...)
}

func encodeMessage(sess domain.PairwiseSession, rm domain.RatchetMessage) (domain.CipherMessage, error) {
	if sess.Direction == domain.DirectionOutbound && !sess.ReceivedMessage && sess.Bootstrap != nil {
		body, err := json.Marshal(domain.PreKeyMessage{
			IdentityKey:  sess.Bootstrap.IdentityKey,
			BaseKey:      sess.Bootstrap.BaseKey,
			OneTimeKeyID: sess.Bootstrap.OneTimeKeyID,
			OneTimeKey:   sess.Bootstrap.OneTimeKey,
			Message:      rm,
		})
		return domain.CipherMessage{Type: domain.MessageTypePreKey, Body: body}, err
	}
	body, err := json.Marshal(rm)
	return domain.CipherMessage{Type: domain.MessageTypeMessage, Body: body}, err
}

// decodeMessage parses a message body. pre is set for prekey messages.
func decodeMessage(msgType domain.MessageType, body []byte) (rm domain.RatchetMessage, pre *domain.PreKeyMessage, err error) {
	const op = "pairwise.decode"
	switch msgType {
	case domain.MessageTypePreKey:
		var m domain.PreKeyMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return rm, nil, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
		}
		return m.Message, &m, nil
	case domain.MessageTypeMessage:
		if err := json.Unmarshal(body, &rm); err != nil {
			return rm, nil, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
		}
		return rm, nil, nil
	default:
		return rm, nil, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op,
			fmt.Sprintf("unknown message type %d", msgType))
	}
}

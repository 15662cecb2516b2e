package group

import (
	"context"
	"fmt"

	"roomcrypt/internal/domain"
	"roomcrypt/internal/protocol/megolm"
	cryptoerrors "roomcrypt/pkg/errors"
)

// Encrypt seals plaintext with the room's outbound session. Messages of one
// session carry indices 0, 1, 2, ... in order; a store failure discards the
// ciphertext and leaves the index unused.
//
// Handing out an index twice is a programming or storage error, not a
// runtime condition, and panics.
func (s *Service) Encrypt(ctx context.Context, room domain.RoomID, plaintext []byte) (domain.GroupCiphertext, error) {
	const op = "group.Encrypt"
	defer s.rooms.Lock(string(room))()

	sess, err := s.getOrCreate(ctx, room, false)
	if err != nil {
		return domain.GroupCiphertext{}, err
	}
	r, err := megolm.Decode(sess.Ratchet)
	if err != nil {
		return domain.GroupCiphertext{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	defer r.Wipe()

	index := r.Index()
	s.checkIndex(sess.SessionID, index)

	sealed, err := megolm.Seal(&r, sess.SigningKey, megolm.AssociatedData(room, sess.SessionID, index), plaintext)
	if err != nil {
		return domain.GroupCiphertext{}, cryptoerrors.Wrap(cryptoerrors.KindInvalidArgument, op, err)
	}

	r.Advance()
	sess.Ratchet = megolm.Encode(r)
	sess.MessageIndex = r.Index()
	sess.MessageCount++
	if err := s.store.SaveOutbound(ctx, sess); err != nil {
		return domain.GroupCiphertext{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.markIssued(sess.SessionID, index+1)

	return domain.GroupCiphertext{
		SessionID:    sess.SessionID,
		MessageIndex: index,
		Ciphertext:   sealed,
	}, nil
}

func (s *Service) checkIndex(id domain.SessionID, index uint32) {
	s.issuedMu.Lock()
	next, ok := s.issued[id]
	s.issuedMu.Unlock()
	if ok && index < next {
		panic(fmt.Sprintf("group: index %d of session %s was already used (next is %d)", index, id, next))
	}
}

func (s *Service) markIssued(id domain.SessionID, next uint32) {
	s.issuedMu.Lock()
	s.issued[id] = next
	s.issuedMu.Unlock()
}

// ImportInbound stores a session key received from sender. firstIndex may
// move the key forward to drop earlier history but never backward.
//
// Importing a session that is already known is a no-op, unless the new key
// starts earlier, in which case the earlier start is kept.
func (s *Service) ImportInbound(
	ctx context.Context,
	room domain.RoomID,
	sender domain.DeviceIdentity,
	id domain.SessionID,
	sessionKey string,
	firstIndex uint32,
) (domain.InboundGroupSession, error) {
	const op = "group.ImportInbound"
	r, pub, err := megolm.ParseSessionKey(sessionKey)
	if err != nil {
		return domain.InboundGroupSession{}, cryptoerrors.Wrap(cryptoerrors.KindInvalidArgument, op, err)
	}
	defer r.Wipe()
	if megolm.SessionID(pub) != id {
		return domain.InboundGroupSession{}, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op,
			"session key does not belong to session "+string(id))
	}
	if firstIndex < r.Index() {
		return domain.InboundGroupSession{}, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op,
			fmt.Sprintf("key starts at index %d, cannot import from %d", r.Index(), firstIndex))
	}
	r.AdvanceTo(firstIndex)

	defer s.inbounds.Lock(inboundKey(room, id))()

	existing, ok, err := s.store.LoadInbound(ctx, room, id)
	if err != nil {
		return domain.InboundGroupSession{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if ok {
		if !existing.Sender.SameKeys(sender) || existing.Sender.Key() != sender.Key() {
			return domain.InboundGroupSession{}, cryptoerrors.New(cryptoerrors.KindInvalidArgument, op,
				"session "+string(id)+" is already known from another sender")
		}
		if firstIndex >= existing.FirstKnownIndex {
			return existing, nil
		}
		existing.Initial = megolm.Encode(r)
		existing.FirstKnownIndex = firstIndex
		if err := s.store.SaveInbound(ctx, existing); err != nil {
			return domain.InboundGroupSession{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
		}
		s.log.Info("inbound group session extended", "room", room, "session_id", id, "first_index", firstIndex)
		return existing, nil
	}

	in := domain.InboundGroupSession{
		SessionID:       id,
		RoomID:          room,
		Sender:          sender,
		SigningKey:      pub,
		Initial:         megolm.Encode(r),
		Latest:          megolm.Encode(r),
		FirstKnownIndex: firstIndex,
		ImportedAt:      s.now().UTC(),
	}
	if err := s.store.SaveInbound(ctx, in); err != nil {
		return domain.InboundGroupSession{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	s.log.Info("inbound group session imported", "room", room, "session_id", id,
		"sender", sender.Key().String(), "first_index", firstIndex)
	return in, nil
}

// Decrypt opens a room message of session id at index.
func (s *Service) Decrypt(
	ctx context.Context,
	room domain.RoomID,
	id domain.SessionID,
	ciphertext []byte,
	index uint32,
) (domain.GroupPlaintext, error) {
	const op = "group.Decrypt"
	defer s.inbounds.Lock(inboundKey(room, id))()

	in, ok, err := s.store.LoadInbound(ctx, room, id)
	if err != nil {
		return domain.GroupPlaintext{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	if !ok {
		return domain.GroupPlaintext{}, cryptoerrors.New(cryptoerrors.KindUnknownSession, op,
			"no key for session "+string(id)+" in "+string(room))
	}
	if index < in.FirstKnownIndex {
		return domain.GroupPlaintext{}, cryptoerrors.New(cryptoerrors.KindReplayOrOutOfOrder, op,
			fmt.Sprintf("index %d is before the first known index %d", index, in.FirstKnownIndex))
	}

	initial, err := megolm.Decode(in.Initial)
	if err != nil {
		return domain.GroupPlaintext{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	defer initial.Wipe()
	latest, err := megolm.Decode(in.Latest)
	if err != nil {
		return domain.GroupPlaintext{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	defer latest.Wipe()
	before := latest.Index()

	r, ok := megolm.Seek(initial, &latest, index)
	if !ok {
		return domain.GroupPlaintext{}, cryptoerrors.New(cryptoerrors.KindReplayOrOutOfOrder, op,
			fmt.Sprintf("index %d is unreachable", index))
	}
	defer r.Wipe()

	pt, err := megolm.Open(&r, in.SigningKey, megolm.AssociatedData(room, id, index), ciphertext)
	if err != nil {
		return domain.GroupPlaintext{}, cryptoerrors.Wrap(cryptoerrors.KindDecryption, op, err)
	}

	if latest.Index() != before {
		in.Latest = megolm.Encode(latest)
		if err := s.store.SaveInbound(ctx, in); err != nil {
			return domain.GroupPlaintext{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
		}
	}
	return domain.GroupPlaintext{Plaintext: pt, Sender: in.Sender, MessageIndex: index}, nil
}

func inboundKey(room domain.RoomID, id domain.SessionID) string {
	return string(room) + "|" + string(id)
}

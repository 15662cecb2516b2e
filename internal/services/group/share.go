package group

import (
	"context"
	"encoding/base64"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"roomcrypt/internal/domain"
	"roomcrypt/internal/protocol/megolm"
	"roomcrypt/internal/services/pairwise"
	cryptoerrors "roomcrypt/pkg/errors"
)

// ShareRoomKey wraps the room's outbound session key for every recipient
// that is eligible under the trust policy and has not received it yet.
//
// Recipients are filtered in order:
//   - the local device is skipped;
//   - devices the policy excludes are reported as Withheld;
//   - devices already holding the key are skipped;
//   - devices with neither a pairwise session nor a claimed prekey are
//     reported as Missing.
//
// Wrapping runs in parallel since every recipient uses its own pairwise
// session. A recipient whose handshake fails is reported as Missing too.
//
// recipients must be the room's full current membership. When a device that
// already holds the key is absent from it, or no longer passes the trust
// policy, the session is rotated before anything is shared and the device is
// reported as Departed.
func (s *Service) ShareRoomKey(ctx context.Context, room domain.RoomID, recipients []domain.Recipient) (domain.KeyShareResult, error) {
	const op = "group.ShareRoomKey"
	defer s.rooms.Lock(string(room))()

	sess, err := s.getOrCreate(ctx, room, true)
	if err != nil {
		return domain.KeyShareResult{}, err
	}
	local, err := s.kr.LocalDevice(ctx)
	if err != nil {
		return domain.KeyShareResult{}, err
	}
	gone, err := s.departed(ctx, sess, recipients)
	if err != nil {
		return domain.KeyShareResult{}, err
	}
	if len(gone) > 0 {
		s.log.Warn("key holder left the room", "room", room, "session_id", sess.SessionID, "departed", len(gone))
		if err := s.retire(ctx, sess, domain.RotationMembershipChange); err != nil {
			return domain.KeyShareResult{}, err
		}
		if sess, err = s.create(ctx, room); err != nil {
			return domain.KeyShareResult{}, err
		}
	}
	res := domain.KeyShareResult{SessionID: sess.SessionID, Departed: gone}

	// 1) Filter recipients.
	var todo []domain.Recipient
	for _, rcpt := range recipients {
		key := rcpt.Device.Key()
		if key == local.Key() {
			continue
		}
		ok, err := s.trust.IsEligibleForKeyShare(ctx, key, s.cfg.Policy)
		if err != nil {
			return domain.KeyShareResult{}, err
		}
		if !ok {
			res.Withheld = append(res.Withheld, rcpt.Device)
			continue
		}
		if sess.SharedWithDevice(key) {
			continue
		}
		if rcpt.Prekey == nil {
			has, err := s.pairwise.HasSession(ctx, key)
			if err != nil {
				return domain.KeyShareResult{}, err
			}
			if !has {
				res.Missing = append(res.Missing, rcpt.Device)
				continue
			}
		}
		todo = append(todo, rcpt)
	}
	if len(todo) == 0 {
		return res, nil
	}

	// 2) Export the key at the current index.
	r, err := megolm.Decode(sess.Ratchet)
	if err != nil {
		return domain.KeyShareResult{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
	}
	content := domain.RoomKeyContent{
		Algorithm:  domain.AlgorithmGroupV1,
		RoomID:     room,
		SessionID:  sess.SessionID,
		SessionKey: megolm.ExportSessionKey(r, sess.SigningKey),
		ChainIndex: r.Index(),
	}
	r.Wipe()

	// 3) Wrap for each recipient.
	shares := make([]*domain.OutboundKeyShare, len(todo))
	var (
		mu      sync.Mutex
		missing []domain.DeviceIdentity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shareParallelism)
	for i, rcpt := range todo {
		i, rcpt := i, rcpt
		g.Go(func() error {
			payload, err := pairwise.SealPayload(local, rcpt.Device, domain.PayloadTypeRoomKey, content)
			if err != nil {
				return err
			}
			msg, err := s.pairwise.EncryptTo(gctx, rcpt, payload)
			if err != nil {
				switch cryptoerrors.KindOf(err) {
				case cryptoerrors.KindHandshake, cryptoerrors.KindUnknownSession, cryptoerrors.KindRatchetDesync:
					s.log.Warn("room key not shared", "room", room, "device", rcpt.Device.Key().String(), "err", err)
					mu.Lock()
					missing = append(missing, rcpt.Device)
					mu.Unlock()
					return nil
				}
				return err
			}
			shares[i] = &domain.OutboundKeyShare{
				RecipientUserID:   rcpt.Device.UserID,
				RecipientDeviceID: rcpt.Device.DeviceID,
				Event: domain.RoomKeyShareEvent{
					RoomID:         room,
					SessionID:      sess.SessionID,
					SenderUserID:   local.UserID,
					SenderDeviceID: local.DeviceID,
					EncryptedSessionKey: domain.EncryptedKey{
						Type:       msg.Type,
						Ciphertext: base64.StdEncoding.EncodeToString(msg.Body),
					},
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.KeyShareResult{}, err
	}

	// 4) Record who holds the key.
	if sess.SharedWith == nil {
		sess.SharedWith = make(map[string]domain.SharedDevice)
	}
	for i, share := range shares {
		if share == nil {
			continue
		}
		res.Shares = append(res.Shares, *share)
		sess.SharedWith[todo[i].Device.Key().String()] = domain.SharedDevice{
			Device: todo[i].Device,
			Index:  content.ChainIndex,
		}
	}
	res.Missing = append(res.Missing, missing...)
	if len(res.Shares) > 0 {
		if err := s.store.SaveOutbound(ctx, sess); err != nil {
			return domain.KeyShareResult{}, cryptoerrors.Wrap(cryptoerrors.KindPersistence, op, err)
		}
	}
	s.log.Info("room key shared", "room", room, "session_id", sess.SessionID,
		"shares", len(res.Shares), "withheld", len(res.Withheld), "missing", len(res.Missing))
	return res, nil
}

// departed returns the devices holding sess's key that are no longer among
// recipients or no longer eligible for it, ordered by device key.
func (s *Service) departed(ctx context.Context, sess domain.OutboundGroupSession, recipients []domain.Recipient) ([]domain.DeviceIdentity, error) {
	if len(sess.SharedWith) == 0 {
		return nil, nil
	}
	present := make(map[string]struct{}, len(recipients))
	for _, rcpt := range recipients {
		present[rcpt.Device.Key().String()] = struct{}{}
	}
	var gone []domain.DeviceIdentity
	for k, holder := range sess.SharedWith {
		if _, ok := present[k]; ok {
			eligible, err := s.trust.IsEligibleForKeyShare(ctx, holder.Device.Key(), s.cfg.Policy)
			if err != nil {
				return nil, err
			}
			if eligible {
				continue
			}
		}
		gone = append(gone, holder.Device)
	}
	sort.Slice(gone, func(i, j int) bool {
		return gone[i].Key().String() < gone[j].Key().String()
	})
	return gone, nil
}

package megolm_test

import (
	"bytes"
	"errors"
	"testing"

	"roomcrypt/internal/crypto"
	"roomcrypt/internal/protocol/megolm"
)

func newRatchet(t *testing.T) megolm.Ratchet {
	t.Helper()
	r, err := megolm.NewRatchetFrom(bytes.NewReader(bytes.Repeat([]byte{0x5a, 0x17}, 64)))
	if err != nil {
		t.Fatalf("NewRatchetFrom: %v", err)
	}
	return r
}

func TestAdvanceToMatchesStepping(t *testing.T) {
	for _, target := range []uint32{1, 255, 256, 300, 65536, 70000} {
		stepped := newRatchet(t)
		for stepped.Index() < target {
			stepped.Advance()
		}
		jumped := newRatchet(t)
		jumped.AdvanceTo(target)

		if jumped.Index() != target {
			t.Fatalf("AdvanceTo(%d) index = %d", target, jumped.Index())
		}
		if !bytes.Equal(megolm.Encode(stepped), megolm.Encode(jumped)) {
			t.Fatalf("AdvanceTo(%d) diverges from stepping", target)
		}
	}
}

func TestAdvanceToFromMidway(t *testing.T) {
	a := newRatchet(t)
	a.AdvanceTo(1000)
	a.AdvanceTo(1300)

	b := newRatchet(t)
	b.AdvanceTo(1300)
	if !bytes.Equal(megolm.Encode(a), megolm.Encode(b)) {
		t.Fatal("incremental AdvanceTo diverges")
	}
}

func TestSealOpen(t *testing.T) {
	signPriv, signPub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatal(err)
	}
	sid := megolm.SessionID(signPub)
	out := newRatchet(t)
	in := out

	var sealed [][]byte
	for i := uint32(0); i < 3; i++ {
		ct, err := megolm.Seal(&out, signPriv, megolm.AssociatedData("!room", sid, i), []byte{byte(i)})
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		sealed = append(sealed, ct)
		out.Advance()
	}

	// Decrypt out of order from a copy positioned at 0.
	for _, i := range []uint32{2, 0, 1} {
		r := in
		r.AdvanceTo(i)
		pt, err := megolm.Open(&r, signPub, megolm.AssociatedData("!room", sid, i), sealed[i])
		if err != nil {
			t.Fatalf("Open(%d): %v", i, err)
		}
		if !bytes.Equal(pt, []byte{byte(i)}) {
			t.Fatalf("Open(%d) = %x", i, pt)
		}
	}

	// Wrong index in associated data fails.
	r := in
	if _, err := megolm.Open(&r, signPub, megolm.AssociatedData("!room", sid, 1), sealed[0]); err == nil {
		t.Fatal("index mismatch must fail")
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	signPriv, signPub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatal(err)
	}
	r := newRatchet(t)
	ad := megolm.AssociatedData("!room", megolm.SessionID(signPub), 0)
	ct, err := megolm.Seal(&r, signPriv, ad, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	for i := range ct {
		bad := bytes.Clone(ct)
		bad[i] ^= 0x80
		pt, err := megolm.Open(&r, signPub, ad, bad)
		if err == nil || pt != nil {
			t.Fatalf("byte %d: tampered ciphertext opened", i)
		}
	}
}

func TestSessionKeyExportImport(t *testing.T) {
	signPriv, signPub, err := crypto.GenerateEd25519()
	if err != nil {
		t.Fatal(err)
	}
	r := newRatchet(t)
	r.AdvanceTo(7)

	key := megolm.ExportSessionKey(r, signPriv)
	got, pub, err := megolm.ParseSessionKey(key)
	if err != nil {
		t.Fatalf("ParseSessionKey: %v", err)
	}
	if pub != signPub || got.Index() != 7 {
		t.Fatalf("unexpected import: index=%d", got.Index())
	}
	if !bytes.Equal(megolm.Encode(got), megolm.Encode(r)) {
		t.Fatal("imported ratchet differs")
	}

	raw, _ := crypto.UnB64(key)
	raw[10] ^= 1
	if _, _, err := megolm.ParseSessionKey(crypto.B64(raw)); !errors.Is(err, megolm.ErrBadSessionKey) {
		t.Fatalf("want ErrBadSessionKey, got %v", err)
	}
}

func TestSeek(t *testing.T) {
	initial := newRatchet(t)
	initial.AdvanceTo(5)
	latest := initial

	if _, ok := megolm.Seek(initial, &latest, 4); ok {
		t.Fatal("index below initial must be unreachable")
	}

	at9, ok := megolm.Seek(initial, &latest, 9)
	if !ok || at9.Index() != 9 || latest.Index() != 9 {
		t.Fatalf("seek forward: ok=%v idx=%d latest=%d", ok, at9.Index(), latest.Index())
	}

	at6, ok := megolm.Seek(initial, &latest, 6)
	if !ok || at6.Index() != 6 || latest.Index() != 9 {
		t.Fatalf("seek back: ok=%v idx=%d latest=%d", ok, at6.Index(), latest.Index())
	}

	ref := newRatchet(t)
	ref.AdvanceTo(6)
	if !bytes.Equal(megolm.Encode(ref), megolm.Encode(at6)) {
		t.Fatal("seek back diverges")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := megolm.Decode([]byte{1, 2, 3}); !errors.Is(err, megolm.ErrBadRatchet) {
		t.Fatalf("want ErrBadRatchet, got %v", err)
	}
}

package megolm

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"roomcrypt/internal/util/memzero"
)

const (
	partSize  = 32
	partCount = 4

	// RatchetSize is the length of the ratchet parts.
	RatchetSize = partSize * partCount

	blobVersion byte = 1
	blobSize         = 1 + 4 + RatchetSize
)

var ErrBadRatchet = errors.New("megolm: malformed ratchet state")

// Ratchet is the four-part group hash ratchet.
type Ratchet struct {
	data    [partCount][partSize]byte
	counter uint32
}

// NewRatchet returns a ratchet with random parts at index 0.
func NewRatchet() (Ratchet, error) {
	return NewRatchetFrom(rand.Reader)
}

// NewRatchetFrom is NewRatchet with an explicit entropy source.
func NewRatchetFrom(r io.Reader) (Ratchet, error) {
	var rt Ratchet
	for i := range rt.data {
		if _, err := io.ReadFull(r, rt.data[i][:]); err != nil {
			return Ratchet{}, err
		}
	}
	return rt, nil
}

// Index is the message index the ratchet is positioned at.
func (r *Ratchet) Index() uint32 { return r.counter }

// Advance moves the ratchet forward by one index.
func (r *Ratchet) Advance() {
	mask := uint32(0x00FFFFFF)
	h := 0
	r.counter++

	// Find the highest part that changes at the new counter.
	for h < partCount {
		if r.counter&mask == 0 {
			break
		}
		h++
		mask >>= 8
	}

	// R(h)...R(3) are all derived from the old R(h).
	for i := partCount - 1; i >= h; i-- {
		r.rehash(h, i)
	}
}

// AdvanceTo moves the ratchet forward to index. It never moves backwards
// except across a 32-bit counter wrap.
func (r *Ratchet) AdvanceTo(index uint32) {
	for j := 0; j < partCount; j++ {
		shift := uint((partCount - 1 - j) * 8)
		mask := uint32(0xFFFFFFFF) << shift

		// '& 0xff' handles wraparound of this byte.
		steps := ((index >> shift) - (r.counter >> shift)) & 0xff
		if steps == 0 {
			// Only possible for R0 when index has wrapped past counter.
			if index < r.counter {
				steps = 0x100
			} else {
				continue
			}
		}

		// All but the last step only bump R(j).
		for ; steps > 1; steps-- {
			r.rehash(j, j)
		}
		// The last step also reseeds R(j+1)...R(3).
		for k := partCount - 1; k >= j; k-- {
			r.rehash(j, k)
		}
		r.counter = index & mask
	}
}

// Wipe zeroes the ratchet parts.
func (r *Ratchet) Wipe() {
	for i := range r.data {
		memzero.Zero(r.data[i][:])
	}
}

func (r *Ratchet) rehash(from, to int) {
	mac := hmac.New(sha256.New, r.data[from][:])
	mac.Write([]byte{byte(to)})
	copy(r.data[to][:], mac.Sum(nil))
}

func (r *Ratchet) bytes() []byte {
	out := make([]byte, 0, RatchetSize)
	for i := range r.data {
		out = append(out, r.data[i][:]...)
	}
	return out
}

func (r *Ratchet) setBytes(b []byte) {
	for i := range r.data {
		copy(r.data[i][:], b[i*partSize:(i+1)*partSize])
	}
}

// MarshalBinary encodes the ratchet as version | counter | parts.
func (r Ratchet) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, blobSize)
	out = append(out, blobVersion)
	out = binary.BigEndian.AppendUint32(out, r.counter)
	out = append(out, r.bytes()...)
	return out, nil
}

// UnmarshalBinary decodes a blob produced by MarshalBinary.
func (r *Ratchet) UnmarshalBinary(b []byte) error {
	if len(b) != blobSize || b[0] != blobVersion {
		return ErrBadRatchet
	}
	r.counter = binary.BigEndian.Uint32(b[1:5])
	r.setBytes(b[5:])
	return nil
}

// Decode is UnmarshalBinary returning a value.
func Decode(b []byte) (Ratchet, error) {
	var r Ratchet
	err := r.UnmarshalBinary(b)
	return r, err
}

// Encode is MarshalBinary without the error.
func Encode(r Ratchet) []byte {
	b, _ := r.MarshalBinary()
	return b
}

// Seek returns a ratchet positioned at index for decryption. latest is
// advanced in place when index is at or past it; otherwise a copy of
// initial is advanced. Indices below initial are unreachable.
func Seek(initial Ratchet, latest *Ratchet, index uint32) (Ratchet, bool) {
	if index < initial.counter {
		return Ratchet{}, false
	}
	if index >= latest.counter {
		latest.AdvanceTo(index)
		return *latest, true
	}
	r := initial
	r.AdvanceTo(index)
	return r, true
}

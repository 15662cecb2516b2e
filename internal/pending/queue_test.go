package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcrypt/internal/domain"
)

func event(room domain.RoomID, sid domain.SessionID, index uint32) domain.RoomEvent {
	return domain.RoomEvent{RoomID: room, SessionID: sid, MessageIndex: index, Ciphertext: "ct"}
}

func TestQueue_TakeMatchesRoomAndSession(t *testing.T) {
	q := New(time.Minute, 10)
	q.Add(event("!a", "s1", 0))
	q.Add(event("!a", "s2", 0))
	q.Add(event("!a", "s1", 1))
	q.Add(event("!b", "s1", 0))
	q.Add(event("!a", "s1", 1)) // duplicate

	got := q.Take("!a", "s1")
	require.Len(t, got, 2)
	assert.Equal(t, uint32(0), got[0].MessageIndex)
	assert.Equal(t, uint32(1), got[1].MessageIndex)
	assert.Equal(t, 2, q.Len())
	assert.Empty(t, q.Take("!a", "s1"))
}

func TestQueue_DropsOldestWhenFull(t *testing.T) {
	q := New(time.Minute, 2)
	assert.Nil(t, q.Add(event("!a", "s", 0)))
	assert.Nil(t, q.Add(event("!a", "s", 1)))

	dropped := q.Add(event("!a", "s", 2))
	require.NotNil(t, dropped)
	assert.Equal(t, uint32(0), dropped.MessageIndex)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_Expire(t *testing.T) {
	q := New(time.Minute, 10)
	start := time.Now()
	q.now = func() time.Time { return start }
	q.Add(event("!a", "old", 0))

	q.now = func() time.Time { return start.Add(45 * time.Second) }
	q.Add(event("!a", "new", 0))

	q.now = func() time.Time { return start.Add(90 * time.Second) }
	assert.Empty(t, q.Take("!a", "old"), "expired events are not retried")

	q.Add(event("!a", "old", 0))
	q.now = func() time.Time { return start.Add(200 * time.Second) }
	expired := q.Expire()
	assert.Len(t, expired, 2)
	assert.Equal(t, 0, q.Len())
}

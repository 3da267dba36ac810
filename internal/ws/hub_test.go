package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
)

// fakeConn records written payloads in order.
type fakeConn struct {
	mu       sync.Mutex
	payloads []any
	closed   bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func newTestHub() *Hub {
	return NewHub(zap.NewNop().Sugar())
}

func TestHubUserBroadcast(t *testing.T) {
	hub := newTestHub()

	// user 1 has two tabs open
	a1, a2 := &fakeConn{}, &fakeConn{}
	b := &fakeConn{}
	hub.Register(1, a1)
	hub.Register(1, a2)
	hub.Register(2, b)

	hub.BroadcastToUsers([]int64{1}, "hello")
	assert.Equal(t, 1, a1.count())
	assert.Equal(t, 1, a2.count())
	assert.Equal(t, 0, b.count())

	hub.BroadcastToUsers([]int64{1, 2}, "all")
	assert.Equal(t, 2, a1.count())
	assert.Equal(t, 1, b.count())
}

func TestHubThreadChannels(t *testing.T) {
	hub := newTestHub()

	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	ca := hub.Register(1, a)
	cb := hub.Register(2, b)
	hub.Register(3, c)

	hub.JoinThread(ca, 10)
	hub.JoinThread(cb, 10)

	hub.BroadcastToThread(10, "msg")
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 0, c.count())

	ids := hub.ThreadSubscriberIDs(10)
	require.Len(t, ids, 2)
	assert.Contains(t, ids, int64(1))
	assert.Contains(t, ids, int64(2))

	hub.LeaveThread(cb, 10)
	hub.BroadcastToThread(10, "again")
	assert.Equal(t, 2, a.count())
	assert.Equal(t, 1, b.count())
}

func TestHubUnregister(t *testing.T) {
	hub := newTestHub()

	a, b := &fakeConn{}, &fakeConn{}
	ca := hub.Register(1, a)
	cb := hub.Register(2, b)
	hub.JoinThread(ca, 10)
	hub.JoinThread(cb, 10)

	hub.Unregister(ca)

	// gone from both the user index and the thread channel
	hub.BroadcastToUsers([]int64{1}, "personal")
	hub.BroadcastToThread(10, "thread")
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())

	ids := hub.ThreadSubscriberIDs(10)
	assert.NotContains(t, ids, int64(1))
}

func TestHubUnregisterReportsLastConnection(t *testing.T) {
	hub := newTestHub()

	// user 1 with two tabs: closing one must not read as going offline
	a1, a2 := &fakeConn{}, &fakeConn{}
	c1 := hub.Register(1, a1)
	c2 := hub.Register(1, a2)

	assert.False(t, hub.Unregister(c1))
	assert.True(t, hub.Unregister(c2))
}

func TestBroadcastNewMessage(t *testing.T) {
	hub := newTestHub()

	// sender and one participant are viewing the thread, a third
	// participant is connected but elsewhere
	sender, viewer, away := &fakeConn{}, &fakeConn{}, &fakeConn{}
	cs := hub.Register(1, sender)
	cv := hub.Register(2, viewer)
	hub.Register(3, away)
	hub.JoinThread(cs, 10)
	hub.JoinThread(cv, 10)

	msg := &domain.Message{ID: 100, ThreadID: 10, SenderID: 1, Content: "hi"}
	BroadcastNewMessage(hub, []int64{1, 2, 3}, &domain.User{ID: 1, Name: "alice"}, msg)

	// viewers get exactly one copy via the thread channel, the away
	// participant one copy via the personal channel
	assert.Equal(t, 1, sender.count())
	assert.Equal(t, 1, viewer.count())
	require.Equal(t, 1, away.count())

	payload, ok := away.payloads[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new-message", payload["type"])
	assert.Equal(t, int64(10), payload["thread_id"])
}

func TestHubBroadcastAll(t *testing.T) {
	hub := newTestHub()

	conns := []*fakeConn{{}, {}, {}}
	for i, c := range conns {
		hub.Register(int64(i+1), c)
	}

	hub.BroadcastAll("announcement")
	for _, c := range conns {
		assert.Equal(t, 1, c.count())
	}
}

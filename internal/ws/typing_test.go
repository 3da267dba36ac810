package ws

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type signalSink struct {
	mu   sync.Mutex
	sigs []Signal
}

func (s *signalSink) record(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sigs = append(s.sigs, sig)
}

func (s *signalSink) wait(t *testing.T, n int) []Signal {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		got := len(s.sigs)
		s.mu.Unlock()
		if got >= n {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Signal(nil), s.sigs...)
}

func TestTypingBrokerDelivery(t *testing.T) {
	b := NewTypingBroker(3 * time.Second)

	sink := &signalSink{}
	cancel := b.Subscribe(10, sink.record)
	defer cancel()

	other := &signalSink{}
	cancelOther := b.Subscribe(99, other.record)
	defer cancelOther()

	b.Publish(10, 1, false)
	b.Publish(10, 1, true)

	sigs := sink.wait(t, 2)
	assert.Len(t, sigs, 2)
	assert.Equal(t, int64(1), sigs[0].UserID)
	assert.False(t, sigs[0].Stop)
	assert.True(t, sigs[1].Stop)

	// the other thread's subscriber hears nothing
	assert.Empty(t, other.wait(t, 0))
}

func TestTypingBrokerStaleSignalsDropped(t *testing.T) {
	b := NewTypingBroker(3 * time.Second)

	// the first clock reading stamps the signal; every later reading is 10s
	// on, so the delivery check always sees the signal as aged out
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var calls int32
	b.now = func() time.Time {
		if atomic.AddInt32(&calls, 1) == 1 {
			return base
		}
		return base.Add(10 * time.Second)
	}

	sink := &signalSink{}
	cancel := b.Subscribe(10, sink.record)
	defer cancel()

	b.Publish(10, 1, false) // stamped at base, checked at base+10s
	b.Publish(10, 2, false) // stamped and checked at base+10s

	sigs := sink.wait(t, 1)
	for _, sig := range sigs {
		assert.NotEqual(t, int64(1), sig.UserID, "stale signal should have been dropped")
	}
	assert.GreaterOrEqual(t, len(sigs), 1)
}

func TestTypingBrokerCancel(t *testing.T) {
	b := NewTypingBroker(3 * time.Second)

	sink := &signalSink{}
	cancel := b.Subscribe(10, sink.record)

	b.Publish(10, 1, false)
	sink.wait(t, 1)

	cancel()
	cancel() // cancelling twice is safe

	b.Publish(10, 2, false)
	time.Sleep(20 * time.Millisecond)

	sigs := sink.wait(t, 1)
	assert.Len(t, sigs, 1)
}

func TestTypingBrokerSlowSubscriber(t *testing.T) {
	b := NewTypingBroker(3 * time.Second)

	// a subscriber that never drains: Publish must not block
	sub := &typingSub{threadID: 10, ch: make(chan Signal)}
	b.mu.Lock()
	b.subs[10] = map[*typingSub]struct{}{sub: {}}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(10, 1, false)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

package ws

import (
	"sync"
	"time"
)

// Signal is an ephemeral typing notification. Nothing here is persisted;
// lost signals are acceptable.
type Signal struct {
	ThreadID int64
	UserID   int64
	Stop     bool
	At       time.Time
}

type typingSub struct {
	threadID int64
	ch       chan Signal
}

// TypingBroker fans typing signals out to subscribers of a thread.
// Delivery is fire-and-forget: full subscriber buffers drop the signal, and
// signals older than the TTL are discarded instead of delivered.
type TypingBroker struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.RWMutex
	subs map[int64]map[*typingSub]struct{}
}

func NewTypingBroker(ttl time.Duration) *TypingBroker {
	return &TypingBroker{
		ttl:  ttl,
		now:  time.Now,
		subs: make(map[int64]map[*typingSub]struct{}),
	}
}

// Publish broadcasts a typing signal to the thread's subscribers.
func (b *TypingBroker) Publish(threadID, userID int64, stop bool) {
	sig := Signal{
		ThreadID: threadID,
		UserID:   userID,
		Stop:     stop,
		At:       b.now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[threadID] {
		select {
		case sub.ch <- sig:
		default:
			// subscriber is slow; typing signals are droppable
		}
	}
}

// Subscribe registers fn for signals on the thread and returns a cancel
// func. fn runs on a dedicated goroutine per subscription; stale signals
// never reach it.
func (b *TypingBroker) Subscribe(threadID int64, fn func(Signal)) func() {
	sub := &typingSub{
		threadID: threadID,
		ch:       make(chan Signal, 8),
	}

	b.mu.Lock()
	if b.subs[threadID] == nil {
		b.subs[threadID] = make(map[*typingSub]struct{})
	}
	b.subs[threadID][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for sig := range sub.ch {
			if b.now().Sub(sig.At) > b.ttl {
				continue
			}
			fn(sig)
		}
	}()

	return func() {
		b.mu.Lock()
		if subs, ok := b.subs[threadID]; ok {
			if _, live := subs[sub]; live {
				delete(subs, sub)
				close(sub.ch)
				if len(subs) == 0 {
					delete(b.subs, threadID)
				}
			}
		}
		b.mu.Unlock()
	}
}

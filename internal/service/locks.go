package service

import "sync"

// ThreadLocks hands out one mutex per thread id so mutations of the same
// thread serialize while distinct threads proceed in parallel. A single
// instance is shared by the thread and message services so sends and
// participant changes on one thread never interleave.
type ThreadLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func NewThreadLocks() *ThreadLocks {
	return &ThreadLocks{m: make(map[int64]*sync.Mutex)}
}

// Acquire locks the mutex for the given thread and returns its unlock func.
func (l *ThreadLocks) Acquire(threadID int64) func() {
	l.mu.Lock()
	m, ok := l.m[threadID]
	if !ok {
		m = &sync.Mutex{}
		l.m[threadID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// PairLocks hands out one mutex per unordered user pair. Individual-thread
// creation takes the pair's lock so the existence lookup and the insert for
// the same pair never interleave.
type PairLocks struct {
	mu sync.Mutex
	m  map[[2]int64]*sync.Mutex
}

func NewPairLocks() *PairLocks {
	return &PairLocks{m: make(map[[2]int64]*sync.Mutex)}
}

// Acquire locks the mutex for the unordered pair and returns its unlock
// func.
func (l *PairLocks) Acquire(a, b int64) func() {
	if a > b {
		a, b = b, a
	}
	key := [2]int64{a, b}

	l.mu.Lock()
	m, ok := l.m[key]
	if !ok {
		m = &sync.Mutex{}
		l.m[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
)

// PresenceService records last-active timestamps and derives online state.
// Presence is approximate: pings are throttled to bound write volume, and a
// user is online while their last ping falls inside the window.
type PresenceService struct {
	users       domain.UserRepository
	window      time.Duration
	minInterval time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastPing map[int64]time.Time
}

func NewPresenceService(users domain.UserRepository, window, minInterval time.Duration) *PresenceService {
	return &PresenceService{
		users:       users,
		window:      window,
		minInterval: minInterval,
		now:         time.Now,
		lastPing:    make(map[int64]time.Time),
	}
}

// Ping updates the user's last-active timestamp. Pings arriving within the
// minimum interval of the previous write are dropped; a dropped or failed
// ping is never retried.
func (s *PresenceService) Ping(ctx context.Context, userID int64) error {
	now := s.now().UTC()

	s.mu.Lock()
	if last, ok := s.lastPing[userID]; ok && now.Sub(last) < s.minInterval {
		s.mu.Unlock()
		return nil
	}
	s.lastPing[userID] = now
	s.mu.Unlock()

	if err := s.users.SetLastActive(ctx, userID, now); err != nil {
		return fmt.Errorf("record presence ping: %w", err)
	}
	return nil
}

// IsOnline reports whether the user's last ping falls inside the presence
// window. Pure function of the stored timestamp and wall-clock time.
func (s *PresenceService) IsOnline(u *domain.User) bool {
	if u == nil || u.LastActiveAt == nil {
		return false
	}
	return s.now().Sub(*u.LastActiveAt) < s.window
}

// ListOnline returns active directory users currently inside the window.
func (s *PresenceService) ListOnline(ctx context.Context) ([]*domain.User, error) {
	users, err := s.users.ListActive(ctx, 0, 1000)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	online := make([]*domain.User, 0, len(users))
	for _, u := range users {
		if s.IsOnline(u) {
			online = append(online, u)
		}
	}
	return online, nil
}

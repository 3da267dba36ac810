package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for the user directory.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListActive(ctx context.Context, offset, limit int) ([]*User, error)
	Update(ctx context.Context, u *User) error
	SetLastActive(ctx context.Context, id int64, at time.Time) error
}

// ThreadRepository defines persistence operations for chat threads.
type ThreadRepository interface {
	// Create persists the thread together with its initial participant set
	// in a single transaction.
	Create(ctx context.Context, t *Thread, participantIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Thread, error)
	ListForUser(ctx context.Context, userID int64, typeFilter *ThreadType) ([]*Thread, error)
	Update(ctx context.Context, t *Thread) error
	SoftDelete(ctx context.Context, id, actorID int64, at time.Time) error
	// FindIndividual returns the individual thread for the given unordered
	// pair of users, or nil if none exists.
	FindIndividual(ctx context.Context, userA, userB int64) (*Thread, error)
}

// ParticipantRepository defines operations around thread membership.
type ParticipantRepository interface {
	ListParticipants(ctx context.Context, threadID int64) ([]*User, error)
	ListIDs(ctx context.Context, threadID int64) ([]int64, error)
	IsParticipant(ctx context.Context, threadID, userID int64) (bool, error)
	Add(ctx context.Context, threadID int64, userIDs []int64, at time.Time) error
	Remove(ctx context.Context, threadID, userID int64) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// Create inserts the message, seeds its read set with the sender, and
	// bumps the thread's last_message_at to the message timestamp, all in
	// one transaction.
	Create(ctx context.Context, m *Message) error
	// GetByID returns the message including soft-deleted rows (audit path).
	GetByID(ctx context.Context, id int64) (*Message, error)
	// ListForThread returns non-deleted messages in ascending creation
	// order with their read sets attached.
	ListForThread(ctx context.Context, threadID int64, limit, offset int) ([]*Message, error)
	// MarkAllRead records userID as a reader of every message in the thread
	// that existed at call time and is not already read by them.
	MarkAllRead(ctx context.Context, threadID, userID int64, at time.Time) error
	SoftDelete(ctx context.Context, id, actorID int64, reason *DeleteReason, at time.Time) error
}

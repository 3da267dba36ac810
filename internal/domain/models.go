package domain

import "time"

// Role is the application-wide role of a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

// User represents an application user.
type User struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Email          string     `db:"email" json:"email"`
	HashedPassword string     `db:"hashed_password" json:"-"`
	Role           Role       `db:"role" json:"role"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	LastActiveAt   *time.Time `db:"last_active_at" json:"last_active_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// ThreadType classifies a chat thread.
type ThreadType string

const (
	ThreadIndividual ThreadType = "individual"
	ThreadGroup      ThreadType = "group"
	ThreadDepartment ThreadType = "department"
)

// ValidThreadType reports whether t is one of the known classifications.
func ValidThreadType(t ThreadType) bool {
	switch t {
	case ThreadIndividual, ThreadGroup, ThreadDepartment:
		return true
	}
	return false
}

// Thread represents a chat conversation. Individual threads have exactly
// two participants and no name; group and department threads are named and
// hold two or more participants.
type Thread struct {
	ID            int64      `db:"id" json:"id"`
	Name          *string    `db:"name" json:"name,omitempty"`
	Type          ThreadType `db:"type" json:"type"`
	CreatorID     int64      `db:"creator_id" json:"creator_id"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	DeletedBy     *int64     `db:"deleted_by" json:"deleted_by,omitempty"`
	DeletedAt     *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastMessageAt time.Time  `db:"last_message_at" json:"last_message_at"`
}

// ThreadParticipant represents the membership of a user in a thread.
type ThreadParticipant struct {
	ThreadID int64     `db:"thread_id" json:"thread_id"`
	UserID   int64     `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// DeleteReason is the moderation reason recorded when an admin removes a
// message. Senders deleting their own messages record no reason.
type DeleteReason string

const (
	ReasonInappropriate DeleteReason = "inappropriate"
	ReasonViolent       DeleteReason = "violent"
	ReasonHarassment    DeleteReason = "harassment"
	ReasonSpam          DeleteReason = "spam"
	ReasonOther         DeleteReason = "other"
)

// ValidDeleteReason reports whether r is one of the enumerated reasons.
func ValidDeleteReason(r DeleteReason) bool {
	switch r {
	case ReasonInappropriate, ReasonViolent, ReasonHarassment, ReasonSpam, ReasonOther:
		return true
	}
	return false
}

// Message represents a single chat message. ReadBy holds the ids of users
// who have acknowledged the message; it always contains the sender.
// Deleted messages keep their row for the moderation audit trail.
type Message struct {
	ID           int64         `db:"id" json:"id"`
	ThreadID     int64         `db:"thread_id" json:"thread_id"`
	SenderID     int64         `db:"sender_id" json:"sender_id"`
	Content      string        `db:"content" json:"content"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	IsDeleted    bool          `db:"is_deleted" json:"is_deleted"`
	DeletedBy    *int64        `db:"deleted_by" json:"deleted_by,omitempty"`
	DeletedAt    *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
	DeleteReason *DeleteReason `db:"delete_reason" json:"delete_reason,omitempty"`
	ReadBy       []int64       `db:"-" json:"read_by"`
}

// ReadByUser reports whether the given user has read the message.
func (m *Message) ReadByUser(userID int64) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
)

const maxMessageRunes = 5000

// MessageService owns the message sequence of each thread: serialized
// appends, read receipts, and moderated soft deletion.
type MessageService struct {
	threads      domain.ThreadRepository
	participants domain.ParticipantRepository
	messages     domain.MessageRepository
	locks        *ThreadLocks
	log          *zap.SugaredLogger

	PageSize int
}

func NewMessageService(
	threads domain.ThreadRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	locks *ThreadLocks,
	log *zap.SugaredLogger,
	pageSize int,
) *MessageService {
	return &MessageService{
		threads:      threads,
		participants: participants,
		messages:     messages,
		locks:        locks,
		log:          log,
		PageSize:     pageSize,
	}
}

// Send appends a message to the thread. Appends to the same thread are
// serialized under the thread lock so creation order is deterministic and
// last_message_at reflects the true latest send.
func (s *MessageService) Send(ctx context.Context, actor *domain.User, threadID int64, text string) (*domain.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, fmt.Errorf("%w: message text cannot be empty", domain.ErrInvalidInput)
	}
	if len([]rune(content)) > maxMessageRunes {
		return nil, fmt.Errorf("%w: message exceeds %d characters", domain.ErrInvalidInput, maxMessageRunes)
	}

	if err := s.requireActiveThreadParticipant(ctx, threadID, actor.ID); err != nil {
		return nil, err
	}

	unlock := s.locks.Acquire(threadID)
	defer unlock()

	msg := &domain.Message{
		ThreadID:  threadID,
		SenderID:  actor.ID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkRead records the actor as a reader of every message existing in the
// thread at call time. Idempotent; a message sent concurrently with the
// call is not required to be covered.
func (s *MessageService) MarkRead(ctx context.Context, actor *domain.User, threadID int64) error {
	if err := s.requireActiveThreadParticipant(ctx, threadID, actor.ID); err != nil {
		return err
	}
	return s.messages.MarkAllRead(ctx, threadID, actor.ID, time.Now().UTC())
}

// Delete soft-deletes a message. The sender needs no reason; an admin must
// supply one from the enumerated moderation set. The read set is untouched
// and the row is kept for audit.
func (s *MessageService) Delete(ctx context.Context, actor *domain.User, messageID int64, reason *domain.DeleteReason) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}
	if msg.IsDeleted {
		return nil, fmt.Errorf("%w: message is already deleted", domain.ErrConflict)
	}

	switch {
	case msg.SenderID == actor.ID:
		reason = nil
	case actor.IsAdmin():
		if reason == nil || !domain.ValidDeleteReason(*reason) {
			return nil, fmt.Errorf("%w: a moderation reason is required", domain.ErrInvalidInput)
		}
	default:
		return nil, domain.ErrForbidden
	}

	now := time.Now().UTC()
	if err := s.messages.SoftDelete(ctx, messageID, actor.ID, reason, now); err != nil {
		return nil, err
	}
	msg.IsDeleted = true
	msg.DeletedBy = &actor.ID
	msg.DeletedAt = &now
	msg.DeleteReason = reason

	fields := []any{
		"action", "message.delete",
		"message_id", messageID,
		"thread_id", msg.ThreadID,
		"actor_id", actor.ID,
	}
	if reason != nil {
		fields = append(fields, "reason", string(*reason))
	}
	s.log.Infow("message deleted", fields...)
	return msg, nil
}

// List returns the thread's non-deleted messages in ascending creation
// order, ties broken by insertion order.
func (s *MessageService) List(ctx context.Context, actor *domain.User, threadID int64, limit, offset int) ([]*domain.Message, error) {
	if err := s.requireActiveThreadParticipant(ctx, threadID, actor.ID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.PageSize {
		limit = s.PageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.messages.ListForThread(ctx, threadID, limit, offset)
}

// Audit returns a message by id including soft-deleted rows. Admin only.
func (s *MessageService) Audit(ctx context.Context, actor *domain.User, messageID int64) (*domain.Message, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}
	return msg, nil
}

func (s *MessageService) requireActiveThreadParticipant(ctx context.Context, threadID, userID int64) error {
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return fmt.Errorf("get thread: %w", err)
	}
	if thread == nil || !thread.IsActive {
		return domain.ErrNotFound
	}
	ok, err := s.participants.IsParticipant(ctx, threadID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
)

// ThreadService owns chat thread lifecycle: creation with individual-thread
// deduplication, rename/reclassify, participant management, and soft delete.
// Role checks for moderation actions live here, next to the operations they
// guard.
type ThreadService struct {
	threads      domain.ThreadRepository
	participants domain.ParticipantRepository
	users        domain.UserRepository
	locks        *ThreadLocks
	pairs        *PairLocks
	log          *zap.SugaredLogger
}

func NewThreadService(
	threads domain.ThreadRepository,
	participants domain.ParticipantRepository,
	users domain.UserRepository,
	locks *ThreadLocks,
	log *zap.SugaredLogger,
) *ThreadService {
	return &ThreadService{
		threads:      threads,
		participants: participants,
		users:        users,
		locks:        locks,
		pairs:        NewPairLocks(),
		log:          log,
	}
}

type ThreadCreateInput struct {
	Name           *string
	Type           domain.ThreadType // empty means infer from participant count
	ParticipantIDs []int64
}

// EnsureThread creates a thread or, for the individual type, returns the
// existing thread for the unordered participant pair. The actor is always a
// participant. Idempotent for repeated individual requests with the same
// pair.
func (s *ThreadService) EnsureThread(ctx context.Context, actor *domain.User, in ThreadCreateInput) (*domain.Thread, error) {
	if len(in.ParticipantIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", domain.ErrInvalidInput)
	}

	ids := dedupeWithActor(actor.ID, in.ParticipantIDs)

	for _, id := range ids {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check participant %d: %w", id, err)
		}
		if u == nil || !u.IsActive {
			return nil, fmt.Errorf("%w: participant %d", domain.ErrNotFound, id)
		}
	}

	typ := in.Type
	if typ == "" {
		if len(ids) > 2 {
			typ = domain.ThreadGroup
		} else {
			typ = domain.ThreadIndividual
		}
	}
	if !domain.ValidThreadType(typ) {
		return nil, fmt.Errorf("%w: unknown thread type %q", domain.ErrInvalidInput, typ)
	}

	name := normalizeName(in.Name)
	switch typ {
	case domain.ThreadIndividual:
		if len(ids) != 2 {
			return nil, fmt.Errorf("%w: individual threads have exactly 2 participants", domain.ErrConstraint)
		}
		if name != nil {
			return nil, fmt.Errorf("%w: individual threads are unnamed", domain.ErrInvalidInput)
		}
		// hold the pair lock across lookup and create so two concurrent
		// requests for the same pair cannot both insert
		unlock := s.pairs.Acquire(ids[0], ids[1])
		defer unlock()
		existing, err := s.threads.FindIndividual(ctx, ids[0], ids[1])
		if err != nil {
			return nil, fmt.Errorf("find individual thread: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	default:
		if name == nil {
			return nil, fmt.Errorf("%w: %s threads require a name", domain.ErrInvalidInput, typ)
		}
		if len(ids) < 2 {
			return nil, fmt.Errorf("%w: %s threads need at least 2 participants", domain.ErrConstraint, typ)
		}
	}

	now := time.Now().UTC()
	thread := &domain.Thread{
		Name:          name,
		Type:          typ,
		CreatorID:     actor.ID,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.threads.Create(ctx, thread, ids); err != nil {
		return nil, err
	}
	return thread, nil
}

type ThreadUpdateInput struct {
	Name *string
	Type *domain.ThreadType
}

// UpdateThread renames or reclassifies a thread. Unknown threads surface
// ErrNotFound rather than silently no-opping.
func (s *ThreadService) UpdateThread(ctx context.Context, actor *domain.User, threadID int64, in ThreadUpdateInput) (*domain.Thread, error) {
	thread, err := s.activeThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, threadID, actor.ID); err != nil {
		return nil, err
	}

	if thread.Type == domain.ThreadIndividual {
		return nil, fmt.Errorf("%w: individual threads cannot be renamed or reclassified", domain.ErrConstraint)
	}

	if in.Name != nil {
		name := normalizeName(in.Name)
		if name == nil {
			return nil, fmt.Errorf("%w: thread name cannot be empty", domain.ErrInvalidInput)
		}
		thread.Name = name
	}
	if in.Type != nil {
		typ := *in.Type
		if !domain.ValidThreadType(typ) {
			return nil, fmt.Errorf("%w: unknown thread type %q", domain.ErrInvalidInput, typ)
		}
		// group <-> department only; the individual shape is fixed at creation
		if typ == domain.ThreadIndividual {
			return nil, fmt.Errorf("%w: threads cannot become individual", domain.ErrConstraint)
		}
		thread.Type = typ
	}

	if err := s.threads.Update(ctx, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// AddParticipants unions the given users into the thread. Rejected for
// individual threads. Returns the ids that were actually added.
func (s *ThreadService) AddParticipants(ctx context.Context, actor *domain.User, threadID int64, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no participants given", domain.ErrInvalidInput)
	}
	thread, err := s.activeThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.Type == domain.ThreadIndividual {
		return nil, fmt.Errorf("%w: individual threads cannot gain participants", domain.ErrConstraint)
	}
	if err := s.requireParticipant(ctx, threadID, actor.ID); err != nil {
		return nil, err
	}

	for _, id := range userIDs {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check participant %d: %w", id, err)
		}
		if u == nil || !u.IsActive {
			return nil, fmt.Errorf("%w: participant %d", domain.ErrNotFound, id)
		}
	}

	unlock := s.locks.Acquire(threadID)
	defer unlock()

	existing, err := s.participants.ListIDs(ctx, threadID)
	if err != nil {
		return nil, err
	}
	present := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		present[id] = struct{}{}
	}
	var added []int64
	for _, id := range userIDs {
		if _, ok := present[id]; ok {
			continue
		}
		present[id] = struct{}{}
		added = append(added, id)
	}
	if len(added) == 0 {
		return nil, nil
	}

	if err := s.participants.Add(ctx, threadID, added, time.Now().UTC()); err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveParticipant removes a user from the thread. Allowed for admins, the
// thread creator, or the user removing themself. The creator stays, the
// participant count never drops below 2, and individual threads are fixed.
func (s *ThreadService) RemoveParticipant(ctx context.Context, actor *domain.User, threadID, userID int64) error {
	thread, err := s.activeThread(ctx, threadID)
	if err != nil {
		return err
	}
	if thread.Type == domain.ThreadIndividual {
		return fmt.Errorf("%w: individual threads keep their participants", domain.ErrConstraint)
	}
	if !actor.IsAdmin() && actor.ID != thread.CreatorID && actor.ID != userID {
		return domain.ErrForbidden
	}
	if userID == thread.CreatorID {
		return fmt.Errorf("%w: the thread creator cannot be removed", domain.ErrConstraint)
	}

	unlock := s.locks.Acquire(threadID)
	defer unlock()

	ids, err := s.participants.ListIDs(ctx, threadID)
	if err != nil {
		return err
	}
	if !containsID(ids, userID) {
		return fmt.Errorf("%w: user %d is not a participant", domain.ErrNotFound, userID)
	}
	if len(ids) <= 2 {
		return fmt.Errorf("%w: threads keep at least 2 participants", domain.ErrConstraint)
	}

	if err := s.participants.Remove(ctx, threadID, userID); err != nil {
		return err
	}
	s.log.Infow("participant removed",
		"action", "thread.remove_participant",
		"thread_id", threadID,
		"actor_id", actor.ID,
		"user_id", userID,
	)
	return nil
}

// DeleteThread marks the thread inactive. Admin or creator only; messages
// are retained.
func (s *ThreadService) DeleteThread(ctx context.Context, actor *domain.User, threadID int64) error {
	thread, err := s.activeThread(ctx, threadID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && actor.ID != thread.CreatorID {
		return domain.ErrForbidden
	}

	if err := s.threads.SoftDelete(ctx, threadID, actor.ID, time.Now().UTC()); err != nil {
		return err
	}
	s.log.Infow("thread deleted",
		"action", "thread.delete",
		"thread_id", threadID,
		"actor_id", actor.ID,
	)
	return nil
}

func (s *ThreadService) GetThread(ctx context.Context, actor *domain.User, threadID int64) (*domain.Thread, error) {
	thread, err := s.activeThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, threadID, actor.ID); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *ThreadService) ListForUser(ctx context.Context, userID int64, typeFilter *domain.ThreadType) ([]*domain.Thread, error) {
	return s.threads.ListForUser(ctx, userID, typeFilter)
}

func (s *ThreadService) ListParticipants(ctx context.Context, threadID int64) ([]*domain.User, error) {
	return s.participants.ListParticipants(ctx, threadID)
}

// ParticipantIDs returns the thread's member ids, used for broadcasts.
func (s *ThreadService) ParticipantIDs(ctx context.Context, threadID int64) ([]int64, error) {
	return s.participants.ListIDs(ctx, threadID)
}

func (s *ThreadService) IsParticipant(ctx context.Context, threadID, userID int64) (bool, error) {
	return s.participants.IsParticipant(ctx, threadID, userID)
}

func (s *ThreadService) activeThread(ctx context.Context, threadID int64) (*domain.Thread, error) {
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	if thread == nil || !thread.IsActive {
		return nil, domain.ErrNotFound
	}
	return thread, nil
}

func (s *ThreadService) requireParticipant(ctx context.Context, threadID, userID int64) error {
	ok, err := s.participants.IsParticipant(ctx, threadID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

func dedupeWithActor(actorID int64, ids []int64) []int64 {
	seen := map[int64]struct{}{actorID: {}}
	out := append(make([]int64, 0, len(ids)+1), actorID)
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func normalizeName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

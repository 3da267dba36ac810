package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
)

type ThreadRepo struct {
	db *sql.DB
}

func NewThreadRepo(db *sql.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

var _ domain.ThreadRepository = (*ThreadRepo)(nil)

const threadColumns = `id, name, type, creator_id, is_active, deleted_by, deleted_at, created_at, last_message_at`

func (r *ThreadRepo) Create(ctx context.Context, t *domain.Thread, participantIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO threads (name, type, creator_id, is_active, created_at, last_message_at)
		VALUES (?, ?, ?, 1, ?, ?)
	`, t.Name, t.Type, t.CreatorID, t.CreatedAt, t.LastMessageAt)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	t.IsActive = true

	for _, uid := range participantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO thread_participants (thread_id, user_id, joined_at)
			VALUES (?, ?, ?)
		`, id, uid, t.CreatedAt); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ThreadRepo) GetByID(ctx context.Context, id int64) (*domain.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = ?`
	t := &domain.Thread{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.Type,
		&t.CreatorID,
		&t.IsActive,
		&t.DeletedBy,
		&t.DeletedAt,
		&t.CreatedAt,
		&t.LastMessageAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

func (r *ThreadRepo) ListForUser(ctx context.Context, userID int64, typeFilter *domain.ThreadType) ([]*domain.Thread, error) {
	query := `
		SELECT t.id, t.name, t.type, t.creator_id, t.is_active, t.deleted_by, t.deleted_at, t.created_at, t.last_message_at
		FROM threads t
		JOIN thread_participants tp ON tp.thread_id = t.id
		WHERE tp.user_id = ? AND t.is_active = 1
	`
	args := []any{userID}
	if typeFilter != nil {
		query += ` AND t.type = ?`
		args = append(args, *typeFilter)
	}
	query += ` ORDER BY t.last_message_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var res []*domain.Thread
	for rows.Next() {
		t := &domain.Thread{}
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Type,
			&t.CreatorID,
			&t.IsActive,
			&t.DeletedBy,
			&t.DeletedAt,
			&t.CreatedAt,
			&t.LastMessageAt,
		); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *ThreadRepo) Update(ctx context.Context, t *domain.Thread) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE threads SET name = ?, type = ? WHERE id = ?
	`, t.Name, t.Type, t.ID)
	if err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	return nil
}

func (r *ThreadRepo) SoftDelete(ctx context.Context, id, actorID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE threads SET is_active = 0, deleted_by = ?, deleted_at = ? WHERE id = ?
	`, actorID, at, id)
	if err != nil {
		return fmt.Errorf("soft delete thread: %w", err)
	}
	return nil
}

func (r *ThreadRepo) FindIndividual(ctx context.Context, userA, userB int64) (*domain.Thread, error) {
	// An individual thread for the unordered pair is one that both users
	// participate in; individual threads never gain or lose participants,
	// so matching both memberships is exact.
	query := `
		SELECT t.id, t.name, t.type, t.creator_id, t.is_active, t.deleted_by, t.deleted_at, t.created_at, t.last_message_at
		FROM threads t
		JOIN thread_participants p1 ON p1.thread_id = t.id AND p1.user_id = ?
		JOIN thread_participants p2 ON p2.thread_id = t.id AND p2.user_id = ?
		WHERE t.type = ? AND t.is_active = 1
		LIMIT 1
	`
	t := &domain.Thread{}
	err := r.db.QueryRowContext(ctx, query, userA, userB, domain.ThreadIndividual).Scan(
		&t.ID,
		&t.Name,
		&t.Type,
		&t.CreatorID,
		&t.IsActive,
		&t.DeletedBy,
		&t.DeletedAt,
		&t.CreatedAt,
		&t.LastMessageAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find individual thread: %w", err)
	}
	return t, nil
}

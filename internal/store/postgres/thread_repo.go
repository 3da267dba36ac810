package postgres

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

	err = tx.QueryRowContext(ctx, `
		INSERT INTO threads (name, type, creator_id, is_active, created_at, last_message_at)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING id
	`, t.Name, t.Type, t.CreatorID, t.CreatedAt, t.LastMessageAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	t.IsActive = true

	for _, uid := range participantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO thread_participants (thread_id, user_id, joined_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, t.ID, uid, t.CreatedAt); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ThreadRepo) GetByID(ctx context.Context, id int64) (*domain.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = $1`
	return r.scanThread(r.db.QueryRowContext(ctx, query, id))
}

func (r *ThreadRepo) ListForUser(ctx context.Context, userID int64, typeFilter *domain.ThreadType) ([]*domain.Thread, error) {
	query := `
		SELECT t.id, t.name, t.type, t.creator_id, t.is_active, t.deleted_by, t.deleted_at, t.created_at, t.last_message_at
		FROM threads t
		JOIN thread_participants tp ON tp.thread_id = t.id
		WHERE tp.user_id = $1 AND t.is_active
	`
	args := []any{userID}
	if typeFilter != nil {
		query += ` AND t.type = $2`
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
		UPDATE threads SET name = $1, type = $2 WHERE id = $3
	`, t.Name, t.Type, t.ID)
	if err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	return nil
}

func (r *ThreadRepo) SoftDelete(ctx context.Context, id, actorID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE threads SET is_active = FALSE, deleted_by = $1, deleted_at = $2 WHERE id = $3
	`, actorID, at, id)
	if err != nil {
		return fmt.Errorf("soft delete thread: %w", err)
	}
	return nil
}

func (r *ThreadRepo) FindIndividual(ctx context.Context, userA, userB int64) (*domain.Thread, error) {
	query := `
		SELECT t.id, t.name, t.type, t.creator_id, t.is_active, t.deleted_by, t.deleted_at, t.created_at, t.last_message_at
		FROM threads t
		JOIN thread_participants p1 ON p1.thread_id = t.id AND p1.user_id = $1
		JOIN thread_participants p2 ON p2.thread_id = t.id AND p2.user_id = $2
		WHERE t.type = $3 AND t.is_active
		LIMIT 1
	`
	return r.scanThread(r.db.QueryRowContext(ctx, query, userA, userB, domain.ThreadIndividual))
}

func (r *ThreadRepo) scanThread(row *sql.Row) (*domain.Thread, error) {
	t := &domain.Thread{}
	err := row.Scan(
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
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	return t, nil
}

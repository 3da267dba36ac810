package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
)

type ParticipantRepo struct {
	db *sql.DB
}

func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

var _ domain.ParticipantRepository = (*ParticipantRepo)(nil)

func (r *ParticipantRepo) ListParticipants(ctx context.Context, threadID int64) ([]*domain.User, error) {
	query := `
		SELECT u.id, u.name, u.email, u.hashed_password, u.role, u.is_active, u.last_active_at, u.created_at
		FROM users u
		JOIN thread_participants tp ON tp.user_id = u.id
		WHERE tp.thread_id = $1
		ORDER BY u.name ASC
	`
	rows, err := r.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u := &domain.User{}
		if err := scanUserRow(rows, u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *ParticipantRepo) ListIDs(ctx context.Context, threadID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM thread_participants WHERE thread_id = $1 ORDER BY user_id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list participant ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ParticipantRepo) IsParticipant(ctx context.Context, threadID, userID int64) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM thread_participants WHERE thread_id = $1 AND user_id = $2
	`, threadID, userID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is participant: %w", err)
	}
	return true, nil
}

func (r *ParticipantRepo) Add(ctx context.Context, threadID int64, userIDs []int64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO thread_participants (thread_id, user_id, joined_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, threadID, uid, at); err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) Remove(ctx context.Context, threadID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM thread_participants WHERE thread_id = $1 AND user_id = $2
	`, threadID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}

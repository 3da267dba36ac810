package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, thread_id, sender_id, content, created_at, is_deleted, deleted_by, deleted_at, delete_reason`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (thread_id, sender_id, content, created_at, is_deleted)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id
	`, m.ThreadID, m.SenderID, m.Content, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		VALUES ($1, $2, $3)
	`, m.ID, m.SenderID, m.CreatedAt); err != nil {
		return fmt.Errorf("seed sender read: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE threads SET last_message_at = $1 WHERE id = $2
	`, m.CreatedAt, m.ThreadID); err != nil {
		return fmt.Errorf("bump last_message_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.ReadBy = []int64{m.SenderID}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.ThreadID,
		&m.SenderID,
		&m.Content,
		&m.CreatedAt,
		&m.IsDeleted,
		&m.DeletedBy,
		&m.DeletedAt,
		&m.DeleteReason,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if err := r.attachReads(ctx, []*domain.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) ListForThread(ctx context.Context, threadID int64, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE thread_id = $1 AND NOT is_deleted
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, threadID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID,
			&m.ThreadID,
			&m.SenderID,
			&m.Content,
			&m.CreatedAt,
			&m.IsDeleted,
			&m.DeletedBy,
			&m.DeletedAt,
			&m.DeleteReason,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachReads(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepo) MarkAllRead(ctx context.Context, threadID, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, $1, $2
		FROM messages m
		WHERE m.thread_id = $3
		ON CONFLICT DO NOTHING
	`, userID, at, threadID)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id, actorID int64, reason *domain.DeleteReason, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET is_deleted = TRUE, deleted_by = $1, deleted_at = $2, delete_reason = $3
		WHERE id = $4
	`, actorID, at, reason, id)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	return nil
}

func (r *MessageRepo) attachReads(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT mr.message_id, mr.user_id
		FROM message_reads mr
		JOIN messages m ON m.id = mr.message_id
		WHERE m.thread_id = $1
		ORDER BY mr.user_id ASC
	`, msgs[0].ThreadID)
	if err != nil {
		return fmt.Errorf("load read sets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msgID, userID int64
		if err := rows.Scan(&msgID, &userID); err != nil {
			return fmt.Errorf("scan read row: %w", err)
		}
		if m, ok := byID[msgID]; ok {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return rows.Err()
}

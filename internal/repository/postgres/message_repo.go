package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/campussync/messaging/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, message_type,
			attachment_url, attachment_kind, attachment_name, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)`

	var attURL, attName *string
	var attKind *domain.AttachmentKind
	if msg.Attachment != nil {
		attURL = &msg.Attachment.URL
		attKind = &msg.Attachment.Kind
		attName = &msg.Attachment.Name
	}

	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Type,
		attURL, attKind, attName, msg.CreatedAt,
	)
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.message_type,
			m.attachment_url, m.attachment_kind, m.attachment_name,
			m.is_read, m.read_at, m.deleted_by, m.created_at,
			u.username, u.display_name
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.id = $1`

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepo) ListPage(ctx context.Context, conversationID, viewerID uuid.UUID, page, pageSize int) ([]domain.Message, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1 AND NOT ($2 = ANY(deleted_by))`,
		conversationID, viewerID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.message_type,
			m.attachment_url, m.attachment_kind, m.attachment_name,
			m.is_read, m.read_at, m.deleted_by, m.created_at,
			u.username, u.display_name
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = $1 AND NOT ($2 = ANY(m.deleted_by))
		ORDER BY m.created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query, conversationID, viewerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Reverse to chronological order (query returns DESC)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, total, nil
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = $1
		WHERE conversation_id = $2 AND sender_id <> $3 AND is_read = FALSE`,
		at, conversationID, readerID,
	)
	return err
}

func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, userID uuid.UUID) error {
	// array_append guarded by the membership check keeps re-deletes no-ops.
	_, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET deleted_by = array_append(deleted_by, $1)
		WHERE id = $2 AND NOT ($1 = ANY(deleted_by))`,
		userID, messageID,
	)
	return err
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	var attURL, attName *string
	var attKind *domain.AttachmentKind
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Type,
		&attURL, &attKind, &attName,
		&msg.IsRead, &msg.ReadAt, &msg.DeletedBy, &msg.CreatedAt,
		&msg.SenderUsername, &msg.SenderDisplayName,
	)
	if err != nil {
		return nil, err
	}
	if attURL != nil {
		msg.Attachment = &domain.Attachment{URL: *attURL, Kind: *attKind}
		if attName != nil {
			msg.Attachment.Name = *attName
		}
	}
	return &msg, nil
}

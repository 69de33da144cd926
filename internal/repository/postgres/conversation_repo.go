package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/campussync/messaging/internal/domain"
	"github.com/campussync/messaging/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code raised when the canonical-pair
// unique constraint rejects a duplicate conversation.
const uniqueViolation = "23505"

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, user1_id, user2_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.User1ID, conv.User2ID, conv.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConversationExists
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id, unread_count)
		VALUES ($1, $2, 0), ($1, $3, 0)`,
		conv.ID, conv.User1ID, conv.User2ID,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return r.scanConversation(ctx, `
		SELECT id, user1_id, user2_id, last_message_id, last_message_at, created_at
		FROM conversations
		WHERE id = $1`, id)
}

func (r *ConversationRepo) GetByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	return r.scanConversation(ctx, `
		SELECT id, user1_id, user2_id, last_message_id, last_message_at, created_at
		FROM conversations
		WHERE user1_id = $1 AND user2_id = $2`, user1ID, user2ID)
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	query := `
		SELECT c.id, c.user1_id, c.user2_id, c.last_message_id, c.last_message_at, c.created_at,
			CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END AS other_user_id,
			CASE WHEN c.user1_id = $1 THEN u2.username ELSE u1.username END AS other_username,
			CASE WHEN c.user1_id = $1 THEN u2.display_name ELSE u1.display_name END AS other_display_name,
			cm.unread_count,
			m.id, m.sender_id, m.content, m.message_type, m.created_at
		FROM conversations c
		JOIN users u1 ON c.user1_id = u1.id
		JOIN users u2 ON c.user2_id = u2.id
		JOIN conversation_members cm ON cm.conversation_id = c.id AND cm.user_id = $1
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.user1_id = $1 OR c.user2_id = $1
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		var lastID *uuid.UUID
		var lastSender *uuid.UUID
		var lastContent *string
		var lastType *domain.MessageType
		var lastCreated *time.Time
		if err := rows.Scan(
			&conv.ID, &conv.User1ID, &conv.User2ID, &conv.LastMessageID,
			&conv.LastMessageAt, &conv.CreatedAt,
			&conv.OtherUserID, &conv.OtherUsername, &conv.OtherDisplayName,
			&conv.UnreadCount,
			&lastID, &lastSender, &lastContent, &lastType, &lastCreated,
		); err != nil {
			return nil, err
		}
		if lastID != nil {
			conv.LastMessage = &domain.Message{
				ID:             *lastID,
				ConversationID: conv.ID,
				SenderID:       *lastSender,
				Content:        *lastContent,
				Type:           *lastType,
				CreatedAt:      *lastCreated,
			}
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// ApplyNewMessage performs the post-send conversation bookkeeping in one
// transaction. The counter changes are plain UPDATE expressions so concurrent
// sends by both participants cannot lose increments.
func (r *ConversationRepo) ApplyNewMessage(ctx context.Context, conversationID, messageID, senderID uuid.UUID, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $1, last_message_at = $2
		WHERE id = $3`,
		messageID, at, conversationID,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversation_members
		SET unread_count = 0
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, senderID,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversation_members
		SET unread_count = unread_count + 1
		WHERE conversation_id = $1 AND user_id <> $2`,
		conversationID, senderID,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ConversationRepo) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversation_members
		SET unread_count = 0
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	return err
}

func (r *ConversationRepo) UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT unread_count
		FROM conversation_members
		WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

func (r *ConversationRepo) scanConversation(ctx context.Context, query string, args ...any) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&conv.ID, &conv.User1ID, &conv.User2ID,
		&conv.LastMessageID, &conv.LastMessageAt, &conv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &conv, err
}

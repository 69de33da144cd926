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

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

const notificationColumns = "id, user_id, type, title, message, item_id, book_id, conversation_id, actor_id, read, read_at, expires_at, created_at"

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		n.ID, n.UserID, n.Type, n.Title, n.Message,
		n.ItemID, n.BookID, n.ConversationID, n.ActorID,
		n.Read, n.ReadAt, n.ExpiresAt, n.CreatedAt,
	)
	return err
}

func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, pageSize int) ([]domain.Notification, int, error) {
	filter := "WHERE user_id = $1"
	if unreadOnly {
		filter += " AND read = FALSE"
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications "+filter, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + notificationColumns + " FROM notifications " + filter +
		" ORDER BY created_at DESC LIMIT $2 OFFSET $3"

	rows, err := r.pool.Query(ctx, query, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, total, rows.Err()
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE", userID,
	).Scan(&count)
	return count, err
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE notifications SET read = TRUE, read_at = $1 WHERE id = $2", at, id)
	return err
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE notifications SET read = TRUE, read_at = $1 WHERE user_id = $2 AND read = FALSE", at, userID)
	return err
}

func (r *NotificationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM notifications WHERE id = $1", id)
	return err
}

func (r *NotificationRepo) DeleteRead(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM notifications WHERE user_id = $1 AND read = TRUE", userID)
	return err
}

func (r *NotificationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM notifications WHERE expires_at < $1", now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
		&n.ItemID, &n.BookID, &n.ConversationID, &n.ActorID,
		&n.Read, &n.ReadAt, &n.ExpiresAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

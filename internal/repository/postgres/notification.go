package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = "id, type, title, body, target_user_id, priority, related_job_id, related_building_id, read, created_at, due_at"

type notificationRepo struct {
	db *pgxpool.Pool
}

func newNotificationRepo(db *pgxpool.Pool) repository.Notification {
	return &notificationRepo{
		db: db,
	}
}

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var (
		n        model.Notification
		typ      string
		priority int16
	)
	if err := row.Scan(
		&n.ID,
		&typ,
		&n.Title,
		&n.Body,
		&n.TargetUserID,
		&priority,
		&n.RelatedJobID,
		&n.RelatedBuildingID,
		&n.Read,
		&n.CreatedAt,
		&n.DueAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	n.Type = model.NotificationType(typ)
	n.Priority = model.Priority(priority)
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications(id, type, title, body, target_user_id, priority, related_job_id, related_building_id, read, created_at, due_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, n.ID, string(n.Type), n.Title, n.Body, n.TargetUserID, int16(n.Priority), n.RelatedJobID, n.RelatedBuildingID, n.Read, n.CreatedAt, n.DueAt)
	return err
}

func (r *notificationRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return scanNotification(r.db.QueryRow(ctx, "SELECT "+notificationColumns+" FROM notifications WHERE id = $1", id))
}

// ListUnread returns at most limit rows; limit <= 0 means all of them.
func (r *notificationRepo) ListUnread(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	rows, err := r.db.Query(
		ctx,
		`
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE target_user_id = $1 AND read = false
		ORDER BY created_at DESC
		LIMIT $2
		`,
		userID, limitArg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []*model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM notifications WHERE target_user_id = $1 AND read = false", userID).Scan(&count)
	return count, err
}

func (r *notificationRepo) MarkRead(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return scanNotification(r.db.QueryRow(ctx, "UPDATE notifications SET read = true WHERE id = $1 RETURNING "+notificationColumns, id))
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, "UPDATE notifications SET read = true WHERE target_user_id = $1 AND read = false", userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *notificationRepo) DeleteRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM notifications WHERE target_user_id = $1 AND read = true", userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *notificationRepo) DeleteOld(ctx context.Context, readBefore, anyBefore time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM notifications
		WHERE (read = true AND created_at < $1) OR created_at < $2
	`, readBefore, anyBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

package postgres

import (
	"context"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pushEndpointRepo struct {
	db *pgxpool.Pool
}

func newPushEndpointRepo(db *pgxpool.Pool) repository.PushEndpoint {
	return &pushEndpointRepo{
		db: db,
	}
}

func (r *pushEndpointRepo) Upsert(ctx context.Context, e *model.PushEndpoint) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	return r.db.QueryRow(ctx, `
		INSERT INTO push_endpoints(id, owner_user_id, endpoint_url, p256dh, auth)
		VALUES($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint_url) DO UPDATE SET
			owner_user_id = EXCLUDED.owner_user_id,
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			last_used_at = NOW()
		RETURNING id, created_at, last_used_at
	`, e.ID, e.OwnerUserID, e.EndpointURL, e.Keys.P256dh, e.Keys.Auth).Scan(&e.ID, &e.CreatedAt, &e.LastUsedAt)
}

func (r *pushEndpointRepo) DeleteByEndpoint(ctx context.Context, endpointURL string) (bool, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM push_endpoints WHERE endpoint_url = $1", endpointURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pushEndpointRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, "DELETE FROM push_endpoints WHERE id = $1", id)
	return err
}

func (r *pushEndpointRepo) ListByOwners(ctx context.Context, userIDs []string) ([]*model.PushEndpoint, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, owner_user_id, endpoint_url, p256dh, auth, created_at, last_used_at
		FROM push_endpoints
		WHERE owner_user_id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []*model.PushEndpoint
	for rows.Next() {
		var e model.PushEndpoint
		if err := rows.Scan(&e.ID, &e.OwnerUserID, &e.EndpointURL, &e.Keys.P256dh, &e.Keys.Auth, &e.CreatedAt, &e.LastUsedAt); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return endpoints, nil
}

func (r *pushEndpointRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, "UPDATE push_endpoints SET last_used_at = $2 WHERE id = $1", id, at)
	return err
}

func (r *pushEndpointRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM push_endpoints WHERE last_used_at < $1", before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

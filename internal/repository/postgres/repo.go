package postgres

import (
	"context"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/config"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, cfg.DSN())
}

// EnsureSchema creates the tables this service owns when they are missing.
// The rest of the inspection schema is managed elsewhere.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}

func NewRepository(db *pgxpool.Pool) *repository.Repository {
	return &repository.Repository{
		Notification: newNotificationRepo(db),
		PushEndpoint: newPushEndpointRepo(db),
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id                  UUID PRIMARY KEY,
	type                TEXT NOT NULL,
	title               VARCHAR(255) NOT NULL,
	body                TEXT NOT NULL,
	target_user_id      TEXT NOT NULL,
	priority            SMALLINT NOT NULL DEFAULT 1,
	related_job_id      TEXT,
	related_building_id TEXT,
	read                BOOLEAN NOT NULL DEFAULT false,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	due_at              TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_notifications_unread
	ON notifications(target_user_id, created_at DESC) WHERE read = false;

CREATE INDEX IF NOT EXISTS idx_notifications_created_at
	ON notifications(created_at);

CREATE TABLE IF NOT EXISTS push_endpoints (
	id            UUID PRIMARY KEY,
	owner_user_id TEXT NOT NULL,
	endpoint_url  TEXT NOT NULL UNIQUE,
	p256dh        TEXT NOT NULL DEFAULT '',
	auth          TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_used_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_push_endpoints_owner
	ON push_endpoints(owner_user_id);
`
